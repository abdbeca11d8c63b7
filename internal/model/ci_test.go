package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCIKindDisplayName(t *testing.T) {
	cases := map[CIKind]string{
		CICircleCI:       "Circleci",
		CIAzurePipelines: "Azure Pipelines",
		CIBuildkite:      "Buildkite",
	}
	for kind, want := range cases {
		assert.Equal(t, want, kind.DisplayName())
	}
}

func TestAllCIKindsExcludesGitHubActions(t *testing.T) {
	for _, k := range AllCIKinds {
		assert.NotEqual(t, "github-actions", string(k))
	}
}
