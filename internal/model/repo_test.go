package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepoRefFullName(t *testing.T) {
	r := RepoRef{URL: "https://github.com/acme/widgets.git"}
	name, err := r.FullName()
	require.NoError(t, err)
	assert.Equal(t, "acme/widgets", name)
}

func TestRepoRefTargetBranchDefaultsToMain(t *testing.T) {
	r := RepoRef{URL: "https://github.com/acme/widgets"}
	assert.Equal(t, "main", r.TargetBranch())
}

func TestRepoRefTargetBranchHonorsOverride(t *testing.T) {
	r := RepoRef{URL: "https://github.com/acme/widgets", DesiredDefaultBranch: "develop"}
	assert.Equal(t, "develop", r.TargetBranch())
}

func TestRepoRefMalformedURL(t *testing.T) {
	r := RepoRef{URL: "not-a-url"}
	_, err := r.FullName()
	assert.Error(t, err)
}
