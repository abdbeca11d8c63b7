// Package model defines the shared data types that flow between pipeline
// stages: repository references, detected CI configurations, per-stage
// outcomes and the aggregate result written to the report.
package model

import "strings"

// CIKind identifies a source CI system. GitHub Actions is deliberately
// absent: it is the migration target, never something the Detector reports.
type CIKind string

const (
	CICircleCI         CIKind = "circleci"
	CITravis           CIKind = "travis"
	CIGitLab           CIKind = "gitlab"
	CIJenkins          CIKind = "jenkins"
	CIAzurePipelines   CIKind = "azure-pipelines"
	CIBitbucket        CIKind = "bitbucket"
	CIDrone            CIKind = "drone"
	CISemaphore        CIKind = "semaphore"
	CIBuildkite        CIKind = "buildkite"
	CIAppVeyor         CIKind = "appveyor"
	CICodefresh        CIKind = "codefresh"
)

// AllCIKinds lists every source kind the Detector can report, in the
// priority order used when a repository configures more than one.
var AllCIKinds = []CIKind{
	CICircleCI, CITravis, CIGitLab, CIJenkins, CIAzurePipelines,
	CIBitbucket, CIDrone, CISemaphore, CIBuildkite, CIAppVeyor, CICodefresh,
}

// DisplayName renders a CIKind the way it should read in a PR title, e.g.
// "circleci" -> "Circleci", "azure-pipelines" -> "Azure Pipelines".
func (k CIKind) DisplayName() string {
	parts := strings.Split(string(k), "-")
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, " ")
}

// DetectedConfig is one CI configuration the Detector found in a repository.
type DetectedConfig struct {
	CIKind     CIKind
	SourceYAML string
	SourcePath string
}
