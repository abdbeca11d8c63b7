// Package constants holds shared string literals for the migration
// pipeline: the workflow path PRs write to, the branch-naming scheme, and
// the detection pattern table.
package constants

import "github.com/ci-migrate/cipilot/internal/model"

// ToolName identifies this tool in PR bodies and commit messages.
const ToolName = "CIPilot"

// TargetWorkflowPath is where every migrated workflow is written in the
// target repository.
const TargetWorkflowPath = ".github/workflows/ci.yml"

// DefaultBranchPrefix is the default value of --branch-prefix.
const DefaultBranchPrefix = "cipilot/migrated"

// DetectionPatterns maps each source CI kind to the paths that indicate its
// presence. A trailing "/" marks a directory, in which the first .yml/.yaml
// file entry counts as a match; anything else is an exact file path.
// Grounded verbatim on CI_DETECTION_PATTERNS.
var DetectionPatterns = map[model.CIKind][]string{
	model.CICircleCI:       {".circleci/config.yml", ".circleci/config.yaml"},
	model.CITravis:         {".travis.yml", ".travis.yaml"},
	model.CIGitLab:         {".gitlab-ci.yml", ".gitlab-ci.yaml"},
	model.CIJenkins:        {"Jenkinsfile", "jenkins/Jenkinsfile"},
	model.CIAzurePipelines: {"azure-pipelines.yml", "azure-pipelines.yaml", ".azure-pipelines.yml"},
	model.CIBitbucket:      {"bitbucket-pipelines.yml"},
	model.CIDrone:          {".drone.yml", ".drone.yaml"},
	model.CISemaphore:      {".semaphore/semaphore.yml"},
	model.CIBuildkite:      {".buildkite/pipeline.yml", ".buildkite/pipeline.yaml"},
	model.CIAppVeyor:       {"appveyor.yml", ".appveyor.yml"},
	model.CICodefresh:      {"codefresh.yml", ".codefresh.yml"},
}
