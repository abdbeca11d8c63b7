package model

import (
	"fmt"

	"github.com/ci-migrate/cipilot/pkg/repoutil"
)

// RepoRef is one line of pipeline input: a repository URL plus the branch a
// migration PR should target.
type RepoRef struct {
	URL                   string
	DesiredDefaultBranch  string
}

// Owner returns the GitHub owner/org for this repository, or an error if the
// URL does not parse as a GitHub repository. Detection failures downstream
// of a bad URL are reported per-repo rather than aborting the whole run.
func (r RepoRef) Owner() (string, error) {
	owner, _, err := repoutil.ParseGitHubRepoURL(r.URL)
	return owner, err
}

// Name returns the repository name, stripped of any ".git" suffix.
func (r RepoRef) Name() (string, error) {
	_, name, err := repoutil.ParseGitHubRepoURL(r.URL)
	return name, err
}

// FullName returns "owner/name".
func (r RepoRef) FullName() (string, error) {
	owner, name, err := repoutil.ParseGitHubRepoURL(r.URL)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/%s", owner, name), nil
}

// TargetBranch returns the branch PRs should be opened against, defaulting
// to "main" when the input left it blank.
func (r RepoRef) TargetBranch() string {
	if r.DesiredDefaultBranch == "" {
		return "main"
	}
	return r.DesiredDefaultBranch
}
