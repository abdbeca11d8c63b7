// Package ghwriter forks the target repository under the bot account (if
// needed), creates or resets a migration branch, and commits the translated
// workflow to it.
package ghwriter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ci-migrate/cipilot/internal/ghclient"
	"github.com/ci-migrate/cipilot/internal/model"
	"github.com/ci-migrate/cipilot/pkg/constants"
	"github.com/ci-migrate/cipilot/pkg/logger"
)

var log = logger.New("ghwriter:ghwriter")

// Result is what a successful write produces.
type Result struct {
	ForkOwner     string
	ForkURL       string
	BranchName    string
	WorkflowPath  string
	Skipped       bool
	SkippedReason string
}

// branchName computes the migration branch name the same way regardless of
// dry-run, so callers can report it even when nothing was pushed.
func branchName(branchPrefix string, ciKind model.CIKind) string {
	return fmt.Sprintf("%s-%s-to-gha", branchPrefix, ciKind)
}

// Write ensures a fork of owner/repo exists, creates branch
// "{branchPrefix}-{ciKind}-to-gha" from targetBranch's tip, and commits
// workflowYAML to .github/workflows/ci.yml on that branch. In dry-run mode
// no GitHub call is made; the branch name is still computed so callers can
// report what would have happened.
func Write(ctx context.Context, client *ghclient.Client, owner, repo, targetBranch string, ciKind model.CIKind, branchPrefix, workflowYAML string, dryRun bool) (Result, error) {
	branch := branchName(branchPrefix, ciKind)
	if dryRun {
		return Result{
			BranchName:    branch,
			WorkflowPath:  constants.TargetWorkflowPath,
			Skipped:       true,
			SkippedReason: "Dry run mode - PR not created",
		}, nil
	}

	forkOwner, err := client.EnsureFork(ctx, owner, repo)
	if err != nil {
		return Result{}, fmt.Errorf("ghwriter: ensuring fork: %w", err)
	}

	sha, err := client.GetBranchSHA(ctx, forkOwner, owner, repo, targetBranch)
	if err != nil {
		return Result{}, fmt.Errorf("ghwriter: resolving branch sha: %w", err)
	}

	if err := client.CreateBranch(ctx, forkOwner, repo, branch, sha); err != nil {
		return Result{}, fmt.Errorf("ghwriter: creating branch %s: %w", branch, err)
	}

	commitMessage := "Migrate CI/CD to GitHub Actions\n\nMigrated by CIPilot batch pipeline"
	if err := client.CreateOrUpdateFile(ctx, forkOwner, repo, constants.TargetWorkflowPath, branch, []byte(workflowYAML), commitMessage); err != nil {
		return Result{}, fmt.Errorf("ghwriter: writing workflow file: %w", err)
	}

	log.Printf("wrote %s to %s/%s@%s", constants.TargetWorkflowPath, forkOwner, repo, branch)
	return Result{
		ForkOwner:    forkOwner,
		ForkURL:      fmt.Sprintf("https://github.com/%s/%s", forkOwner, repo),
		BranchName:   branch,
		WorkflowPath: constants.TargetWorkflowPath,
	}, nil
}

// WithRetry runs Write up to maxRetries times, sleeping retryDelay between
// attempts on failure. Dry-run and already-skipped results never retry.
func WithRetry(ctx context.Context, client *ghclient.Client, owner, repo, targetBranch string, ciKind model.CIKind, branchPrefix, workflowYAML string, dryRun bool, maxRetries int, retryDelay time.Duration) (Result, int, error) {
	if dryRun {
		result, _ := Write(ctx, client, owner, repo, targetBranch, ciKind, branchPrefix, workflowYAML, true)
		return result, 0, nil
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		result, err := Write(ctx, client, owner, repo, targetBranch, ciKind, branchPrefix, workflowYAML, false)
		if err == nil {
			return result, attempt + 1, nil
		}
		lastErr = err
		if attempt < maxRetries-1 {
			select {
			case <-ctx.Done():
				return Result{}, attempt + 1, ctx.Err()
			case <-time.After(retryDelay):
			}
		}
	}
	return Result{}, maxRetries, fmt.Errorf("ghwriter: exhausted %d attempts: %w", maxRetries, lastErr)
}

// PRTitle builds the standard migration PR title.
func PRTitle(ciKind model.CIKind) string {
	return fmt.Sprintf("[%s] Migrate %s to GitHub Actions", constants.ToolName, ciKind.DisplayName())
}

// PRBody builds the standard migration PR body. extraNote, when non-empty,
// is appended as its own paragraph after the review checklist; callers use
// it to disclose runtime-verification caveats.
func PRBody(ciKind model.CIKind, extraNote string) string {
	name := ciKind.DisplayName()
	body := fmt.Sprintf(`## CI/CD Migration

This PR migrates the existing **%s** configuration to **GitHub Actions**.

### Generated by %s Batch Pipeline

- Source CI: %s
- Target CI: GitHub Actions
- Migration Tool: %s

### What's Changed
- Added `+"`%s`"+` with equivalent GitHub Actions workflow

### Please Review
- [ ] Workflow triggers are correct
- [ ] Environment variables are properly configured
- [ ] Secrets are referenced correctly
- [ ] Build/test commands are accurate
`, name, constants.ToolName, name, constants.ToolName, constants.TargetWorkflowPath)

	if extraNote != "" {
		body += "\n" + extraNote + "\n"
	}

	body += "\n---\n*This PR was automatically generated. Please review carefully before merging.*\n"
	return body
}

// errPRAlreadyExists is returned by CreatePR when GitHub reports a 422 whose
// body indicates a PR already exists for this branch.
var errPRAlreadyExists = fmt.Errorf("PR already exists for this branch")

// IsPRAlreadyExists reports whether err is the already-exists condition
// CreatePR surfaces.
func IsPRAlreadyExists(err error) bool {
	return err == errPRAlreadyExists
}

// CreatePR opens the migration PR from forkOwner:branchName against
// targetBranch on owner/repo, using the standard title and the body
// produced by PRBody (pass extraNote through the caller).
func CreatePR(ctx context.Context, client *ghclient.Client, owner, repo, forkOwner, branch, targetBranch string, ciKind model.CIKind, body string) (*ghclient.PullRequest, error) {
	pr, err := client.CreatePR(ctx, owner, repo, ghclient.CreatePRInput{
		Title: PRTitle(ciKind),
		Body:  body,
		Head:  fmt.Sprintf("%s:%s", forkOwner, branch),
		Base:  targetBranch,
	})
	if err != nil {
		if ghclient.IsUnprocessable(err) {
			if statusErr, ok := ghclient.AsStatusError(err); ok && strings.Contains(strings.ToLower(statusErr.Body), "already exists") {
				return nil, errPRAlreadyExists
			}
		}
		return nil, fmt.Errorf("ghwriter: creating PR: %w", err)
	}
	return pr, nil
}
