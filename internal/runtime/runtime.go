// Package runtime drives a migrated workflow on GitHub Actions: it triggers
// or locates the run the push produced, polls it to completion, and
// classifies any failure so the orchestrator can decide whether the Repair
// Agent stands a chance of fixing it.
package runtime

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/ci-migrate/cipilot/internal/ghclient"
	"github.com/ci-migrate/cipilot/internal/model"
	"github.com/ci-migrate/cipilot/pkg/logger"
)

var log = logger.New("runtime:runtime")

const (
	runDiscoveryTimeout  = 60 * time.Second
	runDiscoveryInterval = 5 * time.Second
	defaultPollTimeout   = 10 * time.Minute
	defaultPollInterval  = 30 * time.Second
)

// secretErrorPatterns flag failures no repair attempt can fix: the
// repository's secrets simply aren't configured on the fork.
var secretErrorPatterns = compilePatterns([]string{
	`secret.*not.*found`,
	`token.*not.*set`,
	`authentication.*failed`,
	`unauthorized`,
	`403.*forbidden`,
	`GITHUB_TOKEN.*invalid`,
	`npm.*ERR!.*401`,
	`npm.*ERR!.*403`,
	`docker.*login.*failed`,
	`AWS_ACCESS_KEY_ID.*not.*set`,
	`AZURE_.*not.*configured`,
	`GCP_.*credentials`,
	`secrets\..*is empty`,
	`environment variable.*not set`,
	`\$\{\{.*secrets\.`,
})

// fixableErrorPatterns flag failures plausibly caused by a translation
// mistake: a syntax slip, a missing input, a wrong working directory.
var fixableErrorPatterns = compilePatterns([]string{
	`yaml.*syntax.*error`,
	`invalid.*workflow.*file`,
	`unexpected.*key`,
	`mapping values are not allowed`,
	`could not find.*action`,
	`invalid.*input`,
	`required.*input.*not.*provided`,
	`job.*not found`,
	`permission.*denied.*actions`,
	`uses.*invalid`,
	`run.*command.*failed`,
	`no POM`,
	`Could not find.*pom\.xml`,
	`BUILD FAILURE`,
	`no such file or directory`,
	`command not found`,
	`working-directory`,
	`Process completed with exit code [1-9]`,
})

func compilePatterns(patterns []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile("(?i)" + p)
	}
	return out
}

// ClassifyError inspects failed-run logs and reports the error kind plus a
// relevant snippet, checked in priority order: secret errors (never
// fixable) before fixable errors before an unknown-error fallback.
func ClassifyError(logContent string) (model.ErrorKind, string) {
	if logContent == "" {
		return model.ErrorUnknown, "No log content available"
	}

	if loc := firstMatch(secretErrorPatterns, logContent); loc != nil {
		return model.ErrorSecret, snippet(logContent, loc, 200)
	}
	if loc := firstMatch(fixableErrorPatterns, logContent); loc != nil {
		return model.ErrorFixable, snippet(logContent, loc, 500)
	}

	if len(logContent) > 1000 {
		return model.ErrorUnknown, logContent[len(logContent)-1000:]
	}
	return model.ErrorUnknown, logContent
}

func firstMatch(patterns []*regexp.Regexp, content string) []int {
	for _, re := range patterns {
		if loc := re.FindStringIndex(content); loc != nil {
			return loc
		}
	}
	return nil
}

func snippet(content string, loc []int, margin int) string {
	start := loc[0] - margin
	if start < 0 {
		start = 0
	}
	end := loc[1] + margin
	if end > len(content) {
		end = len(content)
	}
	return content[start:end]
}

// WorkflowFileName extracts the dispatch-addressable filename from a target
// workflow path, e.g. ".github/workflows/ci.yml" -> "ci.yml".
func WorkflowFileName(targetPath string) string {
	return path.Base(targetPath)
}

// Result is the outcome of verifying one migrated workflow on GitHub Actions.
type Result struct {
	RunID         int64
	RunURL        string
	Conclusion    string
	Passed        bool
	ErrorKind     model.ErrorKind
	ErrorSnippet  string
	Err           error
}

// Verify triggers workflow_dispatch (falling back to whatever run the
// preceding push already started, if dispatch isn't enabled), polls until
// the run completes or pollTimeout elapses, and classifies any failure.
func Verify(ctx context.Context, client *ghclient.Client, forkOwner, repoName, branchName, workflowFile string, pollTimeout, pollInterval time.Duration) Result {
	if pollTimeout <= 0 {
		pollTimeout = defaultPollTimeout
	}
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	log.Printf("looking for workflow run on %s/%s branch %s", forkOwner, repoName, branchName)

	if err := client.TriggerWorkflowDispatch(ctx, forkOwner, repoName, workflowFile, branchName); err != nil && !ghclient.IsNotFound(err) {
		log.Printf("workflow_dispatch failed, falling back to push-triggered run: %v", err)
	}

	runID, runURL, err := findLatestRun(ctx, client, forkOwner, repoName, branchName)
	if err != nil {
		return Result{ErrorKind: model.ErrorUnknown, Err: fmt.Errorf("runtime: locating workflow run: %w", err)}
	}

	status, conclusion, err := pollUntilComplete(ctx, client, forkOwner, repoName, runID, pollTimeout, pollInterval)
	if err != nil {
		kind := model.ErrorUnknown
		if status == "timed_out" {
			kind = model.ErrorTimeout
		}
		return Result{RunID: runID, RunURL: runURL, Conclusion: conclusion, ErrorKind: kind, Err: err}
	}

	if conclusion == "success" {
		return Result{RunID: runID, RunURL: runURL, Conclusion: conclusion, Passed: true, ErrorKind: model.ErrorNone}
	}

	logContent, logErr := fetchFailureLogs(ctx, client, forkOwner, repoName, runID)
	if logErr != nil {
		log.Printf("could not fetch run %d logs: %v", runID, logErr)
		return Result{
			RunID: runID, RunURL: runURL, Conclusion: conclusion,
			ErrorKind: model.ErrorUnknown, ErrorSnippet: "could not fetch logs",
			Err: fmt.Errorf("workflow failed with conclusion %s", conclusion),
		}
	}

	kind, errSnippet := ClassifyError(logContent)
	return Result{
		RunID: runID, RunURL: runURL, Conclusion: conclusion,
		ErrorKind: kind, ErrorSnippet: errSnippet,
		Err: fmt.Errorf("workflow failed with conclusion: %s", conclusion),
	}
}

// findLatestRun waits for the push (or dispatch) to produce a run, since
// GitHub Actions needs a moment to register one.
func findLatestRun(ctx context.Context, client *ghclient.Client, owner, repo, branch string) (int64, string, error) {
	deadline := time.Now().Add(runDiscoveryTimeout)
	ticker := time.NewTicker(runDiscoveryInterval)
	defer ticker.Stop()

	for {
		runs, err := client.ListWorkflowRuns(ctx, owner, repo, "ci.yml")
		if err == nil {
			for _, r := range runs {
				if r.Event == "push" || r.Event == "workflow_dispatch" {
					return r.ID, r.HTMLURL, nil
				}
			}
			if len(runs) > 0 {
				return runs[0].ID, runs[0].HTMLURL, nil
			}
		}

		if time.Now().After(deadline) {
			if err != nil {
				return 0, "", fmt.Errorf("no workflow runs found after waiting %s: %w", runDiscoveryTimeout, err)
			}
			return 0, "", fmt.Errorf("no workflow runs found after waiting %s", runDiscoveryTimeout)
		}

		select {
		case <-ctx.Done():
			return 0, "", ctx.Err()
		case <-ticker.C:
		}
	}
}

// pollUntilComplete polls run status until it reports "completed", the
// context is cancelled, or timeout elapses.
func pollUntilComplete(ctx context.Context, client *ghclient.Client, owner, repo string, runID int64, timeout, interval time.Duration) (status, conclusion string, err error) {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if time.Now().After(deadline) {
			return "timed_out", "timed_out", fmt.Errorf("workflow timed out after %s", timeout)
		}

		run, err := client.GetWorkflowRun(ctx, owner, repo, runID)
		if err != nil {
			return "error", "error", fmt.Errorf("polling run %d: %w", runID, err)
		}
		if run.Status == "completed" {
			conclusion := run.Conclusion
			if conclusion == "" {
				conclusion = "unknown"
			}
			return run.Status, conclusion, nil
		}

		select {
		case <-ctx.Done():
			return "error", "error", ctx.Err()
		case <-ticker.C:
		}
	}
}

// fetchFailureLogs collects logs for every failed job, falling back to the
// whole run's logs when no individual job failed (e.g. a workflow-level
// syntax error that prevented any job from starting).
func fetchFailureLogs(ctx context.Context, client *ghclient.Client, owner, repo string, runID int64) (string, error) {
	jobs, err := client.ListJobs(ctx, owner, repo, runID)
	if err != nil {
		return "", fmt.Errorf("fetching jobs: %w", err)
	}

	var parts []string
	for _, j := range jobs {
		if j.Conclusion != "failure" {
			continue
		}
		logs, err := client.GetJobLogs(ctx, owner, repo, j.ID)
		if err != nil {
			parts = append(parts, fmt.Sprintf("\n=== Job: %s ===\n(could not fetch logs: %v)", j.Name, err))
			continue
		}
		parts = append(parts, fmt.Sprintf("\n=== Job: %s ===\n%s", j.Name, logs))
	}

	if len(parts) == 0 {
		logs, err := client.GetRunLogs(ctx, owner, repo, runID)
		if err != nil {
			return "", fmt.Errorf("fetching run logs: %w", err)
		}
		return logs, nil
	}

	return strings.Join(parts, "\n"), nil
}
