// Package ghclient wraps github.com/cli/go-gh/v2/pkg/api with the handful of
// REST calls the migration pipeline needs: reading source files, forking and
// writing to a fork, opening pull requests, and driving a workflow run to
// verify a migrated workflow actually executes.
//
// A Client is bound to a single credential. The Token Pool constructs a
// fresh Client per PAT rotation rather than mutating one, since the
// underlying api.RESTClient has no way to swap its auth token after
// construction.
package ghclient

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cli/go-gh/v2/pkg/api"
	"github.com/ci-migrate/cipilot/pkg/logger"
)

var log = logger.New("ghclient:client")

func bytesReader(b []byte) *bytes.Reader {
	return bytes.NewReader(b)
}

// Client issues GitHub REST API calls authenticated with one credential.
type Client struct {
	rest  *api.RESTClient
	token string
}

// New builds a Client authenticated with the given personal access token.
func New(token string) (*Client, error) {
	rest, err := api.NewRESTClient(api.ClientOptions{
		AuthToken: token,
		Timeout:   30 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("ghclient: building REST client: %w", err)
	}
	return &Client{rest: rest, token: token}, nil
}

// do issues a request and decodes a JSON response, if out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out any) (*http.Response, error) {
	resp, err := c.rest.RequestWithContext(ctx, method, path, body)
	if err != nil {
		return resp, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(resp.Body)
		return resp, &StatusError{StatusCode: resp.StatusCode, Body: string(data), Path: path}
	}

	if out == nil {
		return resp, nil
	}
	if resp.StatusCode == http.StatusNoContent {
		return resp, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
		return resp, fmt.Errorf("ghclient: decoding response for %s: %w", path, err)
	}
	return resp, nil
}

// StatusError is returned for any non-2xx REST response; callers inspect
// StatusCode to distinguish auth failures (handled by the Token Pool),
// 404s (used for fork/branch existence checks) and 422s (duplicate PRs).
type StatusError struct {
	StatusCode int
	Body       string
	Path       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("ghclient: %s returned %d: %s", e.Path, e.StatusCode, e.Body)
}

// IsNotFound reports whether err is a 404 StatusError.
func IsNotFound(err error) bool {
	var se *StatusError
	return asStatusError(err, &se) && se.StatusCode == http.StatusNotFound
}

// IsUnprocessable reports whether err is a 422 StatusError, the status GitHub
// uses for "branch already exists" and "pull request already exists".
func IsUnprocessable(err error) bool {
	var se *StatusError
	return asStatusError(err, &se) && se.StatusCode == http.StatusUnprocessableEntity
}

func asStatusError(err error, target **StatusError) bool {
	se, ok := err.(*StatusError)
	if ok {
		*target = se
	}
	return ok
}

// AsStatusError extracts the *StatusError underlying err, if any, for
// callers that need the raw status code or response body beyond what
// IsNotFound/IsUnprocessable expose.
func AsStatusError(err error) (*StatusError, bool) {
	se, ok := err.(*StatusError)
	return se, ok
}

// FileContent is one GET /repos/{owner}/{repo}/contents/{path} response.
type FileContent struct {
	Path     string `json:"path"`
	SHA      string `json:"sha"`
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
	Type     string `json:"type"`
}

// Decode returns the file's decoded body.
func (f FileContent) Decode() ([]byte, error) {
	if f.Encoding != "base64" {
		return []byte(f.Content), nil
	}
	return base64.StdEncoding.DecodeString(f.Content)
}

// GetContents fetches a single file's metadata and content at ref.
func (c *Client) GetContents(ctx context.Context, owner, repo, path, ref string) (*FileContent, error) {
	p := fmt.Sprintf("repos/%s/%s/contents/%s?ref=%s", owner, repo, path, ref)
	var out FileContent
	if _, err := c.do(ctx, http.MethodGet, p, nil, &out); err != nil {
		return nil, err
	}
	log.Printf("fetched %s/%s/%s@%s (%d bytes encoded)", owner, repo, path, ref, len(out.Content))
	return &out, nil
}

// DirEntry is one entry of a GET /repos/{owner}/{repo}/contents/{dir} listing.
type DirEntry struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Type string `json:"type"`
}

// ListDirectory lists the entries under a directory at ref.
func (c *Client) ListDirectory(ctx context.Context, owner, repo, dir, ref string) ([]DirEntry, error) {
	p := fmt.Sprintf("repos/%s/%s/contents/%s?ref=%s", owner, repo, dir, ref)
	var out []DirEntry
	if _, err := c.do(ctx, http.MethodGet, p, nil, &out); err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return out, nil
}

// RateLimitStatus mirrors the "core" block of GET /rate_limit.
type RateLimitStatus struct {
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	Reset     int64     `json:"reset"`
	ResetAt   time.Time `json:"-"`
}

// GetRateLimit queries the credential's current core rate-limit budget, used
// by the Token Pool to decide whether a PAT needs to cool down before its
// next assignment.
func (c *Client) GetRateLimit(ctx context.Context) (*RateLimitStatus, error) {
	var out struct {
		Resources struct {
			Core RateLimitStatus `json:"core"`
		} `json:"resources"`
	}
	if _, err := c.do(ctx, http.MethodGet, "rate_limit", nil, &out); err != nil {
		return nil, err
	}
	out.Resources.Core.ResetAt = time.Unix(out.Resources.Core.Reset, 0)
	return &out.Resources.Core, nil
}

// repoInfo is the subset of GET /repos/{owner}/{repo} the writer needs.
type repoInfo struct {
	FullName string `json:"full_name"`
	Fork     bool   `json:"fork"`
	Parent   *struct {
		FullName string `json:"full_name"`
	} `json:"parent"`
}

// EnsureFork guarantees the authenticated user has a fork of owner/repo,
// creating one if necessary, and returns the fork owner login.
func (c *Client) EnsureFork(ctx context.Context, owner, repo string) (forkOwner string, err error) {
	username, err := c.currentUsername(ctx)
	if err != nil {
		return "", err
	}

	var existing repoInfo
	_, err = c.do(ctx, http.MethodGet, fmt.Sprintf("repos/%s/%s", username, repo), nil, &existing)
	if err == nil && existing.Fork && existing.Parent != nil &&
		existing.Parent.FullName == fmt.Sprintf("%s/%s", owner, repo) {
		return username, nil
	}
	if err != nil && !IsNotFound(err) {
		return "", err
	}

	log.Printf("forking %s/%s for %s", owner, repo, username)
	if _, err := c.do(ctx, http.MethodPost, fmt.Sprintf("repos/%s/%s/forks", owner, repo), nil, nil); err != nil {
		return "", fmt.Errorf("ghclient: creating fork of %s/%s: %w", owner, repo, err)
	}

	// GitHub forks asynchronously; give it a moment before the first write.
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(3 * time.Second):
	}
	return username, nil
}

type userInfo struct {
	Login string `json:"login"`
}

func (c *Client) currentUsername(ctx context.Context) (string, error) {
	var out userInfo
	if _, err := c.do(ctx, http.MethodGet, "user", nil, &out); err != nil {
		return "", fmt.Errorf("ghclient: resolving authenticated user: %w", err)
	}
	return out.Login, nil
}

type refResponse struct {
	Object struct {
		SHA string `json:"sha"`
	} `json:"object"`
}

// GetBranchSHA resolves a branch to its current commit SHA, trying owner
// first (the fork) then falling back to sourceOwner (where the fork was
// forked from), mirroring the writer's preference for the fork's own
// history when both happen to have the branch.
func (c *Client) GetBranchSHA(ctx context.Context, owner, sourceOwner, repo, branch string) (string, error) {
	for _, o := range []string{owner, sourceOwner} {
		var out refResponse
		p := fmt.Sprintf("repos/%s/%s/git/refs/heads/%s", o, repo, branch)
		if _, err := c.do(ctx, http.MethodGet, p, nil, &out); err == nil {
			return out.Object.SHA, nil
		} else if !IsNotFound(err) {
			return "", err
		}
	}
	return "", fmt.Errorf("ghclient: branch %s not found on %s/%s or %s/%s", branch, owner, repo, sourceOwner, repo)
}

// CreateBranch creates refs/heads/branch at sha, deleting and recreating it
// first if it already exists, so each migration run starts from a clean
// branch tip.
func (c *Client) CreateBranch(ctx context.Context, owner, repo, branch, sha string) error {
	refPath := fmt.Sprintf("repos/%s/%s/git/refs/heads/%s", owner, repo, branch)
	if _, err := c.do(ctx, http.MethodGet, refPath, nil, nil); err == nil {
		if _, err := c.do(ctx, http.MethodDelete, refPath, nil, nil); err != nil {
			return fmt.Errorf("ghclient: deleting existing branch %s: %w", branch, err)
		}
	} else if !IsNotFound(err) {
		return err
	}

	body, _ := json.Marshal(map[string]string{
		"ref": "refs/heads/" + branch,
		"sha": sha,
	})
	if _, err := c.do(ctx, http.MethodPost, fmt.Sprintf("repos/%s/%s/git/refs", owner, repo), bytesReader(body), nil); err != nil {
		return fmt.Errorf("ghclient: creating branch %s: %w", branch, err)
	}
	return nil
}

// CreateOrUpdateFile writes content to path on branch, creating the file or
// updating it in place if it already exists.
func (c *Client) CreateOrUpdateFile(ctx context.Context, owner, repo, path, branch string, content []byte, message string) error {
	var existing FileContent
	getPath := fmt.Sprintf("repos/%s/%s/contents/%s?ref=%s", owner, repo, path, branch)
	_, getErr := c.do(ctx, http.MethodGet, getPath, nil, &existing)
	if getErr != nil && !IsNotFound(getErr) {
		return getErr
	}

	payload := map[string]any{
		"message": message,
		"content": base64.StdEncoding.EncodeToString(content),
		"branch":  branch,
	}
	if getErr == nil {
		payload["sha"] = existing.SHA
	}
	body, _ := json.Marshal(payload)

	if _, err := c.do(ctx, http.MethodPut, fmt.Sprintf("repos/%s/%s/contents/%s", owner, repo, path), bytesReader(body), nil); err != nil {
		return fmt.Errorf("ghclient: writing %s to %s/%s@%s: %w", path, owner, repo, branch, err)
	}
	return nil
}

// CreatePRInput describes a pull request to open.
type CreatePRInput struct {
	Title string
	Body  string
	Head  string // "fork-owner:branch"
	Base  string
}

// PullRequest is the subset of the PR creation response the publisher needs.
type PullRequest struct {
	Number  int    `json:"number"`
	HTMLURL string `json:"html_url"`
}

// CreatePR opens a pull request against owner/repo.
func (c *Client) CreatePR(ctx context.Context, owner, repo string, in CreatePRInput) (*PullRequest, error) {
	body, _ := json.Marshal(map[string]string{
		"title": in.Title,
		"body":  in.Body,
		"head":  in.Head,
		"base":  in.Base,
	})
	var out PullRequest
	if _, err := c.do(ctx, http.MethodPost, fmt.Sprintf("repos/%s/%s/pulls", owner, repo), bytesReader(body), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TriggerWorkflowDispatch fires a workflow_dispatch event for workflowFile on
// ref. GitHub responds 204 with no body; the run must be located separately
// via ListWorkflowRuns.
func (c *Client) TriggerWorkflowDispatch(ctx context.Context, owner, repo, workflowFile, ref string) error {
	body, _ := json.Marshal(map[string]string{"ref": ref})
	p := fmt.Sprintf("repos/%s/%s/actions/workflows/%s/dispatches", owner, repo, workflowFile)
	_, err := c.do(ctx, http.MethodPost, p, bytesReader(body), nil)
	return err
}

// WorkflowRun is the subset of a workflow run object the runtime verifier needs.
type WorkflowRun struct {
	ID         int64  `json:"id"`
	Status     string `json:"status"`
	Conclusion string `json:"conclusion"`
	HTMLURL    string `json:"html_url"`
	Event      string `json:"event"`
}

// ListWorkflowRuns returns the most recent runs of workflowFile, newest first.
func (c *Client) ListWorkflowRuns(ctx context.Context, owner, repo, workflowFile string) ([]WorkflowRun, error) {
	var out struct {
		WorkflowRuns []WorkflowRun `json:"workflow_runs"`
	}
	p := fmt.Sprintf("repos/%s/%s/actions/workflows/%s/runs?per_page=10", owner, repo, workflowFile)
	if _, err := c.do(ctx, http.MethodGet, p, nil, &out); err != nil {
		return nil, err
	}
	return out.WorkflowRuns, nil
}

// GetWorkflowRun fetches a single run by id, used while polling for completion.
func (c *Client) GetWorkflowRun(ctx context.Context, owner, repo string, runID int64) (*WorkflowRun, error) {
	var out WorkflowRun
	p := fmt.Sprintf("repos/%s/%s/actions/runs/%d", owner, repo, runID)
	if _, err := c.do(ctx, http.MethodGet, p, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Job is one job within a workflow run.
type Job struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Conclusion string `json:"conclusion"`
}

// ListJobs lists the jobs that ran as part of runID.
func (c *Client) ListJobs(ctx context.Context, owner, repo string, runID int64) ([]Job, error) {
	var out struct {
		Jobs []Job `json:"jobs"`
	}
	p := fmt.Sprintf("repos/%s/%s/actions/runs/%d/jobs", owner, repo, runID)
	if _, err := c.do(ctx, http.MethodGet, p, nil, &out); err != nil {
		return nil, err
	}
	return out.Jobs, nil
}

// GetJobLogs downloads the plain-text log for a single job.
func (c *Client) GetJobLogs(ctx context.Context, owner, repo string, jobID int64) (string, error) {
	p := fmt.Sprintf("repos/%s/%s/actions/jobs/%d/logs", owner, repo, jobID)
	resp, err := c.rest.RequestWithContext(ctx, http.MethodGet, p, nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(resp.Body)
		return "", &StatusError{StatusCode: resp.StatusCode, Body: string(data), Path: p}
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("ghclient: reading job %d logs: %w", jobID, err)
	}
	return string(data), nil
}

// GetRunLogs downloads the whole run's logs, the fallback used when a run
// failed with no individually-failed job (e.g. a workflow-level syntax error
// that prevented any job from starting).
func (c *Client) GetRunLogs(ctx context.Context, owner, repo string, runID int64) (string, error) {
	p := fmt.Sprintf("repos/%s/%s/actions/runs/%d/logs", owner, repo, runID)
	resp, err := c.rest.RequestWithContext(ctx, http.MethodGet, p, nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(resp.Body)
		return "", &StatusError{StatusCode: resp.StatusCode, Body: string(data), Path: p}
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("ghclient: reading run %d logs: %w", runID, err)
	}
	return string(data), nil
}
