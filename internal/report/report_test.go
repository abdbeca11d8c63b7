package report

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ci-migrate/cipilot/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestResult(url string, status model.OverallStatus) *model.RepoResult {
	return &model.RepoResult{
		Repo:          model.RepoRef{URL: url, DesiredDefaultBranch: "main"},
		CIKind:        model.CITravis,
		OverallStatus: status,
		StartedAt:     time.Unix(0, 0),
		CompletedAt:   time.Unix(10, 0),
	}
}

func TestWriteResultCreatesHeaderAndRow(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.csv")
	r := New(path, false)

	idx, err := r.WriteResult(newTestResult("https://github.com/acme/widgets", model.OverallSuccess))
	require.NoError(t, err)
	assert.Equal(t, 0, idx)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "repo_url")
	assert.Contains(t, string(data), "acme/widgets")
}

func TestWriteResultAssignsIncreasingRowIndices(t *testing.T) {
	dir := t.TempDir()
	r := New(filepath.Join(dir, "out.csv"), false)

	idx1, err := r.WriteResult(newTestResult("https://github.com/acme/one", model.OverallSuccess))
	require.NoError(t, err)
	idx2, err := r.WriteResult(newTestResult("https://github.com/acme/two", model.OverallFailed))
	require.NoError(t, err)

	assert.Equal(t, 0, idx1)
	assert.Equal(t, 1, idx2)
}

func TestUpdateResultRewritesRowInPlace(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.csv")
	r := New(path, false)

	idx, err := r.WriteResult(newTestResult("https://github.com/acme/widgets", model.OverallRuntimePending))
	require.NoError(t, err)

	updated := newTestResult("https://github.com/acme/widgets", model.OverallSuccess)
	require.NoError(t, r.UpdateResult(idx, updated))

	summary, err := r.GetSummary()
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Total)
	assert.Equal(t, 1, summary.Success)
}

func TestLoadForResumeClassifiesRows(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.csv")
	r := New(path, false)

	_, err := r.WriteResult(newTestResult("https://github.com/acme/done", model.OverallSuccess))
	require.NoError(t, err)
	_, err = r.WriteResult(newTestResult("https://github.com/acme/pending", model.OverallRuntimePending))
	require.NoError(t, err)

	r2 := New(path, false)
	state, err := r2.LoadForResume()
	require.NoError(t, err)
	assert.True(t, state.TerminalRepoURLs["https://github.com/acme/done"])
	assert.Equal(t, []int{1}, state.RuntimePending)
}

func TestLoadForResumeOnMissingFileReturnsEmptyState(t *testing.T) {
	dir := t.TempDir()
	r := New(filepath.Join(dir, "missing.csv"), false)
	state, err := r.LoadForResume()
	require.NoError(t, err)
	assert.Empty(t, state.TerminalRepoURLs)
	assert.Empty(t, state.RuntimePending)
}

func TestGetSummaryCountsPRsCreated(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.csv")
	r := New(path, false)

	result := newTestResult("https://github.com/acme/widgets", model.OverallSuccess)
	result.PR = &model.PROutcome{PRURL: "https://github.com/acme/widgets/pull/1"}
	_, err := r.WriteResult(result)
	require.NoError(t, err)

	summary, err := r.GetSummary()
	require.NoError(t, err)
	assert.Equal(t, 1, summary.PRsCreated)
}
