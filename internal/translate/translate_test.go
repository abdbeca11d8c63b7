package translate

import (
	"context"
	"errors"
	"testing"

	"github.com/ci-migrate/cipilot/internal/model"
	"github.com/ci-migrate/cipilot/pkg/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCompleter struct {
	responses []string
	errs      []error
	calls     int
}

func (f *fakeCompleter) Translate(_ context.Context, _, _ string) (string, error) {
	i := f.calls
	f.calls++
	var out string
	var err error
	if i < len(f.responses) {
		out = f.responses[i]
	}
	if i < len(f.errs) {
		err = f.errs[i]
	}
	return out, err
}

func testBucket(t *testing.T) *ratelimit.TokenBucket {
	t.Helper()
	cfg := &ratelimit.Config{
		Rate: 100, Burst: 100, Interval: 1, MaxRetries: 3,
		InitialBackoff: 1, MaxBackoff: 1, BackoffMultiplier: 1.0,
	}
	b, err := ratelimit.NewTokenBucket(ratelimit.OperationGitHubAPI, cfg)
	require.NoError(t, err)
	return b
}

func TestTranslateSuccessOnFirstAttempt(t *testing.T) {
	completer := &fakeCompleter{responses: []string{"name: CI\non:\n  push: {}\njobs:\n  build:\n    runs-on: ubuntu-latest\n"}}
	out, attempts, err := Translate(context.Background(), completer, testBucket(t), "language: python\n", model.CITravis, "", 3)
	require.NoError(t, err)
	assert.Equal(t, 1, attempts)
	assert.Contains(t, out, "jobs:")
}

func TestTranslateStripsCodeFence(t *testing.T) {
	completer := &fakeCompleter{responses: []string{"```yaml\nname: CI\non: push\njobs:\n  build: {}\n```"}}
	out, _, err := Translate(context.Background(), completer, testBucket(t), "src", model.CITravis, "", 3)
	require.NoError(t, err)
	assert.NotContains(t, out, "```")
}

func TestTranslateRetriesOnEchoedSource(t *testing.T) {
	completer := &fakeCompleter{responses: []string{
		"language: python\nscript: pytest\n",
		"name: CI\non: push\njobs:\n  build: {}\n",
	}}
	out, attempts, err := Translate(context.Background(), completer, testBucket(t), "language: python\n", model.CITravis, "", 3)
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.Contains(t, out, "jobs:")
}

func TestTranslateFailsAfterExhaustingRetries(t *testing.T) {
	completer := &fakeCompleter{errs: []error{errors.New("boom"), errors.New("boom"), errors.New("boom")}}
	_, attempts, err := Translate(context.Background(), completer, testBucket(t), "src", model.CITravis, "", 3)
	assert.Error(t, err)
	assert.Equal(t, 3, attempts)
}

func TestTranslateRejectsMissingRequiredKeywords(t *testing.T) {
	completer := &fakeCompleter{responses: []string{"just some prose, not a workflow"}}
	_, _, err := Translate(context.Background(), completer, testBucket(t), "src", model.CITravis, "", 1)
	assert.Error(t, err)
}
