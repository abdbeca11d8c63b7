package verify

import (
	"context"
	"testing"

	"github.com/ci-migrate/cipilot/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCompleter struct {
	response string
	err      error
}

func (f *fakeCompleter) SemanticVerify(_ context.Context, _, _ string) (string, error) {
	return f.response, f.err
}

func TestVerifyPassesThroughCleanVerdict(t *testing.T) {
	completer := &fakeCompleter{response: `{"passed": true, "reasons": ["looks good"], "missing_features": [], "hallucinated_steps": [], "confidence": 0.9}`}
	v, err := Verify(context.Background(), completer, "src", "dst", model.CITravis)
	require.NoError(t, err)
	assert.True(t, v.Passed)
	assert.Contains(t, v.Reasons, "looks good")
}

func TestVerifyStripsCodeFence(t *testing.T) {
	completer := &fakeCompleter{response: "```json\n{\"passed\": true, \"reasons\": [], \"missing_features\": [], \"hallucinated_steps\": [], \"confidence\": 0.5}\n```"}
	v, err := Verify(context.Background(), completer, "src", "dst", model.CITravis)
	require.NoError(t, err)
	assert.True(t, v.Passed)
}

func TestVerifyFiltersAllowedAdditionsAndForcesPass(t *testing.T) {
	completer := &fakeCompleter{response: `{"passed": false, "reasons": [], "missing_features": [], "hallucinated_steps": ["actions/checkout@v4", "setup-node"], "confidence": 0.8}`}
	v, err := Verify(context.Background(), completer, "src", "dst", model.CITravis)
	require.NoError(t, err)
	assert.True(t, v.Passed)
	assert.Empty(t, v.HallucinatedSteps)
}

func TestVerifyKeepsGenuineHallucinations(t *testing.T) {
	completer := &fakeCompleter{response: `{"passed": false, "reasons": [], "missing_features": [], "hallucinated_steps": ["deploy-to-prod step"], "confidence": 0.8}`}
	v, err := Verify(context.Background(), completer, "src", "dst", model.CITravis)
	require.NoError(t, err)
	assert.False(t, v.Passed)
	assert.Contains(t, v.HallucinatedSteps, "deploy-to-prod step")
}

func TestVerifyForcesFailOnSignificantMissingFeature(t *testing.T) {
	completer := &fakeCompleter{response: `{"passed": true, "reasons": [], "missing_features": ["docker build step"], "hallucinated_steps": [], "confidence": 0.9}`}
	v, err := Verify(context.Background(), completer, "src", "dst", model.CITravis)
	require.NoError(t, err)
	assert.False(t, v.Passed)
	assert.Contains(t, v.Reasons[0], "CRITICAL")
}

func TestVerifyMalformedJSONDefaultsToPass(t *testing.T) {
	completer := &fakeCompleter{response: "not json at all"}
	v, err := Verify(context.Background(), completer, "src", "dst", model.CITravis)
	require.NoError(t, err)
	assert.True(t, v.Passed)
	assert.Equal(t, 0.0, v.Confidence)
}

func TestVerifySchemaRejectsMissingRequiredField(t *testing.T) {
	completer := &fakeCompleter{response: `{"passed": true}`}
	v, err := Verify(context.Background(), completer, "src", "dst", model.CITravis)
	require.NoError(t, err)
	assert.True(t, v.Passed) // falls back to the defensive default
}
