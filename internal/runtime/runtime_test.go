package runtime

import (
	"testing"

	"github.com/ci-migrate/cipilot/internal/model"
	"github.com/stretchr/testify/assert"
)

func TestClassifyErrorEmptyLog(t *testing.T) {
	kind, snippet := ClassifyError("")
	assert.Equal(t, model.ErrorUnknown, kind)
	assert.Equal(t, "No log content available", snippet)
}

func TestClassifyErrorSecretTakesPriority(t *testing.T) {
	log := "Run npm ci\nError: secret MY_TOKEN not found in repository\nyaml syntax error also present"
	kind, snippet := ClassifyError(log)
	assert.Equal(t, model.ErrorSecret, kind)
	assert.Contains(t, snippet, "secret MY_TOKEN not found")
}

func TestClassifyErrorFixable(t *testing.T) {
	log := "Step failed\nError: could not find action 'foo/bar'\nsee logs above"
	kind, snippet := ClassifyError(log)
	assert.Equal(t, model.ErrorFixable, kind)
	assert.Contains(t, snippet, "could not find action")
}

func TestClassifyErrorUnknownFallsBackToTail(t *testing.T) {
	log := "some generic failure with no recognizable pattern at all"
	kind, snippet := ClassifyError(log)
	assert.Equal(t, model.ErrorUnknown, kind)
	assert.Equal(t, log, snippet)
}

func TestClassifyErrorUnknownTruncatesLongLogs(t *testing.T) {
	padding := make([]byte, 2000)
	for i := range padding {
		padding[i] = 'x'
	}
	log := string(padding) + "tail marker"
	kind, snippet := ClassifyError(log)
	assert.Equal(t, model.ErrorUnknown, kind)
	assert.LessOrEqual(t, len(snippet), 1000)
	assert.Contains(t, snippet, "tail marker")
}

func TestWorkflowFileName(t *testing.T) {
	assert.Equal(t, "ci.yml", WorkflowFileName(".github/workflows/ci.yml"))
}
