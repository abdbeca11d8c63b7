package repair

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCompleter struct {
	response string
	err      error
	prompt   string
}

func (f *fakeCompleter) Fix(_ context.Context, _, userPrompt string) (string, error) {
	f.prompt = userPrompt
	return f.response, f.err
}

const originalYAML = "name: CI\non:\n  push: {}\njobs:\n  build:\n    runs-on: ubuntu-latest\n"

func TestFixReturnsCleanedYAML(t *testing.T) {
	completer := &fakeCompleter{response: "```yaml\nname: CI\non:\n  push: {}\njobs:\n  build:\n    runs-on: ubuntu-22.04\n```"}
	fixed, err := Fix(context.Background(), completer, originalYAML, "some error")
	require.NoError(t, err)
	assert.NotContains(t, fixed, "```")
	assert.Contains(t, fixed, "ubuntu-22.04")
}

func TestFixRejectsEmptyResponse(t *testing.T) {
	completer := &fakeCompleter{response: ""}
	_, err := Fix(context.Background(), completer, originalYAML, "err")
	assert.Error(t, err)
}

func TestFixRejectsNonYAMLResponse(t *testing.T) {
	completer := &fakeCompleter{response: "Sure, here is an explanation of the problem without any YAML."}
	_, err := Fix(context.Background(), completer, originalYAML, "err")
	assert.Error(t, err)
}

func TestFixRejectsNoOpFix(t *testing.T) {
	completer := &fakeCompleter{response: originalYAML}
	_, err := Fix(context.Background(), completer, originalYAML, "err")
	assert.ErrorContains(t, err, "no changes")
}

func TestFixTruncatesLongErrorLogs(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 10000; i++ {
		sb.WriteByte('e')
	}
	completer := &fakeCompleter{response: "name: CI\non:\n  push: {}\njobs:\n  build:\n    runs-on: ubuntu-22.04\n"}
	_, err := Fix(context.Background(), completer, originalYAML, sb.String())
	require.NoError(t, err)
	assert.Contains(t, completer.prompt, strings.Repeat("e", maxErrorLogChars))
	assert.NotContains(t, completer.prompt, strings.Repeat("e", maxErrorLogChars+1))
}
