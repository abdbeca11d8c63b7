package input

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadCSVWithRepoURLHeader(t *testing.T) {
	path := writeTemp(t, "repos.csv", "repo_url,target_branch\nhttps://github.com/acme/widgets,develop\nhttps://github.com/acme/gadgets,\n")
	refs, err := Load(path)
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, "https://github.com/acme/widgets", refs[0].URL)
	assert.Equal(t, "develop", refs[0].DesiredDefaultBranch)
	assert.Equal(t, "main", refs[1].TargetBranch())
}

func TestLoadCSVAcceptsAlternateURLHeader(t *testing.T) {
	path := writeTemp(t, "repos.csv", "url\nhttps://github.com/acme/widgets\n")
	refs, err := Load(path)
	require.NoError(t, err)
	require.Len(t, refs, 1)
}

func TestLoadCSVRejectsMissingURLColumn(t *testing.T) {
	path := writeTemp(t, "repos.csv", "name\nwidgets\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadJSONStringList(t *testing.T) {
	path := writeTemp(t, "repos.json", `["https://github.com/acme/widgets", "https://github.com/acme/gadgets"]`)
	refs, err := Load(path)
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, "https://github.com/acme/gadgets", refs[1].URL)
}

func TestLoadJSONObjectList(t *testing.T) {
	path := writeTemp(t, "repos.json", `[{"repo_url": "https://github.com/acme/widgets", "target_branch": "develop"}]`)
	refs, err := Load(path)
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, "develop", refs[0].DesiredDefaultBranch)
}

func TestLoadJSONObjectMissingURLErrors(t *testing.T) {
	path := writeTemp(t, "repos.json", `[{"target_branch": "develop"}]`)
	_, err := Load(path)
	assert.Error(t, err)
}
