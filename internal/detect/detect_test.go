package detect

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/ci-migrate/cipilot/internal/ghclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	files map[string]string // path -> raw content
	dirs  map[string][]ghclient.DirEntry
}

func (f *fakeClient) GetContents(_ context.Context, _, _, path, _ string) (*ghclient.FileContent, error) {
	body, ok := f.files[path]
	if !ok {
		return nil, &ghclient.StatusError{StatusCode: 404, Path: path}
	}
	return &ghclient.FileContent{
		Path:     path,
		Content:  base64.StdEncoding.EncodeToString([]byte(body)),
		Encoding: "base64",
	}, nil
}

func (f *fakeClient) ListDirectory(_ context.Context, _, _, dir, _ string) ([]ghclient.DirEntry, error) {
	entries, ok := f.dirs[dir]
	if !ok {
		return nil, nil
	}
	return entries, nil
}

func TestDetectFindsSingleCI(t *testing.T) {
	client := &fakeClient{files: map[string]string{
		".travis.yml": "language: python\nscript: pytest\n",
	}}
	found, err := Detect(context.Background(), client, "acme", "widgets", "main")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "travis", string(found[0].CIKind))
	assert.Equal(t, ".travis.yml", found[0].SourcePath)
	assert.Contains(t, found[0].SourceYAML, "pytest")
}

func TestDetectFindsMultipleCIKinds(t *testing.T) {
	client := &fakeClient{files: map[string]string{
		".travis.yml":            "script: pytest\n",
		".circleci/config.yml":   "version: 2.1\n",
		"bitbucket-pipelines.yml": "pipelines: {}\n",
	}}
	found, err := Detect(context.Background(), client, "acme", "widgets", "main")
	require.NoError(t, err)
	require.Len(t, found, 3)
}

func TestDetectNoMatchesIsSuccess(t *testing.T) {
	client := &fakeClient{files: map[string]string{}}
	found, err := Detect(context.Background(), client, "acme", "widgets", "main")
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestDetectFirstPatternWinsWithinKind(t *testing.T) {
	client := &fakeClient{files: map[string]string{
		".travis.yml":  "script: pytest\n",
		".travis.yaml": "script: should-not-be-picked\n",
	}}
	found, err := Detect(context.Background(), client, "acme", "widgets", "main")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, ".travis.yml", found[0].SourcePath)
}

func TestDetectExcludesGitHubActions(t *testing.T) {
	client := &fakeClient{
		dirs: map[string][]ghclient.DirEntry{
			".github/workflows": {{Name: "ci.yml", Path: ".github/workflows/ci.yml", Type: "file"}},
		},
	}
	found, err := Detect(context.Background(), client, "acme", "widgets", "main")
	require.NoError(t, err)
	assert.Empty(t, found)
}
