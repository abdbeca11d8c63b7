package ghclient

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFileContentDecode(t *testing.T) {
	fc := FileContent{Content: "aGVsbG8=", Encoding: "base64"}
	data, err := fc.Decode()
	assert.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestFileContentDecodeNonBase64(t *testing.T) {
	fc := FileContent{Content: "raw text", Encoding: ""}
	data, err := fc.Decode()
	assert.NoError(t, err)
	assert.Equal(t, "raw text", string(data))
}

func TestStatusErrorHelpers(t *testing.T) {
	notFound := &StatusError{StatusCode: http.StatusNotFound, Path: "repos/a/b"}
	assert.True(t, IsNotFound(notFound))
	assert.False(t, IsUnprocessable(notFound))

	unprocessable := &StatusError{StatusCode: http.StatusUnprocessableEntity, Path: "repos/a/b/pulls"}
	assert.True(t, IsUnprocessable(unprocessable))
	assert.False(t, IsNotFound(unprocessable))

	assert.Contains(t, notFound.Error(), "404")
}
