package llmclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewDefaultsModel(t *testing.T) {
	c := New("test-key", "", "")
	assert.Equal(t, defaultModel, string(c.model))
}

func TestNewHonorsModelOverride(t *testing.T) {
	c := New("test-key", "", "claude-opus-4")
	assert.Equal(t, "claude-opus-4", string(c.model))
}
