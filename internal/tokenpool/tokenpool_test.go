package tokenpool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequiresAtLeastOneCredential(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
}

func TestAcquireRotatesPastThrottledCredentials(t *testing.T) {
	pool, err := New([]string{"pat-a", "pat-b", "pat-c"})
	require.NoError(t, err)

	first := pool.Acquire()
	assert.Equal(t, 0, first.index)

	pool.ReportThrottled(first)
	second := pool.Acquire()
	assert.Equal(t, 1, second.index)
}

func TestAcquireClearsThrottledSetWhenAllThrottled(t *testing.T) {
	pool, err := New([]string{"pat-a", "pat-b"})
	require.NoError(t, err)

	a := pool.Acquire()
	pool.ReportThrottled(a)
	b := pool.Acquire()
	pool.ReportThrottled(b)

	assert.True(t, pool.allThrottled())

	next := pool.Acquire()
	assert.False(t, pool.allThrottled())
	assert.GreaterOrEqual(t, next.index, 0)
}

func TestSize(t *testing.T) {
	pool, err := New([]string{"pat-a", "pat-b", "pat-c"})
	require.NoError(t, err)
	assert.Equal(t, 3, pool.Size())
}
