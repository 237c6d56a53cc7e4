package withdrawal

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIdempotencyLRU(t *testing.T) {
	l := newIdempotencyLRU(2)

	l.Add("a", "req-a")
	l.Add("b", "req-b")

	got, ok := l.Get("a")
	require.True(t, ok)
	require.Equal(t, "req-a", got)

	// "b" is the least recently used now
	l.Add("c", "req-c")
	require.Equal(t, 2, l.Len())

	_, ok = l.Get("b")
	require.False(t, ok, "oldest key is evicted")

	_, ok = l.Get("a")
	require.True(t, ok)

	l.Remove("a")
	_, ok = l.Get("a")
	require.False(t, ok)
	require.Equal(t, 1, l.Len())
}
