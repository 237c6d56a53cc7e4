package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFake(t *testing.T) {
	start := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewFake(start)

	require.Equal(t, start, c.Now())

	got := c.Advance(90 * time.Minute)
	require.Equal(t, start.Add(90*time.Minute), got)
	require.Equal(t, got, c.Now())

	c.Set(start)
	require.Equal(t, start, c.Now())
}

func TestReal(t *testing.T) {
	now := Real{}.Now()

	require.Equal(t, time.UTC, now.Location())
	require.WithinDuration(t, time.Now(), now, time.Second)
}
