package sim

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClockPauseFreezesTime(t *testing.T) {
	t.Parallel()

	c := NewClock()
	c.Pause()
	require.True(t, c.Paused())

	a := c.Now()
	time.Sleep(20 * time.Millisecond)
	b := c.Now()
	assert.Equal(t, a, b)

	c.Resume()
	require.False(t, c.Paused())
}

func TestClockMultiplier(t *testing.T) {
	t.Parallel()

	c := NewClock()
	assert.Equal(t, 1.0, c.Multiplier())

	require.Error(t, c.SetMultiplier(3))
	require.Error(t, c.SetMultiplier(0))

	require.NoError(t, c.SetMultiplier(4))
	assert.Equal(t, 4.0, c.Multiplier())
	require.NoError(t, c.SetMultiplier(0.25))
	assert.Equal(t, 0.25, c.Multiplier())
}

func TestClockAdvance(t *testing.T) {
	t.Parallel()

	c := NewClock()
	c.Pause()
	before := c.Now()
	c.Advance(5 * time.Second)
	assert.Equal(t, before+5*time.Second, c.Now())
}
