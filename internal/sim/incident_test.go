package sim

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/trafficsim/internal/geom"
)

func TestIncidentLifetime(t *testing.T) {
	t.Parallel()

	h := newHarness(t, lineNetwork(t))
	ij := NewIncidentInjector(h.w, h.clock, 1)

	inc, err := ij.InjectAt(geom.Position{X: 150, Y: 3}, 30*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "R1", inc.RoadID)
	assert.Equal(t, 30*time.Second, inc.Duration)

	ij.Tick()
	require.Len(t, h.w.Incidents(), 1)

	h.clock.Advance(29 * time.Second)
	ij.Tick()
	require.Len(t, h.w.Incidents(), 1)

	h.clock.Advance(time.Second)
	ij.Tick()
	assert.Empty(t, h.w.Incidents())
}

func TestIncidentExpiryFrozenWhilePaused(t *testing.T) {
	t.Parallel()

	h := newHarness(t, lineNetwork(t))
	ij := NewIncidentInjector(h.w, h.clock, 1)

	_, err := ij.InjectAt(geom.Position{X: 150}, time.Second)
	require.NoError(t, err)

	h.clock.Pause()
	time.Sleep(10 * time.Millisecond)
	ij.Tick()
	assert.Len(t, h.w.Incidents(), 1)
}

func TestInjectAtEmptyNetwork(t *testing.T) {
	t.Parallel()

	h := newHarness(t, geom.NewNetwork())
	ij := NewIncidentInjector(h.w, h.clock, 1)

	_, err := ij.InjectAt(geom.Position{X: 1, Y: 2}, time.Second)
	assert.Error(t, err)
}
