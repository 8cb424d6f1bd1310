package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/trafficsim/internal/geom"
	"github.com/banshee-data/trafficsim/internal/world"
)

type captureRecorder struct {
	samples []Sample
}

func (r *captureRecorder) Record(s Sample) error {
	r.samples = append(r.samples, s)
	return nil
}

func placeVehicle(h *harness, id, roadID string, x, speed float64) {
	pos := geom.Position{X: x}
	h.w.UpsertVehicle(id, world.VehicleUpdate{Position: &pos, RoadID: &roadID, Speed: &speed})
}

func TestCollectorSample(t *testing.T) {
	t.Parallel()

	h := newHarness(t, lineNetwork(t))
	placeVehicle(h, "a", "R1", 50, 2)
	placeVehicle(h, "b", "R1", 100, 4)
	placeVehicle(h, "c", "R2", 400, 6)

	rec := &captureRecorder{}
	c := NewCollector(h.w, h.exchange, h.clock, h.tuning, rec)
	require.True(t, c.Tick())

	require.Len(t, rec.samples, 1)
	s := rec.samples[0]
	assert.Equal(t, 3, s.ActiveVehicles)
	assert.InDelta(t, 4.0, s.MeanSpeed, 0.001)
	assert.GreaterOrEqual(t, s.P85Speed, s.MeanSpeed)
	assert.Equal(t, 2, s.RoadCounts["R1"])
	assert.Equal(t, 1, s.RoadCounts["R2"])

	// The sample feeds the congestion averages.
	assert.InDelta(t, 2.0, h.w.HistoricalCongestion("R1"), 0.001)
	assert.InDelta(t, 1.0, h.w.HistoricalCongestion("R2"), 0.001)
}

func TestCollectorNudgesCongestedRoads(t *testing.T) {
	t.Parallel()

	h := newHarness(t, lineNetwork(t))
	for i := 0; i < 6; i++ {
		placeVehicle(h, string(rune('a'+i)), "R1", float64(20+i*30), 1)
	}
	in := h.exchange.Register("a")

	c := NewCollector(h.w, h.exchange, h.clock, h.tuning, nil)
	// The first sample seeds the average at 6, over the threshold of 4.
	require.True(t, c.Tick())

	found := false
	for _, msg := range in.Drain() {
		if msg.Kind == MsgCongestion && msg.RoadID == "R1" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestCollectorSkipsWhilePaused(t *testing.T) {
	t.Parallel()

	h := newHarness(t, lineNetwork(t))
	rec := &captureRecorder{}
	c := NewCollector(h.w, h.exchange, h.clock, h.tuning, rec)

	h.clock.Pause()
	require.True(t, c.Tick())
	assert.Empty(t, rec.samples)
}
