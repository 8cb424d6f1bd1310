package world

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/trafficsim/internal/geom"
)

func testNetwork(t *testing.T) *geom.Network {
	t.Helper()
	n := geom.NewNetwork()
	require.NoError(t, n.AddRoad(&geom.RoadSegment{
		ID: "R1", Start: geom.Position{X: 0, Y: 0}, End: geom.Position{X: 300, Y: 0},
		Lanes: 2, SpeedLimit: 5,
	}))
	require.NoError(t, n.AddRoad(&geom.RoadSegment{
		ID: "R2", Start: geom.Position{X: 0, Y: 200}, End: geom.Position{X: 300, Y: 200},
		Lanes: 1, SpeedLimit: 5,
	}))
	return n
}

func ptrFloat(v float64) *float64       { return &v }
func ptrString(v string) *string        { return &v }
func ptrPos(p geom.Position) *geom.Position { return &p }

func TestUpsertVehicleMergesPartialUpdates(t *testing.T) {
	t.Parallel()

	w := New(testNetwork(t))
	w.UpsertVehicle("v1", VehicleUpdate{
		Position: ptrPos(geom.Position{X: 10, Y: 0}),
		RoadID:   ptrString("R1"),
		Speed:    ptrFloat(3),
		Intent:   ptrString("cruising"),
		Path:     []string{"R2"},
	})

	// Partial update: only speed changes, everything else survives.
	w.UpsertVehicle("v1", VehicleUpdate{Speed: ptrFloat(4.5)})

	rec, ok := w.Vehicle("v1")
	require.True(t, ok)
	assert.Equal(t, "R1", rec.RoadID)
	assert.Equal(t, 4.5, rec.Speed)
	assert.Equal(t, "cruising", rec.Intent)
	assert.Equal(t, []string{"R2"}, rec.Path)
	assert.Equal(t, 10.0, rec.Position.X)
}

func TestRemoveVehicleLeavesNoResidualState(t *testing.T) {
	t.Parallel()

	w := New(testNetwork(t))
	w.UpsertVehicle("v1", VehicleUpdate{
		RoadID: ptrString("R1"),
		Speed:  ptrFloat(3),
		Intent: ptrString("cruising"),
		Path:   []string{"R2"},
	})
	w.RemoveVehicle("v1")

	_, ok := w.Vehicle("v1")
	require.False(t, ok)

	// Re-adding the same id yields an independent record.
	w.UpsertVehicle("v1", VehicleUpdate{Speed: ptrFloat(1)})
	rec, ok := w.Vehicle("v1")
	require.True(t, ok)
	assert.Empty(t, rec.RoadID)
	assert.Empty(t, rec.Intent)
	assert.Nil(t, rec.Path)
	assert.Equal(t, 1.0, rec.Speed)
}

func TestNearbyVehiclesExcludesSelfAndFarRecords(t *testing.T) {
	t.Parallel()

	w := New(testNetwork(t))
	w.UpsertVehicle("me", VehicleUpdate{Position: ptrPos(geom.Position{X: 0, Y: 0})})
	w.UpsertVehicle("near", VehicleUpdate{Position: ptrPos(geom.Position{X: 50, Y: 0})})
	w.UpsertVehicle("far", VehicleUpdate{Position: ptrPos(geom.Position{X: 500, Y: 0})})

	got := w.NearbyVehicles(geom.Position{X: 0, Y: 0}, 100, "me")
	require.Len(t, got, 1)
	assert.Equal(t, "near", got[0].ID)
}

func TestNearestSignal(t *testing.T) {
	t.Parallel()

	w := New(testNetwork(t))
	_, ok := w.NearestSignal(geom.Position{}, 100)
	assert.False(t, ok)

	w.UpsertSignal("s1", geom.Position{X: 80, Y: 0}, SignalRed)
	w.UpsertSignal("s2", geom.Position{X: 20, Y: 0}, SignalGreen)

	rec, ok := w.NearestSignal(geom.Position{X: 0, Y: 0}, 100)
	require.True(t, ok)
	assert.Equal(t, "s2", rec.ID)

	// Outside the radius nothing is found.
	_, ok = w.NearestSignal(geom.Position{X: 0, Y: 1000}, 100)
	assert.False(t, ok)
}

func TestVehicleCountOnRoadUsesEndpointSum(t *testing.T) {
	t.Parallel()

	w := New(testNetwork(t))
	// On R1 (y=0, x in [0,300]).
	w.UpsertVehicle("a", VehicleUpdate{Position: ptrPos(geom.Position{X: 150, Y: 0})})
	w.UpsertVehicle("b", VehicleUpdate{Position: ptrPos(geom.Position{X: 10, Y: 5})})
	// On R2.
	w.UpsertVehicle("c", VehicleUpdate{Position: ptrPos(geom.Position{X: 150, Y: 200})})
	// Off both roads.
	w.UpsertVehicle("d", VehicleUpdate{Position: ptrPos(geom.Position{X: 150, Y: 90})})

	assert.Equal(t, 2, w.VehicleCountOnRoad("R1"))
	assert.Equal(t, 1, w.VehicleCountOnRoad("R2"))
	assert.Equal(t, 0, w.VehicleCountOnRoad("missing"))
}

func TestIncidentLifecycle(t *testing.T) {
	t.Parallel()

	w := New(testNetwork(t))
	inc := Incident{
		ID:       "inc-1",
		RoadID:   "R1",
		Position: geom.Position{X: 100, Y: 0},
		Duration: time.Second,
		Expires:  time.Second,
	}
	w.AddIncident(inc)

	require.Len(t, w.Incidents(), 1)
	require.Len(t, w.IncidentsOnRoad("R1"), 1)
	assert.Empty(t, w.IncidentsOnRoad("R2"))

	w.RemoveIncident("inc-1")
	assert.Empty(t, w.Incidents())
	assert.Equal(t, int64(1), w.Totals().Incidents)
}

func TestCongestionEMA(t *testing.T) {
	t.Parallel()

	w := New(testNetwork(t))
	assert.Zero(t, w.HistoricalCongestion("R1"))

	// First sample seeds the average.
	w.FoldCongestion("R1", 10)
	assert.InDelta(t, 10.0, w.HistoricalCongestion("R1"), 1e-9)

	// Subsequent samples blend with alpha=0.2.
	w.FoldCongestion("R1", 0)
	assert.InDelta(t, 8.0, w.HistoricalCongestion("R1"), 1e-9)

	table := w.CongestionByRoad()
	assert.InDelta(t, 8.0, table["R1"], 1e-9)
}

func TestConcurrentReadersAndWriters(t *testing.T) {
	t.Parallel()

	w := New(testNetwork(t))
	var wg sync.WaitGroup

	// One writer per id, many readers, run under the race detector.
	for i := 0; i < 8; i++ {
		id := fmt.Sprintf("v%d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				w.UpsertVehicle(id, VehicleUpdate{
					Position: ptrPos(geom.Position{X: float64(j), Y: 0}),
					Speed:    ptrFloat(float64(j)),
				})
			}
		}()
	}
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				w.NearbyVehicles(geom.Position{}, 1000, "")
				w.VehicleCountOnRoad("R1")
				w.Vehicles()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 8, w.VehicleCount())
}
