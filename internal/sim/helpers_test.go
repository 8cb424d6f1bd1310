package sim

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/banshee-data/trafficsim/internal/config"
	"github.com/banshee-data/trafficsim/internal/geom"
	"github.com/banshee-data/trafficsim/internal/route"
	"github.com/banshee-data/trafficsim/internal/world"
)

func ptrInt(v int) *int         { return &v }
func ptrF64(v float64) *float64 { return &v }

// lineNetwork is R1 (0,0)-(300,0) into I1, then R2 (300,0)-(600,0) into
// a terminal I2. Single lane, speed limit 5.
func lineNetwork(t *testing.T) *geom.Network {
	t.Helper()
	n := geom.NewNetwork()
	require.NoError(t, n.AddRoad(&geom.RoadSegment{
		ID: "R1", Start: geom.Position{}, End: geom.Position{X: 300},
		Lanes: 1, SpeedLimit: 5,
	}))
	require.NoError(t, n.AddRoad(&geom.RoadSegment{
		ID: "R2", Start: geom.Position{X: 300}, End: geom.Position{X: 600},
		Lanes: 1, SpeedLimit: 5,
	}))
	require.NoError(t, n.AddIntersection(&geom.Intersection{
		ID: "I1", Position: geom.Position{X: 300},
		Incoming: []string{"R1"}, Outgoing: []string{"R2"},
	}))
	require.NoError(t, n.AddIntersection(&geom.Intersection{
		ID: "I2", Position: geom.Position{X: 600},
		Incoming: []string{"R2"},
	}))
	return n
}

type harness struct {
	net      *geom.Network
	w        *world.World
	clock    *Clock
	exchange *Exchange
	planner  *route.Planner
	tuning   *config.TuningConfig
}

func newHarness(t *testing.T, net *geom.Network) *harness {
	t.Helper()
	w := world.New(net)
	return &harness{
		net:      net,
		w:        w,
		clock:    NewClock(),
		exchange: NewExchange(),
		planner:  route.NewPlanner(net, w.VehicleCountOnRoad),
		tuning:   &config.TuningConfig{},
	}
}

func (h *harness) vehicle(seed VehicleSeed) *Vehicle {
	return NewVehicle(h.w, h.planner, h.exchange, h.clock, h.tuning, seed)
}
