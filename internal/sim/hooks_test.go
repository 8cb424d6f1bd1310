package sim

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/trafficsim/internal/geom"
	"github.com/banshee-data/trafficsim/internal/world"
)

func TestEmergencyHooksScalesAndRequestsPriority(t *testing.T) {
	t.Parallel()

	h := newHarness(t, lineNetwork(t))
	h.w.UpsertSignal("light-I1", geom.Position{X: 300}, world.SignalRed)
	lightInbox := h.exchange.Register("light-I1")

	v := h.vehicle(VehicleSeed{
		ID: "ambulance-1", RoadID: "R1",
		Profile: ProfileAggressive, Hooks: &EmergencyHooks{},
	})
	assert.Equal(t, emergencyPerception, v.perceptionScale)
	assert.Equal(t, emergencySpeed, v.speedScale)

	h.clock.Advance(priorityCooldown)
	require.True(t, v.Tick())
	assert.Equal(t, "emergency response", v.intent)

	msgs := lightInbox.Drain()
	require.Len(t, msgs, 1)
	assert.Equal(t, MsgPriority, msgs[0].Kind)
	assert.Equal(t, "ambulance-1", msgs[0].From)

	// Inside the cooldown there is no second request.
	require.True(t, v.Tick())
	assert.Empty(t, lightInbox.Drain())
}

func TestTransportHooksDwell(t *testing.T) {
	t.Parallel()

	h := newHarness(t, lineNetwork(t))
	hooks := &TransportHooks{}
	v := h.vehicle(VehicleSeed{
		ID: "bus-1", RoadID: "R1",
		Profile: ProfileCautious, Hooks: hooks,
	})
	assert.Equal(t, busSpeed, v.speedScale)
	require.GreaterOrEqual(t, hooks.passengers, 10)
	require.LessOrEqual(t, hooks.passengers, 50)

	h.clock.Advance(time.Second)
	v.speed = 3
	hooks.dwellingAt = h.clock.Now()

	require.True(t, v.Tick())
	assert.Zero(t, v.speed)
	assert.Contains(t, v.intent, "loading passengers")

	// Position is frozen while the bus dwells.
	progress := v.progress
	h.clock.Advance(busDwellDuration / 2)
	require.True(t, v.Tick())
	assert.Equal(t, progress, v.progress)

	// After the dwell it drives again.
	h.clock.Advance(busDwellDuration)
	require.True(t, v.Tick())
	assert.Contains(t, v.intent, "transporting")
	assert.Greater(t, v.speed, 0.0)
}

func TestTransportHooksCapsSpeed(t *testing.T) {
	t.Parallel()

	h := newHarness(t, lineNetwork(t))
	v := h.vehicle(VehicleSeed{
		ID: "bus-1", RoadID: "R1",
		Profile: ProfileNormal, Hooks: &TransportHooks{},
	})
	for i := 0; i < 200; i++ {
		require.True(t, v.Tick())
		if v.roadID != "R1" {
			break
		}
		require.LessOrEqual(t, v.speed, 5.0*busSpeed+0.001)
	}
}
