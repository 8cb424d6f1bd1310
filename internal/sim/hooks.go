package sim

import (
	"fmt"
	"time"

	"github.com/banshee-data/trafficsim/internal/world"
)

const (
	priorityRadius      = 300.0
	priorityCooldown    = 5 * time.Second
	busDwellDuration    = 10 * time.Second
	busStopProb         = 0.01
	busMinGapBetween    = 20 * time.Second
	busPriorityProb     = 0.1
	emergencyPerception = 1.5
	emergencySpeed      = 1.3
	busSpeed            = 0.8
)

// EmergencyHooks turns a vehicle into an emergency responder: wider
// perception, a higher speed cap, and priority requests to nearby signals.
type EmergencyHooks struct {
	lastPriority time.Duration
}

func (h *EmergencyHooks) Setup(v *Vehicle) {
	v.perceptionScale = emergencyPerception
	v.speedScale = emergencySpeed
}

func (h *EmergencyHooks) BeforeDecide(*Vehicle) bool { return false }

func (h *EmergencyHooks) AfterDecide(v *Vehicle) {
	v.intent = "emergency response"
	now := v.clock.Now()
	if now-h.lastPriority < priorityCooldown {
		return
	}
	if sig, ok := v.w.NearestSignal(v.pos, priorityRadius); ok {
		h.lastPriority = now
		v.exchange.Send(sig.ID, Message{Kind: MsgPriority, From: v.id, Pos: v.pos})
	}
}

func (h *EmergencyHooks) HandleMessage(*Vehicle, Message) {}

// TransportHooks turns a vehicle into a bus: slower, dwelling at stops,
// and requesting signal priority when held at a red with passengers.
type TransportHooks struct {
	passengers int
	dwellingAt time.Duration // sim time the current dwell started, 0 when driving
	lastStop   time.Duration
}

func (h *TransportHooks) Setup(v *Vehicle) {
	v.speedScale = busSpeed
	h.passengers = 10 + v.rng.Intn(41)
}

// BeforeDecide holds the bus still for the dwell duration, taking over
// the tick entirely while passengers board.
func (h *TransportHooks) BeforeDecide(v *Vehicle) bool {
	now := v.clock.Now()
	if h.dwellingAt > 0 {
		if now-h.dwellingAt < busDwellDuration {
			v.speed = 0
			v.accel = 0
			v.intent = fmt.Sprintf("loading passengers (%d aboard)", h.passengers)
			return true
		}
		h.dwellingAt = 0
		h.lastStop = now
	}
	if v.speed > 0 && now-h.lastStop >= busMinGapBetween && v.rng.Float64() < busStopProb {
		h.dwellingAt = now
		h.passengers = 10 + v.rng.Intn(41)
		v.speed = 0
		v.accel = 0
		v.intent = fmt.Sprintf("loading passengers (%d aboard)", h.passengers)
		return true
	}
	return false
}

func (h *TransportHooks) AfterDecide(v *Vehicle) {
	if h.dwellingAt > 0 {
		return
	}
	v.intent = fmt.Sprintf("transporting %d citizens", h.passengers)
	// A full bus held at a red occasionally asks for priority.
	if v.perc != nil && v.perc.Signal != nil && v.perc.Signal.State == world.SignalRed {
		if v.rng.Float64() < busPriorityProb {
			v.exchange.Send(v.perc.Signal.ID, Message{Kind: MsgPriority, From: v.id, Pos: v.pos})
		}
	}
}

func (h *TransportHooks) HandleMessage(*Vehicle, Message) {}
