package sim

import (
	"context"
	"math/rand"
	"time"

	"github.com/banshee-data/trafficsim/internal/config"
	"github.com/banshee-data/trafficsim/internal/geom"
	"github.com/banshee-data/trafficsim/internal/world"
)

// Phase timing. Green duration is adaptive between the configured bounds;
// red and yellow are fixed.
const (
	redDuration    = 10 * time.Second
	yellowDuration = 3 * time.Second
	greenAdjust    = 3 * time.Second
	priorityHold   = 8 * time.Second

	densityLowMax = 3 // queue below this is LOW
	densityMedMax = 8 // queue below this is MEDIUM, else HIGH

	signalBroadcastRadius = 150.0
)

// Q-learning actions on the green duration.
const (
	actionShorten = iota
	actionKeep
	actionExtend
	actionCount
)

// SignalSeed describes a traffic signal at creation time.
type SignalSeed struct {
	ID             string
	IntersectionID string
	Position       geom.Position
	Roads          []string // incoming roads whose queues drive the learner
	Seed           int64
}

// Signal runs one traffic light: a fixed RED and YELLOW with a GREEN whose
// duration a small per-light Q table learns from observed queue lengths.
type Signal struct {
	id       string
	w        *world.World
	exchange *Exchange
	clock    *Clock
	tuning   *config.TuningConfig
	inbox    *Inbox
	rng      *rand.Rand

	interID string
	roads   []string
	pos     geom.Position

	state      world.SignalState
	phaseStart time.Duration
	greenDur   time.Duration
	holdUntil  time.Duration // priority override keeps green until here

	q          [3][actionCount]float64
	lastBucket int
	lastAction int
}

// NewSignal builds a signal starting in RED and publishes its record.
func NewSignal(w *world.World, exchange *Exchange, clock *Clock, tuning *config.TuningConfig, seed SignalSeed) *Signal {
	s := &Signal{
		id:         seed.ID,
		w:          w,
		exchange:   exchange,
		clock:      clock,
		tuning:     tuning,
		interID:    seed.IntersectionID,
		roads:      seed.Roads,
		pos:        seed.Position,
		state:      world.SignalRed,
		phaseStart: clock.Now(),
		lastAction: actionKeep,
		rng:        rand.New(rand.NewSource(seed.Seed)),
	}
	s.greenDur = (tuning.GetMinGreen() + tuning.GetMaxGreen()) / 2
	s.inbox = exchange.Register(s.id)
	s.w.UpsertSignal(s.id, s.pos, s.state)
	return s
}

// ID returns the signal id.
func (s *Signal) ID() string { return s.id }

// State returns the current phase.
func (s *Signal) State() world.SignalState { return s.state }

// GreenDuration returns the learned green phase length.
func (s *Signal) GreenDuration() time.Duration { return s.greenDur }

// Run ticks the signal until the context is cancelled.
func (s *Signal) Run(ctx context.Context) {
	runEvery(ctx, s.tuning.GetSignalTick(), "signal "+s.id, s.Tick)
}

// Tick advances the phase machine on simulated time. It always returns
// true; signals never exit on their own.
func (s *Signal) Tick() bool {
	if s.clock.Paused() {
		s.inbox.Drain()
		return true
	}

	for _, msg := range s.inbox.Drain() {
		if msg.Kind == MsgPriority {
			s.grantPriority()
		}
	}

	now := s.clock.Now()
	elapsed := now - s.phaseStart
	switch s.state {
	case world.SignalRed:
		if elapsed >= redDuration {
			s.transition(world.SignalGreen)
		}
	case world.SignalGreen:
		if elapsed >= s.greenDur && now >= s.holdUntil {
			s.learn()
			s.transition(world.SignalYellow)
		}
	case world.SignalYellow:
		if elapsed >= yellowDuration {
			s.transition(world.SignalRed)
		}
	}
	return true
}

// grantPriority flips the light green immediately and pins it green for at
// least the priority hold window.
func (s *Signal) grantPriority() {
	now := s.clock.Now()
	if s.state != world.SignalGreen {
		s.transition(world.SignalGreen)
	}
	if until := now + priorityHold; until > s.holdUntil {
		s.holdUntil = until
	}
}

func (s *Signal) transition(next world.SignalState) {
	s.state = next
	s.phaseStart = s.clock.Now()
	s.w.UpsertSignal(s.id, s.pos, s.state)
	s.announce()
}

// announce tells nearby vehicles about the new phase so they can react
// before their next perception pass.
func (s *Signal) announce() {
	recs := s.w.NearbyVehicles(s.pos, signalBroadcastRadius, "")
	ids := make([]string, 0, len(recs))
	for _, rec := range recs {
		ids = append(ids, rec.ID)
	}
	s.exchange.Broadcast(ids, Message{Kind: MsgSignalState, From: s.id, Pos: s.pos, State: s.state})
}

// queueLength counts vehicles on the incoming roads this light governs.
func (s *Signal) queueLength() int {
	total := 0
	for _, id := range s.roads {
		total += s.w.VehicleCountOnRoad(id)
	}
	return total
}

func densityBucket(queue int) int {
	switch {
	case queue < densityLowMax:
		return 0
	case queue < densityMedMax:
		return 1
	default:
		return 2
	}
}

// learn runs one Q-learning step at the end of a green phase: score the
// previous action by the queue it left behind, then pick the next green
// duration epsilon-greedily.
func (s *Signal) learn() {
	queue := s.queueLength()
	reward := -float64(queue)
	lr := s.tuning.GetLearningRate()
	s.q[s.lastBucket][s.lastAction] += lr * (reward - s.q[s.lastBucket][s.lastAction])

	bucket := densityBucket(queue)
	action := s.chooseAction(bucket)
	switch action {
	case actionShorten:
		s.greenDur -= greenAdjust
	case actionExtend:
		s.greenDur += greenAdjust
	}
	if min := s.tuning.GetMinGreen(); s.greenDur < min {
		s.greenDur = min
	}
	if max := s.tuning.GetMaxGreen(); s.greenDur > max {
		s.greenDur = max
	}
	s.lastBucket = bucket
	s.lastAction = action
}

func (s *Signal) chooseAction(bucket int) int {
	if s.rng.Float64() < s.tuning.GetEpsilon() {
		return s.rng.Intn(actionCount)
	}
	best := 0
	for a := 1; a < actionCount; a++ {
		if s.q[bucket][a] > s.q[bucket][best] {
			best = a
		}
	}
	return best
}
