package sim

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/banshee-data/trafficsim/internal/config"
	"github.com/banshee-data/trafficsim/internal/geom"
	"github.com/banshee-data/trafficsim/internal/monitoring"
	"github.com/banshee-data/trafficsim/internal/route"
	"github.com/banshee-data/trafficsim/internal/world"
)

// runEvery drives tick on a fixed real-time period until the context is
// cancelled or tick returns false. A panic inside one tick is logged and
// the loop keeps going; one bad tick must not take the entity down.
func runEvery(ctx context.Context, period time.Duration, name string, tick func() bool) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !safeTick(name, tick) {
				return
			}
		}
	}
}

func safeTick(name string, tick func() bool) (alive bool) {
	defer func() {
		if r := recover(); r != nil {
			monitoring.Logf("%s: tick panicked: %v", name, r)
			alive = true
		}
	}()
	return tick()
}

// Engine owns the whole simulation: the shared world, the clock, the
// message exchange, one goroutine per signal and vehicle, and the
// supporting spawner, incident and metrics loops.
type Engine struct {
	w        *world.World
	planner  *route.Planner
	exchange *Exchange
	clock    *Clock
	tuning   *config.TuningConfig

	spawner   *Spawner
	injector  *IncidentInjector
	collector *Collector
	signals   []*Signal

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// NewEngine wires an engine around the given network. recorder may be nil.
func NewEngine(network *geom.Network, tuning *config.TuningConfig, recorder Recorder, seed int64) *Engine {
	w := world.New(network)
	e := &Engine{
		w:        w,
		exchange: NewExchange(),
		clock:    NewClock(),
		tuning:   tuning,
	}
	e.planner = route.NewPlanner(network, w.VehicleCountOnRoad)

	rng := rand.New(rand.NewSource(seed))
	for _, inter := range network.Intersections() {
		if len(inter.Incoming) == 0 {
			continue
		}
		e.signals = append(e.signals, NewSignal(w, e.exchange, e.clock, tuning, SignalSeed{
			ID:             "signal-" + inter.ID,
			IntersectionID: inter.ID,
			Position:       inter.Position,
			Roads:          inter.Incoming,
			Seed:           rng.Int63(),
		}))
	}

	e.spawner = NewSpawner(w, e.planner, e.exchange, e.clock, tuning, rng.Int63(), e.launchVehicle)
	e.injector = NewIncidentInjector(w, e.clock, rng.Int63())
	e.collector = NewCollector(w, e.exchange, e.clock, tuning, recorder)
	return e
}

// World exposes the shared state for the HTTP layer and tests.
func (e *Engine) World() *world.World { return e.w }

// Clock exposes the simulation clock.
func (e *Engine) Clock() *Clock { return e.clock }

// Start launches every loop. Calling Start twice is an error.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return fmt.Errorf("engine already started")
	}
	e.started = true
	e.ctx, e.cancel = context.WithCancel(ctx)

	for _, s := range e.signals {
		s := s
		e.goRun(func(ctx context.Context) { s.Run(ctx) })
	}
	e.goRun(e.spawner.Run)
	e.goRun(e.injector.Run)
	e.goRun(e.collector.Run)
	monitoring.Logf("engine started: %d signals, %d roads",
		len(e.signals), len(e.w.Network().Roads()))
	return nil
}

// Stop cancels every loop and waits for them to drain.
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel := e.cancel
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	e.wg.Wait()
}

func (e *Engine) goRun(run func(context.Context)) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		run(e.ctx)
	}()
}

func (e *Engine) launchVehicle(v *Vehicle) {
	e.goRun(func(ctx context.Context) { v.Run(ctx) })
}

// StartVehicle builds a vehicle from the seed and runs it. The engine must
// be started first.
func (e *Engine) StartVehicle(seed VehicleSeed) (*Vehicle, error) {
	e.mu.Lock()
	started := e.started
	e.mu.Unlock()
	if !started {
		return nil, fmt.Errorf("engine not started")
	}
	v := NewVehicle(e.w, e.planner, e.exchange, e.clock, e.tuning, seed)
	e.launchVehicle(v)
	return v, nil
}

// Pause freezes simulated time; entities keep ticking but hold position.
func (e *Engine) Pause() { e.clock.Pause() }

// Resume unfreezes simulated time.
func (e *Engine) Resume() { e.clock.Resume() }

// SetSpeed changes the simulation speed multiplier.
func (e *Engine) SetSpeed(mult float64) error { return e.clock.SetMultiplier(mult) }

// InjectIncident places an incident on the road nearest pos.
func (e *Engine) InjectIncident(pos geom.Position, duration time.Duration) (world.Incident, error) {
	return e.injector.InjectAt(pos, duration)
}
