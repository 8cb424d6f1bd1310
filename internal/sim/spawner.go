package sim

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/trafficsim/internal/config"
	"github.com/banshee-data/trafficsim/internal/monitoring"
	"github.com/banshee-data/trafficsim/internal/route"
	"github.com/banshee-data/trafficsim/internal/world"
)

const spawnerPollInterval = 100 * time.Millisecond

// Spawner feeds vehicles into the network at a sinusoidal rate: spawn
// intervals swing between the rush-hour minimum and the quiet-hour
// maximum over one full traffic cycle.
type Spawner struct {
	w        *world.World
	planner  *route.Planner
	exchange *Exchange
	clock    *Clock
	tuning   *config.TuningConfig
	rng      *rand.Rand

	// launch hands a freshly built vehicle to the engine to run.
	launch func(*Vehicle)

	nextAt time.Duration // sim time of the next spawn
}

// NewSpawner builds a spawner. launch is called for each new vehicle and
// must start its goroutine.
func NewSpawner(w *world.World, planner *route.Planner, exchange *Exchange, clock *Clock, tuning *config.TuningConfig, seed int64, launch func(*Vehicle)) *Spawner {
	return &Spawner{
		w:        w,
		planner:  planner,
		exchange: exchange,
		clock:    clock,
		tuning:   tuning,
		rng:      rand.New(rand.NewSource(seed)),
		launch:   launch,
	}
}

// Run polls simulated time and spawns whenever the next spawn instant has
// passed, until the context is cancelled.
func (s *Spawner) Run(ctx context.Context) {
	runEvery(ctx, spawnerPollInterval, "spawner", s.Tick)
}

// Tick spawns at most one vehicle when the schedule and the population
// cap allow it. It always returns true.
func (s *Spawner) Tick() bool {
	if s.clock.Paused() {
		return true
	}
	now := s.clock.Now()
	if now < s.nextAt {
		return true
	}
	s.nextAt = now + s.Interval(now)

	if s.w.VehicleCount() >= s.tuning.GetMaxVehicles() {
		return true
	}
	seed := s.buildSeed()
	if seed.RoadID == "" {
		return true // empty network
	}
	v := NewVehicle(s.w, s.planner, s.exchange, s.clock, s.tuning, seed)
	s.launch(v)
	return true
}

// Interval returns the spawn interval for the given simulated time. The
// interval follows a sine wave over the traffic cycle: rush-hour trough,
// quiet-hour crest.
func (s *Spawner) Interval(now time.Duration) time.Duration {
	cycle := s.tuning.GetSpawnCycle()
	rush := s.tuning.GetSpawnRushMin()
	quiet := s.tuning.GetSpawnQuietMax()
	if cycle <= 0 || quiet <= rush {
		return rush
	}
	phase := 2 * math.Pi * float64(now%cycle) / float64(cycle)
	// sin=+1 is peak demand (shortest interval), sin=-1 is the quiet trough.
	frac := (1 - math.Sin(phase)) / 2
	return rush + time.Duration(frac*float64(quiet-rush))
}

func (s *Spawner) buildSeed() VehicleSeed {
	net := s.w.Network()
	entries := net.EntryRoads()
	if len(entries) == 0 {
		entries = net.Roads()
	}
	if len(entries) == 0 {
		return VehicleSeed{}
	}
	road := entries[s.rng.Intn(len(entries))]

	destID := ""
	if inters := net.Intersections(); len(inters) > 0 {
		destID = inters[s.rng.Intn(len(inters))].ID
	}

	short := uuid.New().String()[:8]
	seed := VehicleSeed{
		RoadID:        road.ID,
		Lane:          s.rng.Intn(road.Lanes),
		DestinationID: destID,
		Seed:          s.rng.Int63(),
	}

	draw := s.rng.Float64()
	switch {
	case draw < s.tuning.GetEmergencyFraction():
		seed.ID = "ambulance-" + short
		seed.Profile = ProfileAggressive
		seed.Hooks = &EmergencyHooks{}
	case draw < s.tuning.GetEmergencyFraction()+s.tuning.GetBusFraction():
		seed.ID = "bus-" + short
		seed.Profile = ProfileCautious
		seed.Hooks = &TransportHooks{}
	default:
		seed.ID = "car-" + short
		seed.Profile = Profiles()[s.rng.Intn(len(Profiles()))]
	}
	monitoring.Logf("spawning %s on %s toward %s", seed.ID, seed.RoadID, destID)
	return seed
}
