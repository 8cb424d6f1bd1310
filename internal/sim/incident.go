package sim

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/trafficsim/internal/geom"
	"github.com/banshee-data/trafficsim/internal/monitoring"
	"github.com/banshee-data/trafficsim/internal/world"
)

const (
	incidentPollInterval = 500 * time.Millisecond
	randomIncidentProb   = 0.002 // per poll while running
	incidentMinDuration  = 15 * time.Second
	incidentMaxDuration  = 60 * time.Second
)

// IncidentInjector creates incidents, randomly on its own schedule or on
// demand, and clears them once their simulated lifetime runs out.
type IncidentInjector struct {
	w     *world.World
	clock *Clock
	rng   *rand.Rand
}

func NewIncidentInjector(w *world.World, clock *Clock, seed int64) *IncidentInjector {
	return &IncidentInjector{
		w:     w,
		clock: clock,
		rng:   rand.New(rand.NewSource(seed)),
	}
}

// Run drives random injection and expiry until the context is cancelled.
func (ij *IncidentInjector) Run(ctx context.Context) {
	runEvery(ctx, incidentPollInterval, "incidents", ij.Tick)
}

// Tick expires stale incidents and occasionally creates a new one. It
// always returns true.
func (ij *IncidentInjector) Tick() bool {
	if ij.clock.Paused() {
		return true
	}
	now := ij.clock.Now()
	for _, inc := range ij.w.Incidents() {
		if now >= inc.Expires {
			ij.w.RemoveIncident(inc.ID)
			monitoring.Logf("incident %s on %s cleared", inc.ID, inc.RoadID)
		}
	}

	if ij.rng.Float64() < randomIncidentProb {
		roads := ij.w.Network().Roads()
		if len(roads) == 0 {
			return true
		}
		road := roads[ij.rng.Intn(len(roads))]
		span := incidentMaxDuration - incidentMinDuration
		dur := incidentMinDuration + time.Duration(ij.rng.Int63n(int64(span)))
		pos := road.PointAt(ij.rng.Float64())
		ij.InjectAt(pos, dur)
	}
	return true
}

// InjectAt places an incident on the road nearest to pos. It returns the
// created incident, or an error when the network has no roads.
func (ij *IncidentInjector) InjectAt(pos geom.Position, duration time.Duration) (world.Incident, error) {
	road := ij.w.Network().RoadAt(pos)
	if road == nil {
		return world.Incident{}, fmt.Errorf("no road near (%.1f, %.1f)", pos.X, pos.Y)
	}
	inc := world.Incident{
		ID:       "incident-" + uuid.New().String()[:8],
		RoadID:   road.ID,
		Position: pos,
		Duration: duration,
		Expires:  ij.clock.Now() + duration,
	}
	ij.w.AddIncident(inc)
	monitoring.Logf("incident %s on %s for %s", inc.ID, inc.RoadID, duration)
	return inc, nil
}
