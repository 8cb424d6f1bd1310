package sim

import (
	"math"

	"github.com/banshee-data/trafficsim/internal/geom"
	"github.com/banshee-data/trafficsim/internal/world"
)

// Perception constants.
const (
	basePerceptionRadius = 150.0
	visionCone           = math.Pi / 4 // +/-45 degrees for vehicles
	signalCone           = math.Pi / 6 // +/-30 degrees for signals
	signalMaxDistance    = 80.0
	incidentSlowRange    = 100.0
	yieldCheckRadius     = 60.0
)

// Obstacle is one perceived vehicle, nearest of its lane bucket.
type Obstacle struct {
	ID       string
	Distance float64
	Lane     int
	Speed    float64
}

// SignalInfo is a perceived traffic signal ahead.
type SignalInfo struct {
	ID       string
	State    world.SignalState
	Distance float64
}

// IncidentInfo is a perceived incident ahead on the current road.
type IncidentInfo struct {
	ID       string
	Distance float64
}

// Perception is the world as one vehicle sees it this tick. Each slot is
// nil when nothing was detected; there is no "not computed" state.
type Perception struct {
	Lead      *Obstacle // same lane, ahead
	Left      *Obstacle // lane-1, ahead
	Right     *Obstacle // lane+1, ahead
	LeftRear  *Obstacle // lane-1, behind
	RightRear *Obstacle // lane+1, behind
	Signal    *SignalInfo
	Incident  *IncidentInfo

	// EmergencyYield is set on roundabout-entry roads when another vehicle
	// on a different road contests the junction and has priority.
	EmergencyYield bool
}

// angleDiff returns the absolute angular separation of two headings,
// folded into [0, pi].
func angleDiff(a, b float64) float64 {
	d := math.Abs(a - b)
	if d > math.Pi {
		d = 2*math.Pi - d
	}
	return d
}

// keepNearest installs obs into the slot unless a nearer one is already
// recorded.
func keepNearest(slot **Obstacle, obs *Obstacle) {
	if *slot == nil || obs.Distance < (*slot).Distance {
		*slot = obs
	}
}

// perceive builds the Perception for a vehicle at pos on road, heading in
// the road's tangent direction.
func perceive(w *world.World, road *geom.RoadSegment, selfID string, pos geom.Position, lane int, heading, radius float64) *Perception {
	p := &Perception{}

	for _, rec := range w.NearbyVehicles(pos, radius, selfID) {
		dist := rec.Position.DistanceTo(pos)
		bearing := math.Atan2(rec.Position.Y-pos.Y, rec.Position.X-pos.X)
		sep := angleDiff(bearing, heading)

		ahead := sep < visionCone
		behind := sep > math.Pi-visionCone
		if !ahead && !behind {
			continue
		}

		obs := &Obstacle{ID: rec.ID, Distance: dist, Lane: rec.Position.Lane, Speed: rec.Speed}
		switch {
		case ahead && rec.Position.Lane == lane:
			keepNearest(&p.Lead, obs)
		case ahead && rec.Position.Lane == lane-1:
			keepNearest(&p.Left, obs)
		case ahead && rec.Position.Lane == lane+1:
			keepNearest(&p.Right, obs)
		case behind && rec.Position.Lane == lane-1:
			keepNearest(&p.LeftRear, obs)
		case behind && rec.Position.Lane == lane+1:
			keepNearest(&p.RightRear, obs)
		}
	}

	if sig, ok := w.NearestSignal(pos, radius); ok {
		dist := sig.Position.DistanceTo(pos)
		bearing := math.Atan2(sig.Position.Y-pos.Y, sig.Position.X-pos.X)
		if angleDiff(bearing, heading) < signalCone && dist < signalMaxDistance {
			p.Signal = &SignalInfo{ID: sig.ID, State: sig.State, Distance: dist}
		}
	}

	for _, inc := range w.IncidentsOnRoad(road.ID) {
		dist := inc.Position.DistanceTo(pos)
		if dist >= radius {
			continue
		}
		bearing := math.Atan2(inc.Position.Y-pos.Y, inc.Position.X-pos.X)
		if angleDiff(bearing, heading) < visionCone {
			if p.Incident == nil || dist < p.Incident.Distance {
				p.Incident = &IncidentInfo{ID: inc.ID, Distance: dist}
			}
		}
	}

	if road.YieldTarget {
		p.EmergencyYield = contestedJunction(w, road, selfID)
	}

	return p
}

// contestedJunction reports whether another vehicle on a different road is
// close to this road's junction end. Two simultaneous entrants would
// otherwise yield to each other forever, so ties break on lowest vehicle
// id: the lexically smallest contender proceeds, everyone else yields.
func contestedJunction(w *world.World, road *geom.RoadSegment, selfID string) bool {
	junction := road.End
	hasPriority := true
	contested := false
	for _, rec := range w.NearbyVehicles(junction, yieldCheckRadius, selfID) {
		if rec.RoadID == road.ID {
			continue
		}
		contested = true
		if rec.ID < selfID {
			hasPriority = false
		}
	}
	return contested && !hasPriority
}
