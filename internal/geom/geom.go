// Package geom provides the immutable road-network geometry: positions,
// road segments (straight or quadratic-curve), intersections and
// roundabouts. Everything here is built once at setup and never mutated,
// so it is safe to share across every simulation goroutine without locks.
package geom

import "math"

// LaneWidth is the fixed width of a single lane in world units.
const LaneWidth = 25.0

// curveSamples is the polyline resolution used to approximate the length
// of a curved segment.
const curveSamples = 10

// Position is a 2D world coordinate plus a lane index. It is a value type:
// copy it, never share a pointer across entities.
type Position struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Lane int     `json:"lane"`
}

// DistanceTo returns the Euclidean distance to other, ignoring lanes.
func (p Position) DistanceTo(other Position) float64 {
	return math.Hypot(p.X-other.X, p.Y-other.Y)
}

// RoadSegment is a directed stretch of road between two points. A non-nil
// Control point makes the segment a quadratic Bézier curve.
type RoadSegment struct {
	ID          string
	Start       Position
	End         Position
	Control     *Position // nil for straight segments
	Lanes       int
	SpeedLimit  float64
	OneWay      bool
	YieldTarget bool // roundabout-entry semantics: entrants must yield
}

// Curved reports whether the segment follows a Bézier curve.
func (r *RoadSegment) Curved() bool { return r.Control != nil }

// PointAt returns the point at parameter t in [0, 1] along the segment.
// PointAt(0) is Start and PointAt(1) is End for both shapes.
func (r *RoadSegment) PointAt(t float64) Position {
	if !r.Curved() {
		return Position{
			X: r.Start.X + (r.End.X-r.Start.X)*t,
			Y: r.Start.Y + (r.End.Y-r.Start.Y)*t,
		}
	}
	// B(t) = (1-t)^2 P0 + 2(1-t)t P1 + t^2 P2
	u := 1 - t
	return Position{
		X: u*u*r.Start.X + 2*u*t*r.Control.X + t*t*r.End.X,
		Y: u*u*r.Start.Y + 2*u*t*r.Control.Y + t*t*r.End.Y,
	}
}

// AngleAt returns the tangent direction in radians at parameter t. For a
// straight segment this is constant; for a curve it follows the Bézier
// derivative and is continuous in t.
func (r *RoadSegment) AngleAt(t float64) float64 {
	if !r.Curved() {
		return r.Angle()
	}
	// B'(t) = 2(1-t)(P1-P0) + 2t(P2-P1)
	dx := 2*(1-t)*(r.Control.X-r.Start.X) + 2*t*(r.End.X-r.Control.X)
	dy := 2*(1-t)*(r.Control.Y-r.Start.Y) + 2*t*(r.End.Y-r.Control.Y)
	return math.Atan2(dy, dx)
}

// Angle returns the direction of the start-to-end chord in radians.
func (r *RoadSegment) Angle() float64 {
	return math.Atan2(r.End.Y-r.Start.Y, r.End.X-r.Start.X)
}

// Length returns the segment length. Straight segments measure the chord;
// curved segments approximate the arc with a fixed-resolution polyline.
func (r *RoadSegment) Length() float64 {
	if !r.Curved() {
		return r.Start.DistanceTo(r.End)
	}
	var length float64
	prev := r.Start
	for i := 1; i <= curveSamples; i++ {
		p := r.PointAt(float64(i) / curveSamples)
		length += prev.DistanceTo(p)
		prev = p
	}
	return length
}

// LaneOffset returns the perpendicular offset of the lane centre from the
// segment axis. Lanes are centred symmetrically: for a 2-lane road, lane 0
// sits at -LaneWidth/2 and lane 1 at +LaneWidth/2.
func (r *RoadSegment) LaneOffset(lane int) float64 {
	total := float64(r.Lanes) * LaneWidth
	return float64(lane)*LaneWidth - total/2 + LaneWidth/2
}

// Midpoint returns the world point halfway along the start-to-end chord.
// Used to resolve world coordinates to the nearest road.
func (r *RoadSegment) Midpoint() Position {
	return Position{X: (r.Start.X + r.End.X) / 2, Y: (r.Start.Y + r.End.Y) / 2}
}
