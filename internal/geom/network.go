package geom

import "fmt"

// Intersection joins incoming roads to outgoing roads. Road references are
// held by id; the ordering of both lists is the insertion order.
type Intersection struct {
	ID       string
	Position Position
	Incoming []string
	Outgoing []string
}

// Roundabout is geometric metadata only: it does not participate in
// routing beyond the YieldTarget flag carried by its entry roads.
type Roundabout struct {
	ID       string
	Center   Position
	Radius   float64
	Incoming []string
	Outgoing []string
}

// Network is the road graph. It is append-only during construction and
// must not be modified after it has been handed to the simulation.
type Network struct {
	roads         map[string]*RoadSegment
	intersections map[string]*Intersection
	roundabouts   map[string]*Roundabout

	roadOrder []string // insertion order, for stable snapshots
	interOrder []string

	// endOf maps a road id to the intersection that lists it as incoming,
	// i.e. the junction at the road's end.
	endOf map[string]string
}

// NewNetwork returns an empty network.
func NewNetwork() *Network {
	return &Network{
		roads:         make(map[string]*RoadSegment),
		intersections: make(map[string]*Intersection),
		roundabouts:   make(map[string]*Roundabout),
		endOf:         make(map[string]string),
	}
}

// AddRoad adds a road segment. Returns an error if the id already exists
// or the segment has fewer than one lane.
func (n *Network) AddRoad(r *RoadSegment) error {
	if _, exists := n.roads[r.ID]; exists {
		return fmt.Errorf("road %q already exists", r.ID)
	}
	if r.Lanes < 1 {
		return fmt.Errorf("road %q must have at least one lane, got %d", r.ID, r.Lanes)
	}
	n.roads[r.ID] = r
	n.roadOrder = append(n.roadOrder, r.ID)
	return nil
}

// AddIntersection adds an intersection. Every referenced road must already
// be present in the network.
func (n *Network) AddIntersection(in *Intersection) error {
	if _, exists := n.intersections[in.ID]; exists {
		return fmt.Errorf("intersection %q already exists", in.ID)
	}
	for _, id := range append(append([]string{}, in.Incoming...), in.Outgoing...) {
		if _, ok := n.roads[id]; !ok {
			return fmt.Errorf("intersection %q: road %q not found", in.ID, id)
		}
	}
	n.intersections[in.ID] = in
	n.interOrder = append(n.interOrder, in.ID)
	for _, id := range in.Incoming {
		n.endOf[id] = in.ID
	}
	return nil
}

// AddRoundabout records roundabout metadata and marks each of its entry
// roads as a yield target.
func (n *Network) AddRoundabout(rb *Roundabout) error {
	if _, exists := n.roundabouts[rb.ID]; exists {
		return fmt.Errorf("roundabout %q already exists", rb.ID)
	}
	for _, id := range rb.Incoming {
		r, ok := n.roads[id]
		if !ok {
			return fmt.Errorf("roundabout %q: road %q not found", rb.ID, id)
		}
		r.YieldTarget = true
	}
	n.roundabouts[rb.ID] = rb
	return nil
}

// Road looks up a road segment by id; nil if unknown.
func (n *Network) Road(id string) *RoadSegment { return n.roads[id] }

// Intersection looks up an intersection by id; nil if unknown.
func (n *Network) Intersection(id string) *Intersection { return n.intersections[id] }

// Roads returns all road segments in insertion order.
func (n *Network) Roads() []*RoadSegment {
	out := make([]*RoadSegment, 0, len(n.roadOrder))
	for _, id := range n.roadOrder {
		out = append(out, n.roads[id])
	}
	return out
}

// Intersections returns all intersections in insertion order.
func (n *Network) Intersections() []*Intersection {
	out := make([]*Intersection, 0, len(n.interOrder))
	for _, id := range n.interOrder {
		out = append(out, n.intersections[id])
	}
	return out
}

// EndOf returns the intersection at the end of the given road, i.e. the
// one listing it as incoming. Nil if the road terminates outside the graph.
func (n *Network) EndOf(roadID string) *Intersection {
	id, ok := n.endOf[roadID]
	if !ok {
		return nil
	}
	return n.intersections[id]
}

// EntryRoads returns the roads that no intersection lists as outgoing:
// the points where new vehicles can enter the network.
func (n *Network) EntryRoads() []*RoadSegment {
	fed := make(map[string]bool)
	for _, in := range n.intersections {
		for _, id := range in.Outgoing {
			fed[id] = true
		}
	}
	var out []*RoadSegment
	for _, id := range n.roadOrder {
		if !fed[id] {
			out = append(out, n.roads[id])
		}
	}
	return out
}

// RoadAt resolves a world coordinate to the road whose midpoint is
// nearest. Nil for an empty network.
func (n *Network) RoadAt(p Position) *RoadSegment {
	var nearest *RoadSegment
	best := 0.0
	for _, id := range n.roadOrder {
		r := n.roads[id]
		d := p.DistanceTo(r.Midpoint())
		if nearest == nil || d < best {
			nearest = r
			best = d
		}
	}
	return nearest
}
