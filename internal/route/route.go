// Package route computes congestion-aware routes over the intersection
// graph. Edge weights are a function of live world state, so every search
// runs fresh against the current vehicle counts; results are never cached.
package route

import (
	"container/heap"
	"math"

	"github.com/banshee-data/trafficsim/internal/geom"
)

const (
	// yieldPenalty is the extra effective length of a roundabout-entry road.
	yieldPenalty = 50.0

	// congestionPerVehicle scales each live vehicle on an edge into extra
	// relative cost: one vehicle adds 50% of the edge's base weight.
	congestionPerVehicle = 0.5
)

// CountFunc reports the live vehicle count on a road. Typically
// (*world.World).VehicleCountOnRoad.
type CountFunc func(roadID string) int

// Planner runs weighted shortest-path searches over a road network.
type Planner struct {
	network *geom.Network
	counts  CountFunc
}

// NewPlanner creates a planner over the network. counts supplies live
// vehicle counts; a nil counts treats every road as empty.
func NewPlanner(network *geom.Network, counts CountFunc) *Planner {
	if counts == nil {
		counts = func(string) int { return 0 }
	}
	return &Planner{network: network, counts: counts}
}

// Weight returns the routing cost of traversing the road right now.
func (p *Planner) Weight(road *geom.RoadSegment) float64 {
	base := road.Length()
	if road.YieldTarget {
		base += yieldPenalty
	}
	return base * (1 + congestionPerVehicle*float64(p.counts(road.ID)))
}

// FindPath returns the ordered road ids from the start intersection to the
// end intersection, or an empty list when start equals end, either id is
// unknown, or no route exists. Among equal-cost routes the one reached
// through the lexically smaller road id wins, so output is deterministic.
func (p *Planner) FindPath(startID, endID string) []string {
	if startID == endID {
		return nil
	}
	if p.network.Intersection(startID) == nil || p.network.Intersection(endID) == nil {
		return nil
	}

	dist := map[string]float64{startID: 0}
	parentRoad := make(map[string]string)
	parentInter := make(map[string]string)

	pq := &nodeQueue{{id: startID, dist: 0}}
	heap.Init(pq)

	for pq.Len() > 0 {
		cur := heap.Pop(pq).(node)
		if cur.id == endID {
			break
		}
		if d, ok := dist[cur.id]; ok && cur.dist > d {
			continue // stale queue entry
		}

		inter := p.network.Intersection(cur.id)
		if inter == nil {
			continue
		}
		for _, roadID := range inter.Outgoing {
			road := p.network.Road(roadID)
			if road == nil {
				continue
			}
			next := p.network.EndOf(roadID)
			if next == nil {
				continue // road leaves the graph
			}

			alt := cur.dist + p.Weight(road)
			prev, seen := dist[next.ID]
			better := !seen || alt < prev
			// Equal-cost tie-break on the entering road id.
			if seen && alt == prev && roadID < parentRoad[next.ID] {
				better = true
			}
			if better {
				dist[next.ID] = alt
				parentRoad[next.ID] = roadID
				parentInter[next.ID] = cur.id
				heap.Push(pq, node{id: next.ID, dist: alt})
			}
		}
	}

	if _, ok := dist[endID]; !ok || math.IsInf(dist[endID], 1) {
		return nil
	}

	// Walk parents back from the destination, collecting road ids.
	var path []string
	for cur := endID; cur != startID; {
		road, ok := parentRoad[cur]
		if !ok {
			return nil
		}
		path = append([]string{road}, path...)
		cur = parentInter[cur]
	}
	return path
}

type node struct {
	id   string
	dist float64
}

type nodeQueue []node

func (q nodeQueue) Len() int { return len(q) }
func (q nodeQueue) Less(i, j int) bool {
	if q[i].dist != q[j].dist {
		return q[i].dist < q[j].dist
	}
	return q[i].id < q[j].id
}
func (q nodeQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *nodeQueue) Push(x interface{}) { *q = append(*q, x.(node)) }
func (q *nodeQueue) Pop() interface{} {
	old := *q
	n := len(old)
	it := old[n-1]
	*q = old[:n-1]
	return it
}
