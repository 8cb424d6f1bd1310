// Package world holds the single source of truth for all dynamic
// simulation facts: vehicle records, signal states, active incidents and
// per-road congestion history. Each record has exactly one writer (the
// entity that owns the id) and many readers; every update replaces the
// whole record so readers never observe a torn value.
package world

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/banshee-data/trafficsim/internal/geom"
)

// SignalState is the colour of a traffic signal.
type SignalState string

const (
	SignalRed    SignalState = "RED"
	SignalYellow SignalState = "YELLOW"
	SignalGreen  SignalState = "GREEN"
)

// Constants shared by the queries below.
const (
	// RoadMatchTolerance is the slack, in world units, allowed when deciding
	// whether a vehicle position lies on a road. A point is on the road when
	// the sum of its distances to both endpoints matches the road length
	// within this tolerance.
	RoadMatchTolerance = 20.0

	// CongestionAlpha is the smoothing factor of the exponential moving
	// average folded into the per-road congestion history.
	CongestionAlpha = 0.2
)

// VehicleRecord is the published state of one vehicle. All fields are
// plain values; the record is copied in and out of the store, never
// aliased.
type VehicleRecord struct {
	ID       string
	Position geom.Position
	RoadID   string
	Speed    float64
	Accel    float64
	Intent   string
	Path     []string // upcoming road ids, head first

	UpdatedUnixNanos int64
}

// VehicleUpdate carries the fields of an upsert. Nil fields keep the
// previous value, so a controller can publish a partial update without
// re-reading its own record.
type VehicleUpdate struct {
	Position *geom.Position
	RoadID   *string
	Speed    *float64
	Accel    *float64
	Intent   *string
	Path     []string // nil keeps the previous path
}

// SignalRecord is the published state of one traffic signal.
type SignalRecord struct {
	ID       string
	Position geom.Position
	State    SignalState

	UpdatedUnixNanos int64
}

// Incident is a time-bounded obstruction on a road.
type Incident struct {
	ID       string
	RoadID   string
	Position geom.Position
	Duration time.Duration
	Expires  time.Duration // simulated time at which the incident clears
}

// Counters are monotonic aggregate totals for the metrics log.
type Counters struct {
	VehiclesSpawned int64
	VehiclesExited  int64
	Incidents       int64
}

// World is the concurrent store. Construct with New and share the one
// instance by handle; there is no ambient global.
type World struct {
	network *geom.Network

	mu         sync.RWMutex
	vehicles   map[string]*VehicleRecord
	signals    map[string]*SignalRecord
	incidents  map[string]*Incident
	congestion map[string]float64 // road id -> EMA of vehicle count
	counters   Counters
}

// New creates an empty world over the given road network. The network must
// already be fully constructed; the world never mutates it.
func New(network *geom.Network) *World {
	return &World{
		network:    network,
		vehicles:   make(map[string]*VehicleRecord),
		signals:    make(map[string]*SignalRecord),
		incidents:  make(map[string]*Incident),
		congestion: make(map[string]float64),
	}
}

// Network returns the immutable road network the world was built over.
func (w *World) Network() *geom.Network { return w.network }

// UpsertVehicle merges the non-nil fields of up into the record for id,
// creating it if absent. The merged record is installed as a single
// replacement, so concurrent readers see either the old or the new record.
func (w *World) UpsertVehicle(id string, up VehicleUpdate) {
	w.mu.Lock()
	defer w.mu.Unlock()

	rec := VehicleRecord{ID: id}
	if prev, ok := w.vehicles[id]; ok {
		rec = *prev
	} else {
		w.counters.VehiclesSpawned++
	}
	if up.Position != nil {
		rec.Position = *up.Position
	}
	if up.RoadID != nil {
		rec.RoadID = *up.RoadID
	}
	if up.Speed != nil {
		rec.Speed = *up.Speed
	}
	if up.Accel != nil {
		rec.Accel = *up.Accel
	}
	if up.Intent != nil {
		rec.Intent = *up.Intent
	}
	if up.Path != nil {
		rec.Path = append([]string(nil), up.Path...)
	}
	rec.UpdatedUnixNanos = time.Now().UnixNano()
	w.vehicles[id] = &rec
}

// RemoveVehicle deletes every record held for id. A later upsert with the
// same id starts from a zero record.
func (w *World) RemoveVehicle(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.vehicles[id]; ok {
		delete(w.vehicles, id)
		w.counters.VehiclesExited++
	}
}

// Vehicle returns a copy of the record for id.
func (w *World) Vehicle(id string) (VehicleRecord, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	rec, ok := w.vehicles[id]
	if !ok {
		return VehicleRecord{}, false
	}
	return *rec, true
}

// Vehicles returns copies of all vehicle records, ordered by id for stable
// snapshots.
func (w *World) Vehicles() []VehicleRecord {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]VehicleRecord, 0, len(w.vehicles))
	for _, rec := range w.vehicles {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// VehicleCount returns the number of live vehicle records.
func (w *World) VehicleCount() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.vehicles)
}

// NearbyVehicles returns copies of the records within radius of center,
// excluding excludeID. Order is not specified.
func (w *World) NearbyVehicles(center geom.Position, radius float64, excludeID string) []VehicleRecord {
	w.mu.RLock()
	defer w.mu.RUnlock()
	var out []VehicleRecord
	for id, rec := range w.vehicles {
		if id == excludeID {
			continue
		}
		if rec.Position.DistanceTo(center) <= radius {
			out = append(out, *rec)
		}
	}
	return out
}

// UpsertSignal replaces the record for the signal id.
func (w *World) UpsertSignal(id string, pos geom.Position, state SignalState) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.signals[id] = &SignalRecord{
		ID:               id,
		Position:         pos,
		State:            state,
		UpdatedUnixNanos: time.Now().UnixNano(),
	}
}

// RemoveSignal deletes the record for the signal id.
func (w *World) RemoveSignal(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.signals, id)
}

// Signal returns a copy of the record for id.
func (w *World) Signal(id string) (SignalRecord, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	rec, ok := w.signals[id]
	if !ok {
		return SignalRecord{}, false
	}
	return *rec, true
}

// Signals returns copies of all signal records ordered by id.
func (w *World) Signals() []SignalRecord {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]SignalRecord, 0, len(w.signals))
	for _, rec := range w.signals {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// NearestSignal returns the closest signal within radius of center.
func (w *World) NearestSignal(center geom.Position, radius float64) (SignalRecord, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	var nearest *SignalRecord
	best := radius
	for _, rec := range w.signals {
		if d := rec.Position.DistanceTo(center); d < best {
			best = d
			nearest = rec
		}
	}
	if nearest == nil {
		return SignalRecord{}, false
	}
	return *nearest, true
}

// AddIncident records an active incident.
func (w *World) AddIncident(inc Incident) {
	w.mu.Lock()
	defer w.mu.Unlock()
	cp := inc
	w.incidents[inc.ID] = &cp
	w.counters.Incidents++
}

// RemoveIncident deletes the incident with the given id.
func (w *World) RemoveIncident(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.incidents, id)
}

// Incidents returns copies of all active incidents ordered by id.
func (w *World) Incidents() []Incident {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]Incident, 0, len(w.incidents))
	for _, inc := range w.incidents {
		out = append(out, *inc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// IncidentsOnRoad returns the active incidents on the given road.
func (w *World) IncidentsOnRoad(roadID string) []Incident {
	w.mu.RLock()
	defer w.mu.RUnlock()
	var out []Incident
	for _, inc := range w.incidents {
		if inc.RoadID == roadID {
			out = append(out, *inc)
		}
	}
	return out
}

// VehicleCountOnRoad counts vehicles whose position lies on the road: the
// sum of distances to both endpoints must match the road length within
// RoadMatchTolerance. This is the congestion proxy used by routing and the
// signal controllers.
func (w *World) VehicleCountOnRoad(roadID string) int {
	road := w.network.Road(roadID)
	if road == nil {
		return 0
	}
	length := road.Length()

	w.mu.RLock()
	defer w.mu.RUnlock()
	count := 0
	for _, rec := range w.vehicles {
		d := rec.Position.DistanceTo(road.Start) + rec.Position.DistanceTo(road.End)
		if math.Abs(d-length) < RoadMatchTolerance {
			count++
		}
	}
	return count
}

// FoldCongestion folds a fresh vehicle-count sample for the road into the
// exponential moving average. Called by the metrics collector.
func (w *World) FoldCongestion(roadID string, sample float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	prev, ok := w.congestion[roadID]
	if !ok {
		prev = sample
	}
	w.congestion[roadID] = (1-CongestionAlpha)*prev + CongestionAlpha*sample
}

// HistoricalCongestion returns the congestion EMA for the road, or 0 if no
// sample has been folded yet.
func (w *World) HistoricalCongestion(roadID string) float64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.congestion[roadID]
}

// CongestionByRoad returns a copy of the whole congestion table.
func (w *World) CongestionByRoad() map[string]float64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make(map[string]float64, len(w.congestion))
	for id, v := range w.congestion {
		out[id] = v
	}
	return out
}

// Totals returns the aggregate counters.
func (w *World) Totals() Counters {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.counters
}
