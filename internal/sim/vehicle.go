package sim

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/banshee-data/trafficsim/internal/config"
	"github.com/banshee-data/trafficsim/internal/geom"
	"github.com/banshee-data/trafficsim/internal/monitoring"
	"github.com/banshee-data/trafficsim/internal/route"
	"github.com/banshee-data/trafficsim/internal/world"
)

// Car-following and V2V constants.
const (
	safetyGapBase     = 20.0 // safety gap = speed*1.5 + safetyGapBase
	safetyGapFactor   = 1.5
	minStandoff       = 8.0  // closest a follower may get to its lead
	stopDistance      = 10.0 // do not brake once inside this distance of a light
	approachGain      = 0.1  // speed cap per unit of distance to the stop line
	minCreepSpeed     = 0.05 // below this the approach cap snaps to zero
	minRearGap        = 15.0 // smallest rear gap a lane change may leave
	tightGapRatio     = 0.5  // gap collapse ratio that triggers a lane-change attempt
	suddenBrakeDelta  = 1.0  // speed lost in one tick that counts as sharp braking
	brakeWarnRadius   = 200.0
	brakeReactRadius  = 100.0
	hazardWarnRadius  = 300.0
	brakeMsgCooldown  = time.Second
	hazardMsgCooldown = 5 * time.Second
	coopMsgCooldown   = 2 * time.Second
	stuckSpeed        = 0.5
	stuckRerouteProb  = 0.05
	congRerouteProb   = 0.02
	congMsgReactProb  = 0.3
)

// Intent labels published to the world each tick.
const (
	IntentCruising  = "cruising"
	IntentFollowing = "following"
	IntentStopping  = "stopping at light"
	IntentYielding  = "yielding"
	IntentRerouting = "rerouting"
	IntentBraking   = "emergency braking"
	IntentLaneMove  = "changing lane"
)

// BehaviorHooks extends the vehicle tick cycle without subclassing. All
// methods run on the vehicle's own goroutine.
type BehaviorHooks interface {
	// Setup runs once before the first tick.
	Setup(v *Vehicle)
	// BeforeDecide may take over the whole tick; returning true skips the
	// normal decide and move steps.
	BeforeDecide(v *Vehicle) bool
	// AfterDecide runs after the normal decide/move steps.
	AfterDecide(v *Vehicle)
	// HandleMessage reacts to inbox messages the base vehicle ignores.
	HandleMessage(v *Vehicle, msg Message)
}

// NoHooks is the default behaviour extension: none.
type NoHooks struct{}

func (NoHooks) Setup(*Vehicle)                  {}
func (NoHooks) BeforeDecide(*Vehicle) bool      { return false }
func (NoHooks) AfterDecide(*Vehicle)            {}
func (NoHooks) HandleMessage(*Vehicle, Message) {}

// VehicleSeed describes a vehicle at creation time. Missing or invalid
// fields fall back to defaults; construction never fails.
type VehicleSeed struct {
	ID            string
	RoadID        string
	Lane          int
	Profile       Profile
	DestinationID string // intersection id; empty means wander
	Hooks         BehaviorHooks
	Seed          int64
}

// Vehicle is one autonomous vehicle: it perceives the shared world,
// decides locally, moves, and publishes its record back every tick.
type Vehicle struct {
	id       string
	w        *world.World
	net      *geom.Network
	planner  *route.Planner
	exchange *Exchange
	clock    *Clock
	tuning   *config.TuningConfig

	profile Profile
	hooks   BehaviorHooks

	// Scales installed by hooks (emergency vehicles see further and drive
	// faster; buses drive slower).
	perceptionScale float64
	speedScale      float64

	roadID   string
	lane     int
	progress float64
	speed    float64
	accel    float64
	pos      geom.Position
	heading  float64
	destID   string
	path     []string
	intent   string

	perc  *Perception
	inbox *Inbox
	rng   *rand.Rand

	lastReroute   time.Duration
	lastBrakeMsg  time.Duration
	lastHazardMsg time.Duration
	lastCoopMsg   time.Duration

	// One-shot effects queued by inbox messages for the next decide.
	extraBrake float64
	slowForCut bool
	rerouteNow bool
}

// NewVehicle builds a vehicle from a seed, applying defaults for anything
// missing, and computes its initial route when a destination is set.
func NewVehicle(w *world.World, planner *route.Planner, exchange *Exchange, clock *Clock, tuning *config.TuningConfig, seed VehicleSeed) *Vehicle {
	v := &Vehicle{
		id:              seed.ID,
		w:               w,
		net:             w.Network(),
		planner:         planner,
		exchange:        exchange,
		clock:           clock,
		tuning:          tuning,
		profile:         seed.Profile,
		hooks:           seed.Hooks,
		destID:          seed.DestinationID,
		lane:            seed.Lane,
		perceptionScale: 1,
		speedScale:      1,
		intent:          IntentCruising,
		rng:             rand.New(rand.NewSource(seed.Seed)),
	}
	if v.id == "" {
		v.id = "vehicle"
	}
	if v.profile.Name == "" {
		v.profile = ProfileNormal
	}
	if v.hooks == nil {
		v.hooks = NoHooks{}
	}

	road := v.net.Road(seed.RoadID)
	if road == nil {
		// Fall back to the first entry road, then to any road at all.
		if entries := v.net.EntryRoads(); len(entries) > 0 {
			road = entries[0]
		} else if roads := v.net.Roads(); len(roads) > 0 {
			road = roads[0]
		}
	}
	if road != nil {
		v.roadID = road.ID
		if v.lane < 0 || v.lane >= road.Lanes {
			v.lane = 0
		}
		v.pos = road.PointAt(0)
		v.pos.Lane = v.lane
		v.heading = road.AngleAt(0)
	}

	if v.destID != "" && road != nil {
		if from := v.net.EndOf(road.ID); from != nil {
			v.path = v.planner.FindPath(from.ID, v.destID)
		}
	}

	v.inbox = exchange.Register(v.id)
	v.hooks.Setup(v)
	v.publish()
	return v
}

// ID returns the vehicle id.
func (v *Vehicle) ID() string { return v.id }

// Run ticks the vehicle on its own schedule until the context is
// cancelled or the vehicle exits the network.
func (v *Vehicle) Run(ctx context.Context) {
	runEvery(ctx, v.tuning.GetVehicleTick(), "vehicle "+v.id, v.Tick)
}

// Tick executes one perceive/decide/act cycle. It returns false once the
// vehicle has left the network and its records are gone.
func (v *Vehicle) Tick() bool {
	if v.clock.Paused() {
		v.inbox.Drain() // keep the mailbox bounded while frozen
		return true
	}

	road := v.net.Road(v.roadID)
	if road == nil {
		v.exit("road disappeared")
		return false
	}

	// Perceive.
	radius := basePerceptionRadius * v.profile.SafetyMult * v.perceptionScale
	t := v.progressRatio(road)
	v.heading = road.AngleAt(t)
	v.perc = perceive(v.w, road, v.id, v.pos, v.lane, v.heading, radius)
	v.reactToIncident()

	// Drain the inbox before deciding so fresh signal states apply.
	for _, msg := range v.inbox.Drain() {
		v.handleMessage(msg)
	}

	alive := true
	if !v.hooks.BeforeDecide(v) {
		v.decide(road)
		alive = v.move(road)
	}
	v.hooks.AfterDecide(v)

	if alive {
		v.publish()
	}
	return alive
}

func (v *Vehicle) progressRatio(road *geom.RoadSegment) float64 {
	length := road.Length()
	if length <= 0 {
		return 0
	}
	t := v.progress / length
	if t > 1 {
		t = 1
	}
	return t
}

// reactToIncident applies the immediate speed damping for a perceived
// incident and broadcasts a hazard warning, at most once per cooldown.
func (v *Vehicle) reactToIncident() {
	if v.perc.Incident == nil {
		return
	}
	if v.perc.Incident.Distance < incidentSlowRange && v.speed > 2 {
		v.speed = math.Max(2, v.speed*0.7)
	}
	now := v.clock.Now()
	if now-v.lastHazardMsg >= hazardMsgCooldown {
		v.lastHazardMsg = now
		v.broadcast(hazardWarnRadius, Message{Kind: MsgHazard, From: v.id, Pos: v.pos, RoadID: v.roadID})
	}
}

func (v *Vehicle) handleMessage(msg Message) {
	switch msg.Kind {
	case MsgSignalState:
		if v.perc.Signal != nil && v.perc.Signal.ID == msg.From {
			v.perc.Signal.State = msg.State
		}
	case MsgBraking:
		if msg.Pos.DistanceTo(v.pos) < brakeReactRadius {
			v.extraBrake += v.profile.BrakeRate * 1.5
		}
	case MsgHazard:
		// React even without seeing the incident ourselves.
		v.rerouteNow = true
	case MsgLaneCooperate:
		// Only yield to a merge happening right in front of us.
		if msg.Pos.DistanceTo(v.pos) < v.safetyGap() {
			v.slowForCut = true
		}
	case MsgCongestion:
		if msg.RoadID == v.roadID && v.rng.Float64() < congMsgReactProb {
			v.rerouteNow = true
		}
	}
	v.hooks.HandleMessage(v, msg)
}

func (v *Vehicle) safetyGap() float64 {
	return v.speed*safetyGapFactor + safetyGapBase
}

// decide computes the new speed, lane and intent from this tick's
// perception and queued message effects.
func (v *Vehicle) decide(road *geom.RoadSegment) {
	prevSpeed := v.speed
	currentMax := road.SpeedLimit * v.profile.SpeedMult * v.speedScale
	v.intent = IntentCruising

	switch {
	case v.perc.EmergencyYield:
		// Contested roundabout entry: hard stop, double brake rate.
		v.speed = math.Max(0, v.speed-2*v.profile.BrakeRate)
		v.intent = IntentYielding

	case v.perc.Lead != nil && v.perc.Lead.Distance < v.safetyGap():
		gap := v.safetyGap()
		ratio := (gap - v.perc.Lead.Distance) / gap
		v.speed = math.Max(0, v.speed-v.profile.BrakeRate*ratio)
		// Never close to within the standoff of the lead in one tick.
		if standoff := v.perc.Lead.Distance - minStandoff; v.speed > standoff {
			v.speed = math.Max(0, standoff)
		}
		v.intent = IntentFollowing

		if ratio > tightGapRatio {
			v.tryLaneChange(road)
		}
		if v.speed < stuckSpeed && v.rng.Float64() < stuckRerouteProb {
			v.maybeReroute()
		}

	case v.signalAhead():
		sig := v.perc.Signal
		// Approach cap: speed may not exceed approachGain per unit of
		// distance left to the stop line, which walks the vehicle to a halt
		// just before the signal.
		limit := approachGain * (sig.Distance - stopDistance)
		if limit < minCreepSpeed {
			limit = 0
		}
		if v.speed > limit {
			v.speed = math.Max(limit, v.speed-v.profile.BrakeRate)
		} else {
			v.speed = math.Min(limit, math.Min(currentMax, v.speed+v.profile.AccelRate))
		}
		v.intent = IntentStopping

	default:
		v.speed = math.Min(currentMax, v.speed+v.profile.AccelRate)
	}

	// One-shot effects queued by V2V messages.
	if v.extraBrake > 0 {
		v.speed = math.Max(0, v.speed-v.extraBrake)
		v.extraBrake = 0
		v.intent = IntentBraking
	}
	if v.slowForCut {
		v.speed *= 0.7
		v.slowForCut = false
	}
	if v.rerouteNow {
		v.rerouteNow = false
		v.maybeReroute()
	}

	// Persistent congestion on this road invites an occasional reroute.
	if v.w.HistoricalCongestion(v.roadID) > v.tuning.GetCongestionThreshold() &&
		v.rng.Float64() < congRerouteProb {
		v.maybeReroute()
	}

	if v.speed < 0 {
		v.speed = 0
	} else if v.speed > currentMax {
		v.speed = currentMax
	}
	v.accel = v.speed - prevSpeed

	// Sharp deceleration warns everyone behind.
	if prevSpeed-v.speed > suddenBrakeDelta {
		now := v.clock.Now()
		if now-v.lastBrakeMsg >= brakeMsgCooldown {
			v.lastBrakeMsg = now
			v.broadcast(brakeWarnRadius, Message{Kind: MsgBraking, From: v.id, Pos: v.pos})
		}
	}
}

// signalAhead reports whether a red or yellow light requires braking.
func (v *Vehicle) signalAhead() bool {
	sig := v.perc.Signal
	if sig == nil {
		return false
	}
	if sig.State == world.SignalGreen {
		return false
	}
	return sig.Distance > stopDistance
}

// tryLaneChange moves into an adjacent lane when its front gap covers the
// full safety gap and its rear gap will not cut off a trailing vehicle.
func (v *Vehicle) tryLaneChange(road *geom.RoadSegment) {
	if road.Lanes <= 1 {
		return
	}
	gap := v.safetyGap()

	candidates := []struct {
		lane  int
		front *Obstacle
		rear  *Obstacle
	}{
		{v.lane - 1, v.perc.Left, v.perc.LeftRear},
		{v.lane + 1, v.perc.Right, v.perc.RightRear},
	}
	for _, c := range candidates {
		if c.lane < 0 || c.lane >= road.Lanes {
			continue
		}
		if c.front != nil && c.front.Distance < gap {
			continue
		}
		if c.rear != nil && c.rear.Distance < minRearGap {
			continue // would cut off a trailing vehicle
		}
		now := v.clock.Now()
		if now-v.lastCoopMsg >= coopMsgCooldown {
			v.lastCoopMsg = now
			v.broadcast(brakeWarnRadius, Message{Kind: MsgLaneCooperate, From: v.id, Pos: v.pos})
		}
		v.lane = c.lane
		v.intent = IntentLaneMove
		return
	}
}

// move advances progress and recomputes the world position; at the end of
// the road it follows the planned path, falls back to the first outgoing
// road, or exits.
func (v *Vehicle) move(road *geom.RoadSegment) bool {
	v.progress += v.speed
	if v.progress >= road.Length() {
		return v.enterNextRoad(road)
	}

	t := v.progressRatio(road)
	base := road.PointAt(t)
	angle := road.AngleAt(t)
	offset := road.LaneOffset(v.lane)
	perp := angle + math.Pi/2
	v.pos = geom.Position{
		X:    base.X + math.Cos(perp)*offset,
		Y:    base.Y + math.Sin(perp)*offset,
		Lane: v.lane,
	}
	v.heading = angle
	return true
}

func (v *Vehicle) enterNextRoad(road *geom.RoadSegment) bool {
	var next *geom.RoadSegment

	// Consume the planned path first, skipping ids the network no longer
	// knows about.
	for len(v.path) > 0 && next == nil {
		id := v.path[0]
		v.path = v.path[1:]
		next = v.net.Road(id)
	}

	if next == nil {
		inter := v.net.EndOf(road.ID)
		if inter != nil {
			for _, id := range inter.Outgoing {
				if r := v.net.Road(id); r != nil {
					next = r
					break
				}
			}
		}
	}

	if next == nil {
		v.exit("reached network edge")
		return false
	}

	v.roadID = next.ID
	v.progress = 0
	if v.lane >= next.Lanes {
		v.lane = next.Lanes - 1
	}
	v.pos = next.PointAt(0)
	v.pos.Lane = v.lane
	v.heading = next.AngleAt(0)
	return true
}

// maybeReroute re-runs the planner from the next intersection toward the
// destination, rate-limited by the reroute cooldown on simulated time.
func (v *Vehicle) maybeReroute() {
	if v.destID == "" {
		return
	}
	now := v.clock.Now()
	if now-v.lastReroute < v.tuning.GetRerouteCooldown() {
		return
	}
	from := v.net.EndOf(v.roadID)
	if from == nil {
		return
	}
	if path := v.planner.FindPath(from.ID, v.destID); len(path) > 0 {
		v.path = path
		v.lastReroute = now
		v.intent = IntentRerouting
	}
}

// broadcast sends msg to every vehicle within radius. Best effort.
func (v *Vehicle) broadcast(radius float64, msg Message) {
	recs := v.w.NearbyVehicles(v.pos, radius, v.id)
	ids := make([]string, 0, len(recs))
	for _, rec := range recs {
		ids = append(ids, rec.ID)
	}
	v.exchange.Broadcast(ids, msg)
}

// publish writes the tick result back to the world as one atomic record
// replacement.
func (v *Vehicle) publish() {
	pos := v.pos
	roadID := v.roadID
	speed := v.speed
	accel := v.accel
	intent := v.intent
	path := v.path
	if path == nil {
		path = []string{}
	}
	v.w.UpsertVehicle(v.id, world.VehicleUpdate{
		Position: &pos,
		RoadID:   &roadID,
		Speed:    &speed,
		Accel:    &accel,
		Intent:   &intent,
		Path:     path,
	})
}

// exit removes every trace of the vehicle from the shared state.
func (v *Vehicle) exit(reason string) {
	v.w.RemoveVehicle(v.id)
	v.exchange.Unregister(v.id)
	monitoring.Logf("vehicle %s exited: %s", v.id, reason)
}
