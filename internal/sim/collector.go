package sim

import (
	"context"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/trafficsim/internal/config"
	"github.com/banshee-data/trafficsim/internal/monitoring"
	"github.com/banshee-data/trafficsim/internal/world"
)

// Sample is one metrics snapshot of the whole simulation.
type Sample struct {
	SimTime        time.Duration
	ActiveVehicles int
	MeanSpeed      float64
	P85Speed       float64
	Spawned        int64
	Exited         int64
	Incidents      int64
	RoadCounts     map[string]int
	Congestion     map[string]float64
}

// Recorder persists metrics samples. Implementations must be safe for use
// from the collector goroutine.
type Recorder interface {
	Record(s Sample) error
}

// Collector samples the world on an interval: it folds live per-road
// counts into the congestion averages, computes fleet speed statistics,
// nudges vehicles on congested roads to reconsider their route, and hands
// each sample to an optional recorder.
type Collector struct {
	w        *world.World
	exchange *Exchange
	clock    *Clock
	tuning   *config.TuningConfig
	recorder Recorder
}

// NewCollector builds a collector. recorder may be nil.
func NewCollector(w *world.World, exchange *Exchange, clock *Clock, tuning *config.TuningConfig, recorder Recorder) *Collector {
	return &Collector{w: w, exchange: exchange, clock: clock, tuning: tuning, recorder: recorder}
}

// Run samples until the context is cancelled.
func (c *Collector) Run(ctx context.Context) {
	runEvery(ctx, c.tuning.GetMetricsInterval(), "metrics", c.Tick)
}

// Tick takes one sample. It always returns true.
func (c *Collector) Tick() bool {
	if c.clock.Paused() {
		return true
	}
	s := c.Sample()
	monitoring.Logf("metrics | t=%s active=%d mean=%.2f p85=%.2f spawned=%d exited=%d incidents=%d",
		s.SimTime.Truncate(time.Millisecond), s.ActiveVehicles, s.MeanSpeed, s.P85Speed,
		s.Spawned, s.Exited, s.Incidents)

	if c.recorder != nil {
		if err := c.recorder.Record(s); err != nil {
			monitoring.Logf("metrics: record failed: %v", err)
		}
	}
	c.nudgeCongested(s)
	return true
}

// Sample computes one snapshot and folds the live road counts into the
// historical congestion averages.
func (c *Collector) Sample() Sample {
	vehicles := c.w.Vehicles()
	speeds := make([]float64, 0, len(vehicles))
	for _, v := range vehicles {
		speeds = append(speeds, v.Speed)
	}
	sort.Float64s(speeds)

	mean, p85 := 0.0, 0.0
	if len(speeds) > 0 {
		mean = stat.Mean(speeds, nil)
		p85 = stat.Quantile(0.85, stat.Empirical, speeds, nil)
	}

	counts := make(map[string]int)
	for _, road := range c.w.Network().Roads() {
		n := c.w.VehicleCountOnRoad(road.ID)
		counts[road.ID] = n
		c.w.FoldCongestion(road.ID, float64(n))
	}

	totals := c.w.Totals()
	return Sample{
		SimTime:        c.clock.Now(),
		ActiveVehicles: len(vehicles),
		MeanSpeed:      mean,
		P85Speed:       p85,
		Spawned:        totals.VehiclesSpawned,
		Exited:         totals.VehiclesExited,
		Incidents:      totals.Incidents,
		RoadCounts:     counts,
		Congestion:     c.w.CongestionByRoad(),
	}
}

// nudgeCongested tells vehicles on roads over the congestion threshold to
// consider another route. Reaction is up to each vehicle.
func (c *Collector) nudgeCongested(s Sample) {
	threshold := c.tuning.GetCongestionThreshold()
	for roadID, avg := range s.Congestion {
		if avg <= threshold {
			continue
		}
		for _, rec := range c.w.Vehicles() {
			if rec.RoadID == roadID {
				c.exchange.Send(rec.ID, Message{Kind: MsgCongestion, RoadID: roadID})
			}
		}
	}
}
