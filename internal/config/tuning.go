// Package config loads the engine tuning file. The schema uses pointer
// fields throughout so a partial JSON file only overrides what it names;
// the Get* accessors carry the defaults.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// TuningConfig is the root of the tuning file. All fields are optional.
type TuningConfig struct {
	// Entity scheduling
	VehicleTick *string `json:"vehicle_tick,omitempty"` // duration string like "50ms"
	SignalTick  *string `json:"signal_tick,omitempty"`

	// Spawner
	MaxVehicles      *int    `json:"max_vehicles,omitempty"`
	SpawnCycle       *string `json:"spawn_cycle,omitempty"`        // full rush/quiet cycle length
	SpawnRushMin     *string `json:"spawn_rush_min,omitempty"`     // shortest interval at peak
	SpawnQuietMax    *string `json:"spawn_quiet_max,omitempty"`    // longest interval off-peak
	BusFraction      *float64 `json:"bus_fraction,omitempty"`
	EmergencyFraction *float64 `json:"emergency_fraction,omitempty"`

	// Signal adaptation
	MinGreen     *string  `json:"min_green,omitempty"`
	MaxGreen     *string  `json:"max_green,omitempty"`
	LearningRate *float64 `json:"learning_rate,omitempty"`
	Epsilon      *float64 `json:"epsilon,omitempty"`

	// Vehicle behaviour
	RerouteCooldown     *string  `json:"reroute_cooldown,omitempty"`
	CongestionThreshold *float64 `json:"congestion_threshold,omitempty"` // EMA level that invites a reroute

	// Metrics
	MetricsInterval *string `json:"metrics_interval,omitempty"`
}

// LoadTuningConfig loads a TuningConfig from a JSON file. Fields omitted
// from the file keep their defaults, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &TuningConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration values are usable.
func (c *TuningConfig) Validate() error {
	durations := map[string]*string{
		"vehicle_tick":     c.VehicleTick,
		"signal_tick":      c.SignalTick,
		"spawn_cycle":      c.SpawnCycle,
		"spawn_rush_min":   c.SpawnRushMin,
		"spawn_quiet_max":  c.SpawnQuietMax,
		"min_green":        c.MinGreen,
		"max_green":        c.MaxGreen,
		"reroute_cooldown": c.RerouteCooldown,
		"metrics_interval": c.MetricsInterval,
	}
	for name, v := range durations {
		if v == nil || *v == "" {
			continue
		}
		if _, err := time.ParseDuration(*v); err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, *v, err)
		}
	}

	if c.Epsilon != nil && (*c.Epsilon < 0 || *c.Epsilon > 1) {
		return fmt.Errorf("epsilon must be between 0 and 1, got %f", *c.Epsilon)
	}
	if c.LearningRate != nil && (*c.LearningRate <= 0 || *c.LearningRate > 1) {
		return fmt.Errorf("learning_rate must be in (0, 1], got %f", *c.LearningRate)
	}
	if c.MaxVehicles != nil && *c.MaxVehicles < 0 {
		return fmt.Errorf("max_vehicles must be non-negative, got %d", *c.MaxVehicles)
	}
	if c.BusFraction != nil && (*c.BusFraction < 0 || *c.BusFraction > 1) {
		return fmt.Errorf("bus_fraction must be between 0 and 1, got %f", *c.BusFraction)
	}
	if c.EmergencyFraction != nil && (*c.EmergencyFraction < 0 || *c.EmergencyFraction > 1) {
		return fmt.Errorf("emergency_fraction must be between 0 and 1, got %f", *c.EmergencyFraction)
	}
	return nil
}

func (c *TuningConfig) duration(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def
	}
	return d
}

// GetVehicleTick returns the vehicle controller period.
func (c *TuningConfig) GetVehicleTick() time.Duration {
	return c.duration(c.VehicleTick, 50*time.Millisecond)
}

// GetSignalTick returns the signal controller period.
func (c *TuningConfig) GetSignalTick() time.Duration {
	return c.duration(c.SignalTick, 100*time.Millisecond)
}

// GetMaxVehicles returns the global active-vehicle cap.
func (c *TuningConfig) GetMaxVehicles() int {
	if c.MaxVehicles == nil {
		return 50
	}
	return *c.MaxVehicles
}

// GetSpawnCycle returns the length of one full rush/quiet demand cycle.
func (c *TuningConfig) GetSpawnCycle() time.Duration {
	return c.duration(c.SpawnCycle, 4*time.Minute)
}

// GetSpawnRushMin returns the shortest spawn interval, hit at peak demand.
func (c *TuningConfig) GetSpawnRushMin() time.Duration {
	return c.duration(c.SpawnRushMin, 500*time.Millisecond)
}

// GetSpawnQuietMax returns the longest spawn interval, hit off-peak.
func (c *TuningConfig) GetSpawnQuietMax() time.Duration {
	return c.duration(c.SpawnQuietMax, 4*time.Second)
}

// GetBusFraction returns the share of spawns that are buses.
func (c *TuningConfig) GetBusFraction() float64 {
	if c.BusFraction == nil {
		return 0.12
	}
	return *c.BusFraction
}

// GetEmergencyFraction returns the share of spawns that are emergency vehicles.
func (c *TuningConfig) GetEmergencyFraction() float64 {
	if c.EmergencyFraction == nil {
		return 0.04
	}
	return *c.EmergencyFraction
}

// GetMinGreen returns the lower bound of the adaptive green duration.
func (c *TuningConfig) GetMinGreen() time.Duration {
	return c.duration(c.MinGreen, 4*time.Second)
}

// GetMaxGreen returns the upper bound of the adaptive green duration.
func (c *TuningConfig) GetMaxGreen() time.Duration {
	return c.duration(c.MaxGreen, 20*time.Second)
}

// GetLearningRate returns the value-table update rate.
func (c *TuningConfig) GetLearningRate() float64 {
	if c.LearningRate == nil {
		return 0.1
	}
	return *c.LearningRate
}

// GetEpsilon returns the exploration probability of the signal policy.
func (c *TuningConfig) GetEpsilon() float64 {
	if c.Epsilon == nil {
		return 0.1
	}
	return *c.Epsilon
}

// GetRerouteCooldown returns the minimum simulated time between reroutes
// of a single vehicle.
func (c *TuningConfig) GetRerouteCooldown() time.Duration {
	return c.duration(c.RerouteCooldown, 5*time.Second)
}

// GetCongestionThreshold returns the congestion EMA above which vehicles
// consider rerouting off their current road.
func (c *TuningConfig) GetCongestionThreshold() float64 {
	if c.CongestionThreshold == nil {
		return 4.0
	}
	return *c.CongestionThreshold
}

// GetMetricsInterval returns the metrics sampling period.
func (c *TuningConfig) GetMetricsInterval() time.Duration {
	return c.duration(c.MetricsInterval, 5*time.Second)
}
