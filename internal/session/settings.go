package session

import "time"

// AutoStopConfig tunes the two auto-stop detectors. Positions are in mm,
// velocities in mm/s.
type AutoStopConfig struct {
	DangerZoneDwell    time.Duration
	DangerZoneFraction float64
	StallVelocityLow   float64
	StallVelocityHigh  float64
	StallDwell         time.Duration
	StallMinPosition   float64
	AMRAPGrace         time.Duration
}

// Settings are the session tunables, filled from config.
type Settings struct {
	CountdownSeconds         int
	DefaultRestSeconds       int
	DefaultWarmupReps        int
	BodyweightDefaultSeconds int
	MinWeightKg              float64
	MaxWeightKg              float64
	WeightStepKg             float64
	WeightPresetsKg          []float64
	MinRepTravelMm           float64
	MetricHistoryLimit       int
	SettleDelay              time.Duration
	CommandTimeout           time.Duration
	AutoStop                 AutoStopConfig
}

// DefaultSettings returns the stock tuning.
func DefaultSettings() Settings {
	return Settings{
		CountdownSeconds:         5,
		DefaultRestSeconds:       60,
		DefaultWarmupReps:        3,
		BodyweightDefaultSeconds: 30,
		MinWeightKg:              0,
		MaxWeightKg:              100,
		WeightStepKg:             0.5,
		WeightPresetsKg:          []float64{5, 10, 15, 20, 25, 30, 40, 50},
		MinRepTravelMm:           50,
		MetricHistoryLimit:       600,
		SettleDelay:              100 * time.Millisecond,
		CommandTimeout:           5 * time.Second,
		AutoStop: AutoStopConfig{
			DangerZoneDwell:    2500 * time.Millisecond,
			DangerZoneFraction: 0.05,
			StallVelocityLow:   2.5,
			StallVelocityHigh:  10,
			StallDwell:         5 * time.Second,
			StallMinPosition:   10,
			AMRAPGrace:         3 * time.Second,
		},
	}
}
