// Package config loads the application configuration from defaults, an
// optional YAML file, CABLE_TRAINER_* environment variables and command line
// flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/lowaak/smart-trainer/cable-trainer-app/internal/session"
)

const envPrefix = "CABLE_TRAINER"

type Config struct {
	DataDir  string         `mapstructure:"data_dir"`
	Log      LogConfig      `mapstructure:"log"`
	Device   DeviceConfig   `mapstructure:"device"`
	Workout  WorkoutConfig  `mapstructure:"workout"`
	AutoStop AutoStopConfig `mapstructure:"auto_stop"`
	Sim      SimConfig      `mapstructure:"sim"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

type LogConfig struct {
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
	Stderr     bool   `mapstructure:"stderr"`
}

type DeviceConfig struct {
	// Driver is "sim" or "ble".
	Driver string `mapstructure:"driver"`
	// Address is the trainer's BLE address or local name. Empty uses the
	// last connected trainer, then the first one found.
	Address        string        `mapstructure:"address"`
	ScanTimeout    time.Duration `mapstructure:"scan_timeout"`
	SettleDelay    time.Duration `mapstructure:"settle_delay"`
	CommandTimeout time.Duration `mapstructure:"command_timeout"`
}

type WorkoutConfig struct {
	CountdownSeconds         int       `mapstructure:"countdown_seconds"`
	DefaultRestSeconds       int       `mapstructure:"default_rest_seconds"`
	WarmupReps               int       `mapstructure:"warmup_reps"`
	BodyweightDefaultSeconds int       `mapstructure:"bodyweight_default_seconds"`
	WeightStepKg             float64   `mapstructure:"weight_step_kg"`
	MinWeightKg              float64   `mapstructure:"min_weight_kg"`
	MaxWeightKg              float64   `mapstructure:"max_weight_kg"`
	WeightPresetsKg          []float64 `mapstructure:"weight_presets_kg"`
	MinRepTravelMm           float64   `mapstructure:"min_rep_travel_mm"`
	MetricHistoryLimit       int       `mapstructure:"metric_history_limit"`
}

type AutoStopConfig struct {
	DangerZoneDwell    time.Duration `mapstructure:"danger_zone_dwell"`
	DangerZoneFraction float64       `mapstructure:"danger_zone_fraction"`
	StallVelocityLow   float64       `mapstructure:"stall_velocity_low"`
	StallVelocityHigh  float64       `mapstructure:"stall_velocity_high"`
	StallDwell         time.Duration `mapstructure:"stall_dwell"`
	StallMinPosition   float64       `mapstructure:"stall_min_position"`
	AMRAPGrace         time.Duration `mapstructure:"amrap_grace"`
}

type SimConfig struct {
	SamplePeriod time.Duration `mapstructure:"sample_period"`
	RepPeriod    time.Duration `mapstructure:"rep_period"`
	TravelMm     float64       `mapstructure:"travel_mm"`
	HTTPAddr     string        `mapstructure:"http_addr"`
}

type MetricsConfig struct {
	// Listen serves /metrics when the simulator control server is not
	// running. Empty disables it.
	Listen string `mapstructure:"listen"`
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".cable-trainer")
}

func setDefaults(v *viper.Viper) {
	s := session.DefaultSettings()
	v.SetDefault("data_dir", defaultDataDir())

	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
	v.SetDefault("log.compress", true)
	v.SetDefault("log.stderr", false)

	v.SetDefault("device.driver", "sim")
	v.SetDefault("device.address", "")
	v.SetDefault("device.scan_timeout", 20*time.Second)
	v.SetDefault("device.settle_delay", s.SettleDelay)
	v.SetDefault("device.command_timeout", s.CommandTimeout)

	v.SetDefault("workout.countdown_seconds", s.CountdownSeconds)
	v.SetDefault("workout.default_rest_seconds", s.DefaultRestSeconds)
	v.SetDefault("workout.warmup_reps", s.DefaultWarmupReps)
	v.SetDefault("workout.bodyweight_default_seconds", s.BodyweightDefaultSeconds)
	v.SetDefault("workout.weight_step_kg", s.WeightStepKg)
	v.SetDefault("workout.min_weight_kg", s.MinWeightKg)
	v.SetDefault("workout.max_weight_kg", s.MaxWeightKg)
	v.SetDefault("workout.weight_presets_kg", s.WeightPresetsKg)
	v.SetDefault("workout.min_rep_travel_mm", s.MinRepTravelMm)
	v.SetDefault("workout.metric_history_limit", s.MetricHistoryLimit)

	v.SetDefault("auto_stop.danger_zone_dwell", s.AutoStop.DangerZoneDwell)
	v.SetDefault("auto_stop.danger_zone_fraction", s.AutoStop.DangerZoneFraction)
	v.SetDefault("auto_stop.stall_velocity_low", s.AutoStop.StallVelocityLow)
	v.SetDefault("auto_stop.stall_velocity_high", s.AutoStop.StallVelocityHigh)
	v.SetDefault("auto_stop.stall_dwell", s.AutoStop.StallDwell)
	v.SetDefault("auto_stop.stall_min_position", s.AutoStop.StallMinPosition)
	v.SetDefault("auto_stop.amrap_grace", s.AutoStop.AMRAPGrace)

	v.SetDefault("sim.sample_period", 50*time.Millisecond)
	v.SetDefault("sim.rep_period", 3*time.Second)
	v.SetDefault("sim.travel_mm", 500.0)
	v.SetDefault("sim.http_addr", "127.0.0.1:8089")

	v.SetDefault("metrics.listen", "")
}

// BindFlags registers the command line overrides on fs. Load picks them up
// when given the same flag set.
func BindFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "path to a YAML config file")
	fs.String("data-dir", "", "directory for the database and logs")
	fs.String("device", "", "device driver: sim or ble")
	fs.String("address", "", "trainer BLE address or name")
	fs.String("log-file", "", "log file path (default <data-dir>/cable-trainer.log)")
	fs.Bool("log-stderr", false, "also write logs to stderr")
	fs.String("sim-addr", "", "simulator control server address")
	fs.String("metrics-listen", "", "address to serve /metrics on")
}

var flagKeys = map[string]string{
	"data-dir":       "data_dir",
	"device":         "device.driver",
	"address":        "device.address",
	"log-file":       "log.file",
	"log-stderr":     "log.stderr",
	"sim-addr":       "sim.http_addr",
	"metrics-listen": "metrics.listen",
}

// Load builds the configuration. fs may be nil; otherwise its --config flag
// names the YAML file and flags that were set override everything else.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if fs != nil {
		if path, _ := fs.GetString("config"); path != "" {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("reading config file: %w", err)
			}
		}
		for flag, key := range flagKeys {
			if f := fs.Lookup(flag); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("binding flag %s: %w", flag, err)
				}
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.Log.File == "" {
		cfg.Log.File = filepath.Join(cfg.DataDir, "cable-trainer.log")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// DatabasePath is the SQLite file inside the data dir.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "cable-trainer.db")
}

func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}
	check(c.DataDir != "", "data_dir is required")
	check(c.Device.Driver == "sim" || c.Device.Driver == "ble", "device.driver must be sim or ble, got %q", c.Device.Driver)
	check(c.Device.CommandTimeout > 0, "device.command_timeout must be positive")
	check(c.Device.SettleDelay >= 0, "device.settle_delay must not be negative")

	w := c.Workout
	check(w.CountdownSeconds >= 0, "workout.countdown_seconds must not be negative")
	check(w.DefaultRestSeconds >= 0, "workout.default_rest_seconds must not be negative")
	check(w.WarmupReps >= 0, "workout.warmup_reps must not be negative")
	check(w.BodyweightDefaultSeconds > 0, "workout.bodyweight_default_seconds must be positive")
	check(w.WeightStepKg > 0, "workout.weight_step_kg must be positive")
	check(w.MinWeightKg >= 0, "workout.min_weight_kg must not be negative")
	check(w.MaxWeightKg > w.MinWeightKg, "workout.max_weight_kg must exceed min_weight_kg")
	check(w.MinRepTravelMm > 0, "workout.min_rep_travel_mm must be positive")
	check(w.MetricHistoryLimit > 0, "workout.metric_history_limit must be positive")

	a := c.AutoStop
	check(a.DangerZoneFraction > 0 && a.DangerZoneFraction < 1, "auto_stop.danger_zone_fraction must be in (0, 1)")
	check(a.DangerZoneDwell > 0, "auto_stop.danger_zone_dwell must be positive")
	check(a.StallDwell > 0, "auto_stop.stall_dwell must be positive")
	check(a.StallVelocityLow > 0 && a.StallVelocityHigh > a.StallVelocityLow,
		"auto_stop.stall_velocity_high must exceed stall_velocity_low > 0")
	check(a.AMRAPGrace >= 0, "auto_stop.amrap_grace must not be negative")

	check(c.Sim.SamplePeriod > 0, "sim.sample_period must be positive")
	check(c.Sim.RepPeriod > c.Sim.SamplePeriod, "sim.rep_period must exceed sim.sample_period")
	check(c.Sim.TravelMm > 0, "sim.travel_mm must be positive")
	return errors.Join(errs...)
}

// SessionSettings maps the workout and auto-stop sections onto the session
// tunables.
func (c *Config) SessionSettings() session.Settings {
	s := session.DefaultSettings()
	s.CountdownSeconds = c.Workout.CountdownSeconds
	s.DefaultRestSeconds = c.Workout.DefaultRestSeconds
	s.DefaultWarmupReps = c.Workout.WarmupReps
	s.BodyweightDefaultSeconds = c.Workout.BodyweightDefaultSeconds
	s.MinWeightKg = c.Workout.MinWeightKg
	s.MaxWeightKg = c.Workout.MaxWeightKg
	s.WeightStepKg = c.Workout.WeightStepKg
	if len(c.Workout.WeightPresetsKg) > 0 {
		s.WeightPresetsKg = c.Workout.WeightPresetsKg
	}
	s.MinRepTravelMm = c.Workout.MinRepTravelMm
	s.MetricHistoryLimit = c.Workout.MetricHistoryLimit
	s.SettleDelay = c.Device.SettleDelay
	s.CommandTimeout = c.Device.CommandTimeout
	s.AutoStop = session.AutoStopConfig{
		DangerZoneDwell:    c.AutoStop.DangerZoneDwell,
		DangerZoneFraction: c.AutoStop.DangerZoneFraction,
		StallVelocityLow:   c.AutoStop.StallVelocityLow,
		StallVelocityHigh:  c.AutoStop.StallVelocityHigh,
		StallDwell:         c.AutoStop.StallDwell,
		StallMinPosition:   c.AutoStop.StallMinPosition,
		AMRAPGrace:         c.AutoStop.AMRAPGrace,
	}
	return s
}
