package app

import (
	"fmt"
	"strings"
	"time"

	"cadencebot/internal/automation"
	"cadencebot/internal/config"
	"cadencebot/internal/device"
	"cadencebot/internal/storage"
	logx "cadencebot/pkg/logx"
)

const defaultStatusSpec = "@every 5s"

func mapLogConfig(cfg *config.Config) logx.Config {
	lc := cfg.Logging
	return logx.Config{
		Level:   lc.Level,
		Console: lc.Console,
		File: logx.FileConfig{
			Enabled: lc.File.Enabled,
			Path:    lc.File.Path,
			Format:  lc.File.Format,
		},
		Feed: logx.FeedConfig{
			Enabled:    lc.Feed.Enabled,
			Size:       lc.Feed.Size,
			MinLevel:   lc.Feed.MinLevel,
			RatePerSec: lc.Feed.RatePerSec,
		},
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	path := strings.TrimSpace(sc.Path)

	switch driver {
	case "file":
		if path == "" {
			path = "./data/instances.json"
		}
		return storage.Config{Driver: "file", Path: path}, true, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.DurationOr("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, false, err
		}
		return storage.Config{Driver: "sqlite", Path: path, BusyTimeout: busy}, true, nil
	default:
		return storage.Config{}, false, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapDeviceConfig(cfg *config.Config) (device.Config, error) {
	dc := cfg.Device
	latency, err := config.ParseDurationField("device.latency", dc.Latency)
	if err != nil {
		return device.Config{}, err
	}
	return device.Config{
		Driver:    dc.Driver,
		Width:     dc.Width,
		Height:    dc.Height,
		FailEvery: dc.FailEvery,
		Latency:   latency,
	}, nil
}

func mapSettings(cfg *config.Config) (automation.Settings, error) {
	ac := cfg.Automation
	def := automation.DefaultSettings()

	s := def
	if ac.RetryAttempts > 0 {
		s.RetryAttempts = ac.RetryAttempts
	}
	if k := strings.TrimSpace(ac.CommitKey); k != "" {
		s.CommitKey = k
	}
	var err error
	if s.CommandDelay, err = config.DurationOr("automation.command_delay", ac.CommandDelay, def.CommandDelay); err != nil {
		return automation.Settings{}, err
	}
	if s.RetryBackoff, err = config.DurationOr("automation.retry_backoff", ac.RetryBackoff, def.RetryBackoff); err != nil {
		return automation.Settings{}, err
	}
	return s, s.Validate()
}

func mapTiming(cfg *config.Config) (automation.Timing, error) {
	ac := cfg.Automation
	def := automation.DefaultTiming()
	fields := []struct {
		path string
		raw  string
		def  time.Duration
	}{
		{"automation.max_sleep", ac.MaxSleep, def.MaxSleep},
		{"automation.min_sleep", ac.MinSleep, def.MinSleep},
		{"automation.pause_poll", ac.PausePoll, def.PausePoll},
		{"automation.jitter_min", ac.JitterMin, def.JitterMin},
		{"automation.jitter_max", ac.JitterMax, def.JitterMax},
		{"automation.stop_timeout", ac.StopTimeout, def.StopTimeout},
	}
	var t automation.Timing
	dsts := []*time.Duration{&t.MaxSleep, &t.MinSleep, &t.PausePoll, &t.JitterMin, &t.JitterMax, &t.StopTimeout}
	for i, f := range fields {
		d, err := config.DurationOr(f.path, f.raw, f.def)
		if err != nil {
			return automation.Timing{}, err
		}
		*dsts[i] = d
	}
	if t.JitterMax < t.JitterMin {
		return automation.Timing{}, fmt.Errorf("automation.jitter_max must be >= automation.jitter_min")
	}
	if t.MinSleep > t.MaxSleep {
		return automation.Timing{}, fmt.Errorf("automation.min_sleep must be <= automation.max_sleep")
	}
	return t, nil
}

func mapCadences(cfg *config.Config) [automation.NumCadences]automation.CadenceSpec {
	out := automation.DefaultCadences()
	for i, c := range []config.CadenceConfig{cfg.Cadences.A, cfg.Cadences.B} {
		if n := strings.TrimSpace(c.Name); n != "" {
			out[i].Name = n
		}
		if p := strings.TrimSpace(c.Payload); p != "" {
			out[i].Payload = p
		}
	}
	return out
}

// statusSpec returns the cron spec of the status reporter, or "" when off.
func statusSpec(cfg *config.Config) string {
	s := strings.TrimSpace(cfg.Status.Every)
	switch strings.ToLower(s) {
	case "":
		return defaultStatusSpec
	case "off", "none", "disabled":
		return ""
	default:
		return s
	}
}

// validateConfig is the reload gate: every mapping must succeed.
func validateConfig(cfg *config.Config) error {
	if _, _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	if _, err := mapDeviceConfig(cfg); err != nil {
		return err
	}
	if _, err := mapSettings(cfg); err != nil {
		return err
	}
	if _, err := mapTiming(cfg); err != nil {
		return err
	}
	if spec := statusSpec(cfg); spec != "" {
		if _, err := cronParser.Parse(spec); err != nil {
			return fmt.Errorf("status.every: %w", err)
		}
	}
	return nil
}
