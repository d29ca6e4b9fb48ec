package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Config is the on-disk configuration. JSON and YAML are both accepted;
// unknown keys are rejected.
//
// All durations are Go duration strings (e.g. "200ms", "1s", "5m").
type Config struct {
	Logging    LoggingConfig    `json:"logging"`
	Storage    *StorageConfig   `json:"storage,omitempty"`
	Device     DeviceConfig     `json:"device"`
	Automation AutomationConfig `json:"automation"`
	Cadences   CadencesConfig   `json:"cadences"`
	Status     StatusConfig     `json:"status"`
}

type LoggingConfig struct {
	Level   string      `json:"level" validate:"omitempty,oneof=trace debug info warn warning error"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
	Feed    LoggingFeed `json:"feed"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path" validate:"required_if=Enabled true"`
	// Format is "text" (default) or "json".
	Format string `json:"format,omitempty" validate:"omitempty,oneof=text json"`
}

// LoggingFeed is the in-memory tail used by `run` status output.
type LoggingFeed struct {
	Enabled    bool   `json:"enabled"`
	Size       int    `json:"size,omitempty" validate:"gte=0"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty" validate:"gte=0"`
}

// StorageConfig controls instance persistence and action history.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./data/instances.json" }
type StorageConfig struct {
	Driver      string `json:"driver" validate:"omitempty,oneof=none file sqlite sqlite3"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// DeviceConfig selects the input driver. Width/Height pin the display bounds
// used for region validation; zero asks the device.
type DeviceConfig struct {
	Driver    string `json:"driver" validate:"omitempty,oneof=dryrun dry-run robotgo"`
	Width     int    `json:"width,omitempty" validate:"gte=0"`
	Height    int    `json:"height,omitempty" validate:"gte=0"`
	FailEvery int    `json:"fail_every,omitempty" validate:"gte=0"`
	Latency   string `json:"latency,omitempty"`
	// Verify enables the screen-change check after each action (logged only).
	Verify bool `json:"verify,omitempty"`
}

// AutomationConfig holds action tunables and scheduler bounds.
//
// Defaults (when fields are omitted/zero):
//   - retry_attempts: 3
//   - command_delay: "200ms"
//   - retry_backoff: "1s"
//   - commit_key: "enter"
//   - max_sleep: "5s", min_sleep: "1s", pause_poll: "1s"
//   - jitter_min: "1s", jitter_max: "3s"
//   - stop_timeout: "2s"
type AutomationConfig struct {
	RetryAttempts int    `json:"retry_attempts,omitempty" validate:"gte=0,lte=100"`
	CommandDelay  string `json:"command_delay,omitempty"`
	RetryBackoff  string `json:"retry_backoff,omitempty"`
	CommitKey     string `json:"commit_key,omitempty"`

	MaxSleep    string `json:"max_sleep,omitempty"`
	MinSleep    string `json:"min_sleep,omitempty"`
	PausePoll   string `json:"pause_poll,omitempty"`
	JitterMin   string `json:"jitter_min,omitempty"`
	JitterMax   string `json:"jitter_max,omitempty"`
	StopTimeout string `json:"stop_timeout,omitempty"`
}

type CadencesConfig struct {
	A CadenceConfig `json:"a"`
	B CadenceConfig `json:"b"`
}

// CadenceConfig names a cadence and the text it sends. Empty fields keep the
// built-in defaults.
type CadenceConfig struct {
	Name    string `json:"name,omitempty" validate:"omitempty,max=32"`
	Payload string `json:"payload,omitempty" validate:"omitempty,max=256"`
}

// StatusConfig controls the periodic status report of `run`.
type StatusConfig struct {
	// Every is a cron descriptor ("@every 5s") or a 5-field spec. Empty means
	// "@every 5s"; "off" disables the report.
	Every string `json:"every,omitempty"`
}

// Validate checks struct tags and every duration field.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	durations := map[string]string{
		"device.latency":           c.Device.Latency,
		"automation.command_delay": c.Automation.CommandDelay,
		"automation.retry_backoff": c.Automation.RetryBackoff,
		"automation.max_sleep":     c.Automation.MaxSleep,
		"automation.min_sleep":     c.Automation.MinSleep,
		"automation.pause_poll":    c.Automation.PausePoll,
		"automation.jitter_min":    c.Automation.JitterMin,
		"automation.jitter_max":    c.Automation.JitterMax,
		"automation.stop_timeout":  c.Automation.StopTimeout,
	}
	if c.Storage != nil {
		durations["storage.busy_timeout"] = c.Storage.BusyTimeout
	}
	for path, raw := range durations {
		if _, err := ParseDurationField(path, raw); err != nil {
			return err
		}
	}
	return nil
}
