package config

import (
	"reflect"

	logx "cadencebot/pkg/logx"
)

// Sections applied live on reload. Everything else needs a restart.
var liveSections = map[string]bool{
	"logging":            true,
	"automation.actions": true,
}

// SummarizeChange lists the sections that differ between two configs and
// structured attrs describing the new values.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 12)

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.feed_enabled", newCfg.Logging.Feed.Enabled),
		)
	}

	oa, na := oldCfg.Automation, newCfg.Automation
	if oa.RetryAttempts != na.RetryAttempts || oa.CommandDelay != na.CommandDelay ||
		oa.RetryBackoff != na.RetryBackoff || oa.CommitKey != na.CommitKey {
		changed = append(changed, "automation.actions")
		attrs = append(attrs,
			logx.Int("automation.retry_attempts", na.RetryAttempts),
			logx.String("automation.command_delay", na.CommandDelay),
			logx.String("automation.retry_backoff", na.RetryBackoff),
		)
	}
	if oa.MaxSleep != na.MaxSleep || oa.MinSleep != na.MinSleep || oa.PausePoll != na.PausePoll ||
		oa.JitterMin != na.JitterMin || oa.JitterMax != na.JitterMax || oa.StopTimeout != na.StopTimeout {
		changed = append(changed, "automation.timing")
	}

	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage")
	}
	if oldCfg.Device != newCfg.Device {
		changed = append(changed, "device")
		attrs = append(attrs, logx.String("device.driver", newCfg.Device.Driver))
	}
	if oldCfg.Cadences != newCfg.Cadences {
		changed = append(changed, "cadences")
	}
	if oldCfg.Status != newCfg.Status {
		changed = append(changed, "status")
	}
	return changed, attrs
}

// RestartRequired filters changed down to sections that are not applied live.
func RestartRequired(changed []string) []string {
	var out []string
	for _, s := range changed {
		if !liveSections[s] {
			out = append(out, s)
		}
	}
	return out
}
