package config

import (
	"strings"

	"remindbot/pkg/logx"
)

// Change describes what differs between two committed configs.
type Change struct {
	// Sections that changed and are applied live.
	Sections []string
	// RestartRequired lists changed sections that only take effect after a restart.
	RestartRequired []string
	// Attrs are safe to log; secrets are reduced to a "set" flag.
	Attrs []logx.Field
}

func (c Change) Empty() bool { return len(c.Sections) == 0 && len(c.RestartRequired) == 0 }

func SummarizeChange(oldCfg, newCfg *Config) Change {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var c Change

	if oldCfg.Logging != newCfg.Logging || trim(oldCfg.Telegram.GroupLog) != trim(newCfg.Telegram.GroupLog) {
		c.Sections = append(c.Sections, "logging")
		c.Attrs = append(c.Attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.file", newCfg.Logging.File.Enabled),
			logx.Bool("logging.telegram", newCfg.Logging.Telegram.Enabled),
			logx.Bool("telegram.group_log_set", trim(newCfg.Telegram.GroupLog) != ""),
		)
	}

	if !sameReminders(oldCfg.Reminders, newCfg.Reminders) {
		r := newCfg.Reminders
		c.Sections = append(c.Sections, "reminders")
		c.Attrs = append(c.Attrs,
			logx.Int("reminders.max_schedules", r.MaxSchedules),
			logx.String("reminders.confirmation_window", r.ConfirmationWindow),
			logx.String("reminders.repeat_window", r.RepeatWindow),
			logx.String("reminders.scan_interval", r.ScanInterval),
			logx.Int("reminders.dispatch_rate_per_sec", r.DispatchRatePerSec),
		)
	}

	if trim(oldCfg.Telegram.Token) != trim(newCfg.Telegram.Token) ||
		trim(oldCfg.Telegram.PollTimeout) != trim(newCfg.Telegram.PollTimeout) {
		c.RestartRequired = append(c.RestartRequired, "telegram")
		c.Attrs = append(c.Attrs, logx.Bool("telegram.token_set", trim(newCfg.Telegram.Token) != ""))
	}
	if oldCfg.Storage != newCfg.Storage {
		c.RestartRequired = append(c.RestartRequired, "storage")
		c.Attrs = append(c.Attrs, logx.String("storage.driver", newCfg.Storage.Driver))
	}
	if oldCfg.Metrics != newCfg.Metrics {
		c.RestartRequired = append(c.RestartRequired, "metrics")
		c.Attrs = append(c.Attrs, logx.Bool("metrics.enabled", newCfg.Metrics.Enabled))
	}
	return c
}

func sameReminders(a, b RemindersConfig) bool {
	pa, pb := a.Prevalence, b.Prevalence
	a.Prevalence, b.Prevalence = nil, nil
	if a != b {
		return false
	}
	switch {
	case pa == nil && pb == nil:
		return true
	case pa == nil || pb == nil:
		return false
	default:
		return *pa == *pb
	}
}

func trim(s string) string { return strings.TrimSpace(s) }
