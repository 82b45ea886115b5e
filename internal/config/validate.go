package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Validate checks values that the strict decoder cannot. It does not fill defaults.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error

	if _, err := ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout); err != nil {
		errs = append(errs, err)
	}
	if g := strings.TrimSpace(cfg.Telegram.GroupLog); g != "" {
		if _, err := strconv.ParseInt(g, 10, 64); err != nil {
			errs = append(errs, fmt.Errorf("telegram.group_log: %q is not a chat id", g))
		}
	}

	r := cfg.Reminders
	if r.MaxSchedules < 0 {
		errs = append(errs, errors.New("reminders.max_schedules must be >= 0"))
	}
	if r.Prevalence != nil && (*r.Prevalence < 0 || *r.Prevalence > 100) {
		errs = append(errs, fmt.Errorf("reminders.prevalence must be within [0,100], got %d", *r.Prevalence))
	}
	switch strings.ToLower(strings.TrimSpace(r.DefaultLanguage)) {
	case "", "en", "ru":
	default:
		errs = append(errs, fmt.Errorf("reminders.default_language: unsupported %q", r.DefaultLanguage))
	}
	for path, raw := range map[string]string{
		"reminders.confirmation_window": r.ConfirmationWindow,
		"reminders.repeat_window":       r.RepeatWindow,
		"reminders.dispatch_timeout":    r.DispatchTimeout,
	} {
		if _, err := ParseDurationField(path, raw); err != nil {
			errs = append(errs, err)
		}
	}
	if d, err := ParseDurationField("reminders.scan_interval", r.ScanInterval); err != nil {
		errs = append(errs, err)
	} else if d != 0 && d < time.Second {
		errs = append(errs, errors.New("reminders.scan_interval must be >= 1s"))
	}
	if r.DispatchRatePerSec < 0 || r.FiredLogSize < 0 {
		errs = append(errs, errors.New("reminders: dispatch_rate_per_sec and fired_log_size must be >= 0"))
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "", "sqlite", "memory":
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unsupported %q", cfg.Storage.Driver))
	}
	if _, err := ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout); err != nil {
		errs = append(errs, err)
	}
	if cfg.Metrics.Enabled && strings.TrimSpace(cfg.Metrics.Addr) == "" {
		errs = append(errs, errors.New("metrics.addr is required when metrics are enabled"))
	}
	return errors.Join(errs...)
}
