package app

import (
	"os"
	"strconv"
	"strings"
	"time"

	"remindbot/internal/config"
	"remindbot/internal/notifier"
	"remindbot/internal/observability/ops"
	"remindbot/internal/reminders"
	"remindbot/internal/replies"
	"remindbot/internal/storage"
	"remindbot/pkg/logx"
)

const defaultScanInterval = 10 * time.Second

// tokenEnv lists the variables consulted when telegram.token is empty.
var tokenEnv = []string{"REMINDBOT_TOKEN", "TELEGRAM_BOT_TOKEN"}

func resolveToken(cfg *config.Config) string {
	if t := strings.TrimSpace(cfg.Telegram.Token); t != "" {
		return t
	}
	for _, k := range tokenEnv {
		if t := strings.TrimSpace(os.Getenv(k)); t != "" {
			return t
		}
	}
	return ""
}

func mapLogConfig(cfg *config.Config) logx.Config {
	l := cfg.Logging
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		File:    logx.FileConfig{Enabled: l.File.Enabled, Path: l.File.Path},
		Telegram: logx.ChatSinkConfig{
			Enabled:    l.Telegram.Enabled,
			ThreadID:   l.Telegram.ThreadID,
			MinLevel:   l.Telegram.MinLevel,
			RatePerSec: l.Telegram.RatePerSec,
		},
	}
}

// logTarget is the chat receiving mirrored log records, or 0.
func logTarget(cfg *config.Config) int64 {
	id, err := strconv.ParseInt(strings.TrimSpace(cfg.Telegram.GroupLog), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func mapSettings(cfg *config.Config) (reminders.Settings, error) {
	r := cfg.Reminders
	confirm, err := config.ParseDurationField("reminders.confirmation_window", r.ConfirmationWindow)
	if err != nil {
		return reminders.Settings{}, err
	}
	repeat, err := config.ParseDurationField("reminders.repeat_window", r.RepeatWindow)
	if err != nil {
		return reminders.Settings{}, err
	}
	prevalence := reminders.DefaultPrevalence
	if r.Prevalence != nil {
		prevalence = *r.Prevalence
	}
	lang, _ := replies.ParseLanguage(r.DefaultLanguage)
	return reminders.Settings{
		MaxSchedules:       r.MaxSchedules,
		ConfirmationWindow: confirm,
		RepeatWindow:       repeat,
		Prevalence:         prevalence,
		DefaultLanguage:    lang,
	}, nil
}

func mapScanInterval(cfg *config.Config) (time.Duration, error) {
	return config.ParseDurationOrDefault("reminders.scan_interval", cfg.Reminders.ScanInterval, defaultScanInterval)
}

func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	timeout, err := config.ParseDurationField("reminders.dispatch_timeout", cfg.Reminders.DispatchTimeout)
	if err != nil {
		return notifier.Config{}, err
	}
	return notifier.Config{
		RatePerSec:  cfg.Reminders.DispatchRatePerSec,
		SendTimeout: timeout,
		RetryMax:    2,
	}, nil
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	busy, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	sc := storage.Config{
		Driver:      strings.TrimSpace(cfg.Storage.Driver),
		Path:        strings.TrimSpace(cfg.Storage.Path),
		BusyTimeout: busy,
	}
	if sc.Path == "" && !strings.EqualFold(sc.Driver, "memory") {
		sc.Path = "./data/remindbot.db"
	}
	return sc, nil
}

func mapOpsConfig(cfg *config.Config) ops.Config {
	return ops.Config{Addr: cfg.Metrics.Addr, Pprof: cfg.Metrics.Pprof}
}
