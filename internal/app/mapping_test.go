package app

import (
	"testing"
	"time"

	"remindbot/internal/config"
	"remindbot/internal/replies"
)

func TestMapSettings(t *testing.T) {
	t.Parallel()

	zero := 0
	cases := []struct {
		name string
		in   config.RemindersConfig
	}{
		{
			name: "defaults are left to the engine",
			in:   config.RemindersConfig{},
		},
		{
			name: "explicit values",
			in: config.RemindersConfig{
				MaxSchedules:       5,
				ConfirmationWindow: "2m",
				RepeatWindow:       "30s",
				Prevalence:         &zero,
				DefaultLanguage:    "ru",
			},
		},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			set, err := mapSettings(&config.Config{Reminders: tc.in})
			if err != nil {
				t.Fatalf("mapSettings: %v", err)
			}
			if tc.in.Prevalence == nil {
				if set.Prevalence != 50 || set.ConfirmationWindow != 0 || set.DefaultLanguage != "" {
					t.Fatalf("settings=%+v", set)
				}
				return
			}
			if set.MaxSchedules != 5 || set.ConfirmationWindow != 2*time.Minute || set.RepeatWindow != 30*time.Second ||
				set.Prevalence != 0 || set.DefaultLanguage != replies.RU {
				t.Fatalf("settings=%+v", set)
			}
		})
	}

	if _, err := mapSettings(&config.Config{Reminders: config.RemindersConfig{ConfirmationWindow: "soon"}}); err == nil {
		t.Fatalf("bad duration accepted")
	}
}

func TestMapScanInterval(t *testing.T) {
	t.Parallel()

	d, err := mapScanInterval(&config.Config{})
	if err != nil || d != defaultScanInterval {
		t.Fatalf("default: %v %v", d, err)
	}
	d, err = mapScanInterval(&config.Config{Reminders: config.RemindersConfig{ScanInterval: "3s"}})
	if err != nil || d != 3*time.Second {
		t.Fatalf("explicit: %v %v", d, err)
	}
}

func TestMapStorageConfig(t *testing.T) {
	t.Parallel()

	sc, err := mapStorageConfig(&config.Config{Storage: config.StorageConfig{BusyTimeout: "2s"}})
	if err != nil {
		t.Fatalf("mapStorageConfig: %v", err)
	}
	if sc.Path != "./data/remindbot.db" || sc.BusyTimeout != 2*time.Second {
		t.Fatalf("sqlite=%+v", sc)
	}
	sc, err = mapStorageConfig(&config.Config{Storage: config.StorageConfig{Driver: "memory"}})
	if err != nil || sc.Path != "" {
		t.Fatalf("memory=%+v err=%v", sc, err)
	}
}

func TestMapNotifierConfig(t *testing.T) {
	t.Parallel()

	nc, err := mapNotifierConfig(&config.Config{Reminders: config.RemindersConfig{DispatchRatePerSec: 5, DispatchTimeout: "3s"}})
	if err != nil {
		t.Fatalf("mapNotifierConfig: %v", err)
	}
	if nc.RatePerSec != 5 || nc.SendTimeout != 3*time.Second {
		t.Fatalf("notifier=%+v", nc)
	}
}

func TestResolveToken(t *testing.T) {
	t.Setenv("REMINDBOT_TOKEN", "")
	t.Setenv("TELEGRAM_BOT_TOKEN", "from-env")

	if got := resolveToken(&config.Config{Telegram: config.TelegramConfig{Token: " file "}}); got != "file" {
		t.Fatalf("config token ignored: %q", got)
	}
	if got := resolveToken(&config.Config{}); got != "from-env" {
		t.Fatalf("env fallback: %q", got)
	}
	t.Setenv("REMINDBOT_TOKEN", "primary")
	if got := resolveToken(&config.Config{}); got != "primary" {
		t.Fatalf("env order: %q", got)
	}
}

func TestLogTarget(t *testing.T) {
	t.Parallel()

	if got := logTarget(&config.Config{Telegram: config.TelegramConfig{GroupLog: " -1001 "}}); got != -1001 {
		t.Fatalf("logTarget=%d", got)
	}
	if got := logTarget(&config.Config{}); got != 0 {
		t.Fatalf("empty logTarget=%d", got)
	}
}
