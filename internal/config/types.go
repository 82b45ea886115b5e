package config

// Config is the on-disk configuration. Durations are Go duration strings.
type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Reminders RemindersConfig `json:"reminders"`
	Storage   StorageConfig   `json:"storage"`
	Metrics   MetricsConfig   `json:"metrics"`
}

type TelegramConfig struct {
	// Token falls back to REMINDBOT_TOKEN / TELEGRAM_BOT_TOKEN when empty.
	Token       string `json:"token"`
	PollTimeout string `json:"poll_timeout"`
	// GroupLog is the chat id (as a string) receiving mirrored log records.
	GroupLog string `json:"group_log"`
}

type LoggingConfig struct {
	Level    string            `json:"level"`
	Console  bool              `json:"console"`
	File     LoggingFileConfig `json:"file"`
	Telegram LoggingTGConfig   `json:"telegram"`
}

type LoggingFileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTGConfig struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// RemindersConfig holds the engine knobs. All but fired_log_size are hot-reloadable.
//
// Defaults (zero values):
//   - max_schedules: 50
//   - confirmation_window: "1m"
//   - repeat_window: confirmation_window
//   - scan_interval: "10s" (minimum 1s)
//   - prevalence: 50
//   - default_language: "en"
//   - dispatch_rate_per_sec: 20
//   - dispatch_timeout: "10s"
//   - fired_log_size: 4096
type RemindersConfig struct {
	MaxSchedules       int    `json:"max_schedules"`
	ConfirmationWindow string `json:"confirmation_window"`
	RepeatWindow       string `json:"repeat_window"`
	ScanInterval       string `json:"scan_interval"`
	Prevalence         *int   `json:"prevalence,omitempty"`
	DefaultLanguage    string `json:"default_language"`
	DispatchRatePerSec int    `json:"dispatch_rate_per_sec"`
	DispatchTimeout    string `json:"dispatch_timeout"`
	FiredLogSize       int    `json:"fired_log_size"`
}

// StorageConfig selects the persistence backend.
//
//   - driver: "sqlite" (default) or "memory"
//   - path: sqlite database file, or optional JSON snapshot for "memory"
//   - busy_timeout: sqlite busy timeout (Go duration string)
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout"`
}

// MetricsConfig controls the ops listener serving /metrics (and /debug/pprof when enabled).
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`
	Pprof   bool   `json:"pprof"`
}
