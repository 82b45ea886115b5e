package storage

import (
	"errors"
	"strings"

	"remindbot/pkg/logx"
)

const defaultBusyTimeoutMS = 5000

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "storage"), logx.String("driver", driver))

	switch driver {
	case "", "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "memory":
		return openMemory(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
