package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"remindbot/pkg/logx"
)

// Job is the unit of work; ctx carries the job timeout.
type Job func(ctx context.Context) error

type scheduleDef struct {
	name    string
	every   time.Duration
	timeout time.Duration
	job     Job
	entryID cron.EntryID
}

type onceDef struct {
	at      time.Time
	timeout time.Duration
	job     Job
	ver     uint64
	timer   *time.Timer
}

type Service struct {
	log logx.Logger

	mu   sync.Mutex
	c    *cron.Cron
	defs []scheduleDef
	// base is the parent context of every job run; cancelled by Stop.
	base   context.Context
	cancel context.CancelFunc

	// one-shot timers; ver guards against stale callbacks
	tmu  sync.Mutex
	once map[string]*onceDef
	ver  uint64

	running sync.WaitGroup

	repMu    sync.Mutex
	lastWarn map[string]time.Time
}

type ScheduleInfo struct {
	Name    string
	Every   time.Duration
	Timeout time.Duration
	Next    time.Time
	Prev    time.Time
}

type Snapshot struct {
	Started   bool
	Schedules []ScheduleInfo
	// Pending lists armed one-shot timers by name.
	Pending map[string]time.Time
}
