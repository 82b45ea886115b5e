package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"remindbot/pkg/logx"
)

func New(log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	base, cancel := context.WithCancel(context.Background())
	return &Service{
		log:      log.With(logx.String("comp", "scheduler")),
		base:     base,
		cancel:   cancel,
		once:     map[string]*onceDef{},
		lastWarn: map[string]time.Time{},
	}
}

// Start starts interval triggering. One-shot timers run whether or not the
// service was started.
func (s *Service) Start(ctx context.Context) {
	_ = ctx

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	cl := cronLogger{log: s.log}
	s.c = cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	for i := range s.defs {
		s.addCronLocked(&s.defs[i])
	}
	s.c.Start()
	s.log.Info("service started", logx.Int("schedules", len(s.defs)))
}

// Stop stops triggering, disarms every timer and waits for running jobs until
// ctx expires. Running jobs see their context cancelled. A stopped service does
// not run jobs again.
func (s *Service) Stop(ctx context.Context) {
	start := time.Now()
	s.log.Info("stop requested")

	s.mu.Lock()
	c := s.c
	s.c = nil
	for i := range s.defs {
		s.defs[i].entryID = 0
	}
	s.mu.Unlock()

	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
		}
	}

	s.tmu.Lock()
	for name, d := range s.once {
		d.timer.Stop()
		delete(s.once, name)
	}
	s.tmu.Unlock()
	s.mu.Lock()
	s.cancel()
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.running.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.log.Warn("jobs still running at stop deadline")
	}
	s.log.Info("service stopped", logx.Duration("took", time.Since(start)))
}

// run executes one job with its timeout, recovering panics.
func (s *Service) run(name string, timeout time.Duration, job Job) {
	s.mu.Lock()
	base := s.base
	if base.Err() != nil {
		s.mu.Unlock()
		return
	}
	s.running.Add(1)
	s.mu.Unlock()
	defer s.running.Done()

	ctx := base
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(base, timeout)
		defer cancel()
	}

	start := time.Now()
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
				s.log.Error("job panic", logx.String("job", name), logx.Stack(logx.StackTrace(3, 16)))
			}
		}()
		return job(ctx)
	}()
	if err != nil {
		s.reportJobError(name, err)
		return
	}
	s.log.Trace("job done", logx.String("job", name), logx.Duration("took", time.Since(start)))
}

// cronLogger routes robfig/cron's own messages into logx.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...any) {
	l.log.Trace("cron: "+msg, kvFields(kv)...)
}

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.Warn("cron: "+msg, append(kvFields(kv), logx.Err(err))...)
}

func kvFields(kv []any) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, logx.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return out
}
