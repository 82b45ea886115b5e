package scheduler

import (
	"context"
	"errors"
	"time"

	"remindbot/pkg/logx"
)

const jobWarnThrottle = 5 * time.Second

// reportJobError logs a failed run, at most once per throttle window per job.
func (s *Service) reportJobError(name string, err error) {
	if errors.Is(err, context.Canceled) {
		s.log.Debug("job cancelled", logx.String("job", name))
		return
	}

	now := time.Now()
	s.repMu.Lock()
	last := s.lastWarn[name]
	if !last.IsZero() && now.Sub(last) < jobWarnThrottle {
		s.repMu.Unlock()
		return
	}
	s.lastWarn[name] = now
	s.repMu.Unlock()

	s.log.Warn("job failed", logx.String("job", name), logx.Err(err))
}
