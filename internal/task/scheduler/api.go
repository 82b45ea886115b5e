package scheduler

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"remindbot/pkg/logx"
)

// AddInterval runs job every interval (rounded to whole seconds). A trigger that
// arrives while the previous run is still going is skipped.
func (s *Service) AddInterval(name string, every, timeout time.Duration, job func(ctx context.Context) error) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("name required")
	}
	if every < time.Second {
		return "", errors.New("interval must be at least 1s")
	}
	s.Remove(name)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.defs = append(s.defs, scheduleDef{name: name, every: every, timeout: timeout, job: job})
	if s.c != nil {
		s.addCronLocked(&s.defs[len(s.defs)-1])
		s.log.Debug("schedule registered", logx.String("name", name), logx.Duration("every", every), logx.Duration("timeout", timeout))
	}
	return name, nil
}

// AddOnce runs job once at at (immediately if at has passed). Re-adding a name
// replaces the pending timer.
func (s *Service) AddOnce(name string, at time.Time, timeout time.Duration, job func(ctx context.Context) error) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("name required")
	}
	if at.IsZero() {
		return "", errors.New("at required")
	}

	s.tmu.Lock()
	defer s.tmu.Unlock()
	if old, ok := s.once[name]; ok {
		old.timer.Stop()
	}
	s.ver++
	d := &onceDef{at: at, timeout: timeout, job: job, ver: s.ver}
	ver := d.ver
	d.timer = time.AfterFunc(max(time.Until(at), 0), func() {
		s.tmu.Lock()
		cur, ok := s.once[name]
		if !ok || cur.ver != ver {
			s.tmu.Unlock()
			return
		}
		delete(s.once, name)
		s.tmu.Unlock()
		s.run(name, timeout, job)
	})
	s.once[name] = d
	return name, nil
}

// Remove unschedules name. It reports whether something was removed.
func (s *Service) Remove(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}

	s.mu.Lock()
	removed := s.removeScheduleLocked(name)
	s.mu.Unlock()

	s.tmu.Lock()
	if d, ok := s.once[name]; ok {
		d.timer.Stop()
		delete(s.once, name)
		removed = true
	}
	s.tmu.Unlock()

	if removed {
		s.log.Debug("schedule removed", logx.String("name", name))
	}
	return removed
}

// removeScheduleLocked expects s.mu to be held.
func (s *Service) removeScheduleLocked(name string) bool {
	n := 0
	for _, d := range s.defs {
		if d.name == name {
			if s.c != nil && d.entryID != 0 {
				s.c.Remove(d.entryID)
			}
			continue
		}
		s.defs[n] = d
		n++
	}
	removed := n < len(s.defs)
	s.defs = s.defs[:n]
	return removed
}

func (s *Service) addCronLocked(d *scheduleDef) {
	name, timeout, job := d.name, d.timeout, d.job
	d.entryID = s.c.Schedule(cron.Every(d.every), cron.FuncJob(func() {
		s.run(name, timeout, job)
	}))
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	snap := Snapshot{Started: s.c != nil}
	for _, d := range s.defs {
		it := ScheduleInfo{Name: d.name, Every: d.every, Timeout: d.timeout}
		if s.c != nil && d.entryID != 0 {
			e := s.c.Entry(d.entryID)
			it.Next, it.Prev = e.Next, e.Prev
		}
		snap.Schedules = append(snap.Schedules, it)
	}
	s.mu.Unlock()

	s.tmu.Lock()
	snap.Pending = make(map[string]time.Time, len(s.once))
	for name, d := range s.once {
		snap.Pending[name] = d.at
	}
	s.tmu.Unlock()
	return snap
}
