// Package eventbus is a non-blocking in-memory fanout used to decouple the
// reminder engine from metrics and diagnostics.
package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event types published by the reminder engine.
const (
	ReminderFired          = "reminder.fired"
	ReminderDispatchFailed = "reminder.dispatch_failed"
	SchedulesCommitted     = "schedules.committed"
	SchedulesDeleted       = "schedules.deleted"
	AdmissionRejected      = "admission.rejected"
	PendingDiscarded       = "pending.discarded"
	TimezoneConfirmed      = "timezone.confirmed"
	ScanDone               = "scan.done"
	ScanSkipped            = "scan.skipped"
)

// Event is a small signal. Publish never blocks; slow subscribers lose events.
type Event struct {
	Type   string
	Time   time.Time
	ChatID int64
	// Count is the number of items the event covers (schedules, dispatches).
	Count int
	// Duration is set for timed events (scans).
	Duration time.Duration
	Err      error
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(Event) {}
func (Nop) Subscribe(int) (<-chan Event, func()) {
	ch := make(chan Event)
	close(ch)
	return ch, func() {}
}

func New() Bus {
	return &memBus{subs: map[uint64]*sub{}}
}

type sub struct {
	mu     sync.Mutex
	ch     chan Event
	closed bool
}

type memBus struct {
	mu   sync.RWMutex
	subs map[uint64]*sub
	seq  atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.RLock()
	subs := make([]*sub, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.RUnlock()

	for _, s := range subs {
		s.mu.Lock()
		if !s.closed {
			select {
			case s.ch <- e:
			default:
			}
		}
		s.mu.Unlock()
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	s := &sub{ch: make(chan Event, buffer)}
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = s
	b.mu.Unlock()

	var once sync.Once
	return s.ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			s.mu.Lock()
			s.closed = true
			close(s.ch)
			s.mu.Unlock()
		})
	}
}
