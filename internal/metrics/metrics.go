// Package metrics turns reminder engine events into Prometheus collectors.
package metrics

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"remindbot/internal/eventbus"
)

const namespace = "remindbot"

// Metrics holds the collectors fed from the event bus.
type Metrics struct {
	fired            prometheus.Counter
	dispatchFailures prometheus.Counter
	scans            *prometheus.CounterVec
	scanDuration     prometheus.Histogram
	committed        prometheus.Counter
	deleted          prometheus.Counter
	rejected         prometheus.Counter
	discarded        prometheus.Counter
	tzConfirmed      prometheus.Counter
}

// New registers the collectors with reg (the default registerer when nil).
// Collectors that are already registered are reused.
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help})
	}
	m := &Metrics{
		fired:            counter("reminders_fired_total", "Reminders delivered to their chat."),
		dispatchFailures: counter("dispatch_failures_total", "Reminders that could not be delivered."),
		scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scans_total",
			Help:      "Expiration scans by result.",
		}, []string{"result"}),
		scanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scan_duration_seconds",
			Help:      "Wall time of completed expiration scans.",
			Buckets:   prometheus.DefBuckets,
		}),
		committed:   counter("schedules_committed_total", "Reminders written to the store."),
		deleted:     counter("schedules_deleted_total", "Reminders removed from the store."),
		rejected:    counter("admission_rejected_total", "Submissions refused by admission control."),
		discarded:   counter("pending_discarded_total", "Unconfirmed drafts dropped on expiry or decline."),
		tzConfirmed: counter("timezone_confirmed_total", "Timezone offsets confirmed by users."),
	}

	var err error
	for _, c := range []*prometheus.Counter{&m.fired, &m.dispatchFailures, &m.committed, &m.deleted, &m.rejected, &m.discarded, &m.tzConfirmed} {
		if *c, err = register(reg, *c); err != nil {
			return nil, err
		}
	}
	if m.scans, err = register(reg, m.scans); err != nil {
		return nil, err
	}
	if m.scanDuration, err = register(reg, m.scanDuration); err != nil {
		return nil, err
	}
	return m, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(T); ok {
			return existing, nil
		}
	}
	return c, fmt.Errorf("metrics: register: %w", err)
}

// Observe records one event. Unknown event types are ignored.
func (m *Metrics) Observe(e eventbus.Event) {
	if m == nil {
		return
	}
	n := float64(max(e.Count, 1))
	switch e.Type {
	case eventbus.ReminderFired:
		m.fired.Add(n)
	case eventbus.ReminderDispatchFailed:
		m.dispatchFailures.Add(n)
	case eventbus.ScanDone:
		result := "ok"
		if e.Err != nil {
			result = "error"
		}
		m.scans.WithLabelValues(result).Inc()
		m.scanDuration.Observe(e.Duration.Seconds())
	case eventbus.ScanSkipped:
		m.scans.WithLabelValues("skipped").Inc()
	case eventbus.SchedulesCommitted:
		m.committed.Add(float64(e.Count))
	case eventbus.SchedulesDeleted:
		m.deleted.Add(float64(e.Count))
	case eventbus.AdmissionRejected:
		m.rejected.Add(n)
	case eventbus.PendingDiscarded:
		m.discarded.Add(float64(e.Count))
	case eventbus.TimezoneConfirmed:
		m.tzConfirmed.Inc()
	}
}

// Run consumes bus until ctx is done.
func (m *Metrics) Run(ctx context.Context, bus eventbus.Bus) error {
	ch, unsubscribe := bus.Subscribe(256)
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e, ok := <-ch:
			if !ok {
				return nil
			}
			m.Observe(e)
		}
	}
}
