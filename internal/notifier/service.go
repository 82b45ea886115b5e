package notifier

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"

	"remindbot/internal/reminders"
	"remindbot/internal/replies"
	kit "remindbot/internal/transport"
	"remindbot/pkg/logx"
)

type dedupKey struct {
	chatID int64
	id     int
	target int64
	text   string
}

// Service implements reminders.Dispatcher. It is safe for concurrent use.
type Service struct {
	mu      sync.Mutex
	log     logx.Logger
	sender  Sender
	cfg     Config
	limiter *rate.Limiter

	delivered *expirable.LRU[dedupKey, kit.MessageRef]
}

var _ reminders.Dispatcher = (*Service)(nil)

func New(cfg Config, sender Sender, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{sender: sender, log: log.With(logx.String("comp", "notifier"))}
	cfg = withDefaults(cfg)
	s.cfg = cfg
	// Token bucket: burst = rate per sec, so a scan with a few due reminders is not held back.
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	s.delivered = expirable.NewLRU[dedupKey, kit.MessageRef](cfg.DedupMaxEntries, nil, cfg.DedupWindow)
	return s
}

func withDefaults(cfg Config) Config {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 20
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 5 * time.Second
	}
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = 10 * time.Minute
	}
	if cfg.DedupMaxEntries <= 0 {
		cfg.DedupMaxEntries = 4096
	}
	return cfg
}

// Apply updates rate and retry settings. The dedup cache keeps its size and window.
func (s *Service) Apply(cfg Config) {
	cfg = withDefaults(cfg)
	s.mu.Lock()
	defer s.mu.Unlock()
	if cfg.RatePerSec != s.cfg.RatePerSec {
		s.limiter.SetLimit(rate.Limit(cfg.RatePerSec))
		s.limiter.SetBurst(cfg.RatePerSec)
	}
	cfg.DedupWindow, cfg.DedupMaxEntries = s.cfg.DedupWindow, s.cfg.DedupMaxEntries
	s.cfg = cfg
}

// Fire delivers sc with a repeat button and returns the sent message. It makes a
// single attempt: a send that timed out may still have reached the chat.
func (s *Service) Fire(ctx context.Context, sc reminders.Schedule, lang replies.Language) (kit.MessageRef, error) {
	key := dedupKey{chatID: sc.ChatID, id: sc.ID, target: sc.Target, text: sc.Text}
	if ref, ok := s.delivered.Get(key); ok {
		s.log.Debug("duplicate delivery suppressed", logx.Int64("chat_id", sc.ChatID), logx.Int("id", sc.ID), logx.Int("message_id", ref.MessageID))
		return kit.MessageRef{}, fmt.Errorf("%w: %w", reminders.ErrDispatch, ErrDuplicate)
	}

	p := replies.For(lang)
	opt := &kit.SendOptions{
		ParseMode:      "HTML",
		DisablePreview: true,
		Actions:        [][]kit.Action{{{Text: p.BtnRepeat, Data: reminders.ActionRepeat}}},
	}
	text := p.FiredLine(sc.Username, sc.Text)

	var ref kit.MessageRef
	err := s.call(ctx, "send", 1, func(ctx context.Context) error {
		var err error
		ref, err = s.sender.SendText(ctx, kit.ChatTarget{ChatID: sc.ChatID}, text, opt)
		return err
	})
	if err != nil {
		return kit.MessageRef{}, fmt.Errorf("%w: chat %d: %w", reminders.ErrDispatch, sc.ChatID, err)
	}
	s.delivered.Add(key, ref)
	return ref, nil
}

// ClearActions removes the buttons of a delivered reminder.
func (s *Service) ClearActions(ctx context.Context, ref kit.MessageRef) error {
	return s.call(ctx, "clear_actions", -1, func(ctx context.Context) error {
		return s.sender.EditActions(ctx, ref, nil)
	})
}

// call runs fn under the rate limiter and send timeout. maxAttempts < 0 means
// 1+RetryMax attempts with jittered backoff between them.
func (s *Service) call(ctx context.Context, op string, maxAttempts int, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	cfg := s.cfg
	lim := s.limiter
	s.mu.Unlock()

	if maxAttempts < 0 {
		maxAttempts = 1 + cfg.RetryMax
	}
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := lim.Wait(ctx); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		callCtx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
		err := fn(callCtx)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			return err
		}
		s.log.Debug("notifier call failed", logx.String("op", op), logx.Int("attempt", attempt), logx.Int("max", maxAttempts), logx.Err(err))
		if attempt >= maxAttempts {
			break
		}

		t := time.NewTimer(retryDelay(cfg, attempt))
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return lastErr
		}
	}
	return lastErr
}

// retryDelay is the wait before attempt+1: base*2^(attempt-1), jittered 0.7..1.3, capped.
func retryDelay(cfg Config, attempt int) time.Duration {
	d := cfg.RetryBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= cfg.RetryMaxDelay {
			d = cfg.RetryMaxDelay
			break
		}
	}
	d = time.Duration(float64(d) * (0.7 + rand.Float64()*0.6))
	return min(max(d, 0), cfg.RetryMaxDelay)
}
