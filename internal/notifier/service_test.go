package notifier

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"remindbot/internal/reminders"
	"remindbot/internal/replies"
	kit "remindbot/internal/transport"
	"remindbot/pkg/logx"
)

type flakySender struct {
	mu        sync.Mutex
	failN     int
	calls     int
	failEdits int
	editCalls int
	texts     []string
	opts      []*kit.SendOptions
	cleared   []kit.MessageRef
}

func (f *flakySender) SendText(_ context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failN {
		return kit.MessageRef{}, errors.New("telegram: retry after 1")
	}
	f.texts = append(f.texts, text)
	f.opts = append(f.opts, opt)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: 500 + f.calls}, nil
}

func (f *flakySender) EditActions(_ context.Context, ref kit.MessageRef, actions [][]kit.Action) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.editCalls++
	if f.editCalls <= f.failEdits {
		return errors.New("telegram: retry after 1")
	}
	if actions == nil {
		f.cleared = append(f.cleared, ref)
	}
	return nil
}

func fastConfig() Config {
	return Config{RatePerSec: 1000, RetryMax: 2, RetryBase: time.Millisecond, RetryMaxDelay: 2 * time.Millisecond}
}

func TestFireRenders(t *testing.T) {
	t.Parallel()

	snd := &flakySender{}
	n := New(fastConfig(), snd, logx.Nop())
	sc := reminders.Schedule{ChatID: -100, ID: 3, Text: "standup", Username: "ann", Target: 42, IsGroup: true}

	ref, err := n.Fire(context.Background(), sc, replies.EN)
	if err != nil {
		t.Fatalf("Fire: %v", err)
	}
	if snd.calls != 1 || ref.ChatID != -100 || ref.MessageID != 501 {
		t.Fatalf("calls=%d ref=%+v", snd.calls, ref)
	}
	if !strings.Contains(snd.texts[0], "@ann") || !strings.Contains(snd.texts[0], "standup") {
		t.Fatalf("text=%q", snd.texts[0])
	}
	acts := snd.opts[0].Actions
	if len(acts) != 1 || len(acts[0]) != 1 || acts[0][0].Data != reminders.ActionRepeat {
		t.Fatalf("actions=%+v", acts)
	}
}

func TestFireMakesOneAttempt(t *testing.T) {
	t.Parallel()

	snd := &flakySender{failN: 1}
	n := New(fastConfig(), snd, logx.Nop())
	sc := reminders.Schedule{ChatID: 1, ID: 1, Text: "x", Target: 10}
	_, err := n.Fire(context.Background(), sc, replies.EN)
	if !errors.Is(err, reminders.ErrDispatch) {
		t.Fatalf("err=%v", err)
	}
	if snd.calls != 1 {
		t.Fatalf("calls=%d", snd.calls)
	}
	// a failed send is not remembered, so the next scan may deliver it
	if _, err := n.Fire(context.Background(), sc, replies.EN); err != nil {
		t.Fatalf("second Fire: %v", err)
	}
}

func TestClearActionsRetries(t *testing.T) {
	t.Parallel()

	snd := &flakySender{failEdits: 2}
	n := New(fastConfig(), snd, logx.Nop())
	ref := kit.MessageRef{ChatID: 1, MessageID: 9}
	if err := n.ClearActions(context.Background(), ref); err != nil {
		t.Fatalf("ClearActions: %v", err)
	}
	if snd.editCalls != 3 || len(snd.cleared) != 1 {
		t.Fatalf("edit calls=%d cleared=%+v", snd.editCalls, snd.cleared)
	}
}

func TestFireSuppressesDuplicates(t *testing.T) {
	t.Parallel()

	snd := &flakySender{}
	n := New(fastConfig(), snd, logx.Nop())
	sc := reminders.Schedule{ChatID: 1, ID: 1, Text: "x", Target: 10}

	if _, err := n.Fire(context.Background(), sc, replies.EN); err != nil {
		t.Fatalf("Fire: %v", err)
	}
	_, err := n.Fire(context.Background(), sc, replies.EN)
	if !errors.Is(err, ErrDuplicate) || !errors.Is(err, reminders.ErrDispatch) {
		t.Fatalf("err=%v", err)
	}
	// a repeat of the same text at another time is a new reminder
	sc.Target = 20
	if _, err := n.Fire(context.Background(), sc, replies.EN); err != nil {
		t.Fatalf("Fire repeated: %v", err)
	}
	if snd.calls != 2 {
		t.Fatalf("calls=%d", snd.calls)
	}
}

func TestClearActionsHonoursCancellation(t *testing.T) {
	t.Parallel()

	snd := &flakySender{failEdits: 10}
	cfg := fastConfig()
	cfg.RetryBase, cfg.RetryMaxDelay = time.Hour, time.Hour
	n := New(cfg, snd, logx.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	if err := n.ClearActions(ctx, kit.MessageRef{ChatID: 1, MessageID: 9}); err == nil {
		t.Fatalf("expected error")
	}
	if time.Since(start) > time.Second {
		t.Fatalf("retry wait ignored cancellation")
	}
}

func TestClearActions(t *testing.T) {
	t.Parallel()

	snd := &flakySender{}
	n := New(fastConfig(), snd, logx.Nop())
	ref := kit.MessageRef{ChatID: 1, MessageID: 9}
	if err := n.ClearActions(context.Background(), ref); err != nil {
		t.Fatalf("ClearActions: %v", err)
	}
	if len(snd.cleared) != 1 || snd.cleared[0] != ref {
		t.Fatalf("cleared=%+v", snd.cleared)
	}
}

func TestRetryDelayBounds(t *testing.T) {
	t.Parallel()

	cfg := withDefaults(Config{RetryBase: 100 * time.Millisecond, RetryMaxDelay: time.Second})
	for attempt := 1; attempt <= 8; attempt++ {
		d := retryDelay(cfg, attempt)
		if d <= 0 || d > time.Second {
			t.Fatalf("attempt %d: delay %s out of bounds", attempt, d)
		}
	}
	if d := retryDelay(cfg, 1); d < 70*time.Millisecond || d > 130*time.Millisecond {
		t.Fatalf("first delay %s not within jitter of base", d)
	}
}
