package reminders

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"remindbot/internal/eventbus"
	"remindbot/internal/replies"
	kit "remindbot/internal/transport"
	"remindbot/pkg/logx"
)

// cleanupParallelism bounds concurrent per-chat delete+reorder work in one scan.
const cleanupParallelism = 4

// ScanReport summarises one scan.
type ScanReport struct {
	Skipped    bool
	Due        int
	Dispatched int
	Failed     int
	Chats      int
	// CleanupFailed counts chats whose delete or reorder failed.
	CleanupFailed int
	Took          time.Duration
}

// Scanner fires due reminders and removes them afterwards. It never overlaps with itself.
type Scanner struct {
	svc     *Service
	running atomic.Bool
}

// Scan runs one sweep. A call made while another sweep is running returns
// immediately with Skipped set.
func (sc *Scanner) Scan(ctx context.Context) (rep ScanReport, err error) {
	s := sc.svc
	if !sc.running.CompareAndSwap(false, true) {
		s.bus.Publish(eventbus.Event{Type: eventbus.ScanSkipped})
		return ScanReport{Skipped: true}, nil
	}
	defer sc.running.Store(false)

	start := s.now()
	defer func() {
		rep.Took = s.now().Sub(start)
		ev := eventbus.Event{Type: eventbus.ScanDone, Count: rep.Dispatched, Duration: rep.Took, Err: err}
		if ev.Err == nil && rep.CleanupFailed > 0 {
			ev.Err = fmt.Errorf("%w: cleanup failed for %d chats", ErrStore, rep.CleanupFailed)
		}
		s.bus.Publish(ev)
	}()

	due, err := s.store.CheckDue(ctx, start.Unix())
	if err != nil {
		return rep, fmt.Errorf("%w: check due: %v", ErrStore, err)
	}
	rep.Due = len(due)
	if len(due) == 0 {
		return rep, nil
	}

	set := s.Settings()
	var order []int64
	byChat := make(map[int64][]Schedule)
	for _, d := range due {
		if ctx.Err() != nil {
			// undelivered reminders stay in the store for the next scan
			break
		}
		if _, seen := byChat[d.ChatID]; !seen {
			order = append(order, d.ChatID)
		}
		byChat[d.ChatID] = append(byChat[d.ChatID], d)

		ref, err := s.dispatch.Fire(ctx, d, s.chatLanguage(ctx, d, set.DefaultLanguage))
		if err != nil {
			rep.Failed++
			s.log.Warn("reminder dispatch failed",
				logx.Int64("chat_id", d.ChatID), logx.Int("id", d.ID), logx.Err(err))
			s.bus.Publish(eventbus.Event{Type: eventbus.ReminderDispatchFailed, ChatID: d.ChatID, Count: 1, Err: err})
			continue
		}
		rep.Dispatched++
		s.fired.Record(ref, d)
		s.armRepeatExpiry(ref, set.RepeatWindow)
		s.bus.Publish(eventbus.Event{Type: eventbus.ReminderFired, ChatID: d.ChatID, Count: 1})
	}

	rep.Chats = len(order)
	// delivered reminders must be removed even if the scan was cancelled meanwhile
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	var failed atomic.Int32
	var g errgroup.Group
	g.SetLimit(cleanupParallelism)
	for _, chatID := range order {
		chatID := chatID
		fired := byChat[chatID]
		g.Go(func() error {
			if !s.removeFired(cctx, chatID, fired) {
				failed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()
	rep.CleanupFailed = int(failed.Load())

	s.log.Debug("scan done",
		logx.Int("due", rep.Due), logx.Int("dispatched", rep.Dispatched),
		logx.Int("failed", rep.Failed), logx.Int("chats", rep.Chats))
	return rep, nil
}

// removeFired deletes one chat's fired reminders in a single batch and then
// re-densifies the chat. Ids read before dispatch may have been renumbered by a
// delete in the meantime, so rows are matched by content under the chat lock.
// Failures stay with this chat.
func (s *Service) removeFired(ctx context.Context, chatID int64, fired []Schedule) bool {
	unlock := s.locks.Lock(chatID)
	defer unlock()

	rows, err := s.store.ListSchedules(ctx, chatID)
	if err != nil {
		s.log.Error("list before removing fired reminders failed", logx.Int64("chat_id", chatID), logx.Err(err))
		return false
	}
	ids := currentIDs(rows, fired)
	if len(ids) == 0 {
		// already deleted by the chat
		return true
	}

	n, err := s.store.RemoveSchedulesByQuery(ctx, chatID, ids)
	if err != nil {
		s.log.Error("remove fired reminders failed", logx.Int64("chat_id", chatID), logx.Ints("ids", ids), logx.Err(err))
		return false
	}
	if err := s.store.ReorderSchedules(ctx, chatID); err != nil {
		s.log.Error("reorder after scan failed", logx.Int64("chat_id", chatID), logx.Err(err))
		return false
	}
	s.bus.Publish(eventbus.Event{Type: eventbus.SchedulesDeleted, ChatID: chatID, Count: n})
	return true
}

// currentIDs maps fired reminders to the ids their rows hold now. Each row is
// claimed at most once.
func currentIDs(rows, fired []Schedule) []int {
	claimed := make([]bool, len(rows))
	ids := make([]int, 0, len(fired))
	for _, f := range fired {
		for i, r := range rows {
			if claimed[i] || !sameReminder(r, f) {
				continue
			}
			claimed[i] = true
			ids = append(ids, r.ID)
			break
		}
	}
	return ids
}

func sameReminder(a, b Schedule) bool {
	return a.Text == b.Text && a.Target == b.Target && a.Username == b.Username &&
		a.RepeatPeriod == b.RepeatPeriod && a.RepeatMax == b.RepeatMax
}

// chatLanguage picks the language of a fired reminder: the owner's preference in
// private chats, the configured default in groups.
func (s *Service) chatLanguage(ctx context.Context, d Schedule, def replies.Language) replies.Language {
	if d.IsGroup {
		return def
	}
	u, ok, err := s.store.GetUser(ctx, d.ChatID)
	if err != nil || !ok || u.Language == "" {
		return def
	}
	return u.Language
}

// armRepeatExpiry removes the repeat button of a fired message once the repeat window ends.
func (s *Service) armRepeatExpiry(ref kit.MessageRef, window time.Duration) {
	name := repeatTimerName(ref)
	_, err := s.timers.AddOnce(name, s.now().Add(window), cleanupTimeout, func(ctx context.Context) error {
		s.fired.Forget(ref)
		return s.dispatch.ClearActions(ctx, ref)
	})
	if err != nil {
		s.log.Warn("arm repeat expiry failed", logx.String("timer", name), logx.Err(err))
	}
}

func repeatTimerName(ref kit.MessageRef) string {
	return fmt.Sprintf("repeat:%d:%d", ref.ChatID, ref.MessageID)
}

func pendingTimerName(ref kit.MessageRef) string {
	return fmt.Sprintf("pending:%d:%d", ref.ChatID, ref.MessageID)
}
