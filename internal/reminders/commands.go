package reminders

import (
	"context"
	"errors"
	"strings"

	"remindbot/internal/eventbus"
	"remindbot/internal/replies"
	kit "remindbot/internal/transport"
	"remindbot/pkg/tgui"
)

// Delete handles a delete command; args is the free text after the command.
func (s *Service) Delete(ctx context.Context, in Incoming, args string) error {
	unlock := s.locks.Lock(in.Chat.ID)
	defer unlock()
	p := replies.For(s.profile(ctx, in.FromID, "").lang)
	return s.deleteLocked(ctx, in.Chat, p, ResolveDeletion(args))
}

// deleteLocked expects the chat lock to be held.
func (s *Service) deleteLocked(ctx context.Context, chat Chat, p *replies.Pack, req DeletionRequest) error {
	if req.Empty() {
		_, err := s.reply(ctx, chat, p.DeleteInvalid, nil)
		return err
	}

	if req.All {
		n, err := s.store.ClearAllSchedules(ctx, chat.ID)
		if err != nil {
			_, _ = s.reply(ctx, chat, p.StoreFailed, nil)
			return storeErr("clear", err)
		}
		s.bus.Publish(eventbus.Event{Type: eventbus.SchedulesDeleted, ChatID: chat.ID, Count: n})
		_, err = s.reply(ctx, chat, p.DeletedAllLine(n), nil)
		return err
	}

	n, err := s.store.RemoveSchedulesByQuery(ctx, chat.ID, req.IDs)
	if err != nil {
		_, _ = s.reply(ctx, chat, p.StoreFailed, nil)
		return storeErr("remove", err)
	}
	if n == 0 {
		_, err := s.reply(ctx, chat, p.DeleteNotFound, nil)
		return err
	}
	if err := s.store.ReorderSchedules(ctx, chat.ID); err != nil {
		return storeErr("reorder", err)
	}
	s.bus.Publish(eventbus.Event{Type: eventbus.SchedulesDeleted, ChatID: chat.ID, Count: n})
	_, err = s.reply(ctx, chat, p.DeletedLine(req.IDs), nil)
	return err
}

// List replies with the chat's reminders in id order, in the caller's timezone.
func (s *Service) List(ctx context.Context, in Incoming) error {
	pr := s.profile(ctx, in.FromID, "")
	p := replies.For(pr.lang)

	items, err := s.store.ListSchedules(ctx, in.Chat.ID)
	if err != nil {
		return storeErr("list", err)
	}
	if len(items) == 0 {
		_, err := s.reply(ctx, in.Chat, p.ListEmpty, nil)
		return err
	}
	lines := make([]string, 0, len(items)+1)
	lines = append(lines, p.ListHeader)
	for _, it := range items {
		lines = append(lines, p.ListLine(it.ID, it.Text, it.Username, it.Target, pr.user.Offset))
	}
	_, err = s.reply(ctx, in.Chat, strings.Join(lines, "\n"), nil)
	return err
}

// Repeat re-creates a fired reminder repeat-window from now. Only the message
// that delivered it can be repeated, once. A rejected or failed repeat keeps the
// button so it can be tapped again.
func (s *Service) Repeat(ctx context.Context, tap Tap) (string, error) {
	unlock := s.locks.Lock(tap.Chat.ID)
	defer unlock()

	pr := s.profile(ctx, tap.FromID, "")
	p := replies.For(pr.lang)

	fired, ok := s.fired.Peek(tap.Message)
	if !ok {
		_ = s.msg.EditActions(ctx, tap.Message, nil)
		return p.RepeatExpired, nil
	}

	set := s.Settings()
	count, err := s.store.CountSchedules(ctx, tap.Chat.ID)
	if err != nil {
		return p.StoreFailed, storeErr("count", err)
	}
	if err := (Admission{Max: set.MaxSchedules}).Admit(count, 0); err != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.AdmissionRejected, ChatID: tap.Chat.ID, Count: 1, Err: err})
		return p.CapacityLine(fired.Text, set.MaxSchedules), nil
	}

	username := NoUsername
	if tap.Chat.IsGroup && tap.FromUsername != "" {
		username = tap.FromUsername
	}
	next := Schedule{
		ChatID:       tap.Chat.ID,
		IsGroup:      tap.Chat.IsGroup,
		Text:         fired.Text,
		Username:     username,
		Target:       s.now().Add(set.RepeatWindow).Unix(),
		RepeatPeriod: fired.RepeatPeriod,
		RepeatMax:    fired.RepeatMax,
	}
	if _, err := s.store.AddSchedule(ctx, next); err != nil {
		return p.StoreFailed, storeErr("add", err)
	}
	// taps are serialised by the chat lock, so the entry is still ours
	s.fired.Take(tap.Message)
	s.timers.Remove(repeatTimerName(tap.Message))
	s.bus.Publish(eventbus.Event{Type: eventbus.SchedulesCommitted, ChatID: tap.Chat.ID, Count: 1})

	// the delivered text comes back without markup, so it is escaped again
	text := string(tgui.Esc(tap.MessageText)) + "\n\n" + p.RepeatedLine(next.Target, pr.user.Offset)
	return "", s.edit(ctx, tap.Message, text)
}

// BeginTimezone starts offset negotiation for the sender.
func (s *Service) BeginTimezone(ctx context.Context, in Incoming) error {
	pr := s.profile(ctx, in.FromID, "")
	p := replies.For(pr.lang)
	s.tz.Begin(in.FromID, in.Chat.ID)
	_, err := s.reply(ctx, in.Chat, p.TzPromptLine(pr.user.Offset, pr.known), cancelTZActions(p))
	return err
}

// confirmOffset expects the chat lock to be held.
func (s *Service) confirmOffset(ctx context.Context, in Incoming, lang replies.Language) error {
	p := replies.For(lang)
	off, err := s.tz.Confirm(ctx, in.FromID, in.Text, lang)
	switch {
	case errors.Is(err, ErrTimezoneParse):
		_, err := s.reply(ctx, in.Chat, p.TzInvalid, cancelTZActions(p))
		return err
	case err != nil:
		_, _ = s.reply(ctx, in.Chat, p.StoreFailed, nil)
		return err
	}
	s.bus.Publish(eventbus.Event{Type: eventbus.TimezoneConfirmed, ChatID: in.Chat.ID})
	_, err = s.reply(ctx, in.Chat, p.TzConfirmedLine(off), nil)
	return err
}

// CancelTimezone ends the tapper's own negotiation; taps by other users are ignored.
func (s *Service) CancelTimezone(ctx context.Context, tap Tap) (string, error) {
	if !s.tz.Cancel(tap.FromID) {
		return "", nil
	}
	p := replies.For(s.profile(ctx, tap.FromID, "").lang)
	return p.TzCancelled, s.edit(ctx, tap.Message, p.TzCancelled)
}

func cancelTZActions(p *replies.Pack) [][]kit.Action {
	return [][]kit.Action{{{Text: p.BtnCancel, Data: ActionTZCancel}}}
}
