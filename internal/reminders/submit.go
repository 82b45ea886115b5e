package reminders

import (
	"context"
	"errors"
	"strings"

	"remindbot/internal/eventbus"
	"remindbot/internal/replies"
	kit "remindbot/internal/transport"
	"remindbot/pkg/logx"
)

// HandleText processes a plain message: pending offset input, the "/N" delete
// shortcut, or a new reminder submission.
func (s *Service) HandleText(ctx context.Context, in Incoming) error {
	unlock := s.locks.Lock(in.Chat.ID)
	defer unlock()

	pr := s.profile(ctx, in.FromID, in.Text)
	if s.tz.Awaiting(in.FromID, in.Chat.ID) {
		return s.confirmOffset(ctx, in, pr.lang)
	}
	if id, ok := shortcutID(in.Text); ok {
		return s.deleteLocked(ctx, in.Chat, replies.For(pr.lang), DeletionRequest{IDs: []int{id}})
	}
	if pr.known && pr.user.Language != pr.lang {
		if err := s.store.SetLanguage(ctx, in.FromID, pr.lang); err != nil {
			s.log.Warn("store language failed", logx.Int64("user_id", in.FromID), logx.Err(err))
		}
	}
	return s.submit(ctx, in, pr)
}

func (s *Service) submit(ctx context.Context, in Incoming, pr profile) error {
	set := s.Settings()
	p := replies.For(pr.lang)

	cands := s.parser.Parse(ParseRequest{
		Text:       in.Text,
		Language:   pr.lang,
		Prevalence: set.Prevalence,
		Now:        s.now(),
		Offset:     pr.user.Offset,
	})
	if len(cands) == 0 {
		// groups are full of chatter that is not addressed to the bot
		if !in.Chat.IsGroup {
			_, err := s.reply(ctx, in.Chat, p.ParseEmpty, nil)
			return err
		}
		return nil
	}

	count, err := s.store.CountSchedules(ctx, in.Chat.ID)
	if err != nil {
		return storeErr("count", err)
	}
	// drafts still waiting for confirmation take capacity too
	count += s.buffer.Len(in.Chat.ID)

	username := NoUsername
	if in.Chat.IsGroup && in.FromUsername != "" {
		username = in.FromUsername
	}

	adm := Admission{Max: set.MaxSchedules}
	var (
		lines    []string
		admitted []Schedule
	)
	for _, c := range cands {
		text := strings.TrimSpace(c.Text)
		dup, err := s.duplicate(ctx, in.Chat.ID, text, admitted)
		if err != nil {
			return err
		}
		if dup {
			lines = append(lines, p.AlreadyScheduledLine(text))
			continue
		}
		if err := adm.Admit(count, len(admitted)); err != nil {
			lines = append(lines, p.CapacityLine(text, set.MaxSchedules))
			s.bus.Publish(eventbus.Event{Type: eventbus.AdmissionRejected, ChatID: in.Chat.ID, Count: 1, Err: err})
			continue
		}
		admitted = append(admitted, Schedule{
			ChatID:       in.Chat.ID,
			IsGroup:      in.Chat.IsGroup,
			Text:         text,
			Username:     username,
			Target:       c.Target,
			RepeatPeriod: c.RepeatPeriod,
			RepeatMax:    c.RepeatMax,
		})
		lines = append(lines, p.ScheduledLine(text, c.Target, pr.user.Offset, c.RepeatPeriod))
	}

	switch {
	case len(admitted) == 0:
		_, err := s.reply(ctx, in.Chat, strings.Join(lines, "\n"), nil)
		return err
	case in.Chat.IsGroup:
		return s.stage(ctx, in.Chat, p, admitted, lines)
	}

	stored, err := s.store.AddSchedules(ctx, in.Chat.ID, admitted)
	if err != nil {
		_, _ = s.reply(ctx, in.Chat, p.StoreFailed, nil)
		return storeErr("add", err)
	}
	s.bus.Publish(eventbus.Event{Type: eventbus.SchedulesCommitted, ChatID: in.Chat.ID, Count: len(stored)})
	if !pr.known {
		lines = append(lines, "", p.TzWarning)
	}
	_, err = s.reply(ctx, in.Chat, strings.Join(lines, "\n"), nil)
	return err
}

// duplicate reports whether text is already live, staged, or earlier in the same message.
func (s *Service) duplicate(ctx context.Context, chatID int64, text string, batch []Schedule) (bool, error) {
	for _, b := range batch {
		if b.Text == text {
			return true, nil
		}
	}
	if s.buffer.PeekText(chatID, text) {
		return true, nil
	}
	_, found, err := s.store.FindByRenderedText(ctx, chatID, text)
	if err != nil {
		return false, storeErr("find", err)
	}
	return found, nil
}

// stage parks a group submission and asks the chat to confirm it. The prompt and
// its drafts are dropped when the confirmation window passes.
func (s *Service) stage(ctx context.Context, chat Chat, p *replies.Pack, batch []Schedule, lines []string) error {
	var gen uint64
	now := s.now()
	for _, sc := range batch {
		gen = s.buffer.Stage(chat.ID, Draft{Schedule: sc, StagedAt: now})
	}

	text := p.ConfirmPrompt + "\n\n" + strings.Join(lines, "\n")
	ref, err := s.reply(ctx, chat, text, [][]kit.Action{{
		{Text: p.BtnConfirm, Data: ActionConfirm},
		{Text: p.BtnDecline, Data: ActionDecline},
	}})
	if err != nil {
		s.buffer.DiscardGeneration(chat.ID, gen)
		return err
	}

	window := s.Settings().ConfirmationWindow
	name := pendingTimerName(ref)
	_, err = s.timers.AddOnce(name, now.Add(window), cleanupTimeout, func(ctx context.Context) error {
		unlock := s.locks.Lock(chat.ID)
		defer unlock()
		if n, ok := s.buffer.DiscardGeneration(chat.ID, gen); ok {
			s.bus.Publish(eventbus.Event{Type: eventbus.PendingDiscarded, ChatID: chat.ID, Count: n})
		}
		return s.msg.Delete(ctx, ref)
	})
	if err != nil {
		s.log.Warn("arm pending discard failed", logx.String("timer", name), logx.Err(err))
	}
	return nil
}

// Confirm commits the chat's staged drafts in one batch. The returned string is a
// short notice for the button press.
func (s *Service) Confirm(ctx context.Context, tap Tap) (string, error) {
	unlock := s.locks.Lock(tap.Chat.ID)
	defer unlock()
	s.timers.Remove(pendingTimerName(tap.Message))

	p := replies.For(s.profile(ctx, tap.FromID, "").lang)
	limit := s.Settings().MaxSchedules
	stored, err := s.buffer.Flush(ctx, tap.Chat.ID, func(ctx context.Context, batch []Schedule) ([]Schedule, error) {
		count, err := s.store.CountSchedules(ctx, tap.Chat.ID)
		if err != nil {
			return nil, storeErr("count", err)
		}
		// the whole batch fits or none of it is committed
		if err := (Admission{Max: limit}).Admit(count, len(batch)-1); err != nil {
			return nil, err
		}
		out, err := s.store.AddSchedules(ctx, tap.Chat.ID, batch)
		if err != nil {
			return nil, storeErr("add", err)
		}
		return out, nil
	})

	switch {
	case errors.Is(err, ErrCapacityExceeded):
		s.bus.Publish(eventbus.Event{Type: eventbus.AdmissionRejected, ChatID: tap.Chat.ID, Err: err})
		text := p.CapacityBatchLine(limit)
		return text, s.edit(ctx, tap.Message, text)
	case err != nil:
		_ = s.edit(ctx, tap.Message, p.StoreFailed)
		return p.StoreFailed, err
	case len(stored) == 0:
		_ = s.msg.EditActions(ctx, tap.Message, nil)
		return p.NothingPending, nil
	}

	s.bus.Publish(eventbus.Event{Type: eventbus.SchedulesCommitted, ChatID: tap.Chat.ID, Count: len(stored)})
	text := p.ConfirmedLine(len(stored))
	return text, s.edit(ctx, tap.Message, text)
}

// Decline drops the chat's staged drafts and removes the prompt.
func (s *Service) Decline(ctx context.Context, tap Tap) (string, error) {
	unlock := s.locks.Lock(tap.Chat.ID)
	defer unlock()
	s.timers.Remove(pendingTimerName(tap.Message))

	p := replies.For(s.profile(ctx, tap.FromID, "").lang)
	if n := s.buffer.Discard(tap.Chat.ID); n > 0 {
		s.bus.Publish(eventbus.Event{Type: eventbus.PendingDiscarded, ChatID: tap.Chat.ID, Count: n})
	}
	if err := s.msg.Delete(ctx, tap.Message); err != nil {
		// messages older than 48h cannot be deleted in groups; fall back to an edit
		return p.Declined, s.edit(ctx, tap.Message, p.Declined)
	}
	return p.Declined, nil
}
