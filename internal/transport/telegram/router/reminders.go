package router

import (
	"context"
	"time"

	"remindbot/internal/reminders"
	"remindbot/internal/replies"
	kit "remindbot/internal/transport"
	"remindbot/pkg/tgui"
)

const reminderTimeout = 30 * time.Second

// RegisterReminders binds the reminder engine's commands, buttons and free-text
// handling to r.
func RegisterReminders(r *Router, svc *reminders.Service) {
	static := func(pick func(p *replies.Pack) string) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			p := replies.For(svc.Language(ctx, req.FromID, ""))
			_, err := req.Adapter.SendText(ctx, req.Chat, pick(p), &kit.SendOptions{ParseMode: "HTML", DisablePreview: true})
			return err
		}
	}

	r.Handle(Command{Name: "start", Hidden: true, Handle: static(func(p *replies.Pack) string { return p.Start })})
	r.Handle(Command{Name: "help", Aliases: []string{"h"}, Description: "how to write reminders", Handle: static(func(p *replies.Pack) string { return p.Help })})
	r.Handle(Command{Name: "list", Aliases: []string{"ls"}, Description: "show reminders of this chat", Timeout: reminderTimeout,
		Handle: func(ctx context.Context, req *Request) error { return svc.List(ctx, incoming(req)) }})
	r.Handle(Command{Name: "del", Aliases: []string{"delete", "rm"}, Description: "delete reminders: /del 1 3 5-7 or /del all", Timeout: reminderTimeout,
		Handle: func(ctx context.Context, req *Request) error { return svc.Delete(ctx, incoming(req), req.Args) }})
	r.Handle(Command{Name: "tz", Aliases: []string{"timezone"}, Description: "set your UTC offset", Timeout: reminderTimeout,
		Handle: func(ctx context.Context, req *Request) error { return svc.BeginTimezone(ctx, incoming(req)) }})

	for data, h := range map[string]func(context.Context, reminders.Tap) (string, error){
		reminders.ActionConfirm:  svc.Confirm,
		reminders.ActionDecline:  svc.Decline,
		reminders.ActionRepeat:   svc.Repeat,
		reminders.ActionTZCancel: svc.CancelTimezone,
	} {
		h := h
		cb, ok := tgui.Parse(data)
		if !ok {
			continue
		}
		r.HandleCallback(CallbackRoute{Scope: cb.Scope, Action: cb.Action, Timeout: reminderTimeout,
			Handle: func(ctx context.Context, req *Request) (string, error) { return h(ctx, tap(req)) }})
	}

	r.HandleText(func(ctx context.Context, req *Request) error {
		return svc.HandleText(ctx, incoming(req))
	}, reminderTimeout)
}

func chat(req *Request) reminders.Chat {
	return reminders.Chat{ID: req.Chat.ChatID, ThreadID: req.Chat.ThreadID, IsGroup: req.IsGroup}
}

func incoming(req *Request) reminders.Incoming {
	return reminders.Incoming{
		Chat:         chat(req),
		MessageID:    req.MessageID,
		FromID:       req.FromID,
		FromUsername: req.FromUsername,
		Text:         req.Text,
	}
}

func tap(req *Request) reminders.Tap {
	return reminders.Tap{
		Chat:         chat(req),
		FromID:       req.FromID,
		FromUsername: req.FromUsername,
		Message:      kit.MessageRef{ChatID: req.Chat.ChatID, ThreadID: req.Chat.ThreadID, MessageID: req.MessageID},
		MessageText:  req.Text,
	}
}
