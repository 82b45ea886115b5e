package router

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	kit "remindbot/internal/transport"
	"remindbot/pkg/logx"
)

type fakeAdapter struct {
	mu       sync.Mutex
	sent     []string
	answered map[string]string
	menu     []kit.BotCommand
	menuDone chan struct{}
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{answered: map[string]string{}, menuDone: make(chan struct{}, 1)}
}

func (f *fakeAdapter) Start(context.Context, chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                     { return nil }
func (f *fakeAdapter) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.sent)}, nil
}
func (f *fakeAdapter) EditText(context.Context, kit.MessageRef, string, *kit.SendOptions) error {
	return nil
}
func (f *fakeAdapter) EditActions(context.Context, kit.MessageRef, [][]kit.Action) error { return nil }
func (f *fakeAdapter) Delete(context.Context, kit.MessageRef) error                      { return nil }
func (f *fakeAdapter) AnswerCallback(_ context.Context, id, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answered[id] = text
	return nil
}
func (f *fakeAdapter) UpdateMenuCommands(_ context.Context, cmds []kit.BotCommand) error {
	f.mu.Lock()
	f.menu = cmds
	f.mu.Unlock()
	select {
	case f.menuDone <- struct{}{}:
	default:
	}
	return nil
}

func (f *fakeAdapter) answer(id string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.answered[id]
	return s, ok
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met")
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func start(t *testing.T, r *Router) chan<- kit.Update {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	updates := make(chan kit.Update, 256)
	done := make(chan struct{})
	go func() {
		_ = r.Run(ctx, updates)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return updates
}

func msg(chatID int64, text string) kit.Update {
	return kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ID: 1, ChatID: chatID, FromID: 7, Text: text}}
}

func TestRoutesCommandsAndText(t *testing.T) {
	t.Parallel()

	r := New(Config{Workers: 2}, newFakeAdapter(), logx.Nop())
	var mu sync.Mutex
	var got []string
	record := func(tag string) HandlerFunc {
		return func(_ context.Context, req *Request) error {
			mu.Lock()
			got = append(got, tag+"|"+req.Command+"|"+req.Args)
			mu.Unlock()
			return nil
		}
	}
	r.Handle(Command{Name: "del", Aliases: []string{"rm"}, Handle: record("cmd")})
	r.HandleText(record("text"), 0)

	in := start(t, r)
	for _, text := range []string{"/del 1 3-4", "/DEL@remindbot all", "/rm 2", "/3", "buy milk in 5 min", "   "} {
		in <- msg(10, text)
	}
	waitFor(t, func() bool { mu.Lock(); defer mu.Unlock(); return len(got) == 5 })

	want := []string{
		"cmd|del|1 3-4",
		"cmd|del|all",
		"cmd|del|2",
		"text|text|",
		"text|text|",
	}
	mu.Lock()
	defer mu.Unlock()
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
}

func TestPerChatOrderIsPreserved(t *testing.T) {
	t.Parallel()

	r := New(Config{Workers: 4, QueueSize: 256}, newFakeAdapter(), logx.Nop())
	var mu sync.Mutex
	seen := map[int64][]int{}
	r.HandleText(func(_ context.Context, req *Request) error {
		mu.Lock()
		seen[req.Chat.ChatID] = append(seen[req.Chat.ChatID], req.MessageID)
		mu.Unlock()
		return nil
	}, 0)

	in := start(t, r)
	const perChat = 40
	for i := 1; i <= perChat; i++ {
		for _, chat := range []int64{1, 2, -100, 77} {
			in <- kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ID: i, ChatID: chat, Text: "x"}}
		}
	}
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		total := 0
		for _, ids := range seen {
			total += len(ids)
		}
		return total == 4*perChat
	})
	mu.Lock()
	defer mu.Unlock()
	for chat, ids := range seen {
		for i, id := range ids {
			if id != i+1 {
				t.Fatalf("chat %d out of order: %v", chat, ids)
			}
		}
	}
}

func TestCallbacksAreAnswered(t *testing.T) {
	t.Parallel()

	ad := newFakeAdapter()
	r := New(Config{}, ad, logx.Nop())
	var payload string
	r.HandleCallback(CallbackRoute{Scope: "rem", Action: "confirm", Handle: func(_ context.Context, req *Request) (string, error) {
		payload = req.Payload
		return "Saved", nil
	}})
	r.HandleCallback(CallbackRoute{Scope: "rem", Action: "repeat", Handle: func(context.Context, *Request) (string, error) {
		return "Too late", errors.New("expired")
	}})

	in := start(t, r)
	cb := func(id, data string) kit.Update {
		return kit.Update{Kind: kit.UpdateCallback, Callback: &kit.Callback{ID: id, ChatID: 5, MessageID: 9, Data: data}}
	}
	in <- cb("a", "rem:confirm:x:y")
	in <- cb("b", "rem:repeat")
	in <- cb("c", "other:thing")
	in <- cb("d", "garbage")

	waitFor(t, func() bool {
		for _, id := range []string{"a", "b", "c", "d"} {
			if _, ok := ad.answer(id); !ok {
				return false
			}
		}
		return true
	})
	if n, _ := ad.answer("a"); n != "Saved" || payload != "x:y" {
		t.Fatalf("a: notice=%q payload=%q", n, payload)
	}
	if n, _ := ad.answer("b"); n != "Too late" {
		t.Fatalf("b: notice=%q", n)
	}
	if n, _ := ad.answer("c"); n != "" {
		t.Fatalf("unknown route answered %q", n)
	}
}

func TestPanicDoesNotKillWorker(t *testing.T) {
	t.Parallel()

	r := New(Config{Workers: 1}, newFakeAdapter(), logx.Nop())
	var mu sync.Mutex
	var after bool
	r.HandleText(func(_ context.Context, req *Request) error {
		if req.Text == "boom" {
			panic("boom")
		}
		mu.Lock()
		after = true
		mu.Unlock()
		return nil
	}, 0)

	in := start(t, r)
	in <- msg(1, "boom")
	in <- msg(1, "fine")
	waitFor(t, func() bool { mu.Lock(); defer mu.Unlock(); return after })
}

func TestHandlerTimeoutApplies(t *testing.T) {
	t.Parallel()

	r := New(Config{Timeout: 20 * time.Millisecond}, newFakeAdapter(), logx.Nop())
	errs := make(chan error, 1)
	r.HandleText(func(ctx context.Context, _ *Request) error {
		<-ctx.Done()
		errs <- ctx.Err()
		return ctx.Err()
	}, 0)

	in := start(t, r)
	in <- msg(1, "slow")
	select {
	case err := <-errs:
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("err=%v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("handler never timed out")
	}
}

func TestMenuIsPublished(t *testing.T) {
	t.Parallel()

	ad := newFakeAdapter()
	r := New(Config{}, ad, logx.Nop())
	noop := func(context.Context, *Request) error { return nil }
	r.Handle(Command{Name: "start", Hidden: true, Handle: noop})
	r.Handle(Command{Name: "list", Description: "show reminders", Handle: noop})
	r.Handle(Command{Name: "Del-All", Description: "clear\nall", Handle: noop})

	start(t, r)
	select {
	case <-ad.menuDone:
	case <-time.After(2 * time.Second):
		t.Fatalf("menu not published")
	}
	ad.mu.Lock()
	defer ad.mu.Unlock()
	if len(ad.menu) != 2 || ad.menu[0].Command != "list" || ad.menu[1].Command != "del_all" || ad.menu[1].Description != "clear all" {
		t.Fatalf("menu=%+v", ad.menu)
	}
}

func TestSanitizeCommand(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]string{
		"list":      "list",
		" Del-All ": "del_all",
		"a//b":      "a_b",
		"ёж":        "",
		"3d":        "cmd_3d",
	} {
		if got := sanitizeCommand(in); got != want {
			t.Fatalf("sanitizeCommand(%q)=%q want %q", in, got, want)
		}
	}
}

func TestShardIsStable(t *testing.T) {
	t.Parallel()

	for _, id := range []int64{1, -100123, 42} {
		a := shardFor(id, 8)
		if a < 0 || a >= 8 || a != shardFor(id, 8) {
			t.Fatalf("shard for %d unstable or out of range", id)
		}
	}
}
