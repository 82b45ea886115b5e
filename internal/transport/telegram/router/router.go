// Package router turns transport updates into handler calls. Updates of one
// chat always run on the same worker, in arrival order.
package router

import (
	"context"
	"encoding/binary"
	"hash/fnv"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"remindbot/internal/runtime/supervisor"
	kit "remindbot/internal/transport"
	"remindbot/pkg/logx"
	"remindbot/pkg/tgui"
)

type Config struct {
	// Workers defaults to NumCPU (at least 2).
	Workers int
	// QueueSize is the per-worker backlog; updates beyond it are refused.
	QueueSize int
	// Timeout applies to handlers that set none.
	Timeout time.Duration
}

type Command struct {
	Name        string
	Aliases     []string
	Description string
	// Hidden commands are routed but kept out of the menu.
	Hidden  bool
	Timeout time.Duration
	Handle  HandlerFunc
}

// CallbackHandlerFunc returns the notice shown to the user who pressed the button.
type CallbackHandlerFunc func(ctx context.Context, req *Request) (string, error)

// CallbackRoute matches callback data "scope:action[:payload]".
type CallbackRoute struct {
	Scope   string
	Action  string
	Timeout time.Duration
	Handle  CallbackHandlerFunc
}

type Request struct {
	Update       kit.Update
	Chat         kit.ChatTarget
	IsGroup      bool
	FromID       int64
	FromUsername string
	// MessageID is the incoming message, or the message carrying the pressed button.
	MessageID int
	Text      string
	Command   string
	// Args is the raw text after the command word.
	Args    string
	Payload string
	ReqID   string

	Adapter kit.Adapter
	Logger  logx.Logger
}

type Router struct {
	log     logx.Logger
	adapter kit.Adapter
	cfg     Config

	mu        sync.RWMutex
	cmds      map[string]Command
	ordered   []Command
	callbacks map[string]map[string]CallbackRoute
	text      HandlerFunc
	textTO    time.Duration

	runMu  sync.Mutex
	sup    *supervisor.Supervisor
	shards []chan func()
}

func New(cfg Config, adapter kit.Adapter, log logx.Logger) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = max(runtime.NumCPU(), 2)
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	return &Router{
		log:       log.With(logx.String("comp", "telegram.router")),
		adapter:   adapter,
		cfg:       cfg,
		cmds:      map[string]Command{},
		callbacks: map[string]map[string]CallbackRoute{},
	}
}

// Handle registers cmd under its name and aliases. A later registration of the
// same name replaces the earlier one.
func (r *Router) Handle(cmd Command) {
	name := strings.ToLower(strings.TrimSpace(cmd.Name))
	if name == "" || cmd.Handle == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cmds[name] = cmd
	for _, a := range cmd.Aliases {
		if a = strings.ToLower(strings.TrimSpace(a)); a != "" {
			r.cmds[a] = cmd
		}
	}
	r.ordered = append(r.ordered, cmd)
}

func (r *Router) HandleCallback(route CallbackRoute) {
	scope, action := strings.TrimSpace(route.Scope), strings.TrimSpace(route.Action)
	if scope == "" || action == "" || route.Handle == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.callbacks[scope] == nil {
		r.callbacks[scope] = map[string]CallbackRoute{}
	}
	r.callbacks[scope][action] = route
}

// HandleText sets the handler for plain messages and for unknown commands.
func (r *Router) HandleText(h HandlerFunc, timeout time.Duration) {
	r.mu.Lock()
	r.text, r.textTO = h, timeout
	r.mu.Unlock()
}

// Run dispatches updates until ctx is done or updates is closed.
func (r *Router) Run(ctx context.Context, updates <-chan kit.Update) error {
	sup := supervisor.New(ctx, supervisor.WithLogger(r.log))
	shards := make([]chan func(), r.cfg.Workers)
	for i := range shards {
		shards[i] = make(chan func(), r.cfg.QueueSize)
	}
	r.runMu.Lock()
	r.sup, r.shards = sup, shards
	r.runMu.Unlock()

	for i, jobs := range shards {
		jobs := jobs
		idx := i
		sup.GoRestart("router.worker."+strconv.Itoa(idx), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job, ok := <-jobs:
					if !ok {
						return nil
					}
					r.runJob(idx, job)
				}
			}
		},
			supervisor.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			supervisor.WithPublishFirstError(true),
		)
	}
	sup.Go("router.menu", func(c context.Context) error {
		_ = r.PublishMenu(c)
		return nil
	})
	r.log.Info("router started", logx.Int("workers", len(shards)), logx.Int("queue", r.cfg.QueueSize))

	defer func() {
		r.runMu.Lock()
		r.shards = nil
		r.sup = nil
		r.runMu.Unlock()
		for _, jobs := range shards {
			close(jobs)
		}
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		sup.Cancel()
		r.log.Info("router stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			r.route(ctx, up)
		}
	}
}

func (r *Router) runJob(worker int, job func()) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("panic in router job", logx.Int("worker", worker), logx.Any("panic", rec), logx.Stack(logx.StackTrace(3, 32)))
		}
	}()
	job()
}

func shardFor(chatID int64, n int) int {
	h := fnv.New32a()
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(chatID))
	_, _ = h.Write(b[:])
	return int(h.Sum32() % uint32(n))
}

func (r *Router) enqueue(chatID int64, job func()) (ok bool) {
	r.runMu.Lock()
	shards := r.shards
	r.runMu.Unlock()
	if len(shards) == 0 {
		return false
	}
	defer func() {
		if rec := recover(); rec != nil {
			ok = false
		}
	}()
	select {
	case shards[shardFor(chatID, len(shards))] <- job:
		return true
	default:
		return false
	}
}

func (r *Router) route(ctx context.Context, up kit.Update) {
	switch {
	case up.Kind == kit.UpdateMessage && up.Message != nil:
		r.routeMessage(ctx, up)
	case up.Kind == kit.UpdateCallback && up.Callback != nil:
		r.routeCallback(ctx, up)
	}
}

// splitCommand returns the command word without "/" and "@bot", and the rest.
func splitCommand(text string) (string, string, bool) {
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	word, args, _ := strings.Cut(text[1:], " ")
	if i := strings.IndexAny(word, "\n"); i >= 0 {
		word, args = word[:i], word[i+1:]+" "+args
	}
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	return strings.ToLower(word), strings.TrimSpace(args), word != ""
}

func (r *Router) routeMessage(ctx context.Context, up kit.Update) {
	msg := up.Message
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	r.mu.RLock()
	h, timeout := r.text, r.textTO
	command := "text"
	var args string
	if word, rest, ok := splitCommand(text); ok {
		if cmd, found := r.cmds[word]; found {
			h, timeout, command, args = cmd.Handle, cmd.Timeout, cmd.Name, rest
		}
	}
	r.mu.RUnlock()
	if h == nil {
		return
	}

	req := r.newRequest(up, command)
	req.Args = args
	final := r.chain(h, timeout)
	if !r.enqueue(msg.ChatID, func() { _ = final(ctx, req) }) {
		r.log.Warn("router queue full, message dropped", logx.Int64("chat_id", msg.ChatID))
	}
}

func (r *Router) routeCallback(ctx context.Context, up kit.Update) {
	cb := up.Callback
	data, ok := tgui.Parse(strings.TrimSpace(cb.Data))
	if !ok {
		_ = r.adapter.AnswerCallback(ctx, cb.ID, "")
		return
	}

	r.mu.RLock()
	route, found := r.callbacks[data.Scope][data.Action]
	r.mu.RUnlock()
	if !found {
		_ = r.adapter.AnswerCallback(ctx, cb.ID, "")
		return
	}

	req := r.newRequest(up, "cb:"+data.Scope+":"+data.Action)
	req.Payload = data.Payload
	var notice string
	h := func(ctx context.Context, req *Request) error {
		n, err := route.Handle(ctx, req)
		notice = n
		return err
	}
	final := r.chain(h, route.Timeout)
	if !r.enqueue(cb.ChatID, func() {
		_ = final(ctx, req)
		// always answer so the client stops its spinner
		actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = r.adapter.AnswerCallback(actx, cb.ID, notice)
	}) {
		_ = r.adapter.AnswerCallback(ctx, cb.ID, "busy")
	}
}

func (r *Router) chain(h HandlerFunc, timeout time.Duration) HandlerFunc {
	if timeout <= 0 {
		timeout = r.cfg.Timeout
	}
	return Chain(h,
		MWPanicRecover(r.log),
		MWRequestLog(r.log),
		MWTimeout(timeout),
	)
}

func (r *Router) newRequest(up kit.Update, command string) *Request {
	req := &Request{Update: up, Command: command, ReqID: uuid.NewString(), Adapter: r.adapter}
	switch {
	case up.Message != nil:
		m := up.Message
		req.Chat = kit.ChatTarget{ChatID: m.ChatID, ThreadID: m.ThreadID}
		req.IsGroup, req.FromID, req.FromUsername = m.IsGroup, m.FromID, m.FromUsername
		req.MessageID, req.Text = m.ID, m.Text
	case up.Callback != nil:
		c := up.Callback
		req.Chat = kit.ChatTarget{ChatID: c.ChatID, ThreadID: c.ThreadID}
		req.IsGroup, req.FromID, req.FromUsername = c.IsGroup, c.FromID, c.FromUsername
		req.MessageID, req.Text = c.MessageID, c.MessageText
	}
	req.Logger = r.log.With(
		logx.String("rid", req.ReqID),
		logx.Int64("chat_id", req.Chat.ChatID),
		logx.Int64("from_id", req.FromID),
	)
	return req
}
