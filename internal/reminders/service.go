package reminders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"remindbot/internal/eventbus"
	"remindbot/internal/replies"
	kit "remindbot/internal/transport"
	"remindbot/pkg/logx"
	"remindbot/pkg/tgui"
)

const (
	DefaultConfirmationWindow = time.Minute
	DefaultPrevalence         = 50
	cleanupTimeout            = 10 * time.Second
)

// Callback data understood by the engine.
var (
	ActionConfirm  = tgui.Data("rem", "confirm", "")
	ActionDecline  = tgui.Data("rem", "decline", "")
	ActionRepeat   = tgui.Data("rem", "repeat", "")
	ActionTZCancel = tgui.Data("tz", "cancel", "")
)

// Settings are the hot-reloadable engine knobs.
type Settings struct {
	MaxSchedules       int
	ConfirmationWindow time.Duration
	// RepeatWindow is how long a fired reminder can be repeated and how far ahead
	// the repeat lands. Zero means ConfirmationWindow.
	RepeatWindow    time.Duration
	Prevalence      int
	DefaultLanguage replies.Language
}

func (s Settings) withDefaults() Settings {
	if s.MaxSchedules <= 0 {
		s.MaxSchedules = DefaultMaxSchedules
	}
	if s.ConfirmationWindow <= 0 {
		s.ConfirmationWindow = DefaultConfirmationWindow
	}
	if s.RepeatWindow <= 0 {
		s.RepeatWindow = s.ConfirmationWindow
	}
	if s.Prevalence < 0 || s.Prevalence > 100 {
		s.Prevalence = DefaultPrevalence
	}
	if _, ok := replies.ParseLanguage(string(s.DefaultLanguage)); !ok {
		s.DefaultLanguage = replies.EN
	}
	return s
}

type Deps struct {
	Store      Store
	Parser     Parser
	Messenger  Messenger
	Dispatcher Dispatcher
	Timers     Timers
	Bus        eventbus.Bus
	Log        logx.Logger
	Clock      Clock
	// FiredLogSize bounds how many delivered reminders stay repeatable.
	FiredLogSize int
}

// Service runs every chat-facing flow. Mutations of one chat are serialised
// through ChatLocks, which the Scanner shares.
type Service struct {
	store    Store
	parser   Parser
	msg      Messenger
	dispatch Dispatcher
	timers   Timers
	bus      eventbus.Bus
	log      logx.Logger
	now      Clock

	settings atomic.Pointer[Settings]
	locks    *ChatLocks
	buffer   *Buffer
	tz       *Negotiator
	fired    *FiredLog
	scanner  *Scanner
}

func New(d Deps, set Settings) (*Service, error) {
	switch {
	case d.Store == nil:
		return nil, errors.New("reminders: store is required")
	case d.Parser == nil:
		return nil, errors.New("reminders: parser is required")
	case d.Messenger == nil || d.Dispatcher == nil:
		return nil, errors.New("reminders: messenger and dispatcher are required")
	case d.Timers == nil:
		return nil, errors.New("reminders: timers are required")
	}
	if d.Bus == nil {
		d.Bus = eventbus.Nop{}
	}
	if d.Clock == nil {
		d.Clock = time.Now
	}
	s := &Service{
		store:    d.Store,
		parser:   d.Parser,
		msg:      d.Messenger,
		dispatch: d.Dispatcher,
		timers:   d.Timers,
		bus:      d.Bus,
		log:      d.Log.With(logx.String("comp", "reminders")),
		now:      d.Clock,
		locks:    NewChatLocks(),
		buffer:   NewBuffer(),
		tz:       NewNegotiator(d.Store, d.Clock),
		fired:    NewFiredLog(d.FiredLogSize),
	}
	s.scanner = &Scanner{svc: s}
	s.Apply(set)
	return s, nil
}

// Apply swaps the settings; in-flight operations keep the values they started with.
func (s *Service) Apply(set Settings) {
	set = set.withDefaults()
	s.settings.Store(&set)
}

func (s *Service) Settings() Settings { return *s.settings.Load() }

func (s *Service) Scanner() *Scanner { return s.scanner }

func (s *Service) Negotiator() *Negotiator { return s.tz }

// Incoming is a text message addressed to the engine.
type Incoming struct {
	Chat         Chat
	MessageID    int
	FromID       int64
	FromUsername string
	Text         string
}

// Tap is a button press on one of the engine's messages.
type Tap struct {
	Chat         Chat
	FromID       int64
	FromUsername string
	Message      kit.MessageRef
	MessageText  string
}

// profile is what the engine knows about the author of a message.
type profile struct {
	user  User
	known bool
	lang  replies.Language
}

func (s *Service) profile(ctx context.Context, userID int64, text string) profile {
	def := s.Settings().DefaultLanguage
	u, ok, err := s.store.GetUser(ctx, userID)
	if err != nil {
		s.log.Warn("user lookup failed", logx.Int64("user_id", userID), logx.Err(err))
	}
	if ok && u.Language != "" {
		def = u.Language
	}
	p := profile{user: u, known: ok, lang: def}
	if strings.TrimSpace(text) != "" {
		p.lang = replies.Detect(text, def)
	}
	return p
}

// Language is the reply language for userID, detected from text when given.
func (s *Service) Language(ctx context.Context, userID int64, text string) replies.Language {
	return s.profile(ctx, userID, text).lang
}

func (s *Service) reply(ctx context.Context, chat Chat, text string, actions [][]kit.Action) (kit.MessageRef, error) {
	ref, err := s.msg.SendText(ctx, chat.Target(), text, &kit.SendOptions{
		ParseMode:      "HTML",
		DisablePreview: true,
		Actions:        actions,
	})
	if err != nil {
		return ref, fmt.Errorf("send reply: %w", err)
	}
	return ref, nil
}

func (s *Service) edit(ctx context.Context, ref kit.MessageRef, text string) error {
	return s.msg.EditText(ctx, ref, text, &kit.SendOptions{ParseMode: "HTML", DisablePreview: true})
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStore, op, err)
}
