package reminders

import (
	"context"
	"time"

	"remindbot/internal/replies"
	kit "remindbot/internal/transport"
)

// NoUsername marks a reminder that was not authored in a group.
const NoUsername = "none"

// Schedule is one live reminder. ID is unique within ChatID and dense (1..N).
type Schedule struct {
	ChatID   int64
	IsGroup  bool
	ID       int
	Text     string
	Username string
	// Target is the unix time the reminder fires at.
	Target int64
	// RepeatPeriod and RepeatMax are carried through storage; zero means one-shot.
	RepeatPeriod int64
	RepeatMax    int64
}

func (s Schedule) Due(now time.Time) bool { return s.Target <= now.Unix() }

// User holds per-user preferences. A record exists once an offset was confirmed.
type User struct {
	ID       int64
	Offset   int64 // seconds east of UTC
	Language replies.Language
}

// Chat identifies a conversation without encoding group-ness into the id.
type Chat struct {
	ID       int64
	ThreadID int
	IsGroup  bool
}

func (c Chat) Target() kit.ChatTarget { return kit.ChatTarget{ChatID: c.ID, ThreadID: c.ThreadID} }

// Candidate is one reminder found by the Parser.
type Candidate struct {
	Text         string
	Target       int64
	RepeatPeriod int64
	RepeatMax    int64
}

type ParseRequest struct {
	Text     string
	Language replies.Language
	// Prevalence is forwarded from configuration, in percent.
	Prevalence int
	Now        time.Time
	// Offset of the author in seconds east of UTC.
	Offset int64
}

// Parser extracts reminder candidates from free text.
type Parser interface {
	Parse(req ParseRequest) []Candidate
}

// ScheduleStore persists reminders. Every batch method is atomic for its chat.
type ScheduleStore interface {
	// AddSchedule stores s with the next free id and returns the stored copy.
	AddSchedule(ctx context.Context, s Schedule) (Schedule, error)
	// AddSchedules stores all of batch (one chat) or none of it.
	AddSchedules(ctx context.Context, chatID int64, batch []Schedule) ([]Schedule, error)
	ListSchedules(ctx context.Context, chatID int64) ([]Schedule, error)
	CountSchedules(ctx context.Context, chatID int64) (int, error)
	FindByRenderedText(ctx context.Context, chatID int64, text string) (Schedule, bool, error)
	// CheckDue returns every reminder with Target <= now, ordered by chat then id.
	CheckDue(ctx context.Context, now int64) ([]Schedule, error)
	RemoveSchedulesByQuery(ctx context.Context, chatID int64, ids []int) (int, error)
	RemoveScheduleByID(ctx context.Context, chatID int64, id int) (bool, error)
	ClearAllSchedules(ctx context.Context, chatID int64) (int, error)
	// ReorderSchedules renumbers the chat's reminders to 1..N keeping their order.
	ReorderSchedules(ctx context.Context, chatID int64) error
}

type UserStore interface {
	GetUser(ctx context.Context, id int64) (User, bool, error)
	// PutUser creates or replaces the user.
	PutUser(ctx context.Context, u User) error
	// SetLanguage updates an existing user; unknown users are ignored.
	SetLanguage(ctx context.Context, id int64, lang replies.Language) error
}

type Store interface {
	ScheduleStore
	UserStore
}

// Dispatcher delivers a fired reminder and returns the sent message.
type Dispatcher interface {
	Fire(ctx context.Context, s Schedule, lang replies.Language) (kit.MessageRef, error)
	// ClearActions removes the buttons of a delivered reminder.
	ClearActions(ctx context.Context, ref kit.MessageRef) error
}

// Messenger is the part of the transport the engine talks to directly.
type Messenger interface {
	SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error)
	EditText(ctx context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error
	EditActions(ctx context.Context, ref kit.MessageRef, actions [][]kit.Action) error
	Delete(ctx context.Context, ref kit.MessageRef) error
}

// Timers runs named one-shot jobs. Re-adding a name replaces the previous job.
type Timers interface {
	AddOnce(name string, at time.Time, timeout time.Duration, job func(ctx context.Context) error) (string, error)
	Remove(name string) bool
}

// Clock is time.Now, replaceable in tests.
type Clock func() time.Time
