package notifier

import (
	"context"
	"errors"
	"time"

	kit "remindbot/internal/transport"
)

var ErrDuplicate = errors.New("reminder already delivered")

// Config controls delivery.
type Config struct {
	RatePerSec  int
	SendTimeout time.Duration
	// RetryMax applies to ClearActions only; reminders are sent once.
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
	// DedupWindow is how long a delivered reminder is remembered.
	DedupWindow     time.Duration
	DedupMaxEntries int
}

// Sender is the transport surface the notifier needs.
type Sender interface {
	SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error)
	EditActions(ctx context.Context, ref kit.MessageRef, actions [][]kit.Action) error
}
