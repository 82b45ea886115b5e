package reminders

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"sync"
	"time"

	"remindbot/internal/replies"
)

const (
	maxOffsetHours = 14
	// negotiationTTL bounds how long an unanswered negotiation is kept.
	negotiationTTL = time.Hour
)

var (
	offsetHMRe = regexp.MustCompile(`([+\-–—−]?)\s*(\d+)\s*:\s*(\d+)`)
	offsetHRe  = regexp.MustCompile(`([+\-–—−]?)\s*(\d+)`)
)

// ParseOffset reads a UTC offset written as ±H or ±H:MM. H:MM wins over a bare H.
// Any dash variant counts as minus; a missing sign means plus.
func ParseOffset(text string) (int64, error) {
	var sign, hs, ms string
	if m := offsetHMRe.FindStringSubmatch(text); m != nil {
		sign, hs, ms = m[1], m[2], m[3]
	} else if m := offsetHRe.FindStringSubmatch(text); m != nil {
		sign, hs = m[1], m[2]
	} else {
		return 0, fmt.Errorf("%w: %q", ErrTimezoneParse, text)
	}

	h, err := strconv.Atoi(hs)
	if err != nil || h > maxOffsetHours {
		return 0, fmt.Errorf("%w: hours out of range in %q", ErrTimezoneParse, text)
	}
	m := 0
	if ms != "" {
		if m, err = strconv.Atoi(ms); err != nil || m > 59 {
			return 0, fmt.Errorf("%w: minutes out of range in %q", ErrTimezoneParse, text)
		}
	}
	off := int64(h*3600 + m*60)
	if sign != "" && sign != "+" {
		off = -off
	}
	return off, nil
}

type TZState int

const (
	TZUnset TZState = iota
	TZAwaiting
	TZConfirmed
)

func (s TZState) String() string {
	switch s {
	case TZAwaiting:
		return "awaiting_offset"
	case TZConfirmed:
		return "confirmed"
	default:
		return "unset"
	}
}

type negotiation struct {
	chatID int64
	since  time.Time
}

// Negotiator tracks which users are expected to send an offset. A user is in at
// most one negotiation; in groups only that user's messages in that chat count.
type Negotiator struct {
	users UserStore
	now   Clock

	mu      sync.Mutex
	pending map[int64]negotiation
}

func NewNegotiator(users UserStore, now Clock) *Negotiator {
	if now == nil {
		now = time.Now
	}
	return &Negotiator{users: users, now: now, pending: make(map[int64]negotiation)}
}

// Begin (re)enters the awaiting state for userID in chatID.
func (n *Negotiator) Begin(userID, chatID int64) {
	n.mu.Lock()
	n.pending[userID] = negotiation{chatID: chatID, since: n.now()}
	n.mu.Unlock()
}

// Awaiting reports whether a message from userID in chatID is offset input.
func (n *Negotiator) Awaiting(userID, chatID int64) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	ng, ok := n.pending[userID]
	if !ok {
		return false
	}
	if n.now().Sub(ng.since) > negotiationTTL {
		delete(n.pending, userID)
		return false
	}
	return ng.chatID == chatID
}

// Cancel leaves the awaiting state. It reports whether a negotiation was active.
func (n *Negotiator) Cancel(userID int64) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, ok := n.pending[userID]
	delete(n.pending, userID)
	return ok
}

func (n *Negotiator) State(ctx context.Context, userID int64) (TZState, error) {
	n.mu.Lock()
	_, awaiting := n.pending[userID]
	n.mu.Unlock()
	if awaiting {
		return TZAwaiting, nil
	}
	_, ok, err := n.users.GetUser(ctx, userID)
	if err != nil {
		return TZUnset, fmt.Errorf("%w: %v", ErrStore, err)
	}
	if ok {
		return TZConfirmed, nil
	}
	return TZUnset, nil
}

// Confirm parses text as the user's offset. On ErrTimezoneParse the negotiation
// stays open. On success the offset is stored, creating the user with lang when
// unknown, and the negotiation ends.
func (n *Negotiator) Confirm(ctx context.Context, userID int64, text string, lang replies.Language) (int64, error) {
	off, err := ParseOffset(text)
	if err != nil {
		return 0, err
	}
	u, ok, err := n.users.GetUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStore, err)
	}
	if !ok {
		u = User{ID: userID, Language: lang}
	}
	u.Offset = off
	if err := n.users.PutUser(ctx, u); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStore, err)
	}
	n.Cancel(userID)
	return off, nil
}
