package reminders

import (
	lru "github.com/hashicorp/golang-lru/v2"

	kit "remindbot/internal/transport"
)

const defaultFiredLogSize = 4096

type firedKey struct {
	chatID    int64
	messageID int
}

// FiredLog remembers which reminder each delivered message carried, so a tap on
// its repeat button can rebuild it. It is bounded; the oldest entries fall out.
type FiredLog struct {
	cache *lru.Cache[firedKey, Schedule]
}

func NewFiredLog(size int) *FiredLog {
	if size <= 0 {
		size = defaultFiredLogSize
	}
	c, err := lru.New[firedKey, Schedule](size)
	if err != nil {
		// only reachable with a non-positive size
		panic(err)
	}
	return &FiredLog{cache: c}
}

func (f *FiredLog) Record(ref kit.MessageRef, s Schedule) {
	f.cache.Add(firedKey{chatID: ref.ChatID, messageID: ref.MessageID}, s)
}

// Peek returns the reminder delivered as ref and keeps it.
func (f *FiredLog) Peek(ref kit.MessageRef) (Schedule, bool) {
	return f.cache.Peek(firedKey{chatID: ref.ChatID, messageID: ref.MessageID})
}

// Take returns and forgets the reminder delivered as ref.
func (f *FiredLog) Take(ref kit.MessageRef) (Schedule, bool) {
	k := firedKey{chatID: ref.ChatID, messageID: ref.MessageID}
	s, ok := f.cache.Peek(k)
	// Remove reports presence, so concurrent takers cannot both win.
	if !ok || !f.cache.Remove(k) {
		return Schedule{}, false
	}
	return s, true
}

// Forget drops ref, used once its repeat button is gone.
func (f *FiredLog) Forget(ref kit.MessageRef) {
	f.cache.Remove(firedKey{chatID: ref.ChatID, messageID: ref.MessageID})
}

func (f *FiredLog) Len() int { return f.cache.Len() }
