package reminders

import (
	"context"
	"sync"
	"time"
)

// Draft is a reminder waiting for confirmation. It never reaches the store unless flushed.
type Draft struct {
	Schedule Schedule
	StagedAt time.Time
}

// Buffer holds per-chat drafts until they are flushed or discarded. Every Stage
// bumps the chat's generation so a deferred discard armed for an older prompt
// cannot throw away drafts staged after it.
type Buffer struct {
	mu      sync.Mutex
	chats   map[int64]*pendingBatch
	lastGen uint64
}

type pendingBatch struct {
	drafts []Draft
	gen    uint64
}

func NewBuffer() *Buffer {
	return &Buffer{chats: make(map[int64]*pendingBatch)}
}

// Stage appends d to the chat's list and returns the new generation.
func (b *Buffer) Stage(chatID int64, d Draft) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	pb := b.chats[chatID]
	if pb == nil {
		pb = &pendingBatch{}
		b.chats[chatID] = pb
	}
	b.lastGen++
	pb.gen = b.lastGen
	pb.drafts = append(pb.drafts, d)
	return pb.gen
}

// CommitFunc stores one chat's batch atomically.
type CommitFunc func(ctx context.Context, batch []Schedule) ([]Schedule, error)

// Flush hands every staged draft of the chat to commit in one call and clears the
// list. The drafts are dropped whether or not commit succeeds, so a batch is never
// committed twice or in part. An empty list is a no-op returning (nil, nil).
func (b *Buffer) Flush(ctx context.Context, chatID int64, commit CommitFunc) ([]Schedule, error) {
	drafts := b.take(chatID)
	if len(drafts) == 0 {
		return nil, nil
	}
	batch := make([]Schedule, len(drafts))
	for i, d := range drafts {
		batch[i] = d.Schedule
	}
	return commit(ctx, batch)
}

func (b *Buffer) take(chatID int64) []Draft {
	b.mu.Lock()
	defer b.mu.Unlock()
	pb := b.chats[chatID]
	if pb == nil {
		return nil
	}
	delete(b.chats, chatID)
	return pb.drafts
}

// Discard drops the chat's drafts and returns how many there were.
func (b *Buffer) Discard(chatID int64) int {
	return len(b.take(chatID))
}

// DiscardGeneration drops the chat's drafts only if gen is still current.
func (b *Buffer) DiscardGeneration(chatID int64, gen uint64) (int, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	pb := b.chats[chatID]
	if pb == nil || pb.gen != gen {
		return 0, false
	}
	delete(b.chats, chatID)
	return len(pb.drafts), true
}

// PeekText reports whether a draft with exactly this text is staged for the chat.
func (b *Buffer) PeekText(chatID int64, text string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	pb := b.chats[chatID]
	if pb == nil {
		return false
	}
	for _, d := range pb.drafts {
		if d.Schedule.Text == text {
			return true
		}
	}
	return false
}

func (b *Buffer) Len(chatID int64) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if pb := b.chats[chatID]; pb != nil {
		return len(pb.drafts)
	}
	return 0
}
