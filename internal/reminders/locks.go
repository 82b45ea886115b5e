package reminders

import "sync"

// ChatLocks serialises work per chat. Entries are dropped when nobody holds or waits on them.
type ChatLocks struct {
	mu    sync.Mutex
	chats map[int64]*chatLock
}

type chatLock struct {
	mu   sync.Mutex
	refs int
}

func NewChatLocks() *ChatLocks {
	return &ChatLocks{chats: make(map[int64]*chatLock)}
}

// Lock blocks until the chat is free and returns the matching unlock.
func (l *ChatLocks) Lock(chatID int64) (unlock func()) {
	l.mu.Lock()
	cl := l.chats[chatID]
	if cl == nil {
		cl = &chatLock{}
		l.chats[chatID] = cl
	}
	cl.refs++
	l.mu.Unlock()

	cl.mu.Lock()
	return func() {
		cl.mu.Unlock()
		l.mu.Lock()
		cl.refs--
		if cl.refs == 0 {
			delete(l.chats, chatID)
		}
		l.mu.Unlock()
	}
}

func (l *ChatLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.chats)
}
