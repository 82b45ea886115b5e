package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"remindbot/internal/reminders"
	"remindbot/internal/replies"
	"remindbot/pkg/logx"
)

// memoryStore keeps everything in maps. With a snapshot path every mutation
// rewrites <path> through a temp file and rename; a failed write rolls the
// mutation back.
type memoryStore struct {
	log  logx.Logger
	path string

	mu     sync.Mutex
	closed bool
	chats  map[int64][]reminders.Schedule // each sorted by id
	users  map[int64]reminders.User
}

type snapshot struct {
	Schedules []scheduleRecord `json:"schedules"`
	Users     []userRecord     `json:"users"`
}

type scheduleRecord struct {
	ChatID       int64  `json:"chat_id"`
	ID           int    `json:"id"`
	IsGroup      bool   `json:"is_group,omitempty"`
	Text         string `json:"text"`
	Username     string `json:"username"`
	Target       int64  `json:"target"`
	RepeatPeriod int64  `json:"repeat_period,omitempty"`
	RepeatMax    int64  `json:"repeat_max,omitempty"`
}

type userRecord struct {
	ID       int64  `json:"id"`
	Offset   int64  `json:"offset"`
	Language string `json:"lang"`
}

func openMemory(cfg Config, log logx.Logger) (Store, error) {
	s := &memoryStore{
		log:   log,
		path:  strings.TrimSpace(cfg.Path),
		chats: map[int64][]reminders.Schedule{},
		users: map[int64]reminders.User{},
	}
	if s.path == "" {
		log.Info("storage opened (volatile)")
		return s, nil
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return nil, err
	}
	if err := s.load(); err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", s.path, err)
	}
	log.Info("storage opened", logx.String("path", s.path), logx.Int("chats", len(s.chats)), logx.Int("users", len(s.users)))
	return s, nil
}

func (s *memoryStore) load() error {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	var snap snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return err
	}
	for _, r := range snap.Schedules {
		s.chats[r.ChatID] = append(s.chats[r.ChatID], reminders.Schedule{
			ChatID: r.ChatID, ID: r.ID, IsGroup: r.IsGroup, Text: r.Text, Username: r.Username,
			Target: r.Target, RepeatPeriod: r.RepeatPeriod, RepeatMax: r.RepeatMax,
		})
	}
	for id, rows := range s.chats {
		slices.SortFunc(rows, byID)
		s.chats[id] = rows
	}
	for _, u := range snap.Users {
		s.users[u.ID] = reminders.User{ID: u.ID, Offset: u.Offset, Language: replies.Language(u.Language)}
	}
	return nil
}

func (s *memoryStore) persistLocked() error {
	if s.path == "" {
		return nil
	}
	var snap snapshot
	for _, rows := range s.chats {
		for _, r := range rows {
			snap.Schedules = append(snap.Schedules, scheduleRecord{
				ChatID: r.ChatID, ID: r.ID, IsGroup: r.IsGroup, Text: r.Text, Username: r.Username,
				Target: r.Target, RepeatPeriod: r.RepeatPeriod, RepeatMax: r.RepeatMax,
			})
		}
	}
	for _, u := range s.users {
		snap.Users = append(snap.Users, userRecord{ID: u.ID, Offset: u.Offset, Language: string(u.Language)})
	}

	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(snap); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// mutateChat replaces chatID's rows with fn's result and persists; on error the
// old rows stay.
func (s *memoryStore) mutateChat(chatID int64, fn func(rows []reminders.Schedule) ([]reminders.Schedule, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	old, had := s.chats[chatID]
	next, err := fn(slices.Clone(old))
	if err != nil {
		return err
	}
	s.setChat(chatID, next)
	if err := s.persistLocked(); err != nil {
		if had {
			s.chats[chatID] = old
		} else {
			delete(s.chats, chatID)
		}
		s.log.Error("snapshot write failed", logx.Int64("chat_id", chatID), logx.Err(err))
		return err
	}
	return nil
}

func (s *memoryStore) setChat(chatID int64, rows []reminders.Schedule) {
	if len(rows) == 0 {
		delete(s.chats, chatID)
		return
	}
	s.chats[chatID] = rows
}

func (s *memoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *memoryStore) AddSchedule(ctx context.Context, sc reminders.Schedule) (reminders.Schedule, error) {
	out, err := s.AddSchedules(ctx, sc.ChatID, []reminders.Schedule{sc})
	if err != nil {
		return reminders.Schedule{}, err
	}
	return out[0], nil
}

func (s *memoryStore) AddSchedules(_ context.Context, chatID int64, batch []reminders.Schedule) ([]reminders.Schedule, error) {
	if len(batch) == 0 {
		return nil, nil
	}
	var out []reminders.Schedule
	err := s.mutateChat(chatID, func(rows []reminders.Schedule) ([]reminders.Schedule, error) {
		id := 1
		if len(rows) > 0 {
			id = rows[len(rows)-1].ID + 1
		}
		out = make([]reminders.Schedule, 0, len(batch))
		for _, sc := range batch {
			sc.ChatID = chatID
			sc.ID = id
			sc.Username = usernameOrNone(sc.Username)
			rows = append(rows, sc)
			out = append(out, sc)
			id++
		}
		return rows, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *memoryStore) ListSchedules(_ context.Context, chatID int64) ([]reminders.Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	return slices.Clone(s.chats[chatID]), nil
}

func (s *memoryStore) CountSchedules(_ context.Context, chatID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	return len(s.chats[chatID]), nil
}

func (s *memoryStore) FindByRenderedText(_ context.Context, chatID int64, text string) (reminders.Schedule, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return reminders.Schedule{}, false, ErrClosed
	}
	for _, r := range s.chats[chatID] {
		if r.Text == text {
			return r, true, nil
		}
	}
	return reminders.Schedule{}, false, nil
}

func (s *memoryStore) CheckDue(_ context.Context, now int64) ([]reminders.Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	var out []reminders.Schedule
	for _, rows := range s.chats {
		for _, r := range rows {
			if r.Target <= now {
				out = append(out, r)
			}
		}
	}
	slices.SortFunc(out, func(a, b reminders.Schedule) int {
		switch {
		case a.ChatID < b.ChatID:
			return -1
		case a.ChatID > b.ChatID:
			return 1
		}
		return byID(a, b)
	})
	return out, nil
}

func (s *memoryStore) RemoveSchedulesByQuery(_ context.Context, chatID int64, ids []int) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	n := 0
	err := s.mutateChat(chatID, func(rows []reminders.Schedule) ([]reminders.Schedule, error) {
		kept := rows[:0]
		for _, r := range rows {
			if slices.Contains(ids, r.ID) {
				n++
				continue
			}
			kept = append(kept, r)
		}
		return kept, nil
	})
	return n, err
}

func (s *memoryStore) RemoveScheduleByID(ctx context.Context, chatID int64, id int) (bool, error) {
	n, err := s.RemoveSchedulesByQuery(ctx, chatID, []int{id})
	return n > 0, err
}

func (s *memoryStore) ClearAllSchedules(_ context.Context, chatID int64) (int, error) {
	n := 0
	err := s.mutateChat(chatID, func(rows []reminders.Schedule) ([]reminders.Schedule, error) {
		n = len(rows)
		return nil, nil
	})
	return n, err
}

func (s *memoryStore) ReorderSchedules(_ context.Context, chatID int64) error {
	return s.mutateChat(chatID, func(rows []reminders.Schedule) ([]reminders.Schedule, error) {
		for i := range rows {
			rows[i].ID = i + 1
		}
		return rows, nil
	})
}

func (s *memoryStore) GetUser(_ context.Context, id int64) (reminders.User, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return reminders.User{}, false, ErrClosed
	}
	u, ok := s.users[id]
	return u, ok, nil
}

func (s *memoryStore) PutUser(_ context.Context, u reminders.User) error {
	u.Language = replies.Language(langOrDefault(u.Language))
	return s.mutateUser(u.ID, func(reminders.User, bool) (reminders.User, bool) { return u, true })
}

func (s *memoryStore) SetLanguage(_ context.Context, id int64, lang replies.Language) error {
	return s.mutateUser(id, func(u reminders.User, ok bool) (reminders.User, bool) {
		u.Language = replies.Language(langOrDefault(lang))
		return u, ok
	})
}

// mutateUser stores fn's result when fn reports true.
func (s *memoryStore) mutateUser(id int64, fn func(u reminders.User, ok bool) (reminders.User, bool)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	old, had := s.users[id]
	next, store := fn(old, had)
	if !store {
		return nil
	}
	s.users[id] = next
	if err := s.persistLocked(); err != nil {
		if had {
			s.users[id] = old
		} else {
			delete(s.users, id)
		}
		s.log.Error("snapshot write failed", logx.Int64("user_id", id), logx.Err(err))
		return err
	}
	return nil
}

func byID(a, b reminders.Schedule) int { return a.ID - b.ID }
