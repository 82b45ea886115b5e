package reminders

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"remindbot/internal/replies"
	kit "remindbot/internal/transport"
)

type memStore struct {
	mu    sync.Mutex
	rows  map[int64][]Schedule
	users map[int64]User

	removeCalls  map[int64]int
	reorderCalls map[int64]int
	addErr       error
	removeErr    map[int64]error
}

func newMemStore() *memStore {
	return &memStore{
		rows:         map[int64][]Schedule{},
		users:        map[int64]User{},
		removeCalls:  map[int64]int{},
		reorderCalls: map[int64]int{},
		removeErr:    map[int64]error{},
	}
}

func (m *memStore) nextID(chatID int64) int {
	id := 0
	for _, r := range m.rows[chatID] {
		id = max(id, r.ID)
	}
	return id + 1
}

func (m *memStore) AddSchedule(_ context.Context, s Schedule) (Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.addErr != nil {
		return Schedule{}, m.addErr
	}
	s.ID = m.nextID(s.ChatID)
	m.rows[s.ChatID] = append(m.rows[s.ChatID], s)
	return s, nil
}

func (m *memStore) AddSchedules(_ context.Context, chatID int64, batch []Schedule) ([]Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.addErr != nil {
		return nil, m.addErr
	}
	out := make([]Schedule, 0, len(batch))
	for _, s := range batch {
		s.ChatID = chatID
		s.ID = m.nextID(chatID)
		m.rows[chatID] = append(m.rows[chatID], s)
		out = append(out, s)
	}
	return out, nil
}

func (m *memStore) ListSchedules(_ context.Context, chatID int64) ([]Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := slices.Clone(m.rows[chatID])
	slices.SortFunc(out, func(a, b Schedule) int { return a.ID - b.ID })
	return out, nil
}

func (m *memStore) CountSchedules(_ context.Context, chatID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows[chatID]), nil
}

func (m *memStore) FindByRenderedText(_ context.Context, chatID int64, text string) (Schedule, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows[chatID] {
		if r.Text == text {
			return r, true, nil
		}
	}
	return Schedule{}, false, nil
}

func (m *memStore) CheckDue(_ context.Context, now int64) ([]Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Schedule
	for _, rows := range m.rows {
		for _, r := range rows {
			if r.Target <= now {
				out = append(out, r)
			}
		}
	}
	slices.SortFunc(out, func(a, b Schedule) int {
		if a.ChatID != b.ChatID {
			if a.ChatID < b.ChatID {
				return -1
			}
			return 1
		}
		return a.ID - b.ID
	})
	return out, nil
}

func (m *memStore) RemoveSchedulesByQuery(_ context.Context, chatID int64, ids []int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeCalls[chatID]++
	if err := m.removeErr[chatID]; err != nil {
		return 0, err
	}
	kept := m.rows[chatID][:0]
	n := 0
	for _, r := range m.rows[chatID] {
		if slices.Contains(ids, r.ID) {
			n++
			continue
		}
		kept = append(kept, r)
	}
	m.rows[chatID] = kept
	return n, nil
}

func (m *memStore) RemoveScheduleByID(ctx context.Context, chatID int64, id int) (bool, error) {
	n, err := m.RemoveSchedulesByQuery(ctx, chatID, []int{id})
	return n > 0, err
}

func (m *memStore) ClearAllSchedules(_ context.Context, chatID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.rows[chatID])
	delete(m.rows, chatID)
	return n, nil
}

func (m *memStore) ReorderSchedules(_ context.Context, chatID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reorderCalls[chatID]++
	rows := m.rows[chatID]
	slices.SortFunc(rows, func(a, b Schedule) int { return a.ID - b.ID })
	for i := range rows {
		rows[i].ID = i + 1
	}
	return nil
}

func (m *memStore) GetUser(_ context.Context, id int64) (User, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	return u, ok, nil
}

func (m *memStore) PutUser(_ context.Context, u User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
	return nil
}

func (m *memStore) SetLanguage(_ context.Context, id int64, lang replies.Language) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		u.Language = lang
		m.users[id] = u
	}
	return nil
}

func (m *memStore) ids(chatID int64) []int {
	rows, _ := m.ListSchedules(context.Background(), chatID)
	out := make([]int, len(rows))
	for i, r := range rows {
		out[i] = r.ID
	}
	return out
}

// lineParser yields one candidate per line: "<text> @<minutes>" fires minutes from now.
type lineParser struct{}

func (lineParser) Parse(req ParseRequest) []Candidate {
	var out []Candidate
	for _, line := range strings.Split(req.Text, "\n") {
		text, mins, ok := strings.Cut(line, " @")
		if !ok {
			continue
		}
		d, err := time.ParseDuration(strings.TrimSpace(mins) + "m")
		if err != nil {
			continue
		}
		out = append(out, Candidate{Text: text, Target: req.Now.Add(d).Unix()})
	}
	return out
}

type sent struct {
	ref     kit.MessageRef
	text    string
	actions [][]kit.Action
}

type fakeMessenger struct {
	mu      sync.Mutex
	nextID  int
	sent    []sent
	edits   map[int]string
	cleared []int
	deleted []int
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{nextID: 100, edits: map[int]string{}}
}

func (f *fakeMessenger) SendText(_ context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	ref := kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: f.nextID}
	var actions [][]kit.Action
	if opt != nil {
		actions = opt.Actions
	}
	f.sent = append(f.sent, sent{ref: ref, text: text, actions: actions})
	return ref, nil
}

func (f *fakeMessenger) EditText(_ context.Context, ref kit.MessageRef, text string, _ *kit.SendOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits[ref.MessageID] = text
	return nil
}

func (f *fakeMessenger) EditActions(_ context.Context, ref kit.MessageRef, actions [][]kit.Action) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if actions == nil {
		f.cleared = append(f.cleared, ref.MessageID)
	}
	return nil
}

func (f *fakeMessenger) Delete(_ context.Context, ref kit.MessageRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, ref.MessageID)
	return nil
}

func (f *fakeMessenger) last() sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return sent{}
	}
	return f.sent[len(f.sent)-1]
}

// fakeDispatcher sends through the messenger; it can fail chats and block on a gate.
type fakeDispatcher struct {
	msg  *fakeMessenger
	mu   sync.Mutex
	fail map[int64]bool
	// entered is signalled before waiting on gate.
	entered chan struct{}
	gate    chan struct{}

	fired   []Schedule
	cleared []kit.MessageRef
}

func (d *fakeDispatcher) Fire(ctx context.Context, s Schedule, lang replies.Language) (kit.MessageRef, error) {
	if d.entered != nil {
		select {
		case d.entered <- struct{}{}:
		default:
		}
	}
	if d.gate != nil {
		select {
		case <-d.gate:
		case <-ctx.Done():
			return kit.MessageRef{}, ctx.Err()
		}
	}
	d.mu.Lock()
	d.fired = append(d.fired, s)
	fail := d.fail[s.ChatID]
	d.mu.Unlock()
	if fail {
		return kit.MessageRef{}, errors.New("chat unreachable")
	}
	return d.msg.SendText(ctx, kit.ChatTarget{ChatID: s.ChatID}, replies.For(lang).FiredLine(s.Username, s.Text),
		&kit.SendOptions{Actions: [][]kit.Action{{{Text: "Repeat", Data: ActionRepeat}}}})
}

func (d *fakeDispatcher) ClearActions(_ context.Context, ref kit.MessageRef) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cleared = append(d.cleared, ref)
	return nil
}

func (d *fakeDispatcher) firedCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.fired)
}

type timerJob struct {
	at  time.Time
	job func(ctx context.Context) error
}

type fakeTimers struct {
	mu   sync.Mutex
	jobs map[string]timerJob
}

func newFakeTimers() *fakeTimers { return &fakeTimers{jobs: map[string]timerJob{}} }

func (f *fakeTimers) AddOnce(name string, at time.Time, _ time.Duration, job func(ctx context.Context) error) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[name] = timerJob{at: at, job: job}
	return name, nil
}

func (f *fakeTimers) Remove(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.jobs[name]
	delete(f.jobs, name)
	return ok
}

// fire runs and forgets the named job.
func (f *fakeTimers) fire(name string) bool {
	f.mu.Lock()
	j, ok := f.jobs[name]
	delete(f.jobs, name)
	f.mu.Unlock()
	if ok {
		_ = j.job(context.Background())
	}
	return ok
}

func (f *fakeTimers) has(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.jobs[name]
	return ok
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type harness struct {
	svc    *Service
	store  *memStore
	msg    *fakeMessenger
	disp   *fakeDispatcher
	timers *fakeTimers
	clock  *clock
}

func newHarness(set Settings) *harness {
	h := &harness{
		store:  newMemStore(),
		msg:    newFakeMessenger(),
		timers: newFakeTimers(),
		clock:  &clock{t: time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)},
	}
	h.disp = &fakeDispatcher{msg: h.msg, fail: map[int64]bool{}}
	svc, err := New(Deps{
		Store:      h.store,
		Parser:     lineParser{},
		Messenger:  h.msg,
		Dispatcher: h.disp,
		Timers:     h.timers,
		Clock:      h.clock.Now,
	}, set)
	if err != nil {
		panic(err)
	}
	h.svc = svc
	return h
}

func (h *harness) seed(chatID int64, texts ...string) {
	for _, t := range texts {
		h.seedAt(chatID, t, time.Hour)
	}
}

// seedAt stores a reminder firing in d (negative means already due).
func (h *harness) seedAt(chatID int64, text string, d time.Duration) {
	_, _ = h.store.AddSchedule(context.Background(), Schedule{
		ChatID:   chatID,
		IsGroup:  chatID < 0,
		Text:     text,
		Username: NoUsername,
		Target:   h.clock.Now().Add(d).Unix(),
	})
}
