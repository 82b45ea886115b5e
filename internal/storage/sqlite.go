package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"remindbot/internal/reminders"
	"remindbot/internal/replies"
	"remindbot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

const scheduleCols = `chat_id, id, is_group, text, username, target, repeat_period, repeat_max`

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer; batches rely on it too.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := int64(defaultBusyTimeoutMS)
	if cfg.BusyTimeout > 0 {
		busy = cfg.BusyTimeout.Milliseconds()
	}
	for _, p := range []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", busy),
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(p); err != nil {
			log.Warn("sqlite pragma failed", logx.String("pragma", p), logx.Err(err))
		}
	}

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	log.Info("storage opened", logx.String("path", path))
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// inTx runs fn in one transaction, rolling back on error.
func (s *sqliteStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func nextID(ctx context.Context, tx *sql.Tx, chatID int64) (int, error) {
	var id int
	err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) FROM schedules WHERE chat_id = ?`, chatID).Scan(&id)
	return id + 1, err
}

func insertSchedule(ctx context.Context, tx *sql.Tx, sc reminders.Schedule) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO schedules(`+scheduleCols+`) VALUES(?,?,?,?,?,?,?,?)`,
		sc.ChatID, sc.ID, boolInt(sc.IsGroup), sc.Text, usernameOrNone(sc.Username), sc.Target, sc.RepeatPeriod, sc.RepeatMax,
	)
	return err
}

func (s *sqliteStore) AddSchedule(ctx context.Context, sc reminders.Schedule) (reminders.Schedule, error) {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		id, err := nextID(ctx, tx, sc.ChatID)
		if err != nil {
			return err
		}
		sc.ID = id
		return insertSchedule(ctx, tx, sc)
	})
	if err != nil {
		return reminders.Schedule{}, err
	}
	sc.Username = usernameOrNone(sc.Username)
	return sc, nil
}

func (s *sqliteStore) AddSchedules(ctx context.Context, chatID int64, batch []reminders.Schedule) ([]reminders.Schedule, error) {
	if len(batch) == 0 {
		return nil, nil
	}
	out := make([]reminders.Schedule, 0, len(batch))
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		id, err := nextID(ctx, tx, chatID)
		if err != nil {
			return err
		}
		for _, sc := range batch {
			sc.ChatID = chatID
			sc.ID = id
			sc.Username = usernameOrNone(sc.Username)
			if err := insertSchedule(ctx, tx, sc); err != nil {
				return err
			}
			out = append(out, sc)
			id++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *sqliteStore) ListSchedules(ctx context.Context, chatID int64) ([]reminders.Schedule, error) {
	return s.query(ctx, `SELECT `+scheduleCols+` FROM schedules WHERE chat_id = ? ORDER BY id`, chatID)
}

func (s *sqliteStore) CountSchedules(ctx context.Context, chatID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schedules WHERE chat_id = ?`, chatID).Scan(&n)
	return n, err
}

func (s *sqliteStore) FindByRenderedText(ctx context.Context, chatID int64, text string) (reminders.Schedule, bool, error) {
	rows, err := s.query(ctx, `SELECT `+scheduleCols+` FROM schedules WHERE chat_id = ? AND text = ? ORDER BY id LIMIT 1`, chatID, text)
	if err != nil || len(rows) == 0 {
		return reminders.Schedule{}, false, err
	}
	return rows[0], true, nil
}

func (s *sqliteStore) CheckDue(ctx context.Context, now int64) ([]reminders.Schedule, error) {
	return s.query(ctx, `SELECT `+scheduleCols+` FROM schedules WHERE target <= ? ORDER BY chat_id, id`, now)
}

func (s *sqliteStore) RemoveSchedulesByQuery(ctx context.Context, chatID int64, ids []int) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := make([]any, 0, len(ids)+1)
	args = append(args, chatID)
	for _, id := range ids {
		args = append(args, id)
	}
	q := `DELETE FROM schedules WHERE chat_id = ? AND id IN (` + placeholders(len(ids)) + `)`
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *sqliteStore) RemoveScheduleByID(ctx context.Context, chatID int64, id int) (bool, error) {
	n, err := s.RemoveSchedulesByQuery(ctx, chatID, []int{id})
	return n > 0, err
}

func (s *sqliteStore) ClearAllSchedules(ctx context.Context, chatID int64) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM schedules WHERE chat_id = ?`, chatID)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// ReorderSchedules walks the ids upwards, so every target id below the current
// one is already free when it is moved.
func (s *sqliteStore) ReorderSchedules(ctx context.Context, chatID int64) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `SELECT id FROM schedules WHERE chat_id = ? ORDER BY id`, chatID)
		if err != nil {
			return err
		}
		var ids []int
		for rows.Next() {
			var id int
			if err := rows.Scan(&id); err != nil {
				_ = rows.Close()
				return err
			}
			ids = append(ids, id)
		}
		if err := rows.Close(); err != nil {
			return err
		}
		if err := rows.Err(); err != nil {
			return err
		}
		for i, id := range ids {
			if id == i+1 {
				continue
			}
			if _, err := tx.ExecContext(ctx, `UPDATE schedules SET id = ? WHERE chat_id = ? AND id = ?`, i+1, chatID, id); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *sqliteStore) query(ctx context.Context, q string, args ...any) ([]reminders.Schedule, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []reminders.Schedule
	for rows.Next() {
		var (
			sc      reminders.Schedule
			isGroup int
		)
		if err := rows.Scan(&sc.ChatID, &sc.ID, &isGroup, &sc.Text, &sc.Username, &sc.Target, &sc.RepeatPeriod, &sc.RepeatMax); err != nil {
			return nil, err
		}
		sc.IsGroup = isGroup != 0
		out = append(out, sc)
	}
	return out, rows.Err()
}

func (s *sqliteStore) GetUser(ctx context.Context, id int64) (reminders.User, bool, error) {
	var (
		u    = reminders.User{ID: id}
		lang string
	)
	err := s.db.QueryRowContext(ctx, `SELECT tz_offset, lang FROM users WHERE id = ?`, id).Scan(&u.Offset, &lang)
	if errors.Is(err, sql.ErrNoRows) {
		return reminders.User{}, false, nil
	}
	if err != nil {
		return reminders.User{}, false, err
	}
	u.Language = replies.Language(lang)
	return u, true, nil
}

func (s *sqliteStore) PutUser(ctx context.Context, u reminders.User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users(id, tz_offset, lang) VALUES(?,?,?)
		 ON CONFLICT(id) DO UPDATE SET tz_offset = excluded.tz_offset, lang = excluded.lang`,
		u.ID, u.Offset, langOrDefault(u.Language),
	)
	return err
}

func (s *sqliteStore) SetLanguage(ctx context.Context, id int64, lang replies.Language) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET lang = ? WHERE id = ?`, langOrDefault(lang), id)
	return err
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func usernameOrNone(v string) string {
	if strings.TrimSpace(v) == "" {
		return reminders.NoUsername
	}
	return v
}

func langOrDefault(l replies.Language) string {
	if l == "" {
		return string(replies.EN)
	}
	return string(l)
}
