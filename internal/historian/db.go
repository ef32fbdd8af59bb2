// Package historian stores tag samples, step tests and model fits in
// SQLite.
package historian

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("not found")

// Tag roles.
const (
	RolePV    = "PV"
	RoleOP    = "OP"
	RoleSP    = "SP"
	RoleOther = "OTHER"
)

type DB struct {
	db  *sql.DB
	log *slog.Logger
	now func() time.Time

	mu   sync.Mutex
	tags map[string]int64
}

// Open opens or creates the database at path and applies migrations.
func Open(path string, log *slog.Logger) (*DB, error) {
	if log == nil {
		log = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// SQLite allows one writer; a single connection also serializes the
	// batched Writer against readers.
	conn.SetMaxOpenConns(1)

	version, err := migrate(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate %s: %w", path, err)
	}

	log = log.With(slog.String("component", "historian"))
	log.Debug("opened historian", slog.String("path", path), slog.Int("schema_version", version))
	return &DB{db: conn, log: log, now: time.Now, tags: make(map[string]int64)}, nil
}

func (h *DB) Close() error { return h.db.Close() }

// TagID returns the id of name, creating the tag with role and eu on first
// use.
func (h *DB) TagID(ctx context.Context, name, role, eu string) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if id, ok := h.tags[name]; ok {
		return id, nil
	}

	var id int64
	err := h.db.QueryRowContext(ctx, `SELECT tag_id FROM tags WHERE name=?`, name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		if role == "" {
			role = RoleOther
		}
		res, err := h.db.ExecContext(ctx, `INSERT INTO tags(name, role, eu) VALUES (?,?,?)`, name, role, nullable(eu))
		if err != nil {
			return 0, fmt.Errorf("insert tag %s: %w", name, err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return 0, err
		}
		h.log.Info("created tag", slog.String("tag", name), slog.String("role", role))
	} else if err != nil {
		return 0, err
	}
	h.tags[name] = id
	return id, nil
}

type Tag struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
	EU   string `json:"eu,omitempty"`
}

func (h *DB) Tags(ctx context.Context) ([]Tag, error) {
	rows, err := h.db.QueryContext(ctx, `SELECT tag_id, name, role, COALESCE(eu,'') FROM tags ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Tag
	for rows.Next() {
		var t Tag
		if err := rows.Scan(&t.ID, &t.Name, &t.Role, &t.EU); err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

type Session struct {
	ID      int64      `json:"id"`
	Started time.Time  `json:"started"`
	Ended   *time.Time `json:"ended,omitempty"`
	Note    string     `json:"note,omitempty"`
}

func (h *DB) NewSession(ctx context.Context, note string) (int64, error) {
	res, err := h.db.ExecContext(ctx, `INSERT INTO sessions(started_utc, note) VALUES (?,?)`, toEpoch(h.now()), nullable(note))
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	h.log.Info("session started", slog.Int64("session", id))
	return id, nil
}

func (h *DB) EndSession(ctx context.Context, id int64) error {
	res, err := h.db.ExecContext(ctx, `UPDATE sessions SET ended_utc=? WHERE session_id=?`, toEpoch(h.now()), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: session %d", ErrNotFound, id)
	}
	h.log.Info("session ended", slog.Int64("session", id))
	return nil
}

// Sessions lists sessions, newest first.
func (h *DB) Sessions(ctx context.Context) ([]Session, error) {
	rows, err := h.db.QueryContext(ctx, `SELECT session_id, started_utc, ended_utc, COALESCE(note,'') FROM sessions ORDER BY started_utc DESC, session_id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Session
	for rows.Next() {
		var (
			s       Session
			started float64
			ended   sql.NullFloat64
		)
		if err := rows.Scan(&s.ID, &started, &ended, &s.Note); err != nil {
			return nil, err
		}
		s.Started = fromEpoch(started)
		if ended.Valid {
			e := fromEpoch(ended.Float64)
			s.Ended = &e
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Timestamps are stored as float seconds since the Unix epoch.
func toEpoch(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func fromEpoch(s float64) time.Time {
	sec, frac := math.Modf(s)
	return time.Unix(int64(sec), int64(math.Round(frac*1e9))).UTC()
}
