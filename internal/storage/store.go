package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const (
	defaultBusyTimeout = 5000
	defaultListLimit   = 50
	maxListLimit       = 500
)

// Event kinds stored in room_events.kind.
const (
	KindMessage       = "message"
	KindParticipation = "participation"
)

// Store wraps the SQLite handle that keeps the room transcript.
type Store struct {
	db *sql.DB
}

// RoomEvent is a row in the room_events table.
type RoomEvent struct {
	ID        int64
	Room      string
	Kind      string
	UserID    string
	Content   string
	Status    string
	CreatedAt time.Time
}

// ErrInvalidEvent is returned when an event lacks its room, kind or user.
var ErrInvalidEvent = errors.New("invalid room event")

// NewStore initializes the SQLite database at the provided path. Call Close when done.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = "roomchat.db"
	}
	db, err := sql.Open("sqlite", buildDSN(path))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", defaultBusyTimeout)); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying DB connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func buildDSN(path string) string {
	switch {
	case strings.HasPrefix(path, "sqlite://"):
		path = path[len("sqlite://"):]
	case strings.HasPrefix(path, "file:"), strings.HasPrefix(path, ":memory:"):
	default:
		path = "file:" + path
	}
	separator := "?"
	if strings.Contains(path, "?") {
		separator = "&"
	}
	return fmt.Sprintf("%s%s_pragma=busy_timeout=%d&_pragma=journal_mode=WAL", path, separator, defaultBusyTimeout)
}

// Migrate runs the schema creation statements.
func (s *Store) Migrate(ctx context.Context) (err error) {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS room_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			room TEXT NOT NULL,
			kind TEXT NOT NULL,
			user_id TEXT NOT NULL,
			content TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_room_events_room ON room_events(room, id);`,
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	for _, stmt := range statements {
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// AppendEvent inserts one transcript entry and returns its id. A zero
// CreatedAt is stamped with the current time.
func (s *Store) AppendEvent(ctx context.Context, event RoomEvent) (int64, error) {
	if event.Room == "" || event.Kind == "" || event.UserID == "" {
		return 0, ErrInvalidEvent
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO room_events(room, kind, user_id, content, status, created_at) VALUES(?, ?, ?, ?, ?, ?)`,
		event.Room, event.Kind, event.UserID, event.Content, event.Status, event.CreatedAt.UTC())
	if err != nil {
		return 0, fmt.Errorf("append event: %w", err)
	}
	return result.LastInsertId()
}

// ListEvents returns the most recent events of a room, oldest first. limit
// defaults to 50 and is capped at 500.
func (s *Store) ListEvents(ctx context.Context, room string, limit int) ([]RoomEvent, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, room, kind, user_id, content, status, created_at FROM (
			SELECT id, room, kind, user_id, content, status, created_at
			FROM room_events
			WHERE room = ?
			ORDER BY id DESC
			LIMIT ?
		) ORDER BY id ASC`, room, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []RoomEvent
	for rows.Next() {
		var event RoomEvent
		if err := rows.Scan(&event.ID, &event.Room, &event.Kind, &event.UserID, &event.Content, &event.Status, &event.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// CountEvents returns how many events of the given kind were archived for a
// room. An empty kind counts every event.
func (s *Store) CountEvents(ctx context.Context, room, kind string) (int, error) {
	query := `SELECT COUNT(*) FROM room_events WHERE room = ?`
	args := []any{room}
	if kind != "" {
		query += ` AND kind = ?`
		args = append(args, kind)
	}
	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}
