package events

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/chimecam/chimecam/internal/database"
)

// Log is the durable, append-only event log backed by SQLite. A failed append
// is reported to the caller but must never stall the capture state machine;
// the controller logs it and moves on.
type Log struct {
	db     *database.DB
	logger *slog.Logger
}

// NewLog creates an event log on top of an open database.
func NewLog(db *database.DB) *Log {
	return &Log{
		db:     db,
		logger: slog.Default().With("component", "event_log"),
	}
}

// Append writes one event row. Rows are never updated or deleted.
func (l *Log) Append(ctx context.Context, ev Event) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO events (id, timestamp_ms, image_path, audio_path, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, ev.ID, ev.TimestampMs, ev.ImagePath, ev.AudioPath, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to append event row: %w", err)
	}

	l.logger.Debug("Event row appended", "id", ev.ID)
	return nil
}

// List returns the most recent events, newest first.
func (l *Log) List(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 || limit > 1000 {
		limit = 50
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT id, timestamp_ms, image_path, audio_path
		FROM events ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := []Event{}
	for rows.Next() {
		var ev Event
		var imagePath, audioPath sql.NullString
		if err := rows.Scan(&ev.ID, &ev.TimestampMs, &imagePath, &audioPath); err != nil {
			return nil, err
		}
		if imagePath.Valid {
			ev.ImagePath = imagePath.String
		}
		if audioPath.Valid {
			ev.AudioPath = audioPath.String
		}
		list = append(list, ev)
	}

	return list, rows.Err()
}

// Count returns the total number of logged events.
func (l *Log) Count(ctx context.Context) (int, error) {
	var n int
	err := l.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM events").Scan(&n)
	return n, err
}

// MaxID returns the highest logged event id, or 0 when the log is empty.
func (l *Log) MaxID(ctx context.Context) (uint64, error) {
	var id sql.NullInt64
	if err := l.db.QueryRowContext(ctx, "SELECT MAX(id) FROM events").Scan(&id); err != nil {
		return 0, err
	}
	if !id.Valid {
		return 0, nil
	}
	return uint64(id.Int64), nil
}
