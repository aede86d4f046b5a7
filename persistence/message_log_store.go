package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// MessageLogStore appends one row per model call to message_logs.
type MessageLogStore struct {
	db *sql.DB
}

// NewMessageLogStore wraps an open, migrated database.
func NewMessageLogStore(db *sql.DB) *MessageLogStore {
	return &MessageLogStore{db: db}
}

// Append stores entry and returns its id.
func (s *MessageLogStore) Append(ctx context.Context, entry MessageLog) (int64, error) {
	if err := checkContext(ctx); err != nil {
		return 0, err
	}
	if entry.Datetime.IsZero() {
		entry.Datetime = time.Now()
	}
	status := 0
	if entry.Status {
		status = 1
	}
	queryStr, args, err := sq.Insert("message_logs").
		Columns("datetime", "run_id", "message", "response", "model", "status", "error").
		Values(entry.Datetime.UTC().Format(timeLayout), entry.RunID, entry.Message, entry.Response, entry.Model, status, entry.Error).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build query: %w", err)
	}
	res, err := s.db.ExecContext(ctx, queryStr, args...)
	if err != nil {
		return 0, fmt.Errorf("insert message log: %w", err)
	}
	return res.LastInsertId()
}

// Recent returns the newest limit entries, newest first.
func (s *MessageLogStore) Recent(ctx context.Context, limit int) ([]MessageLog, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	query := sq.Select("id", "datetime", "run_id", "message", "response", "model", "status", "error").
		From("message_logs").
		OrderBy("id DESC")
	if limit > 0 {
		query = query.Limit(uint64(limit))
	}
	queryStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, queryStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck // No remedy for rows close errors

	var out []MessageLog
	for rows.Next() {
		var entry MessageLog
		var datetime string
		var status int
		if err := rows.Scan(&entry.ID, &datetime, &entry.RunID, &entry.Message, &entry.Response, &entry.Model, &status, &entry.Error); err != nil {
			return nil, err
		}
		entry.Datetime = parseTime(datetime)
		entry.Status = status == 1
		out = append(out, entry)
	}
	return out, rows.Err()
}
