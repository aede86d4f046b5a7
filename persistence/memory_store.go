package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// MemoryStore persists per-user conversation turns in memory_message.
type MemoryStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewMemoryStore wraps an open, migrated database.
func NewMemoryStore(db *sql.DB) *MemoryStore {
	return &MemoryStore{db: db, now: time.Now}
}

// Add stores one turn for userID.
func (s *MemoryStore) Add(ctx context.Context, userID, role, message string) (MemoryMessage, error) {
	if err := checkContext(ctx); err != nil {
		return MemoryMessage{}, err
	}
	if userID == "" {
		return MemoryMessage{}, errors.New("user id required")
	}
	now := s.now().UTC()
	queryStr, args, err := sq.Insert("memory_message").
		Columns("user_id", "role", "message", "created_at", "updated_at").
		Values(userID, role, message, now.Format(timeLayout), now.Format(timeLayout)).
		ToSql()
	if err != nil {
		return MemoryMessage{}, fmt.Errorf("build query: %w", err)
	}
	res, err := s.db.ExecContext(ctx, queryStr, args...)
	if err != nil {
		return MemoryMessage{}, fmt.Errorf("insert memory message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return MemoryMessage{}, err
	}
	return MemoryMessage{ID: id, UserID: userID, Role: role, Message: message, CreatedAt: now, UpdatedAt: now}, nil
}

// List returns up to limit turns for userID, newest first.
func (s *MemoryStore) List(ctx context.Context, userID string, limit int) ([]MemoryMessage, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	query := sq.Select("id", "user_id", "role", "message", "created_at", "updated_at").
		From("memory_message").
		Where(sq.Eq{"user_id": userID}).
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

	var out []MemoryMessage
	for rows.Next() {
		var msg MemoryMessage
		var created, updated string
		if err := rows.Scan(&msg.ID, &msg.UserID, &msg.Role, &msg.Message, &created, &updated); err != nil {
			return nil, err
		}
		msg.CreatedAt = parseTime(created)
		msg.UpdatedAt = parseTime(updated)
		out = append(out, msg)
	}
	return out, rows.Err()
}

// Clear deletes every turn stored for userID.
func (s *MemoryStore) Clear(ctx context.Context, userID string) error {
	if err := checkContext(ctx); err != nil {
		return err
	}
	queryStr, args, err := sq.Delete("memory_message").Where(sq.Eq{"user_id": userID}).ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	_, err = s.db.ExecContext(ctx, queryStr, args...)
	return err
}
