package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/ghonijee/money-tracker-ai-agent/framework"
)

// TransactionsTable is the table generated queries must read from.
const TransactionsTable = "transactions"

var transactionColumns = []string{
	"id", "user_id", "date", "amount", "description", "category", "type", "created_at", "updated_at",
}

// TransactionStore implements TransactionRepository on SQLite.
type TransactionStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewTransactionStore wraps an open, migrated database.
func NewTransactionStore(db *sql.DB) *TransactionStore {
	return &TransactionStore{db: db, now: time.Now}
}

var _ TransactionRepository = (*TransactionStore)(nil)

// Create inserts all records in one transaction and returns them with their
// assigned ids.
func (s *TransactionStore) Create(ctx context.Context, records []Transaction) ([]Transaction, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, errors.New("no records to create")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	now := s.now().UTC()
	created := make([]Transaction, 0, len(records))
	for _, rec := range records {
		if _, err := ParseTransactionType(string(rec.Type)); err != nil {
			return nil, err
		}
		query := sq.Insert(TransactionsTable).
			Columns("user_id", "date", "amount", "description", "category", "type", "created_at", "updated_at").
			Values(rec.UserID, rec.Date.Format(timeLayout), rec.Amount, rec.Description, rec.Category, string(rec.Type),
				now.Format(timeLayout), now.Format(timeLayout))
		queryStr, args, err := query.ToSql()
		if err != nil {
			return nil, fmt.Errorf("build query: %w", err)
		}
		res, err := tx.ExecContext(ctx, queryStr, args...)
		if err != nil {
			return nil, fmt.Errorf("insert transaction: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, err
		}
		rec.ID = id
		rec.CreatedAt = now
		rec.UpdatedAt = now
		created = append(created, rec)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return created, nil
}

// Get loads one record owned by userID.
func (s *TransactionStore) Get(ctx context.Context, id int64, userID string) (Transaction, error) {
	if err := checkContext(ctx); err != nil {
		return Transaction{}, err
	}
	return s.get(ctx, s.db, id, userID)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func (s *TransactionStore) get(ctx context.Context, q queryer, id int64, userID string) (Transaction, error) {
	query := sq.Select(transactionColumns...).
		From(TransactionsTable).
		Where(sq.Eq{"id": id, "user_id": userID})
	queryStr, args, err := query.ToSql()
	if err != nil {
		return Transaction{}, fmt.Errorf("build query: %w", err)
	}
	rec, err := scanTransaction(q.QueryRowContext(ctx, queryStr, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return Transaction{}, fmt.Errorf("transaction %d: %w", id, framework.ErrStorageNotFound)
	}
	return rec, err
}

// Update applies patch to the record and returns the stored result.
func (s *TransactionStore) Update(ctx context.Context, id int64, userID string, patch TransactionPatch) (Transaction, error) {
	if err := checkContext(ctx); err != nil {
		return Transaction{}, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Transaction{}, err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := s.get(ctx, tx, id, userID); err != nil {
		return Transaction{}, err
	}
	if !patch.Empty() {
		query := sq.Update(TransactionsTable).
			Set("updated_at", s.now().UTC().Format(timeLayout)).
			Where(sq.Eq{"id": id, "user_id": userID})
		if patch.Date != nil {
			query = query.Set("date", patch.Date.Format(timeLayout))
		}
		if patch.Amount != nil {
			query = query.Set("amount", *patch.Amount)
		}
		if patch.Description != nil {
			query = query.Set("description", *patch.Description)
		}
		if patch.Category != nil {
			query = query.Set("category", *patch.Category)
		}
		if patch.Type != nil {
			if _, err := ParseTransactionType(string(*patch.Type)); err != nil {
				return Transaction{}, err
			}
			query = query.Set("type", string(*patch.Type))
		}
		queryStr, args, err := query.ToSql()
		if err != nil {
			return Transaction{}, fmt.Errorf("build query: %w", err)
		}
		if _, err := tx.ExecContext(ctx, queryStr, args...); err != nil {
			return Transaction{}, fmt.Errorf("update transaction: %w", err)
		}
	}
	updated, err := s.get(ctx, tx, id, userID)
	if err != nil {
		return Transaction{}, err
	}
	return updated, tx.Commit()
}

// Delete removes the record and returns what was deleted.
func (s *TransactionStore) Delete(ctx context.Context, id int64, userID string) (Transaction, error) {
	if err := checkContext(ctx); err != nil {
		return Transaction{}, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Transaction{}, err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	existing, err := s.get(ctx, tx, id, userID)
	if err != nil {
		return Transaction{}, err
	}
	queryStr, args, err := sq.Delete(TransactionsTable).Where(sq.Eq{"id": id, "user_id": userID}).ToSql()
	if err != nil {
		return Transaction{}, fmt.Errorf("build query: %w", err)
	}
	if _, err := tx.ExecContext(ctx, queryStr, args...); err != nil {
		return Transaction{}, fmt.Errorf("delete transaction: %w", err)
	}
	return existing, tx.Commit()
}

// GetAll returns every stored record ordered by date.
func (s *TransactionStore) GetAll(ctx context.Context) ([]Transaction, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	queryStr, args, err := sq.Select(transactionColumns...).From(TransactionsTable).OrderBy("date", "id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, queryStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck // No remedy for rows close errors

	var out []Transaction
	for rows.Next() {
		rec, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// FindRaw runs a generated SELECT on a dedicated connection switched to
// query_only mode, inside a transaction that is always rolled back.
func (s *TransactionStore) FindRaw(ctx context.Context, query string) ([]Row, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close() //nolint:errcheck // returned to the pool

	if _, err := conn.ExecContext(ctx, "PRAGMA query_only = ON"); err != nil {
		return nil, err
	}
	defer conn.ExecContext(context.Background(), "PRAGMA query_only = OFF") //nolint:errcheck // best effort reset

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback() //nolint:errcheck // read-only work is never committed

	rows, err := tx.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer rows.Close() //nolint:errcheck // No remedy for rows close errors

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []Row
	for rows.Next() {
		values := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(Row, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(row rowScanner) (Transaction, error) {
	var (
		rec                    Transaction
		date, created, updated string
		kind                   string
	)
	if err := row.Scan(&rec.ID, &rec.UserID, &date, &rec.Amount, &rec.Description, &rec.Category, &kind, &created, &updated); err != nil {
		return Transaction{}, err
	}
	rec.Type = TransactionType(kind)
	rec.Date = parseTime(date)
	rec.CreatedAt = parseTime(created)
	rec.UpdatedAt = parseTime(updated)
	return rec, nil
}

func parseTime(s string) time.Time {
	if t, err := time.Parse(timeLayout, s); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	return time.Time{}
}
