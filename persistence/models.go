package persistence

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// TransactionType is either expense or income.
type TransactionType string

const (
	TransactionExpense TransactionType = "expense"
	TransactionIncome  TransactionType = "income"
)

// ParseTransactionType normalizes s into a TransactionType.
func ParseTransactionType(s string) (TransactionType, error) {
	switch TransactionType(strings.ToLower(strings.TrimSpace(s))) {
	case TransactionExpense:
		return TransactionExpense, nil
	case TransactionIncome:
		return TransactionIncome, nil
	default:
		return "", fmt.Errorf("transaction type must be %q or %q, got %q", TransactionExpense, TransactionIncome, s)
	}
}

// Transaction is one recorded expense or income. ID is assigned by storage.
type Transaction struct {
	ID          int64           `json:"id"`
	UserID      string          `json:"user_id"`
	Date        time.Time       `json:"date"`
	Amount      float64         `json:"amount"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Type        TransactionType `json:"type"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// TransactionPatch lists the fields an update may change. Nil fields are
// left untouched.
type TransactionPatch struct {
	Date        *time.Time
	Amount      *float64
	Description *string
	Category    *string
	Type        *TransactionType
}

// Empty reports whether the patch changes nothing.
func (p TransactionPatch) Empty() bool {
	return p.Date == nil && p.Amount == nil && p.Description == nil && p.Category == nil && p.Type == nil
}

// Row is one result row of a raw query, keyed by column name.
type Row map[string]interface{}

// TransactionRepository is the storage contract consumed by the transaction
// tools.
type TransactionRepository interface {
	Create(ctx context.Context, records []Transaction) ([]Transaction, error)
	Get(ctx context.Context, id int64, userID string) (Transaction, error)
	Update(ctx context.Context, id int64, userID string, patch TransactionPatch) (Transaction, error)
	Delete(ctx context.Context, id int64, userID string) (Transaction, error)
	FindRaw(ctx context.Context, query string) ([]Row, error)
	GetAll(ctx context.Context) ([]Transaction, error)
}

// MemoryMessage is one durable conversation turn.
type MemoryMessage struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MessageLog records one model call.
type MessageLog struct {
	ID       int64     `json:"id"`
	Datetime time.Time `json:"datetime"`
	RunID    string    `json:"run_id"`
	Message  string    `json:"message"`
	Response string    `json:"response"`
	Model    string    `json:"model"`
	Status   bool      `json:"status"`
	Error    string    `json:"error"`
}
