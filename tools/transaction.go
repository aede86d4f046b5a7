package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ghonijee/money-tracker-ai-agent/framework"
	"github.com/ghonijee/money-tracker-ai-agent/persistence"
)

// CreateTransactionTool stores one or more records in a single batch.
type CreateTransactionTool struct {
	Repo     persistence.TransactionRepository
	Location *time.Location
}

func (t *CreateTransactionTool) Name() string { return "create_transaction" }

func (t *CreateTransactionTool) Description() string {
	return "Record one or more expense/income transactions. Pass a list of records; each record needs user_id, date, amount, description, category and type."
}

func (t *CreateTransactionTool) Parameters() []framework.ToolParameter {
	return []framework.ToolParameter{
		{Name: "records", Type: "list", Description: "List of {user_id, date (ISO-8601), amount (number), description, category, type (expense|income)}", Required: true},
	}
}

func (t *CreateTransactionTool) OutputSchema() string {
	return "str (count of created records with their ids)"
}

func (t *CreateTransactionTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	raw, err := recordList(args)
	if err != nil {
		return "", framework.InvalidArgs(t.Name(), "%s", err.Error())
	}
	records := make([]persistence.Transaction, 0, len(raw))
	for i, item := range raw {
		rec, err := t.buildRecord(item)
		if err != nil {
			if len(raw) > 1 {
				return "", framework.InvalidArgs(t.Name(), "Record %d: %s", i+1, err.Error())
			}
			return "", framework.InvalidArgs(t.Name(), "%s", err.Error())
		}
		records = append(records, rec)
	}
	created, err := t.Repo.Create(ctx, records)
	if err != nil {
		return "", fmt.Errorf("create_transaction: %w", err)
	}
	parts := make([]string, 0, len(created))
	for _, rec := range created {
		parts = append(parts, fmt.Sprintf("ID %d (%s %s, %s)", rec.ID, rec.Type, formatAmount(rec.Amount), rec.Category))
	}
	return fmt.Sprintf("%d record(s) successfully created: %s", len(created), strings.Join(parts, "; ")), nil
}

// recordList accepts {"records": [...]} or a single flat record.
func recordList(args map[string]interface{}) ([]map[string]interface{}, error) {
	if v, ok := args["records"]; ok {
		list, ok := v.([]interface{})
		if !ok {
			return nil, errors.New("Args 'records' should be a list")
		}
		if len(list) == 0 {
			return nil, errors.New("Args list cannot be empty")
		}
		out := make([]map[string]interface{}, 0, len(list))
		for _, item := range list {
			m, ok := item.(map[string]interface{})
			if !ok {
				return nil, errors.New("Each record should be an object")
			}
			out = append(out, m)
		}
		return out, nil
	}
	if _, ok := args["amount"]; ok {
		return []map[string]interface{}{args}, nil
	}
	return nil, errors.New("Args list cannot be empty")
}

func (t *CreateTransactionTool) buildRecord(m map[string]interface{}) (persistence.Transaction, error) {
	var rec persistence.Transaction
	for _, key := range []string{"user_id", "date", "amount", "description", "category", "type"} {
		if v, ok := m[key]; !ok || v == nil {
			return rec, fmt.Errorf("Missing '%s'", key)
		}
	}
	userID, ok := stringArg(m, "user_id")
	if !ok || userID == "" {
		return rec, errors.New("'user_id' should be a non-empty string")
	}
	amount, ok := toFloat(m["amount"])
	if !ok {
		return rec, errors.New("Amount must be a number")
	}
	dateStr, _ := stringArg(m, "date")
	date, err := parseDate(dateStr, locationOrLocal(t.Location))
	if err != nil {
		return rec, err
	}
	typStr, _ := stringArg(m, "type")
	typ, err := persistence.ParseTransactionType(typStr)
	if err != nil {
		return rec, err
	}
	description, _ := stringArg(m, "description")
	category, _ := stringArg(m, "category")
	return persistence.Transaction{
		UserID:      userID,
		Date:        date,
		Amount:      amount,
		Description: description,
		Category:    category,
		Type:        typ,
	}, nil
}

// UpdateTransactionTool changes selected fields of an existing record.
type UpdateTransactionTool struct {
	Repo     persistence.TransactionRepository
	Location *time.Location
}

func (t *UpdateTransactionTool) Name() string { return "update_transaction" }

func (t *UpdateTransactionTool) Description() string {
	return "Update an existing transaction by id. Only the fields provided are changed."
}

func (t *UpdateTransactionTool) Parameters() []framework.ToolParameter {
	return []framework.ToolParameter{
		{Name: "id", Type: "int", Description: "Transaction id", Required: true},
		{Name: "user_id", Type: "str", Description: "Owner user_id", Required: true},
		{Name: "date", Type: "str", Description: "New ISO-8601 date"},
		{Name: "amount", Type: "float", Description: "New amount"},
		{Name: "description", Type: "str", Description: "New description"},
		{Name: "category", Type: "str", Description: "New category"},
		{Name: "type", Type: "str", Description: "expense or income"},
	}
}

func (t *UpdateTransactionTool) OutputSchema() string {
	return "str (confirmation with the record id, amount and category)"
}

func (t *UpdateTransactionTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	id, userID, err := recordKey(t.Name(), args)
	if err != nil {
		return "", err
	}
	var patch persistence.TransactionPatch
	if v, ok := args["date"]; ok && v != nil {
		s, _ := v.(string)
		date, err := parseDate(s, locationOrLocal(t.Location))
		if err != nil {
			return "", framework.InvalidArgs(t.Name(), "%s", err.Error())
		}
		patch.Date = &date
	}
	if v, ok := args["amount"]; ok && v != nil {
		amount, ok := toFloat(v)
		if !ok {
			return "", framework.InvalidArgs(t.Name(), "Amount must be a number")
		}
		patch.Amount = &amount
	}
	if s, ok := stringArg(args, "description"); ok {
		patch.Description = &s
	}
	if s, ok := stringArg(args, "category"); ok {
		patch.Category = &s
	}
	if s, ok := stringArg(args, "type"); ok {
		typ, err := persistence.ParseTransactionType(s)
		if err != nil {
			return "", framework.InvalidArgs(t.Name(), "%s", err.Error())
		}
		patch.Type = &typ
	}
	if patch.Empty() {
		return "", framework.InvalidArgs(t.Name(), "Nothing to update, provide at least one of date, amount, description, category or type")
	}
	updated, err := t.Repo.Update(ctx, id, userID, patch)
	if err != nil {
		return "", storageError(t.Name(), id, err)
	}
	return fmt.Sprintf("%s record successfully updated with ID %d (%s, %s)", updated.Type, updated.ID, formatAmount(updated.Amount), updated.Category), nil
}

// DeleteTransactionTool removes a record by id.
type DeleteTransactionTool struct {
	Repo persistence.TransactionRepository
}

func (t *DeleteTransactionTool) Name() string { return "delete_transaction" }

func (t *DeleteTransactionTool) Description() string {
	return "Delete a transaction by id."
}

func (t *DeleteTransactionTool) Parameters() []framework.ToolParameter {
	return []framework.ToolParameter{
		{Name: "id", Type: "int", Description: "Transaction id", Required: true},
		{Name: "user_id", Type: "str", Description: "Owner user_id", Required: true},
	}
}

func (t *DeleteTransactionTool) OutputSchema() string { return "str (confirmation with the deleted record)" }

func (t *DeleteTransactionTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	id, userID, err := recordKey(t.Name(), args)
	if err != nil {
		return "", err
	}
	deleted, err := t.Repo.Delete(ctx, id, userID)
	if err != nil {
		return "", storageError(t.Name(), id, err)
	}
	return fmt.Sprintf("%s record successfully deleted with ID %d (%s, %s)", deleted.Type, deleted.ID, formatAmount(deleted.Amount), deleted.Category), nil
}

func recordKey(tool string, args map[string]interface{}) (int64, string, error) {
	v, ok := args["id"]
	if !ok || v == nil {
		return 0, "", framework.InvalidArgs(tool, "Args should contain 'id' and 'user_id' keys")
	}
	id, ok := toInt64(v)
	if !ok || id <= 0 {
		return 0, "", framework.InvalidArgs(tool, "Args 'id' should be a positive integer")
	}
	userID, err := requireString(tool, args, "user_id")
	if err != nil {
		return 0, "", err
	}
	return id, userID, nil
}

func storageError(tool string, id int64, err error) error {
	if errors.Is(err, framework.ErrStorageNotFound) {
		return framework.NotFound(tool, "Record with ID %d not found", id)
	}
	return fmt.Errorf("%s: %w", tool, err)
}

func locationOrLocal(loc *time.Location) *time.Location {
	if loc == nil {
		return time.Local
	}
	return loc
}
