package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ghonijee/money-tracker-ai-agent/framework"
	"github.com/ghonijee/money-tracker-ai-agent/persistence"
)

// MaxFindRows caps how many rows find_transaction returns to the model.
const MaxFindRows = 50

const sqlSystemPrompt = `You translate questions about personal finances into one SQLite SELECT statement.
Table "transactions" columns: id INTEGER, user_id TEXT, date TEXT (ISO-8601 with offset), amount REAL, description TEXT, category TEXT, type TEXT ('expense' or 'income'), created_at TEXT, updated_at TEXT.
Rules:
- Always filter with user_id = '<the given user id>'.
- Only SELECT. Never modify data.
- Compare dates as text using the ISO-8601 prefix, e.g. date >= '2025-01-01'.
- Use LIKE with lower() for case-insensitive description or category matches.
Current time: %s
Reply with the SQL only.`

// FindTransactionTool answers questions about stored transactions. A query
// that is already SQL is gated and run as is; anything else is first
// translated by the model.
type FindTransactionTool struct {
	Repo     persistence.TransactionRepository
	Model    framework.LanguageModel
	Location *time.Location
	Now      func() time.Time
}

func (t *FindTransactionTool) Name() string { return "find_transaction" }

func (t *FindTransactionTool) Description() string {
	return "Search the user's transactions. 'query' is a natural-language question (e.g. 'total food expenses this month') or a SELECT statement filtered by user_id."
}

func (t *FindTransactionTool) Parameters() []framework.ToolParameter {
	return []framework.ToolParameter{
		{Name: "query", Type: "str", Description: "Question or SELECT statement", Required: true},
		{Name: "user_id", Type: "str", Description: "Owner user_id", Required: true},
	}
}

func (t *FindTransactionTool) OutputSchema() string { return "str (JSON array of result rows)" }

func (t *FindTransactionTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	rawQuery, hasQuery := args["query"]
	rawUser, hasUser := args["user_id"]
	if !hasQuery || !hasUser {
		return "", framework.InvalidArgs(t.Name(), "Args should contain 'query' and 'user_id' keys")
	}
	query, ok1 := rawQuery.(string)
	_, ok2 := rawUser.(string)
	if !ok1 || !ok2 {
		return "", framework.InvalidArgs(t.Name(), "Args 'query' and 'user_id' should be strings")
	}
	userID, err := requireString(t.Name(), args, "user_id")
	if err != nil {
		return "", err
	}

	sqlText := CleanQuery(query)
	if !selectKeyword.MatchString(sqlText) {
		generated, err := t.translate(ctx, query, userID)
		if err != nil {
			return "", err
		}
		sqlText = generated
	}
	gated, err := GateQuery(t.Name(), sqlText)
	if err != nil {
		return "", err
	}
	if !strings.Contains(gated, userID) {
		return "", framework.InvalidArgs(t.Name(), "Query must contain user_id filter")
	}
	rows, err := t.Repo.FindRaw(ctx, gated)
	if err != nil {
		return "", framework.InvalidArgs(t.Name(), "Query failed: %v", err)
	}
	if len(rows) == 0 {
		return "No transactions found.", nil
	}
	truncated := false
	if len(rows) > MaxFindRows {
		rows = rows[:MaxFindRows]
		truncated = true
	}
	data, err := json.Marshal(rows)
	if err != nil {
		return "", fmt.Errorf("find_transaction: %w", err)
	}
	if truncated {
		return fmt.Sprintf("%s\n(showing first %d rows)", data, MaxFindRows), nil
	}
	return string(data), nil
}

func (t *FindTransactionTool) translate(ctx context.Context, question, userID string) (string, error) {
	if t.Model == nil {
		return "", framework.InvalidArgs(t.Name(), "Query must start with SELECT")
	}
	now := time.Now()
	if t.Now != nil {
		now = t.Now()
	}
	resp, err := t.Model.Chat(ctx, []framework.Message{
		{Role: framework.RoleSystem, Content: fmt.Sprintf(sqlSystemPrompt, now.In(locationOrLocal(t.Location)).Format(time.RFC3339))},
		{Role: framework.RoleUser, Content: fmt.Sprintf("User ID: %s\nQuestion: %s", userID, question)},
	}, &framework.LLMOptions{Temperature: 0, MaxTokens: 256})
	if err != nil {
		return "", fmt.Errorf("find_transaction: %w", err)
	}
	if resp == nil {
		return "", fmt.Errorf("find_transaction: %w: empty response", framework.ErrLLMProvider)
	}
	return CleanQuery(resp.Text), nil
}
