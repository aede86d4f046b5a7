package tools

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghonijee/money-tracker-ai-agent/framework"
	"github.com/ghonijee/money-tracker-ai-agent/persistence"
)

var jakarta = time.FixedZone("WIB", 7*3600)

func fixedNow() time.Time {
	return time.Date(2025, 10, 3, 12, 30, 0, 0, jakarta)
}

type scriptedModel struct {
	replies []string
	seen    [][]framework.Message
	opts    []*framework.LLMOptions
}

func (m *scriptedModel) Chat(ctx context.Context, messages []framework.Message, options *framework.LLMOptions) (*framework.LLMResponse, error) {
	m.seen = append(m.seen, messages)
	m.opts = append(m.opts, options)
	if len(m.replies) == 0 {
		return nil, errors.New("no scripted reply")
	}
	reply := m.replies[0]
	m.replies = m.replies[1:]
	return &framework.LLMResponse{Text: reply}, nil
}

func newStore(t *testing.T) *persistence.TransactionStore {
	t.Helper()
	db, err := persistence.OpenAndMigrate(context.Background(), ":memory:", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return persistence.NewTransactionStore(db)
}

func record(userID string, amount interface{}, kind string) map[string]interface{} {
	return map[string]interface{}{
		"user_id":     userID,
		"date":        "2025-10-03T12:30:00+07:00",
		"amount":      amount,
		"description": "lunch",
		"category":    "Food",
		"type":        kind,
	}
}

func observation(t *testing.T, err error) string {
	t.Helper()
	require.Error(t, err)
	require.True(t, framework.IsObservable(err), "expected observable error, got %v", err)
	return framework.ObservationText(err)
}

func TestGateQuery(t *testing.T) {
	_, err := GateQuery("find_transaction", "DELETE FROM transactions WHERE user_id = 'u'")
	assert.Equal(t, "Query must start with SELECT", observation(t, err))

	_, err = GateQuery("find_transaction", "SELECT * FROM transactions")
	assert.Equal(t, "Query must contain user_id filter", observation(t, err))

	_, err = GateQuery("find_transaction", "SELECT * FROM transactions WHERE user_id = 'u'; DROP TABLE transactions")
	assert.Equal(t, "Query must be a single statement", observation(t, err))

	valid := "SELECT SUM(amount) FROM transactions WHERE user_id = 'u' AND type = 'expense'"
	got, err := GateQuery("find_transaction", valid)
	require.NoError(t, err)
	assert.Equal(t, valid, got)

	got, err = GateQuery("find_transaction", "```sql\n"+valid+"\n```")
	require.NoError(t, err)
	assert.Equal(t, valid, got)

	got, err = GateQuery("find_transaction", `"`+valid+`"`)
	require.NoError(t, err)
	assert.Equal(t, valid, got)
}

func TestCleanQueryKeepsTrailingLiterals(t *testing.T) {
	valid := "SELECT * FROM transactions WHERE user_id = 'u' AND category = 'Food'"
	for _, in := range []string{
		valid,
		"'" + valid + "'",
		"`" + valid + "`",
		"\"`" + valid + "`\"",
		"  " + valid + "  ",
		"```\n" + valid + "\n```",
	} {
		assert.Equal(t, valid, CleanQuery(in), in)
	}

	quoted := `SELECT "total" FROM t WHERE user_id = "u"`
	assert.Equal(t, quoted, CleanQuery(quoted))
}

func TestUserIDToolIsDeterministic(t *testing.T) {
	tool, err := NewUserIDTool("secret")
	require.NoError(t, err)
	ctx := context.Background()

	a, err := tool.Execute(ctx, map[string]interface{}{"user_id": "6281234567890"})
	require.NoError(t, err)
	b, err := tool.Execute(ctx, map[string]interface{}{"user_id": "6281234567890"})
	require.NoError(t, err)
	c, err := tool.Execute(ctx, map[string]interface{}{"user_id": "6289999999999"})
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)

	_, err = NewUserIDTool("  ")
	assert.True(t, errors.Is(err, framework.ErrConfiguration))
}

func TestCreateTransactionValidation(t *testing.T) {
	tool := &CreateTransactionTool{Repo: newStore(t), Location: jakarta}
	ctx := context.Background()

	_, err := tool.Execute(ctx, map[string]interface{}{"records": []interface{}{}})
	assert.Equal(t, "Args list cannot be empty", observation(t, err))

	_, err = tool.Execute(ctx, map[string]interface{}{})
	assert.Equal(t, "Args list cannot be empty", observation(t, err))

	_, err = tool.Execute(ctx, map[string]interface{}{"records": []interface{}{record("u", "abc", "expense")}})
	assert.Equal(t, "Amount must be a number", observation(t, err))

	_, err = tool.Execute(ctx, map[string]interface{}{"records": []interface{}{record("u", 10.0, "transfer")}})
	assert.Contains(t, observation(t, err), "transaction type must be")
}

func TestCreateTransactionStoresBatch(t *testing.T) {
	store := newStore(t)
	tool := &CreateTransactionTool{Repo: store, Location: jakarta}
	ctx := context.Background()

	out, err := tool.Execute(ctx, map[string]interface{}{"records": []interface{}{
		record("u", 50000.0, "expense"),
		record("u", "1000000", "income"),
	}})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "2 record(s) successfully created"), out)

	all, err := store.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, 1000000.0, all[1].Amount)

	// a single flat record is accepted too
	out, err = tool.Execute(ctx, record("u", 25000.0, "expense"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "1 record(s) successfully created"), out)
}

func TestUpdateAndDeleteTransaction(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	created, err := store.Create(ctx, []persistence.Transaction{{
		UserID: "u", Date: fixedNow(), Amount: 50000, Description: "lunch", Category: "Food", Type: persistence.TransactionExpense,
	}})
	require.NoError(t, err)
	id := float64(created[0].ID)

	update := &UpdateTransactionTool{Repo: store, Location: jakarta}
	out, err := update.Execute(ctx, map[string]interface{}{"id": id, "user_id": "u", "amount": 60000.0})
	require.NoError(t, err)
	assert.Equal(t, "expense record successfully updated with ID 1 (60000, Food)", out)

	got, err := store.Get(ctx, created[0].ID, "u")
	require.NoError(t, err)
	assert.Equal(t, 60000.0, got.Amount)

	_, err = update.Execute(ctx, map[string]interface{}{"id": id, "user_id": "u"})
	assert.Contains(t, observation(t, err), "Nothing to update")

	_, err = update.Execute(ctx, map[string]interface{}{"id": 99.0, "user_id": "u", "amount": 1.0})
	require.Error(t, err)
	assert.True(t, errors.Is(err, framework.ErrStorageNotFound))

	// other users cannot touch the record
	_, err = update.Execute(ctx, map[string]interface{}{"id": id, "user_id": "intruder", "amount": 1.0})
	assert.True(t, errors.Is(err, framework.ErrStorageNotFound))

	del := &DeleteTransactionTool{Repo: store}
	out, err = del.Execute(ctx, map[string]interface{}{"id": "1", "user_id": "u"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "expense record successfully deleted with ID 1"), out)

	_, err = del.Execute(ctx, map[string]interface{}{"id": id, "user_id": "u"})
	assert.Equal(t, "Record with ID 1 not found", observation(t, err))
}

func TestFindTransactionArguments(t *testing.T) {
	tool := &FindTransactionTool{Repo: newStore(t)}
	ctx := context.Background()

	_, err := tool.Execute(ctx, map[string]interface{}{"query": "x"})
	assert.Equal(t, "Args should contain 'query' and 'user_id' keys", observation(t, err))

	_, err = tool.Execute(ctx, map[string]interface{}{"query": "x", "user_id": 5.0})
	assert.Equal(t, "Args 'query' and 'user_id' should be strings", observation(t, err))

	_, err = tool.Execute(ctx, map[string]interface{}{"query": "SELECT * FROM transactions WHERE user_id = 'u'", "user_id": " "})
	assert.Equal(t, "Args 'user_id' cannot be empty", observation(t, err))
}

func TestFindTransactionRunsSQLAndQuestions(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	_, err := store.Create(ctx, []persistence.Transaction{
		{UserID: "u", Date: fixedNow(), Amount: 50000, Description: "lunch", Category: "Food", Type: persistence.TransactionExpense},
		{UserID: "other", Date: fixedNow(), Amount: 10, Description: "x", Category: "Other", Type: persistence.TransactionExpense},
	})
	require.NoError(t, err)

	model := &scriptedModel{replies: []string{
		"```sql\nSELECT SUM(amount) AS total FROM transactions WHERE user_id = 'u'\n```",
		"DELETE FROM transactions WHERE user_id = 'u'",
	}}
	tool := &FindTransactionTool{Repo: store, Model: model, Location: jakarta, Now: fixedNow}

	out, err := tool.Execute(ctx, map[string]interface{}{
		"query":   "SELECT description, amount FROM transactions WHERE user_id = 'u'",
		"user_id": "u",
	})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"description":"lunch","amount":50000}]`, out)
	assert.Empty(t, model.seen, "direct SQL must not call the model")

	out, err = tool.Execute(ctx, map[string]interface{}{
		"query":   "SELECT amount FROM transactions WHERE user_id = 'u' AND type = 'expense'",
		"user_id": "u",
	})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"amount":50000}]`, out)

	out, err = tool.Execute(ctx, map[string]interface{}{"query": "how much did I spend?", "user_id": "u"})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"total":50000}]`, out)
	require.Len(t, model.seen, 1)
	assert.Contains(t, model.seen[0][1].Content, "User ID: u")

	_, err = tool.Execute(ctx, map[string]interface{}{"query": "delete my lunch", "user_id": "u"})
	assert.Equal(t, "Query must start with SELECT", observation(t, err))

	out, err = tool.Execute(ctx, map[string]interface{}{
		"query":   "SELECT * FROM transactions WHERE user_id = 'nobody'",
		"user_id": "nobody",
	})
	require.NoError(t, err)
	assert.Equal(t, "No transactions found.", out)
}

func TestGenerateDate(t *testing.T) {
	ctx := context.Background()
	model := &scriptedModel{replies: []string{`Sure: {"datetime": "2025-09-26T19:00:00+07:00"}`}}
	tool := &GenerateDateTool{Model: model, Location: jakarta, Now: fixedNow}

	out, err := tool.Execute(ctx, map[string]interface{}{"expression": "today"})
	require.NoError(t, err)
	assert.Equal(t, "2025-10-03T12:30:00+07:00", out)
	assert.Empty(t, model.seen)

	out, err = tool.Execute(ctx, map[string]interface{}{"expression": "kemarin", "format": "date"})
	require.NoError(t, err)
	assert.Equal(t, "2025-10-02", out)

	out, err = tool.Execute(ctx, map[string]interface{}{"expression": "last friday 7pm"})
	require.NoError(t, err)
	assert.Equal(t, "2025-09-26T19:00:00+07:00", out)
	require.Len(t, model.seen, 1)
	assert.Contains(t, model.seen[0][1].Content, "Reference: 2025-10-03T12:30:00+07:00")

	_, err = tool.Execute(ctx, map[string]interface{}{})
	assert.Equal(t, "Args should contain 'expression' key", observation(t, err))
}

func TestGenerateDateRejectsUnparseableReply(t *testing.T) {
	model := &scriptedModel{replies: []string{"I am not sure"}}
	tool := &GenerateDateTool{Model: model, Location: jakarta, Now: fixedNow}
	_, err := tool.Execute(context.Background(), map[string]interface{}{"expression": "someday"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, framework.ErrMalformedAction))
}

func writePNG(t *testing.T, path string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.White)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
}

func TestImageExtractSendsDataURIAndRemovesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "receipt.png")
	writePNG(t, path)

	model := &scriptedModel{replies: []string{"  Total: IDR 50.000  "}}
	tool := &ImageExtractTool{Model: model, VisionModel: "vision/model", MediaDir: dir, Logger: zerolog.Nop()}

	out, err := tool.Execute(context.Background(), map[string]interface{}{"image_path": path, "caption": "lunch"})
	require.NoError(t, err)
	assert.Equal(t, "Total: IDR 50.000", out)
	require.Len(t, model.seen, 1)
	assert.True(t, strings.HasPrefix(model.seen[0][0].ImageURL, "data:image/png;base64,"))
	assert.Contains(t, model.seen[0][0].Content, "Caption from the user: lunch")
	assert.Equal(t, "vision/model", model.opts[0].Model)

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestImageExtractRejectsNonImages(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "note.png")
	require.NoError(t, os.WriteFile(path, []byte("not an image"), 0o600))

	tool := &ImageExtractTool{Model: &scriptedModel{}, MediaDir: dir, Logger: zerolog.Nop()}
	_, err := tool.Execute(context.Background(), map[string]interface{}{"image_path": path})
	assert.Contains(t, observation(t, err), "unsupported image")
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))

	_, err = tool.Execute(context.Background(), map[string]interface{}{"image_path": "/etc/passwd"})
	assert.Contains(t, observation(t, err), "outside the media directory")
}

// silentModel answers every call with neither a response nor an error.
type silentModel struct{}

func (silentModel) Chat(ctx context.Context, messages []framework.Message, options *framework.LLMOptions) (*framework.LLMResponse, error) {
	return nil, nil
}

func TestToolsReportEmptyModelResponses(t *testing.T) {
	ctx := context.Background()

	date := &GenerateDateTool{Model: silentModel{}, Location: jakarta, Now: fixedNow}
	_, err := date.Execute(ctx, map[string]interface{}{"expression": "last friday"})
	assert.True(t, errors.Is(err, framework.ErrLLMProvider), err)

	find := &FindTransactionTool{Repo: newStore(t), Model: silentModel{}, Location: jakarta, Now: fixedNow}
	_, err = find.Execute(ctx, map[string]interface{}{"query": "how much did I spend?", "user_id": "u"})
	assert.True(t, errors.Is(err, framework.ErrLLMProvider), err)

	dir := t.TempDir()
	path := filepath.Join(dir, "receipt.png")
	writePNG(t, path)
	img := &ImageExtractTool{Model: silentModel{}, MediaDir: dir, Logger: zerolog.Nop()}
	_, err = img.Execute(ctx, map[string]interface{}{"image_path": path})
	assert.True(t, errors.Is(err, framework.ErrLLMProvider), err)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestNewFinanceRegistry(t *testing.T) {
	_, err := NewFinanceRegistry(Deps{})
	assert.True(t, errors.Is(err, framework.ErrConfiguration))

	registry, err := NewFinanceRegistry(Deps{Repo: newStore(t), SecretKey: "s", Location: jakarta})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"generate_date", "get_user_id", "get_list_category", "create_transaction",
		"find_transaction", "update_transaction", "delete_transaction", "image_extract_information",
	}, registry.Names())

	out, err := registry.Dispatch(context.Background(), "get_list_category", nil)
	require.NoError(t, err)
	assert.Contains(t, out, "Food")
}
