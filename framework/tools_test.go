package framework

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoTool struct {
	name   string
	prefix string
}

func (t echoTool) Name() string        { return t.name }
func (t echoTool) Description() string { return "echoes the value argument" }
func (t echoTool) OutputSchema() string { return "str" }
func (t echoTool) Parameters() []ToolParameter {
	return []ToolParameter{{Name: "value", Type: "str", Description: "text to echo", Required: true}}
}
func (t echoTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	v, ok := args["value"].(string)
	if !ok {
		return "", InvalidArgs(t.name, "Args 'value' should be a string")
	}
	return t.prefix + v, nil
}

func TestToolRegistryDispatchIsCaseInsensitive(t *testing.T) {
	reg := NewToolRegistry()
	require.NoError(t, reg.Register(echoTool{name: "Create_Transaction", prefix: "created:"}))

	for _, name := range []string{"create_transaction", "CREATE_TRANSACTION", "Create_Transaction", "cReAtE_tRaNsAcTiOn"} {
		out, err := reg.Dispatch(context.Background(), name, map[string]interface{}{"value": "x"})
		require.NoError(t, err, name)
		assert.Equal(t, "created:x", out)
	}
}

func TestToolRegistryLastRegistrationWins(t *testing.T) {
	reg := NewToolRegistry()
	require.NoError(t, reg.Register(echoTool{name: "echo", prefix: "first:"}))
	require.NoError(t, reg.Register(echoTool{name: "other", prefix: "other:"}))
	require.NoError(t, reg.Register(echoTool{name: "ECHO", prefix: "second:"}))

	out, err := reg.Dispatch(context.Background(), "echo", map[string]interface{}{"value": "v"})
	require.NoError(t, err)
	assert.Equal(t, "second:v", out)

	// The replacement keeps the original slot.
	assert.Equal(t, []string{"ECHO", "other"}, reg.Names())
}

func TestToolRegistryUnknownToolSuggestsClosest(t *testing.T) {
	reg := NewToolRegistry()
	require.NoError(t, reg.Register(echoTool{name: "create_transaction"}))
	require.NoError(t, reg.Register(echoTool{name: "find_transaction"}))

	_, err := reg.Dispatch(context.Background(), "create_trans", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrToolNotFound))
	assert.Contains(t, err.Error(), `did you mean "create_transaction"`)

	_, err = reg.Dispatch(context.Background(), "zzz", nil)
	assert.True(t, errors.Is(err, ErrToolNotFound))
	assert.NotContains(t, err.Error(), "did you mean")
}

func TestToolRegistryRejectsEmptyName(t *testing.T) {
	reg := NewToolRegistry()
	assert.Error(t, reg.Register(echoTool{name: "  "}))
	assert.Error(t, reg.Register(nil))
}

func TestToolErrorKinds(t *testing.T) {
	err := InvalidArgs("create_transaction", "Amount must be a number")
	assert.True(t, errors.Is(err, ErrInvalidToolArguments))
	assert.True(t, IsObservable(err))
	assert.Equal(t, "Amount must be a number", ObservationText(err))

	nf := NotFound("delete_transaction", "transaction %d not found", 7)
	assert.True(t, errors.Is(nf, ErrStorageNotFound))
	assert.True(t, IsObservable(nf))

	assert.False(t, IsObservable(errors.New("boom")))
	assert.Equal(t, "boom", ObservationText(errors.New("boom")))
}

func TestRenderToolsToPrompt(t *testing.T) {
	out := RenderToolsToPrompt([]Tool{echoTool{name: "echo"}})
	assert.True(t, strings.HasPrefix(out, "## echo\n"))
	assert.Contains(t, out, "  - value (str, required): text to echo")
	assert.Contains(t, out, "Returns: str")
	assert.Equal(t, "No tools available.", RenderToolsToPrompt(nil))
	assert.Equal(t, "a, b", RenderToolNames([]Tool{echoTool{name: "a"}, echoTool{name: "b"}}))
}
