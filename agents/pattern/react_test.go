package pattern

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghonijee/money-tracker-ai-agent/framework"
)

type stubLLM struct {
	mu        sync.Mutex
	responses []stubReply
	idx       int
	calls     int
	seen      [][]framework.Message
}

type stubReply struct {
	text string
	err  error
}

// Chat returns the next queued reply for deterministic tests.
func (s *stubLLM) Chat(ctx context.Context, messages []framework.Message, options *framework.LLMOptions) (*framework.LLMResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.seen = append(s.seen, messages)
	if s.idx >= len(s.responses) {
		return nil, errors.New("no response")
	}
	reply := s.responses[s.idx]
	s.idx++
	if reply.err != nil {
		return nil, reply.err
	}
	return &framework.LLMResponse{Text: reply.text}, nil
}

// repeatLLM answers every call with the same text.
type repeatLLM struct {
	text  string
	calls int
}

func (r *repeatLLM) Chat(ctx context.Context, messages []framework.Message, options *framework.LLMOptions) (*framework.LLMResponse, error) {
	r.calls++
	return &framework.LLMResponse{Text: r.text}, nil
}

type stubTool struct {
	name string
	run  func(args map[string]interface{}) (string, error)
}

func (t stubTool) Name() string        { return t.name }
func (t stubTool) Description() string { return "stub tool" }
func (t stubTool) OutputSchema() string { return "str" }
func (t stubTool) Parameters() []framework.ToolParameter {
	return []framework.ToolParameter{{Name: "value", Type: "str"}}
}
func (t stubTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	if t.run != nil {
		return t.run(args)
	}
	return fmt.Sprint("echo:", args["value"]), nil
}

func newTestAgent(model framework.LanguageModel, tools ...framework.Tool) *ReActAgent {
	registry := framework.NewToolRegistry()
	for _, tool := range tools {
		_ = registry.Register(tool)
	}
	return NewReActAgent(model, registry, Config{}, zerolog.Nop())
}

func finalAnswer(answer string) string {
	return fmt.Sprintf(`Thought: done
Action: {"name": "final_answer", "args": {"answer": %q}}`, answer)
}

func TestRunReturnsFinalAnswerInOneIteration(t *testing.T) {
	llm := &stubLLM{responses: []stubReply{{text: finalAnswer("X")}}}
	agent := newTestAgent(llm, stubTool{name: "echo"})

	res, err := agent.Run(context.Background(), nil, "hello")
	require.NoError(t, err)
	assert.Equal(t, "X", res.Answer)
	assert.True(t, res.Completed)
	assert.Equal(t, 1, res.Iterations)
	assert.Equal(t, 1, res.LLMCalls)
	assert.Equal(t, 1, llm.calls)

	first := llm.seen[0]
	require.Len(t, first, 2)
	assert.Equal(t, framework.RoleSystem, first[0].Role)
	assert.Contains(t, first[0].Content, "## echo")
	assert.Equal(t, "hello", first[1].Content)
}

func TestRunStopsWhenIterationBudgetExhausted(t *testing.T) {
	llm := &repeatLLM{text: `Action: {"name": "echo", "args": {"value": "again"}}`}
	agent := newTestAgent(llm, stubTool{name: "echo"})
	agent.Config.MaxIterations = 4

	res, err := agent.Run(context.Background(), nil, "loop forever")
	require.NoError(t, err)
	assert.False(t, res.Completed)
	assert.Empty(t, res.Answer)
	assert.Equal(t, 4, llm.calls)
	assert.Equal(t, 4, res.Iterations)
}

func TestRunFeedsObservationBack(t *testing.T) {
	llm := &stubLLM{responses: []stubReply{
		{text: `Thought: echo it
Action: {"name": "ECHO", "args": {"value": "hi"}}`},
		{text: finalAnswer("ok")},
	}}
	agent := newTestAgent(llm, stubTool{name: "echo"})

	res, err := agent.Run(context.Background(), nil, "say hi")
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Answer)
	assert.Equal(t, 2, res.Iterations)

	second := llm.seen[1]
	last := second[len(second)-1]
	assert.Equal(t, "Observation: echo:hi", last.Content)
	assert.Equal(t, framework.RoleAssistant, second[len(second)-2].Role)
}

func TestRunRepromptsWhenNoActionMarker(t *testing.T) {
	llm := &stubLLM{responses: []stubReply{
		{text: "I think the user wants something."},
		{text: finalAnswer("done")},
	}}
	agent := newTestAgent(llm)

	res, err := agent.Run(context.Background(), nil, "hi")
	require.NoError(t, err)
	assert.Equal(t, "done", res.Answer)
	assert.Equal(t, 2, res.Iterations)
	assert.Equal(t, 0, res.Retries)
	last := llm.seen[1][len(llm.seen[1])-1]
	assert.True(t, strings.HasPrefix(last.Content, "Observation: Your response did not contain an action"))
}

func TestRunRecoversFromMalformedAction(t *testing.T) {
	llm := &stubLLM{responses: []stubReply{
		{text: `Action: {"args": {}}`},
		{text: finalAnswer("fine")},
	}}
	agent := newTestAgent(llm)

	res, err := agent.Run(context.Background(), nil, "hi")
	require.NoError(t, err)
	assert.Equal(t, "fine", res.Answer)
	assert.Equal(t, 1, res.Retries)
	last := llm.seen[1][len(llm.seen[1])-1]
	assert.Contains(t, last.Content, "Observation: System Error")
	assert.Contains(t, last.Content, "please try again")
}

func TestRunRecoveryReusesConversationAndBudget(t *testing.T) {
	llm := &stubLLM{responses: []stubReply{
		{err: errors.New("upstream 500")},
		{err: errors.New("upstream 500")},
		{text: finalAnswer("recovered")},
	}}
	agent := newTestAgent(llm)
	agent.Config.MaxIterations = 3

	res, err := agent.Run(context.Background(), nil, "hi")
	require.NoError(t, err)
	assert.Equal(t, "recovered", res.Answer)
	assert.Equal(t, 2, res.Retries)
	assert.Equal(t, 3, res.Iterations)
	// system + user + two error observations
	assert.Len(t, llm.seen[2], 4)
}

func TestRunForcesApologyAfterRetriesExhausted(t *testing.T) {
	llm := &stubLLM{responses: []stubReply{
		{err: errors.New("boom")},
		{err: errors.New("boom")},
		{err: errors.New("boom")},
		{err: errors.New("boom")},
		{text: finalAnswer("Sorry, I could not finish that.")},
	}}
	agent := newTestAgent(llm, stubTool{name: "echo"})

	res, err := agent.Run(context.Background(), nil, "hi")
	require.NoError(t, err)
	assert.True(t, res.Recovered)
	assert.Equal(t, "Sorry, I could not finish that.", res.Answer)
	assert.Equal(t, 3, res.Retries)
	assert.Equal(t, 5, llm.calls)

	last := llm.seen[4][len(llm.seen[4])-1]
	assert.Contains(t, last.Content, "Apologize to the user")
}

func TestRunApologyNeverDispatchesTools(t *testing.T) {
	var dispatched int
	tool := stubTool{name: "echo", run: func(args map[string]interface{}) (string, error) {
		dispatched++
		return "", errors.New("tool crashed")
	}}
	llm := &repeatLLM{text: `Action: {"name": "echo", "args": {}}`}
	agent := newTestAgent(llm, tool)
	agent.Config.MaxRetries = 1
	agent.Config.FallbackApology = "sorry"

	res, err := agent.Run(context.Background(), nil, "hi")
	require.NoError(t, err)
	assert.Equal(t, 2, dispatched)
	assert.Equal(t, 3, llm.calls)
	assert.Equal(t, "sorry", res.Answer)
	assert.True(t, res.Recovered)
}

func TestRunApologyFallsBackWhenModelFails(t *testing.T) {
	llm := &stubLLM{responses: []stubReply{{err: errors.New("down")}}}
	agent := newTestAgent(llm)
	agent.Config.MaxRetries = -1

	res, err := agent.Run(context.Background(), nil, "hi")
	require.NoError(t, err)
	assert.Equal(t, DefaultFallbackApology, res.Answer)
	assert.Equal(t, 2, llm.calls)
}

func TestRunToolNotFoundBecomesObservation(t *testing.T) {
	llm := &stubLLM{responses: []stubReply{
		{text: `Action: {"name": "create_trans", "args": {}}`},
		{text: finalAnswer("ok")},
	}}
	agent := newTestAgent(llm, stubTool{name: "create_transaction"})

	res, err := agent.Run(context.Background(), nil, "hi")
	require.NoError(t, err)
	assert.Equal(t, 0, res.Retries)
	last := llm.seen[1][len(llm.seen[1])-1]
	assert.Contains(t, last.Content, "tool not found")
	assert.Contains(t, last.Content, `did you mean "create_transaction"`)
}

func TestRunInvalidArgumentsDoNotConsumeRetries(t *testing.T) {
	tool := stubTool{name: "create_transaction", run: func(args map[string]interface{}) (string, error) {
		return "", framework.InvalidArgs("create_transaction", "Amount must be a number")
	}}
	llm := &stubLLM{responses: []stubReply{
		{text: `Action: {"name": "create_transaction", "args": {"amount": "abc"}}`},
		{text: finalAnswer("fixed")},
	}}
	agent := newTestAgent(llm, tool)

	res, err := agent.Run(context.Background(), nil, "hi")
	require.NoError(t, err)
	assert.Equal(t, 0, res.Retries)
	last := llm.seen[1][len(llm.seen[1])-1]
	assert.Equal(t, "Observation: Amount must be a number", last.Content)
}

func TestRunConfigurationErrorIsFatal(t *testing.T) {
	tool := stubTool{name: "get_user_id", run: func(args map[string]interface{}) (string, error) {
		return "", fmt.Errorf("%w: SECRET_KEY is not set", framework.ErrConfiguration)
	}}
	llm := &repeatLLM{text: `Action: {"name": "get_user_id", "args": {}}`}
	agent := newTestAgent(llm, tool)

	_, err := agent.Run(context.Background(), nil, "hi")
	require.Error(t, err)
	assert.True(t, errors.Is(err, framework.ErrConfiguration))
	assert.Equal(t, 1, llm.calls)
}

func TestRunToolTimeoutIsRecoverable(t *testing.T) {
	slow := stubTool{name: "slow"}
	slowTool := timeoutTool{stubTool: slow}
	llm := &stubLLM{responses: []stubReply{
		{text: `Action: {"name": "slow", "args": {}}`},
		{text: finalAnswer("after timeout")},
	}}
	agent := newTestAgent(llm, slowTool)
	agent.Config.ToolTimeout = 10 * time.Millisecond

	res, err := agent.Run(context.Background(), nil, "hi")
	require.NoError(t, err)
	assert.Equal(t, "after timeout", res.Answer)
	assert.Equal(t, 1, res.Retries)
	last := llm.seen[1][len(llm.seen[1])-1]
	assert.Contains(t, last.Content, "timed out")
}

func TestRunParentCancellationEndsRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	llm := framework.LanguageModelFunc(func(ctx context.Context, messages []framework.Message, options *framework.LLMOptions) (*framework.LLMResponse, error) {
		cancel()
		return nil, ctx.Err()
	})
	agent := newTestAgent(llm)

	_, err := agent.Run(ctx, nil, "hi")
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestRunEmitsTelemetry(t *testing.T) {
	rec := &framework.RecordingTelemetry{}
	llm := &stubLLM{responses: []stubReply{
		{text: `Action: {"name": "echo", "args": {"value": 1}}`},
		{text: finalAnswer("ok")},
	}}
	agent := newTestAgent(llm, stubTool{name: "echo"})
	agent.Telemetry = rec

	_, err := agent.Run(context.Background(), nil, "hi")
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Count(framework.EventRunStart))
	assert.Equal(t, 1, rec.Count(framework.EventRunFinish))
	assert.Equal(t, 2, rec.Count(framework.EventIteration))
	assert.Equal(t, 1, rec.Count(framework.EventToolCall))
}

func TestRunKeepsScratchMemoryBounded(t *testing.T) {
	llm := &repeatLLM{text: `Action: {"name": "echo", "args": {"value": "x"}}`}
	agent := newTestAgent(llm, stubTool{name: "echo"})
	agent.Config.MaxIterations = 6
	agent.Config.MemoryCapacity = 3

	res, err := agent.Run(context.Background(), nil, "hi")
	require.NoError(t, err)
	require.Len(t, res.Scratch, 3)
	assert.Equal(t, "Observation: echo:x", res.Scratch[2].Content)
}

func TestSystemPromptInjectsUserMemory(t *testing.T) {
	agent := newTestAgent(&repeatLLM{}, stubTool{name: "echo"})
	agent.Config.SystemTemplate = "tools={tool_names} memory={user_memory}"
	prompt := agent.SystemPrompt(agent.Tools, "likes coffee")
	assert.Equal(t, "tools=echo memory=likes coffee", prompt)

	prompt = agent.SystemPrompt(agent.Tools, "")
	assert.Contains(t, prompt, "No previous conversations found.")
}

type timeoutTool struct {
	stubTool
}

func (t timeoutTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}
