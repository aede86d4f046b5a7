package pattern

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ghonijee/money-tracker-ai-agent/framework"
)

// Config tunes a ReActAgent. Zero values fall back to the defaults.
type Config struct {
	Model       string
	Temperature float64
	MaxTokens   int
	Stop        []string

	MaxIterations int
	// MaxRetries of zero means the default; a negative value disables retries.
	MaxRetries     int
	MemoryCapacity int

	// LLMTimeout and ToolTimeout bound each call. A per-call timeout is a
	// recoverable error; cancellation of the parent context ends the run.
	LLMTimeout  time.Duration
	ToolTimeout time.Duration

	SystemTemplate  string
	FallbackApology string
}

// DefaultFallbackApology is returned when even the forced apology call fails.
const DefaultFallbackApology = "Sorry, something went wrong while handling your request. Please try again in a moment."

// ReActAgent implements the Reason+Act loop: call the model, parse one
// action, dispatch it, feed the observation back, until final_answer or a
// budget runs out.
type ReActAgent struct {
	Model     framework.LanguageModel
	Tools     *framework.ToolRegistry
	Config    Config
	Telemetry framework.Telemetry
	Logger    zerolog.Logger

	now func() time.Time
}

// RunResult describes how a run ended. Completed is false only when the
// iteration budget ran out without an answer. Recovered marks answers
// produced by the forced apology step.
type RunResult struct {
	RunID      string
	Answer     string
	Completed  bool
	Recovered  bool
	Iterations int
	LLMCalls   int
	Retries    int
	Scratch    []framework.MemoryEntry
}

type loopState int

const (
	stateAwaitingResponse loopState = iota
	stateHasAction
	stateNoAction
	stateDispatching
	stateErrorRecovery
	stateTerminated
)

func (s loopState) String() string {
	switch s {
	case stateAwaitingResponse:
		return "awaiting_response"
	case stateHasAction:
		return "has_action"
	case stateNoAction:
		return "no_action"
	case stateDispatching:
		return "dispatching"
	case stateErrorRecovery:
		return "error_recovery"
	case stateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// NewReActAgent wires an agent with defaults applied.
func NewReActAgent(model framework.LanguageModel, tools *framework.ToolRegistry, cfg Config, logger zerolog.Logger) *ReActAgent {
	return &ReActAgent{
		Model:  model,
		Tools:  tools,
		Config: cfg,
		Logger: logger.With().Str("component", "react").Logger(),
	}
}

// SystemPrompt renders the system message for registry.
func (a *ReActAgent) SystemPrompt(registry *framework.ToolRegistry, userMemory string) string {
	var tools []framework.Tool
	if registry != nil {
		tools = registry.All()
	}
	return RenderSystemPrompt(a.Config.SystemTemplate, tools, userMemory, a.clock())
}

// NewRunContext builds a run context with the agent's budgets and registry.
func (a *ReActAgent) NewRunContext(userID, senderID, userMemory string) *framework.RunContext {
	return &framework.RunContext{
		ID:              uuid.NewString(),
		UserID:          userID,
		SenderID:        senderID,
		UserMemory:      userMemory,
		IterationBudget: a.maxIterations(),
		RetryBudget:     a.maxRetries(),
		Registry:        a.Tools,
	}
}

// run holds the mutable state of one invocation.
type run struct {
	rc      *framework.RunContext
	conv    *framework.Conversation
	scratch *framework.ScratchMemory
	result  *RunResult
	logger  zerolog.Logger
	retries int
	action  Action
	lastErr error
}

// Run processes input for rc. It returns a nil error when the run ends with
// an answer, an apology or an exhausted iteration budget; errors are returned
// only for configuration failures and parent context cancellation.
func (a *ReActAgent) Run(ctx context.Context, rc *framework.RunContext, input string) (*RunResult, error) {
	if a.Model == nil {
		return nil, fmt.Errorf("%w: react agent missing language model", framework.ErrConfiguration)
	}
	if rc == nil {
		rc = a.NewRunContext("", "", "")
	}
	if rc.ID == "" {
		rc.ID = uuid.NewString()
	}
	if rc.Registry == nil {
		rc.Registry = a.Tools
	}
	if rc.Registry == nil {
		rc.Registry = framework.NewToolRegistry()
	}
	if rc.IterationBudget <= 0 {
		rc.IterationBudget = a.maxIterations()
	}
	if rc.RetryBudget < 0 {
		rc.RetryBudget = 0
	}
	rc.Conversation = framework.NewConversation(a.SystemPrompt(rc.Registry, rc.UserMemory))

	ctx = framework.WithRunInfo(ctx, framework.RunInfo{RunID: rc.ID, UserID: rc.UserID, SenderID: rc.SenderID})
	r := &run{
		rc:      rc,
		conv:    rc.Conversation,
		scratch: framework.NewScratchMemory(a.Config.MemoryCapacity),
		result:  &RunResult{RunID: rc.ID},
		logger:  a.Logger.With().Str("run_id", rc.ID).Str("user_id", rc.UserID).Logger(),
	}
	a.emit(r, framework.EventRunStart, "run started", map[string]interface{}{
		"iteration_budget": rc.IterationBudget,
		"retry_budget":     rc.RetryBudget,
		"tools":            rc.Registry.Names(),
	})

	r.conv.AppendUser(input)
	r.scratch.Append(framework.RoleUser, input)

	res, err := a.loop(ctx, r)
	if res != nil {
		res.Scratch = r.scratch.Entries()
	}
	meta := map[string]interface{}{
		"iterations": r.result.Iterations,
		"llm_calls":  r.result.LLMCalls,
		"retries":    r.result.Retries,
		"completed":  r.result.Completed,
		"recovered":  r.result.Recovered,
	}
	if err != nil {
		meta["error"] = err.Error()
	}
	a.emit(r, framework.EventRunFinish, "run finished", meta)
	return res, err
}

func (a *ReActAgent) loop(ctx context.Context, r *run) (*RunResult, error) {
	state := stateAwaitingResponse
	for {
		switch state {
		case stateAwaitingResponse:
			if err := ctx.Err(); err != nil {
				return r.result, err
			}
			if r.result.Iterations >= r.rc.IterationBudget {
				r.logger.Warn().Int("iterations", r.result.Iterations).Msg("iteration budget exhausted without final answer")
				return r.result, nil
			}
			r.result.Iterations++
			a.emit(r, framework.EventIteration, "iteration", map[string]interface{}{"iteration": r.result.Iterations})
			text, err := a.callModel(ctx, r.conv.Messages())
			r.result.LLMCalls++
			if err != nil {
				r.lastErr = err
				state = stateErrorRecovery
				continue
			}
			r.conv.AppendAssistant(text)
			r.scratch.Append(framework.RoleAssistant, text)
			if !HasActionMarker(text) {
				state = stateNoAction
				continue
			}
			action, err := ExtractAction(text)
			if err != nil {
				r.lastErr = err
				state = stateErrorRecovery
				continue
			}
			r.action = action
			state = stateHasAction

		case stateHasAction:
			if !r.action.IsFinal() {
				state = stateDispatching
				continue
			}
			answer, ok := r.action.Answer()
			if !ok {
				r.lastErr = fmt.Errorf("%w: final_answer requires a non-empty args.answer", framework.ErrMalformedAction)
				state = stateErrorRecovery
				continue
			}
			r.result.Answer = answer
			r.result.Completed = true
			state = stateTerminated

		case stateNoAction:
			a.emit(r, framework.EventReprompt, "response had no action", nil)
			r.observe(noActionObservation)
			state = stateAwaitingResponse

		case stateDispatching:
			out, err := a.dispatch(ctx, r)
			if err != nil {
				if errors.Is(err, framework.ErrConfiguration) {
					r.logger.Error().Err(err).Str("tool", r.action.Name).Msg("tool configuration error")
					return r.result, err
				}
				if ctx.Err() != nil {
					return r.result, ctx.Err()
				}
				switch {
				case errors.Is(err, framework.ErrToolNotFound):
					out = fmt.Sprintf("%s. Available tools: %s, final_answer", err, strings.Join(r.rc.Registry.Names(), ", "))
				case framework.IsObservable(err):
					out = framework.ObservationText(err)
				default:
					r.lastErr = err
					state = stateErrorRecovery
					continue
				}
			}
			r.observe(observation(out))
			state = stateAwaitingResponse

		case stateErrorRecovery:
			if err := ctx.Err(); err != nil {
				return r.result, err
			}
			if errors.Is(r.lastErr, framework.ErrConfiguration) {
				return r.result, r.lastErr
			}
			if r.retries < r.rc.RetryBudget {
				r.retries++
				r.result.Retries = r.retries
				r.logger.Warn().Err(r.lastErr).Int("retry", r.retries).Int("retry_budget", r.rc.RetryBudget).Msg("recovering from error")
				a.emit(r, framework.EventRecovery, "retrying after error", map[string]interface{}{
					"retry": r.retries,
					"error": r.lastErr.Error(),
				})
				r.observe(systemErrorObservation(r.lastErr))
				state = stateAwaitingResponse
				continue
			}
			return a.apologize(ctx, r)

		case stateTerminated:
			return r.result, nil
		}
	}
}

// apologize performs the forced single-iteration run once the retry budget
// is spent. No tool is dispatched; the run always ends here.
func (a *ReActAgent) apologize(ctx context.Context, r *run) (*RunResult, error) {
	r.logger.Error().Err(r.lastErr).Msg("retry budget exhausted, forcing apology")
	a.emit(r, framework.EventRecovery, "forcing apology", map[string]interface{}{"error": r.lastErr.Error()})
	r.observe(apologyObservation(r.lastErr))
	r.result.Iterations++
	r.result.LLMCalls++
	r.result.Recovered = true
	r.result.Completed = true

	text, err := a.callModel(ctx, r.conv.Messages())
	if err != nil {
		if ctx.Err() != nil {
			return r.result, ctx.Err()
		}
		r.logger.Error().Err(err).Msg("apology call failed")
		r.result.Answer = a.fallbackApology()
		return r.result, nil
	}
	r.conv.AppendAssistant(text)
	r.scratch.Append(framework.RoleAssistant, text)
	r.result.Answer = apologyAnswer(text, a.fallbackApology())
	return r.result, nil
}

func apologyAnswer(text, fallback string) string {
	if action, err := ExtractAction(text); err == nil {
		if answer, ok := action.Answer(); ok && action.IsFinal() {
			return answer
		}
		return fallback
	}
	if HasActionMarker(text) {
		return fallback
	}
	if trimmed := strings.TrimSpace(text); trimmed != "" {
		return trimmed
	}
	return fallback
}

func (a *ReActAgent) callModel(ctx context.Context, messages []framework.Message) (string, error) {
	callCtx := ctx
	if a.Config.LLMTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, a.Config.LLMTimeout)
		defer cancel()
	}
	stop := a.Config.Stop
	if stop == nil {
		stop = []string{"\nObservation:"}
	}
	resp, err := a.Model.Chat(callCtx, messages, &framework.LLMOptions{
		Model:       a.Config.Model,
		Temperature: a.Config.Temperature,
		MaxTokens:   a.Config.MaxTokens,
		Stop:        stop,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return "", fmt.Errorf("llm call timed out after %s: %w", a.Config.LLMTimeout, err)
		}
		return "", err
	}
	if resp == nil {
		return "", fmt.Errorf("%w: empty response", framework.ErrLLMProvider)
	}
	return resp.Text, nil
}

func (a *ReActAgent) dispatch(ctx context.Context, r *run) (string, error) {
	callCtx := ctx
	if a.Config.ToolTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, a.Config.ToolTimeout)
		defer cancel()
	}
	a.emit(r, framework.EventToolCall, "dispatching tool", map[string]interface{}{
		"tool": r.action.Name,
		"args": r.action.Args,
	})
	start := time.Now()
	out, err := r.rc.Registry.Dispatch(callCtx, r.action.Name, r.action.Args)
	meta := map[string]interface{}{
		"tool":        r.action.Name,
		"duration_ms": time.Since(start).Milliseconds(),
	}
	if err != nil {
		meta["error"] = err.Error()
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("tool %s timed out after %s: %w", r.action.Name, a.Config.ToolTimeout, err)
		}
	}
	a.emit(r, framework.EventToolResult, "tool finished", meta)
	r.logger.Debug().Str("tool", r.action.Name).Err(err).Msg("tool dispatched")
	return out, err
}

func (r *run) observe(text string) {
	r.conv.AppendUser(text)
	r.scratch.Append(framework.RoleUser, text)
}

func (a *ReActAgent) emit(r *run, kind framework.EventType, msg string, meta map[string]interface{}) {
	if a.Telemetry == nil {
		return
	}
	a.Telemetry.Emit(framework.Event{
		Type:      kind,
		RunID:     r.rc.ID,
		UserID:    r.rc.UserID,
		Message:   msg,
		Timestamp: a.clock().UTC(),
		Metadata:  meta,
	})
}

func (a *ReActAgent) maxIterations() int {
	if a.Config.MaxIterations <= 0 {
		return framework.DefaultIterationBudget
	}
	return a.Config.MaxIterations
}

func (a *ReActAgent) maxRetries() int {
	if a.Config.MaxRetries < 0 {
		return 0
	}
	if a.Config.MaxRetries == 0 {
		return framework.DefaultRetryBudget
	}
	return a.Config.MaxRetries
}

func (a *ReActAgent) fallbackApology() string {
	if a.Config.FallbackApology != "" {
		return a.Config.FallbackApology
	}
	return DefaultFallbackApology
}

func (a *ReActAgent) clock() time.Time {
	if a.now != nil {
		return a.now()
	}
	return time.Now()
}
