package agents

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ghonijee/money-tracker-ai-agent/agents/pattern"
	"github.com/ghonijee/money-tracker-ai-agent/framework"
	"github.com/ghonijee/money-tracker-ai-agent/internal/identity"
)

// DefaultExhaustedReply is sent when a run ends without an answer.
const DefaultExhaustedReply = "Sorry, I could not finish that request. Could you rephrase it?"

// FinanceAgent turns inbound messages into agent runs and keeps the durable
// conversation memory up to date.
type FinanceAgent struct {
	Loop           *pattern.ReActAgent
	Memory         *MemoryManager
	Hasher         *identity.Hasher
	ExhaustedReply string
	Logger         zerolog.Logger
}

// NewFinanceAgent wires the agent. loop, memory and hasher are required.
func NewFinanceAgent(loop *pattern.ReActAgent, memory *MemoryManager, hasher *identity.Hasher, logger zerolog.Logger) (*FinanceAgent, error) {
	if loop == nil || memory == nil || hasher == nil {
		return nil, fmt.Errorf("%w: finance agent needs a loop, memory and hasher", framework.ErrConfiguration)
	}
	return &FinanceAgent{
		Loop:           loop,
		Memory:         memory,
		Hasher:         hasher,
		ExhaustedReply: DefaultExhaustedReply,
		Logger:         logger.With().Str("component", "finance").Logger(),
	}, nil
}

// Ask handles a plain text message from rawUserID (HTTP API and CLI).
func (a *FinanceAgent) Ask(ctx context.Context, rawUserID, text string) (string, error) {
	return a.ProcessMessage(ctx, InboundMessage{
		SenderID: rawUserID,
		Type:     MessageText,
		Content:  text,
		Source:   "api",
	})
}

// ProcessMessage runs the loop for msg and returns the reply for the user.
// Only configuration errors and context cancellation are returned as errors.
// Runs for the same user are serialised from the memory summary to the
// stored answer, so each run sees the previous one and its turns stay
// adjacent. Runs for different users proceed in parallel.
func (a *FinanceAgent) ProcessMessage(ctx context.Context, msg InboundMessage) (string, error) {
	if strings.TrimSpace(msg.SenderID) == "" && msg.UserID == "" {
		return "", errors.New("message has no sender")
	}
	if msg.UserID == "" {
		msg.UserID = a.Hasher.UserID(msg.SenderID)
	}
	logger := a.Logger.With().Str("user_id", msg.UserID).Str("type", string(msg.Type)).Logger()

	unlock := a.Memory.LockUser(msg.UserID)
	defer unlock()

	summary := a.Memory.Summarize(ctx, msg.UserID)
	rc := a.Loop.NewRunContext(msg.UserID, msg.SenderID, summary)

	if err := a.Memory.add(ctx, msg.UserID, framework.RoleUser, userTurn(msg)); err != nil {
		logger.Warn().Err(err).Msg("failed to store user turn")
	}

	res, err := a.Loop.Run(ctx, rc, msg.Context())
	if err != nil {
		logger.Error().Err(err).Str("run_id", rc.ID).Msg("run failed")
		return "", err
	}
	answer := res.Answer
	if !res.Completed {
		answer = a.exhaustedReply()
	}
	logger.Info().
		Str("run_id", res.RunID).
		Int("iterations", res.Iterations).
		Int("retries", res.Retries).
		Bool("completed", res.Completed).
		Bool("recovered", res.Recovered).
		Msg("run finished")

	if err := a.Memory.add(ctx, msg.UserID, framework.RoleAssistant, answer); err != nil {
		logger.Warn().Err(err).Msg("failed to store assistant turn")
	}
	return answer, nil
}

func userTurn(msg InboundMessage) string {
	if msg.Type == "" || msg.Type == MessageText {
		return msg.Content
	}
	if msg.Content == "" {
		return fmt.Sprintf("[%s]", msg.Type)
	}
	return fmt.Sprintf("[%s] %s", msg.Type, msg.Content)
}

func (a *FinanceAgent) exhaustedReply() string {
	if a.ExhaustedReply != "" {
		return a.ExhaustedReply
	}
	return DefaultExhaustedReply
}
