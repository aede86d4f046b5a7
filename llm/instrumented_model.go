package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ghonijee/money-tracker-ai-agent/framework"
	"github.com/ghonijee/money-tracker-ai-agent/persistence"
)

// MessageLogger persists one record per model call.
type MessageLogger interface {
	Append(ctx context.Context, entry persistence.MessageLog) (int64, error)
}

// InstrumentedModel wraps a LanguageModel, emits telemetry for prompts and
// responses and records every call in the message log.
type InstrumentedModel struct {
	Inner     framework.LanguageModel
	Telemetry framework.Telemetry
	Log       MessageLogger
	Logger    zerolog.Logger
	Debug     bool
	now       func() time.Time
}

func NewInstrumentedModel(inner framework.LanguageModel, telemetry framework.Telemetry, log MessageLogger, logger zerolog.Logger, debug bool) *InstrumentedModel {
	return &InstrumentedModel{Inner: inner, Telemetry: telemetry, Log: log, Logger: logger, Debug: debug}
}

func (m *InstrumentedModel) Chat(ctx context.Context, messages []framework.Message, options *framework.LLMOptions) (*framework.LLMResponse, error) {
	m.emitPrompt(ctx, messages, options)
	started := m.clock()
	resp, err := m.Inner.Chat(ctx, messages, options)
	m.emitResponse(ctx, resp, err, m.clock().Sub(started))
	m.record(ctx, messages, options, resp, err, started)
	return resp, err
}

func (m *InstrumentedModel) emitPrompt(ctx context.Context, messages []framework.Message, options *framework.LLMOptions) {
	if m.Telemetry == nil {
		return
	}
	roles := make([]string, 0, len(messages))
	for _, msg := range messages {
		roles = append(roles, msg.Role)
	}
	metadata := map[string]interface{}{
		"model":         modelFromOptions(options),
		"message_count": len(messages),
		"roles":         roles,
	}
	if len(messages) > 0 {
		metadata["last_message_preview"] = clip(messages[len(messages)-1].Content, 512)
	}
	if m.Debug {
		full := make([]map[string]interface{}, 0, len(messages))
		for _, msg := range messages {
			full = append(full, map[string]interface{}{
				"role":    msg.Role,
				"content": clip(msg.Content, 8192),
			})
		}
		metadata["messages"] = full
	}
	m.emit(ctx, framework.EventLLMPrompt, "llm chat prompt", metadata)
}

func (m *InstrumentedModel) emitResponse(ctx context.Context, resp *framework.LLMResponse, err error, elapsed time.Duration) {
	if m.Telemetry == nil {
		return
	}
	metadata := map[string]interface{}{
		"duration_ms": elapsed.Milliseconds(),
	}
	if resp != nil {
		metadata["model"] = resp.Model
		metadata["finish_reason"] = resp.FinishReason
		metadata["text_preview"] = clip(resp.Text, 1024)
		metadata["usage"] = resp.Usage
	}
	if err != nil {
		metadata["error"] = err.Error()
	}
	m.emit(ctx, framework.EventLLMResponse, "llm chat response", metadata)
}

func (m *InstrumentedModel) emit(ctx context.Context, typ framework.EventType, msg string, metadata map[string]interface{}) {
	info, _ := framework.RunInfoFrom(ctx)
	m.Telemetry.Emit(framework.Event{
		Type:      typ,
		RunID:     info.RunID,
		UserID:    info.UserID,
		Timestamp: m.clock().UTC(),
		Message:   msg,
		Metadata:  metadata,
	})
}

// record writes the message log entry. Failures are logged and never
// surface to the caller.
func (m *InstrumentedModel) record(ctx context.Context, messages []framework.Message, options *framework.LLMOptions, resp *framework.LLMResponse, callErr error, started time.Time) {
	if m.Log == nil {
		return
	}
	info, _ := framework.RunInfoFrom(ctx)
	payload, err := json.Marshal(messages)
	if err != nil {
		payload = []byte(fmt.Sprintf("%d messages", len(messages)))
	}
	entry := persistence.MessageLog{
		Datetime: started.UTC(),
		RunID:    info.RunID,
		Message:  string(payload),
		Model:    modelFromOptions(options),
		Status:   callErr == nil,
	}
	if resp != nil {
		entry.Response = resp.Text
		if resp.Model != "" {
			entry.Model = resp.Model
		}
	}
	if callErr != nil {
		entry.Error = callErr.Error()
	}
	// the run context may already be cancelled; the log entry is still wanted
	logCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if _, err := m.Log.Append(logCtx, entry); err != nil {
		m.Logger.Warn().Err(err).Str("run_id", info.RunID).Msg("failed to write message log")
	}
}

func (m *InstrumentedModel) clock() time.Time {
	if m.now != nil {
		return m.now()
	}
	return time.Now()
}

func modelFromOptions(options *framework.LLMOptions) string {
	if options != nil && options.Model != "" {
		return options.Model
	}
	return ""
}

func clip(s string, max int) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	if max <= 0 {
		return ""
	}
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}
