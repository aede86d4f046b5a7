package framework

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// EventType categorizes telemetry events.
type EventType string

const (
	EventRunStart    EventType = "run_start"
	EventRunFinish   EventType = "run_finish"
	EventIteration   EventType = "iteration"
	EventToolCall    EventType = "tool_call"
	EventToolResult  EventType = "tool_result"
	EventRecovery    EventType = "error_recovery"
	EventReprompt    EventType = "reprompt"
	EventLLMPrompt   EventType = "llm_prompt"
	EventLLMResponse EventType = "llm_response"
)

// Event captures structured telemetry data.
type Event struct {
	Type      EventType              `json:"type"`
	RunID     string                 `json:"run_id,omitempty"`
	UserID    string                 `json:"user_id,omitempty"`
	Message   string                 `json:"message,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Telemetry receives execution traces emitted by the agent loop and the
// model instrumentation.
type Telemetry interface {
	Emit(event Event)
}

// MultiplexTelemetry broadcasts events to multiple sinks.
type MultiplexTelemetry struct {
	Sinks []Telemetry
}

// Emit forwards the event to all registered sinks.
func (m MultiplexTelemetry) Emit(event Event) {
	for _, s := range m.Sinks {
		if s != nil {
			s.Emit(event)
		}
	}
}

// JSONFileTelemetry writes events as newline-delimited JSON to a file.
type JSONFileTelemetry struct {
	path string
	file *os.File
	enc  *json.Encoder
	mu   sync.Mutex
}

// NewJSONFileTelemetry opens (or creates) the log file.
func NewJSONFileTelemetry(path string) (*JSONFileTelemetry, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &JSONFileTelemetry{
		path: path,
		file: f,
		enc:  json.NewEncoder(f),
	}, nil
}

// Emit writes the JSON record.
func (j *JSONFileTelemetry) Emit(event Event) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.enc != nil {
		_ = j.enc.Encode(event)
	}
}

// Close releases the file handle.
func (j *JSONFileTelemetry) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file != nil {
		return j.file.Close()
	}
	return nil
}

// LoggerTelemetry writes events to a zerolog logger at debug level.
type LoggerTelemetry struct {
	Logger zerolog.Logger
}

// Emit logs the event.
func (t LoggerTelemetry) Emit(event Event) {
	t.Logger.Debug().
		Str("event", string(event.Type)).
		Str("run_id", event.RunID).
		Str("user_id", event.UserID).
		Fields(event.Metadata).
		Msg(event.Message)
}

// RecordingTelemetry keeps events in memory. Tests use it to assert on the
// loop's transitions.
type RecordingTelemetry struct {
	mu     sync.Mutex
	events []Event
}

// Emit stores the event.
func (r *RecordingTelemetry) Emit(event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

// Events returns a copy of everything recorded so far.
func (r *RecordingTelemetry) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Count returns how many events of the given type were recorded.
func (r *RecordingTelemetry) Count(kind EventType) int {
	n := 0
	for _, ev := range r.Events() {
		if ev.Type == kind {
			n++
		}
	}
	return n
}
