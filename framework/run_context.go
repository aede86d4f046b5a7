package framework

import "context"

// Default budgets for a single run.
const (
	DefaultIterationBudget = 10
	DefaultRetryBudget     = 3
)

// RunContext is created once per inbound message and discarded when the run
// returns.
type RunContext struct {
	ID              string
	UserID          string
	SenderID        string
	UserMemory      string
	IterationBudget int
	RetryBudget     int
	Conversation    *Conversation
	Registry        *ToolRegistry
}

type runInfoKey struct{}

// RunInfo carries run metadata through contexts so telemetry, model
// instrumentation and tools can correlate activity with a run and a user.
type RunInfo struct {
	RunID    string
	UserID   string
	SenderID string
}

// WithRunInfo attaches run metadata to the context.
func WithRunInfo(ctx context.Context, info RunInfo) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, runInfoKey{}, info)
}

// RunInfoFrom extracts run metadata, if present.
func RunInfoFrom(ctx context.Context) (RunInfo, bool) {
	if ctx == nil {
		return RunInfo{}, false
	}
	info, ok := ctx.Value(runInfoKey{}).(RunInfo)
	return info, ok
}
