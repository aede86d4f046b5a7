package framework

import (
	"errors"
	"fmt"
)

// Error kinds shared by the agent loop, tools and model clients. Callers wrap
// them with context and test with errors.Is.
var (
	ErrToolNotFound         = errors.New("tool not found")
	ErrInvalidToolArguments = errors.New("invalid tool arguments")
	ErrMalformedAction      = errors.New("malformed action")
	ErrLLMProvider          = errors.New("llm provider error")
	ErrConfiguration        = errors.New("configuration error")
	ErrStorageNotFound      = errors.New("record not found")
)

// ToolError is returned by tools for failures that should reach the model as
// plain text. Msg is what the model sees; Kind is one of the sentinels above.
type ToolError struct {
	Tool string
	Kind error
	Msg  string
}

func (e *ToolError) Error() string {
	if e.Tool == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Tool, e.Msg)
}

// Unwrap exposes the error kind to errors.Is.
func (e *ToolError) Unwrap() error { return e.Kind }

// InvalidArgs builds an ErrInvalidToolArguments failure for the named tool.
func InvalidArgs(tool, format string, args ...interface{}) error {
	return &ToolError{Tool: tool, Kind: ErrInvalidToolArguments, Msg: fmt.Sprintf(format, args...)}
}

// NotFound builds an ErrStorageNotFound failure for the named tool.
func NotFound(tool, format string, args ...interface{}) error {
	return &ToolError{Tool: tool, Kind: ErrStorageNotFound, Msg: fmt.Sprintf(format, args...)}
}

// IsObservable reports whether err is a tool-level failure that the loop
// feeds back as an ordinary observation instead of entering error recovery.
func IsObservable(err error) bool {
	return errors.Is(err, ErrInvalidToolArguments) || errors.Is(err, ErrStorageNotFound)
}

// ObservationText returns the model-facing text for a tool failure.
func ObservationText(err error) string {
	var te *ToolError
	if errors.As(err, &te) {
		return te.Msg
	}
	return err.Error()
}
