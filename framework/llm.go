package framework

import "context"

// Chat roles understood by every model client.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// LLMOptions configure a single completion request.
type LLMOptions struct {
	Model       string
	Temperature float64
	MaxTokens   int
	Stop        []string
}

// LLMResponse normalizes responses from different providers.
type LLMResponse struct {
	Text         string
	Model        string
	FinishReason string
	Usage        map[string]int
}

// Message is one turn of a chat request. ImageURL carries a data URI or a
// remote URL for vision-capable providers.
type Message struct {
	Role     string `json:"role"`
	Content  string `json:"content"`
	ImageURL string `json:"image_url,omitempty"`
}

// LanguageModel is the request/response contract for remote completion
// services. Implementations must return an error wrapping ErrLLMProvider when
// the provider answers without a usable choice.
type LanguageModel interface {
	Chat(ctx context.Context, messages []Message, options *LLMOptions) (*LLMResponse, error)
}

// LanguageModelFunc adapts a function to LanguageModel.
type LanguageModelFunc func(ctx context.Context, messages []Message, options *LLMOptions) (*LLMResponse, error)

// Chat calls f.
func (f LanguageModelFunc) Chat(ctx context.Context, messages []Message, options *LLMOptions) (*LLMResponse, error) {
	return f(ctx, messages, options)
}
