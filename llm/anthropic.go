package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/ghonijee/money-tracker-ai-agent/framework"
)

const anthropicDefaultMaxTokens = 1024

// AnthropicClient implements framework.LanguageModel over the Messages API.
type AnthropicClient struct {
	client anthropic.Client
	Model  string
}

// NewAnthropicClient builds a client. An empty API key is a configuration
// error.
func NewAnthropicClient(baseURL, apiKey, model string, opts ...option.RequestOption) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: Anthropic API key is required", framework.ErrConfiguration)
	}
	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}
	if baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(baseURL))
	}
	reqOpts = append(reqOpts, opts...)
	if model == "" {
		model = string(anthropic.ModelClaudeSonnet4_5_20250929)
	}
	return &AnthropicClient{client: anthropic.NewClient(reqOpts...), Model: model}, nil
}

// Chat implements framework.LanguageModel. System messages are lifted into
// the request's system blocks.
func (c *AnthropicClient) Chat(ctx context.Context, messages []framework.Message, options *framework.LLMOptions) (*framework.LLMResponse, error) {
	msgs, system := convertAnthropicMessages(messages)
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(pickModel(options, c.Model)),
		Messages:  msgs,
		MaxTokens: anthropicDefaultMaxTokens,
	}
	if len(system) > 0 {
		params.System = system
	}
	if options != nil {
		if options.MaxTokens > 0 {
			params.MaxTokens = int64(options.MaxTokens)
		}
		if options.Temperature != 0 {
			params.Temperature = anthropic.Float(options.Temperature)
		}
		if len(options.Stop) > 0 {
			params.StopSequences = options.Stop
		}
	}
	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("%w: anthropic: %w", framework.ErrLLMProvider, err)
	}
	var text strings.Builder
	for _, block := range resp.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			text.WriteString(tb.Text)
		}
	}
	if text.Len() == 0 && len(resp.Content) == 0 {
		return nil, fmt.Errorf("%w: anthropic: response has no content", framework.ErrLLMProvider)
	}
	return &framework.LLMResponse{
		Text:         text.String(),
		Model:        string(resp.Model),
		FinishReason: string(resp.StopReason),
		Usage: map[string]int{
			"prompt_tokens":     int(resp.Usage.InputTokens),
			"completion_tokens": int(resp.Usage.OutputTokens),
		},
	}, nil
}

func convertAnthropicMessages(messages []framework.Message) ([]anthropic.MessageParam, []anthropic.TextBlockParam) {
	var system []anthropic.TextBlockParam
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case framework.RoleSystem:
			system = append(system, anthropic.TextBlockParam{Text: msg.Content})
		case framework.RoleAssistant:
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		default:
			blocks := []anthropic.ContentBlockParamUnion{}
			if mediaType, data, ok := splitDataURI(msg.ImageURL); ok {
				blocks = append(blocks, anthropic.NewImageBlockBase64(mediaType, data))
			}
			blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			out = append(out, anthropic.NewUserMessage(blocks...))
		}
	}
	return out, system
}

// splitDataURI splits "data:image/png;base64,AAAA" into media type and
// payload.
func splitDataURI(uri string) (mediaType, data string, ok bool) {
	rest, found := strings.CutPrefix(uri, "data:")
	if !found {
		return "", "", false
	}
	meta, payload, found := strings.Cut(rest, ",")
	if !found {
		return "", "", false
	}
	mediaType, enc, _ := strings.Cut(meta, ";")
	if enc != "base64" || mediaType == "" {
		return "", "", false
	}
	return mediaType, payload, true
}
