package llm

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/ghonijee/money-tracker-ai-agent/framework"
)

// DefaultOpenRouterURL is used when no base URL is configured.
const DefaultOpenRouterURL = "https://openrouter.ai/api/v1"

// OpenAIClient talks to any OpenAI-compatible chat completions endpoint,
// OpenRouter included.
type OpenAIClient struct {
	client openai.Client
	Model  string
}

// NewOpenAIClient builds a client for baseURL. An empty API key is a
// configuration error.
func NewOpenAIClient(baseURL, apiKey, model string, opts ...option.RequestOption) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: LLM API key is required", framework.ErrConfiguration)
	}
	if baseURL == "" {
		baseURL = DefaultOpenRouterURL
	}
	reqOpts := append([]option.RequestOption{
		option.WithBaseURL(baseURL),
		option.WithAPIKey(apiKey),
		// retries are owned by Router
		option.WithMaxRetries(0),
	}, opts...)
	return &OpenAIClient{client: openai.NewClient(reqOpts...), Model: model}, nil
}

// Chat implements framework.LanguageModel.
func (c *OpenAIClient) Chat(ctx context.Context, messages []framework.Message, options *framework.LLMOptions) (*framework.LLMResponse, error) {
	params := openai.ChatCompletionNewParams{
		Messages: convertOpenAIMessages(messages),
		Model:    openai.ChatModel(pickModel(options, c.Model)),
	}
	if options != nil {
		if options.Temperature != 0 {
			params.Temperature = openai.Float(options.Temperature)
		}
		if options.MaxTokens > 0 {
			params.MaxTokens = openai.Int(int64(options.MaxTokens))
		}
		if len(options.Stop) > 0 {
			params.Stop = openai.ChatCompletionNewParamsStopUnion{OfStringArray: options.Stop}
		}
	}
	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("%w: openai: %w", framework.ErrLLMProvider, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: openai: response has no choices", framework.ErrLLMProvider)
	}
	choice := resp.Choices[0]
	return &framework.LLMResponse{
		Text:         choice.Message.Content,
		Model:        resp.Model,
		FinishReason: string(choice.FinishReason),
		Usage: map[string]int{
			"prompt_tokens":     int(resp.Usage.PromptTokens),
			"completion_tokens": int(resp.Usage.CompletionTokens),
			"total_tokens":      int(resp.Usage.TotalTokens),
		},
	}, nil
}

func convertOpenAIMessages(messages []framework.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case framework.RoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))
		case framework.RoleAssistant:
			out = append(out, openai.AssistantMessage(msg.Content))
		default:
			if msg.ImageURL == "" {
				out = append(out, openai.UserMessage(msg.Content))
				continue
			}
			parts := []openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(msg.Content),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: msg.ImageURL}),
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{
				OfUser: &openai.ChatCompletionUserMessageParam{
					Content: openai.ChatCompletionUserMessageParamContentUnion{OfArrayOfContentParts: parts},
				},
			})
		}
	}
	return out
}

func pickModel(options *framework.LLMOptions, fallback string) string {
	if options != nil && options.Model != "" {
		return options.Model
	}
	return fallback
}
