package llm

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
	"github.com/rs/zerolog"

	"github.com/ghonijee/money-tracker-ai-agent/framework"
)

// OllamaClient implements framework.LanguageModel for a local Ollama server.
type OllamaClient struct {
	Endpoint string
	Model    string
	Debug    bool
	Logger   zerolog.Logger
	client   *api.Client
}

// NewOllamaClient builds a client for endpoint, defaulting to localhost.
func NewOllamaClient(endpoint, model string, httpClient *http.Client) (*OllamaClient, error) {
	if endpoint == "" {
		endpoint = "http://localhost:11434"
	}
	base, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid Ollama URL: %v", framework.ErrConfiguration, err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 3 * time.Minute}
	}
	return &OllamaClient{
		Endpoint: endpoint,
		Model:    model,
		Logger:   zerolog.Nop(),
		client:   api.NewClient(base, httpClient),
	}, nil
}

// Chat implements framework.LanguageModel with a non-streaming request.
func (c *OllamaClient) Chat(ctx context.Context, messages []framework.Message, options *framework.LLMOptions) (*framework.LLMResponse, error) {
	stream := false
	req := &api.ChatRequest{
		Model:    pickModel(options, c.Model),
		Messages: convertOllamaMessages(messages),
		Stream:   &stream,
		Options:  ollamaOptions(options),
	}
	if c.Debug {
		c.Logger.Debug().Str("model", req.Model).Int("messages", len(req.Messages)).Msg("ollama chat request")
	}
	var (
		text  strings.Builder
		final api.ChatResponse
	)
	err := c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		text.WriteString(resp.Message.Content)
		if resp.Done {
			final = resp
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: ollama: %w", framework.ErrLLMProvider, err)
	}
	if c.Debug {
		c.Logger.Debug().Str("response", truncate(text.String(), 2048)).Msg("ollama chat response")
	}
	usage := map[string]int{}
	if final.PromptEvalCount > 0 {
		usage["prompt_tokens"] = final.PromptEvalCount
	}
	if final.EvalCount > 0 {
		usage["completion_tokens"] = final.EvalCount
	}
	return &framework.LLMResponse{
		Text:         text.String(),
		Model:        req.Model,
		FinishReason: final.DoneReason,
		Usage:        usage,
	}, nil
}

func convertOllamaMessages(messages []framework.Message) []api.Message {
	out := make([]api.Message, 0, len(messages))
	for _, msg := range messages {
		m := api.Message{Role: msg.Role, Content: msg.Content}
		if _, data, ok := splitDataURI(msg.ImageURL); ok {
			if raw, err := base64.StdEncoding.DecodeString(data); err == nil {
				m.Images = []api.ImageData{raw}
			}
		}
		out = append(out, m)
	}
	return out
}

func ollamaOptions(options *framework.LLMOptions) map[string]interface{} {
	opts := map[string]interface{}{}
	if options == nil {
		return opts
	}
	if options.Temperature != 0 {
		opts["temperature"] = options.Temperature
	}
	if options.MaxTokens > 0 {
		opts["num_predict"] = options.MaxTokens
	}
	if len(options.Stop) > 0 {
		opts["stop"] = options.Stop
	}
	return opts
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}
