package llm

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/ghonijee/money-tracker-ai-agent/framework"
)

// Router spreads calls over a pool of model names on one provider and
// retries rate-limited calls with exponential backoff.
type Router struct {
	Inner      framework.LanguageModel
	Models     []string
	Timeout    time.Duration
	MaxRetries int
	Logger     zerolog.Logger

	// InitialInterval is the first backoff delay; zero means one second.
	InitialInterval time.Duration
	pick            func(n int) int
}

// NewRouter builds a Router. At least one model is required.
func NewRouter(inner framework.LanguageModel, models []string, timeout time.Duration, maxRetries int, logger zerolog.Logger) (*Router, error) {
	if inner == nil {
		return nil, fmt.Errorf("%w: router needs a model client", framework.ErrConfiguration)
	}
	if len(models) == 0 {
		return nil, fmt.Errorf("%w: no models configured", framework.ErrConfiguration)
	}
	return &Router{
		Inner:      inner,
		Models:     models,
		Timeout:    timeout,
		MaxRetries: maxRetries,
		Logger:     logger.With().Str("component", "llmRouter").Logger(),
	}, nil
}

// IsRateLimitError reports whether err looks like an HTTP 429 from a provider.
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "rate_limit") ||
		strings.Contains(msg, "too many requests")
}

// Chat implements framework.LanguageModel. An explicit options.Model is
// honored; otherwise a model is drawn at random from the pool per call.
func (r *Router) Chat(ctx context.Context, messages []framework.Message, options *framework.LLMOptions) (*framework.LLMResponse, error) {
	opts := framework.LLMOptions{}
	if options != nil {
		opts = *options
	}
	if opts.Model == "" {
		opts.Model = r.Models[r.choose(len(r.Models))]
	}

	b := r.newBackOff()
	attempt := 0
	for {
		resp, err := r.call(ctx, messages, &opts)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil || !IsRateLimitError(err) {
			return nil, err
		}
		delay := b.NextBackOff()
		if delay == backoff.Stop {
			return nil, fmt.Errorf("rate limit: max retries exceeded: %w", err)
		}
		attempt++
		r.Logger.Warn().
			Str("model", opts.Model).
			Int("attempt", attempt).
			Dur("next_delay", delay).
			Err(err).
			Msg("rate limited, retrying after delay")
		if err := wait(ctx, delay); err != nil {
			return nil, err
		}
	}
}

func (r *Router) call(ctx context.Context, messages []framework.Message, opts *framework.LLMOptions) (*framework.LLMResponse, error) {
	if r.Timeout <= 0 {
		return r.Inner.Chat(ctx, messages, opts)
	}
	callCtx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()
	resp, err := r.Inner.Chat(callCtx, messages, opts)
	if err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w: model %s timed out after %s: %w", framework.ErrLLMProvider, opts.Model, r.Timeout, err)
	}
	return resp, err
}

func (r *Router) newBackOff() backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = time.Second
	if r.InitialInterval > 0 {
		eb.InitialInterval = r.InitialInterval
	}
	eb.Multiplier = 2.0
	eb.MaxInterval = time.Minute
	eb.MaxElapsedTime = 5 * time.Minute
	eb.RandomizationFactor = 0.2
	eb.Reset()
	retries := r.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return backoff.WithMaxRetries(eb, uint64(retries))
}

func (r *Router) choose(n int) int {
	if n <= 1 {
		return 0
	}
	if r.pick != nil {
		return r.pick(n)
	}
	return rand.Intn(n) //#nosec G404 -- load spreading, not security
}

func wait(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
