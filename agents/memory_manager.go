package agents

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ghonijee/money-tracker-ai-agent/framework"
	"github.com/ghonijee/money-tracker-ai-agent/persistence"
)

const (
	// NoMemorySummary is the summary of a user with no stored turns.
	NoMemorySummary = "No previous conversations found."
	// SummaryUnavailable is used when the model cannot summarise.
	SummaryUnavailable = "Unable to generate summary."
	// DefaultSummaryLimit is how many recent turns feed a summary.
	DefaultSummaryLimit = 100
)

const summaryPrompt = `Summarize the conversation history between a user and a personal finance assistant.
Keep facts that matter for future requests: recorded transactions and their ids, amounts, categories, preferences and open questions.
Write a short plain-text paragraph in the language the user writes in.`

// MemoryRepository is the durable store behind MemoryManager.
type MemoryRepository interface {
	Add(ctx context.Context, userID, role, message string) (persistence.MemoryMessage, error)
	List(ctx context.Context, userID string, limit int) ([]persistence.MemoryMessage, error)
}

// MemoryManager keeps the per-user conversation history and condenses it
// into the summary injected into each run's system prompt.
type MemoryManager struct {
	Store        MemoryRepository
	Model        framework.LanguageModel
	SummaryLimit int
	Logger       zerolog.Logger

	locks keyedMutex
}

// NewMemoryManager wires a manager with the default summary window.
func NewMemoryManager(store MemoryRepository, model framework.LanguageModel, logger zerolog.Logger) *MemoryManager {
	return &MemoryManager{
		Store:        store,
		Model:        model,
		SummaryLimit: DefaultSummaryLimit,
		Logger:       logger.With().Str("component", "memory").Logger(),
	}
}

// Add stores one turn. Writes for the same user are serialised.
func (m *MemoryManager) Add(ctx context.Context, userID, role, message string) error {
	unlock := m.locks.Lock(userID)
	defer unlock()
	return m.add(ctx, userID, role, message)
}

// LockUser blocks until no other holder works on userID's memory and returns
// the release function. The holder must use add, not Add.
func (m *MemoryManager) LockUser(userID string) func() {
	return m.locks.Lock(userID)
}

func (m *MemoryManager) add(ctx context.Context, userID, role, message string) error {
	if _, err := m.Store.Add(ctx, userID, role, message); err != nil {
		return fmt.Errorf("store memory: %w", err)
	}
	return nil
}

// Recent returns up to limit turns, newest first.
func (m *MemoryManager) Recent(ctx context.Context, userID string, limit int) ([]persistence.MemoryMessage, error) {
	return m.Store.List(ctx, userID, limit)
}

// Summarize condenses the user's recent turns, oldest first. It never fails:
// store and model problems degrade to the fixed fallback texts.
func (m *MemoryManager) Summarize(ctx context.Context, userID string) string {
	limit := m.SummaryLimit
	if limit <= 0 {
		limit = DefaultSummaryLimit
	}
	recent, err := m.Store.List(ctx, userID, limit)
	if err != nil {
		m.Logger.Warn().Err(err).Str("user_id", userID).Msg("failed to load memory")
		return NoMemorySummary
	}
	if len(recent) == 0 {
		return NoMemorySummary
	}
	var transcript strings.Builder
	for i := len(recent) - 1; i >= 0; i-- {
		fmt.Fprintf(&transcript, "%s: %s\n", recent[i].Role, recent[i].Message)
	}
	if m.Model == nil {
		return SummaryUnavailable
	}
	resp, err := m.Model.Chat(ctx, []framework.Message{
		{Role: framework.RoleSystem, Content: summaryPrompt},
		{Role: framework.RoleUser, Content: transcript.String()},
	}, &framework.LLMOptions{Temperature: 0})
	if err != nil {
		m.Logger.Warn().Err(err).Str("user_id", userID).Msg("summary call failed")
		return SummaryUnavailable
	}
	if resp == nil || strings.TrimSpace(resp.Text) == "" {
		return SummaryUnavailable
	}
	return strings.TrimSpace(resp.Text)
}

// keyedMutex hands out one mutex per key and drops it when unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

// Lock blocks until key is free and returns its unlock function.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*refMutex)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &refMutex{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
