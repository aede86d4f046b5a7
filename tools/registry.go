package tools

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/ghonijee/money-tracker-ai-agent/framework"
	"github.com/ghonijee/money-tracker-ai-agent/persistence"
)

// Deps carries what the finance tools need.
type Deps struct {
	Repo        persistence.TransactionRepository
	Model       framework.LanguageModel
	VisionModel string
	SecretKey   string
	Location    *time.Location
	MediaDir    string
	Now         func() time.Time
	Logger      zerolog.Logger
}

// FinanceTools builds the default tool set. It fails with ErrConfiguration
// when the secret key is missing.
func FinanceTools(deps Deps) ([]framework.Tool, error) {
	userTool, err := NewUserIDTool(deps.SecretKey)
	if err != nil {
		return nil, err
	}
	return []framework.Tool{
		&GenerateDateTool{Model: deps.Model, Location: deps.Location, Now: deps.Now},
		userTool,
		CategoryTool{},
		&CreateTransactionTool{Repo: deps.Repo, Location: deps.Location},
		&FindTransactionTool{Repo: deps.Repo, Model: deps.Model, Location: deps.Location, Now: deps.Now},
		&UpdateTransactionTool{Repo: deps.Repo, Location: deps.Location},
		&DeleteTransactionTool{Repo: deps.Repo},
		&ImageExtractTool{Model: deps.Model, VisionModel: deps.VisionModel, MediaDir: deps.MediaDir, Logger: deps.Logger},
	}, nil
}

// NewFinanceRegistry registers FinanceTools in a fresh registry.
func NewFinanceRegistry(deps Deps) (*framework.ToolRegistry, error) {
	list, err := FinanceTools(deps)
	if err != nil {
		return nil, err
	}
	registry := framework.NewToolRegistry()
	for _, tool := range list {
		if err := registry.Register(tool); err != nil {
			return nil, err
		}
	}
	return registry, nil
}
