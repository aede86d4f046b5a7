// Package runtime bootstraps the money tracker: configuration, logging,
// storage, the model stack, the tool registry and the finance agent. The
// CLI, the HTTP server and the chat TUI all share it.
package runtime

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/ghonijee/money-tracker-ai-agent/agents"
	"github.com/ghonijee/money-tracker-ai-agent/agents/pattern"
	"github.com/ghonijee/money-tracker-ai-agent/framework"
	"github.com/ghonijee/money-tracker-ai-agent/internal/config"
	"github.com/ghonijee/money-tracker-ai-agent/internal/identity"
	"github.com/ghonijee/money-tracker-ai-agent/internal/logging"
	"github.com/ghonijee/money-tracker-ai-agent/internal/whatsapp"
	"github.com/ghonijee/money-tracker-ai-agent/llm"
	"github.com/ghonijee/money-tracker-ai-agent/persistence"
	"github.com/ghonijee/money-tracker-ai-agent/server"
	"github.com/ghonijee/money-tracker-ai-agent/tools"
)

// Options override parts of the bootstrap. The zero value builds
// everything from configuration.
type Options struct {
	// Model replaces the configured provider stack.
	Model framework.LanguageModel
	// LogOutput receives process logs; defaults to stderr.
	LogOutput io.Writer
	Now       func() time.Time
}

// Runtime holds the wired components.
type Runtime struct {
	Config       *config.Config
	Logger       zerolog.Logger
	DB           *sql.DB
	Transactions *persistence.TransactionStore
	MessageLog   *persistence.MessageLogStore
	Memory       *agents.MemoryManager
	Model        framework.LanguageModel
	Tools        *framework.ToolRegistry
	Loop         *pattern.ReActAgent
	Agent        *agents.FinanceAgent
	Telemetry    framework.Telemetry

	closers []io.Closer
}

// New wires a runtime from cfg. Configuration problems are reported as
// framework.ErrConfiguration before any storage is touched.
func New(ctx context.Context, cfg *config.Config, opts Options) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: missing configuration", framework.ErrConfiguration)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", framework.ErrConfiguration, err)
	}
	prompts, err := config.LoadPrompts()
	if err != nil {
		return nil, err
	}
	template, err := prompts.Template(cfg.Agent.PromptVersion)
	if err != nil {
		return nil, err
	}
	hasher, err := identity.NewHasher(cfg.SecretKey)
	if err != nil {
		return nil, err
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat, opts.LogOutput)
	rt := &Runtime{Config: cfg, Logger: logger}

	db, err := persistence.OpenAndMigrate(ctx, cfg.DatabasePath, logging.Component(logger, "storage"))
	if err != nil {
		return nil, err
	}
	rt.DB = db
	rt.closers = append(rt.closers, db)
	rt.Transactions = persistence.NewTransactionStore(db)
	rt.MessageLog = persistence.NewMessageLogStore(db)

	if err := rt.buildTelemetry(); err != nil {
		_ = rt.Close()
		return nil, err
	}

	model := opts.Model
	if model == nil {
		model, err = llm.New(cfg, rt.Telemetry, rt.MessageLog, logging.Component(logger, "llm"))
		if err != nil {
			_ = rt.Close()
			return nil, err
		}
	}
	rt.Model = model

	if cfg.Agent.MediaDir != "" {
		if err := os.MkdirAll(cfg.Agent.MediaDir, 0o755); err != nil {
			_ = rt.Close()
			return nil, fmt.Errorf("create media directory: %w", err)
		}
	}
	registry, err := tools.NewFinanceRegistry(tools.Deps{
		Repo:        rt.Transactions,
		Model:       model,
		VisionModel: cfg.LLM.VisionModel,
		SecretKey:   cfg.SecretKey,
		Location:    loc,
		MediaDir:    cfg.Agent.MediaDir,
		Now:         opts.Now,
		Logger:      logging.Component(logger, "tools"),
	})
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	rt.Tools = registry

	loop := pattern.NewReActAgent(model, registry, pattern.Config{
		Temperature:     cfg.LLM.Temperature,
		MaxTokens:       cfg.LLM.MaxTokens,
		MaxIterations:   cfg.Agent.MaxIterations,
		MaxRetries:      cfg.Agent.MaxRetries,
		MemoryCapacity:  cfg.Agent.MemoryCapacity,
		LLMTimeout:      cfg.LLMTimeout(),
		ToolTimeout:     cfg.ToolTimeout(),
		SystemTemplate:  template,
		FallbackApology: cfg.Agent.FallbackApology,
	}, logger)
	loop.Telemetry = rt.Telemetry
	rt.Loop = loop

	memory := agents.NewMemoryManager(persistence.NewMemoryStore(db), model, logger)
	if cfg.Agent.SummaryLimit > 0 {
		memory.SummaryLimit = cfg.Agent.SummaryLimit
	}
	rt.Memory = memory

	agent, err := agents.NewFinanceAgent(loop, memory, hasher, logger)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	if cfg.Agent.ExhaustedReply != "" {
		agent.ExhaustedReply = cfg.Agent.ExhaustedReply
	}
	rt.Agent = agent

	logger.Debug().
		Str("provider", cfg.LLM.Provider).
		Strs("models", cfg.LLM.Models).
		Str("prompt_version", cfg.Agent.PromptVersion).
		Int("tools", len(registry.All())).
		Msg("runtime ready")
	return rt, nil
}

func (r *Runtime) buildTelemetry() error {
	sinks := []framework.Telemetry{framework.LoggerTelemetry{Logger: logging.Component(r.Logger, "telemetry")}}
	if path := r.Config.TelemetryLog; path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("create telemetry directory: %w", err)
		}
		sink, err := framework.NewJSONFileTelemetry(path)
		if err != nil {
			return err
		}
		r.closers = append(r.closers, sink)
		sinks = append(sinks, sink)
	}
	r.Telemetry = framework.MultiplexTelemetry{Sinks: sinks}
	return nil
}

// Server builds the HTTP API. The WhatsApp client is attached only when
// its credentials are configured.
func (r *Runtime) Server() *server.APIServer {
	api := &server.APIServer{
		Agent:          r.Agent,
		VerifyToken:    r.Config.WhatsApp.VerifyToken,
		MediaDir:       r.Config.Agent.MediaDir,
		RequestTimeout: 2 * time.Minute,
		Logger:         logging.Component(r.Logger, "server"),
	}
	client, err := whatsapp.NewClient(r.Config.WhatsApp.BaseURL, r.Config.WhatsApp.Token, r.Config.WhatsApp.PhoneNumberID, logging.Component(r.Logger, "whatsapp"))
	if err != nil {
		r.Logger.Warn().Err(err).Msg("WhatsApp replies disabled")
	} else {
		api.Messenger = client
	}
	return api
}

// Close releases storage and telemetry sinks in reverse order.
func (r *Runtime) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}
