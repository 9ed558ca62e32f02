package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nugget/shopkeep/internal/agent"
	"github.com/nugget/shopkeep/internal/checkpoint"
	"github.com/nugget/shopkeep/internal/config"
	"github.com/nugget/shopkeep/internal/events"
	"github.com/nugget/shopkeep/internal/imagesearch"
	"github.com/nugget/shopkeep/internal/llm"
	"github.com/nugget/shopkeep/internal/ordering"
	"github.com/nugget/shopkeep/internal/store"
	"github.com/nugget/shopkeep/internal/tools"
	"github.com/nugget/shopkeep/internal/usage"
	"github.com/nugget/shopkeep/internal/workflow"
)

// app is the wired assistant shared by serve and chat.
type app struct {
	store   *store.Store
	saver   checkpoint.Saver
	usage   *usage.Store
	images  *imagesearch.Client  // nil when not configured
	uploads *imagesearch.Uploads // nil when not configured
	bus     *events.Bus
	engine  *workflow.Engine
	logger  *slog.Logger
}

// newApp opens the stores and wires the engine. A policy that does not
// classify every registered tool is a startup error.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{bus: events.New(), logger: logger}
	ready := false
	defer func() {
		if !ready {
			a.Close()
		}
	}()

	var err error

	if a.store, err = store.Open(ctx, cfg.Database.Driver, cfg.Database.DSN, logger); err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.Database.Driver, err)
	}
	logger.Info("database opened", "driver", cfg.Database.Driver)

	if a.saver, err = checkpoint.Open(ctx, cfg.Checkpoint, logger); err != nil {
		return nil, fmt.Errorf("open checkpoint store: %w", err)
	}

	if a.usage, err = usage.NewStore(cfg.Usage.Path); err != nil {
		return nil, fmt.Errorf("open usage store %s: %w", cfg.Usage.Path, err)
	}

	deps := tools.Deps{
		Catalog:   a.store,
		Orders:    a.store,
		Customers: a.store,
		TopK:      cfg.Agent.TopK,
		Logger:    logger,
	}
	if cfg.ImageSearch.URL != "" {
		a.images = imagesearch.New(cfg.ImageSearch, logger)
		deps.Images = a.images
		if a.uploads, err = imagesearch.OpenUploads(cfg.ImageSearch.UploadDir, logger); err != nil {
			return nil, err
		}
		deps.Uploads = a.uploads
		logger.Info("image search configured", "url", cfg.ImageSearch.URL, "upload_dir", cfg.ImageSearch.UploadDir)
	} else {
		logger.Warn("image search not configured, search_products_by_image will report it unavailable")
	}

	registry := tools.NewRegistry(logger)
	if err = tools.RegisterShopTools(registry, deps); err != nil {
		return nil, fmt.Errorf("register tools: %w", err)
	}
	policy := tools.DefaultPolicy()
	if err = policy.Validate(registry.Names()); err != nil {
		return nil, fmt.Errorf("tool policy: %w", err)
	}

	providers := make(map[string]string, len(cfg.Models.Available))
	for _, m := range cfg.Models.Available {
		providers[m.Name] = m.Provider
	}
	runner := agent.NewRunner(createLLMClient(cfg, logger), registry, cfg.Models.Default, logger,
		agent.WithHistoryWindow(cfg.Agent.HistoryWindow),
		agent.WithProviders(providers),
		agent.WithUsage(a.usage),
		agent.WithAudit(a.store),
		agent.WithEvents(a.bus),
	)

	a.engine = workflow.New(workflow.Deps{
		Assistant: runner,
		Tools:     registry,
		Policy:    policy,
		Orders:    ordering.NewResolver(a.store, registry, logger),
		Saver:     a.saver,
		Bus:       a.bus,
		MaxSteps:  cfg.Agent.MaxSteps,
	}, logger)

	ready = true
	return a, nil
}

// Close releases every store that was opened.
func (a *app) Close() error {
	var errs []error
	if a.uploads != nil {
		errs = append(errs, a.uploads.Close())
	}
	if a.usage != nil {
		errs = append(errs, a.usage.Close())
	}
	if a.saver != nil {
		errs = append(errs, a.saver.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("close failed", "error", err)
		return err
	}
	return nil
}

// createLLMClient builds a multi-provider client. Models not mapped to
// a provider fall through to Ollama.
func createLLMClient(cfg *config.Config, logger *slog.Logger) llm.Client {
	ollama := llm.NewOllamaClient(cfg.Models.OllamaURL, logger)
	multi := llm.NewMultiClient(ollama)
	multi.AddProvider("ollama", ollama)

	if cfg.Anthropic.APIKey != "" {
		multi.AddProvider("anthropic", llm.NewAnthropicClient(cfg.Anthropic.APIKey, logger))
		logger.Info("Anthropic provider configured")
	}
	for _, m := range cfg.Models.Available {
		multi.AddModel(m.Name, m.Provider)
	}

	defaultProvider := "ollama"
	for _, m := range cfg.Models.Available {
		if m.Name == cfg.Models.Default {
			defaultProvider = m.Provider
		}
	}
	logger.Info("LLM client initialized", "default_model", cfg.Models.Default, "default_provider", defaultProvider)
	return multi
}
