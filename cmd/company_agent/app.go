package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/jonathan/company-agent/internal/agent"
	"github.com/jonathan/company-agent/internal/chat"
	"github.com/jonathan/company-agent/internal/config"
	"github.com/jonathan/company-agent/internal/db"
	"github.com/jonathan/company-agent/internal/importer"
	"github.com/jonathan/company-agent/internal/llm"
	"github.com/jonathan/company-agent/internal/logging"
	"github.com/jonathan/company-agent/internal/resolver"
)

// app holds the services shared by every command.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	store    db.Store
	llm      llm.Client
	chat     *chat.Service
	importer *importer.Importer
}

// newApp loads configuration and wires the services. Callers must Close it.
func newApp(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}

	store, err := db.Open(ctx, cfg.Database.URL)
	if err != nil {
		_ = logger.Sync()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	provider, apiKey := cfg.ResolveProvider()
	llmConfig := llm.ConfigFor(llm.Provider(provider))
	llmConfig.Timeout = cfg.LLM.Timeout
	llmConfig.BaseURL = cfg.LLM.BaseURL

	client, err := llm.NewClient(ctx, llmConfig, apiKey)
	if err != nil {
		_ = store.Close()
		_ = logger.Sync()
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}
	if _, static := client.(*llm.StaticClient); static {
		logger.Warn("no LLM API key configured, answering with the static fallback")
	} else {
		logger.Info("LLM client ready", zap.String("provider", provider), zap.String("model", client.GetModel(llm.TierStandard)))
	}

	res := resolver.New(store, cfg.Resolver.FuzzyThreshold)
	generator := agent.NewGenerator(client, store, res, logger.Named("generator"), agent.Options{
		IncludeCatalog: cfg.Agent.IncludeCatalog,
		NarrateCompany: cfg.Agent.NarrateCompany,
	})
	a := agent.New(agent.NewRouter(client, logger.Named("router")), generator, logger.Named("agent"))

	return &app{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		llm:      client,
		chat:     chat.NewService(a, store, logger.Named("chat")),
		importer: importer.New(store, logger.Named("importer")),
	}, nil
}

// Close releases the LLM client and the store.
func (a *app) Close() {
	if err := a.llm.Close(); err != nil {
		a.logger.Warn("failed to close LLM client", zap.Error(err))
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("failed to close database", zap.Error(err))
	}
	_ = a.logger.Sync()
}
