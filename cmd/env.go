package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/harborview-partners/diligence-cli/internal/pipeline"
	"github.com/harborview-partners/diligence-cli/internal/store"
	"github.com/harborview-partners/diligence-cli/pkg/anthropic"
	"github.com/harborview-partners/diligence-cli/pkg/docai"
	"github.com/harborview-partners/diligence-cli/pkg/knowledge"
	"github.com/harborview-partners/diligence-cli/pkg/marketdata"
)

// env bundles the wired pipeline and its store for command handlers.
type env struct {
	Store        store.JobStore
	Orchestrator *pipeline.Orchestrator
}

func (e *env) Close() {
	e.Orchestrator.Close()
	if err := e.Store.Close(); err != nil {
		// Logger may already be synced during shutdown.
		_ = err
	}
}

func initStore(ctx context.Context) (store.JobStore, error) {
	switch cfg.Store.Driver {
	case "memory":
		return store.NewMemory(), nil
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "diligence.db"
		}
		s, err := store.NewSQLite(dsn)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			return nil, err
		}
		return s, nil
	case "postgres":
		s, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL, &cfg.Store.Pool)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initEnv(ctx context.Context) (*env, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if cfg.Extraction.Key == "" {
		return nil, eris.New("extraction service key is required (DILIGENCE_EXTRACTION_KEY)")
	}
	extractorOpts := []docai.Option{docai.WithRateLimit(cfg.Extraction.RateLimit)}
	if cfg.Extraction.BaseURL != "" {
		extractorOpts = append(extractorOpts, docai.WithBaseURL(cfg.Extraction.BaseURL))
	}
	extractor := docai.NewClient(cfg.Extraction.Key, extractorOpts...)

	var engine pipeline.ReasoningEngine
	if cfg.Anthropic.Key != "" {
		engine = pipeline.NewClaudeEngine(
			anthropic.NewClient(cfg.Anthropic.Key),
			cfg.Anthropic.Model,
			cfg.Anthropic.MaxTokens,
			time.Duration(cfg.Anthropic.TimeoutSecs)*time.Second,
		)
	}

	var market marketdata.Client
	if cfg.Market.Key != "" {
		opts := []marketdata.Option{}
		if cfg.Market.BaseURL != "" {
			opts = append(opts, marketdata.WithBaseURL(cfg.Market.BaseURL))
		}
		market = marketdata.NewClient(cfg.Market.Key, opts...)
	}

	var kb knowledge.Client
	if cfg.Knowledge.Key != "" {
		opts := []knowledge.Option{}
		if cfg.Knowledge.BaseURL != "" {
			opts = append(opts, knowledge.WithBaseURL(cfg.Knowledge.BaseURL))
		}
		kb = knowledge.NewClient(cfg.Knowledge.Key, opts...)
	}

	return &env{
		Store:        st,
		Orchestrator: pipeline.New(cfg, st, extractor, engine, market, kb),
	}, nil
}
