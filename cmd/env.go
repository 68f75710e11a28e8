package main

import (
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/procurement-cli/internal/engine"
	"github.com/sells-group/procurement-cli/internal/registry"
	"github.com/sells-group/procurement-cli/internal/research"
	"github.com/sells-group/procurement-cli/internal/task"
	"github.com/sells-group/procurement-cli/pkg/anthropic"
	"github.com/sells-group/procurement-cli/pkg/jina"
)

// env bundles the wired application components shared by the serve and
// run commands.
type env struct {
	store   *task.Store
	engine  *engine.Engine
	factors *registry.FactorRegistry
}

// initEnv builds the store, API clients, collaborators, and engine from
// the loaded configuration.
func initEnv() (*env, error) {
	factors := registry.Defaults()
	if cfg.Factors.TemplatesPath != "" {
		loaded, err := registry.LoadFromFile(cfg.Factors.TemplatesPath)
		if err != nil {
			return nil, eris.Wrap(err, "load factor templates")
		}
		factors = loaded
		zap.L().Info("factor templates loaded",
			zap.String("path", cfg.Factors.TemplatesPath),
			zap.Strings("categories", factors.Categories()),
		)
	}

	anthropicClient := anthropic.NewClient(cfg.Anthropic.Key,
		anthropic.WithRateLimit(float64(cfg.Anthropic.RatePerSecond), cfg.Anthropic.RatePerSecond),
	)
	jinaClient := jina.NewClient(cfg.Jina.Key,
		jina.WithBaseURL(cfg.Jina.BaseURL),
		jina.WithSearchBaseURL(cfg.Jina.SearchBaseURL),
		jina.WithRateLimit(float64(cfg.Jina.RatePerSecond), cfg.Jina.RatePerSecond),
	)

	clarifyModel := cfg.Anthropic.ClarifyModel
	if clarifyModel == "" {
		clarifyModel = cfg.Anthropic.Model
	}

	store := task.NewStore()
	eng := engine.New(
		engine.Config{
			MaxRounds:     cfg.Extract.MaxRounds,
			MaxConcurrent: cfg.Extract.MaxConcurrent,
			RoundTimeout:  cfg.Extract.RoundTimeout(),
		},
		store,
		research.NewLLMClarifier(anthropicClient, clarifyModel, factors),
		research.NewJinaSearcher(jinaClient, cfg.Search.MaxSources),
		research.NewLLMExtractor(jinaClient, anthropicClient, cfg.Anthropic.Model),
		factors,
	)

	return &env{store: store, engine: eng, factors: factors}, nil
}
