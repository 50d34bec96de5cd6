package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/IRakow/aiaviizn-capture/internal/capture"
	"github.com/IRakow/aiaviizn-capture/internal/classify"
	"github.com/IRakow/aiaviizn-capture/internal/formula"
	"github.com/IRakow/aiaviizn-capture/internal/pattern"
	"github.com/IRakow/aiaviizn-capture/internal/store"
	anthropicpkg "github.com/IRakow/aiaviizn-capture/pkg/anthropic"
)

// captureEnv holds the initialized store, pattern table, and pipeline needed
// by the capture/batch/serve commands.
type captureEnv struct {
	Store    store.Store
	Patterns *pattern.Store
	Pipeline *capture.Pipeline
	Runner   *capture.Runner
}

// Close releases resources held by the capture environment.
func (ce *captureEnv) Close() {
	if ce.Store != nil {
		_ = ce.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		path := cfg.Store.SQLitePath
		if path == "" {
			path = "aiaviizn.db"
		}
		return store.NewSQLite(path)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initCapture sets up the store, pattern table, classifier, and mapper, and
// builds the Pipeline plus Runner. Callers should defer env.Close().
func initCapture(ctx context.Context) (*captureEnv, error) {
	if err := cfg.Validate("capture"); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	patterns, err := pattern.NewStore(ctx, st)
	if err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "load patterns")
	}

	if cfg.Patterns.SeedFile != "" {
		added, err := patterns.SeedFromFile(ctx, cfg.Patterns.SeedFile)
		if err != nil {
			_ = st.Close()
			return nil, eris.Wrap(err, "seed patterns")
		}
		zap.L().Info("patterns seeded",
			zap.String("file", cfg.Patterns.SeedFile),
			zap.Int("added", added),
		)
	}

	var svc classify.Service
	var disambiguator formula.DisambiguationService

	if cfg.Anthropic.Offline {
		zap.L().Info("offline mode, using rule-based classification")
		svc = classify.NewRuleService()
	} else {
		client := anthropicpkg.NewClient(cfg.Anthropic.Key)
		svc = classify.NewClaudeService(client, cfg.Anthropic.HaikuModel)
		disambiguator = formula.NewClaudeDisambiguator(client, cfg.Anthropic.SonnetModel)
	}

	classifier := classify.New(patterns, svc,
		classify.WithThreshold(cfg.Capture.ConfidenceThreshold),
		classify.WithServiceTimeout(time.Duration(cfg.Capture.ServiceTimeoutSecs)*time.Second),
	)
	mapper := formula.NewMapper(disambiguator)

	pipe := capture.NewPipeline(st, classifier, mapper)

	return &captureEnv{
		Store:    st,
		Patterns: patterns,
		Pipeline: pipe,
		Runner:   capture.NewRunner(pipe, cfg.Capture.Concurrency, cfg.Capture.RatePerSecond),
	}, nil
}
