package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/darb-group/leadflow/internal/ratelimit"
	"github.com/darb-group/leadflow/internal/store"
	"github.com/darb-group/leadflow/pkg/apollo"
)

// pipelineEnv holds the initialized store and provider client the pipeline
// commands share. Callers should defer env.Close().
type pipelineEnv struct {
	Store  store.Store
	Client apollo.Client
}

func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		pe.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "leadflow.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initPipeline sets up the store and the rate-limited Apollo client. The
// store is migrated before use.
func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	if cfg.Apollo.Key == "" {
		return nil, eris.New("apollo API key is required (LEADFLOW_APOLLO_KEY)")
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	limiter := ratelimit.New(
		time.Duration(cfg.Apollo.DelayMs)*time.Millisecond,
		cfg.Apollo.RequestsPerMinute,
	)
	client := apollo.NewClient(cfg.Apollo.Key,
		apollo.WithBaseURL(cfg.Apollo.BaseURL),
		apollo.WithLimiter(limiter),
	)

	return &pipelineEnv{Store: st, Client: client}, nil
}

func pagePause() time.Duration {
	return time.Duration(cfg.Pipeline.PagePauseMs) * time.Millisecond
}
