package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/claimant-intake/internal/fetcher"
	"github.com/sells-group/claimant-intake/internal/headers"
	"github.com/sells-group/claimant-intake/internal/ingest"
	"github.com/sells-group/claimant-intake/internal/staging"
	"github.com/sells-group/claimant-intake/internal/store"
)

// appEnv holds the store and import components shared by the serve, import
// and infer commands.
type appEnv struct {
	Store    store.Store
	Importer *ingest.Orchestrator
	Workflow *staging.Workflow
	Engine   *headers.Engine
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "claimants.db"
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

// initEnv validates the config for mode, opens and migrates the store and
// builds the import components. Callers should defer env.Close().
func initEnv(ctx context.Context, mode string) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	aliases, err := headers.LoadAliases(cfg.Headers.AliasesFile)
	if err != nil {
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

	orch := ingest.NewOrchestrator(st, aliases, cfg.Import.MaxRows)
	zap.L().Debug("environment ready",
		zap.String("driver", cfg.Store.Driver),
		zap.Int("max_rows", orch.MaxRows()),
	)

	return &appEnv{
		Store:    st,
		Importer: orch,
		Workflow: staging.NewWorkflow(st, orch),
		Engine:   headers.NewEngine(aliases, cfg.Import.SampleRows),
	}, nil
}

// newFetcher builds the downloader used for remote import files.
func newFetcher() *fetcher.HTTPFetcher {
	return fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		Timeout:    time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
		MaxRetries: cfg.Fetch.MaxRetries,
		MaxBytes:   cfg.Import.MaxUploadBytes(),
	})
}
