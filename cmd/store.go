package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/irs-iip/internal/crs"
	"github.com/sells-group/irs-iip/internal/store"
)

// initStore opens the configured results store. It returns nil when no
// driver is configured, in which case runs are not persisted.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "":
		return nil, nil
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "irs-iip.db"
		}
		st, err := store.NewSQLite(dsn)
		if err != nil {
			return nil, err
		}
		return st, nil
	case "postgres":
		st, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil, crs.SRID(cfg.Analysis.TargetCRS))
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// requireStore is initStore for commands that only make sense with a store.
func requireStore(ctx context.Context) (store.Store, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, eris.New("no results store configured (set store.driver)")
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}
