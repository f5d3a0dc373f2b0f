package datastore

import (
	"context"
	"fmt"

	"github.com/tidemark/tidemark/internal/config"
	"github.com/tidemark/tidemark/internal/datastore/badger"
	"github.com/tidemark/tidemark/internal/datastore/sqlite"
	"github.com/tidemark/tidemark/internal/model"
)

// Open constructs the configured backend, verifies it is reachable, and
// wraps it in a Datastore. An unreachable backend fails construction
// instead of surfacing on first use.
func Open(ctx context.Context, cfg config.Config, opts ...Option) (*Datastore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var (
		backend Storage
		err     error
	)
	switch cfg.Backend {
	case config.BackendSQLite:
		backend, err = sqlite.Open(cfg.DatasetPath())
	case config.BackendBadger:
		backend, err = badger.Open(cfg.DatasetPath())
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, model.NewBackendUnavailable(cfg.Backend, err)
	}

	if err := backend.Ping(ctx); err != nil {
		backend.Close()
		return nil, model.NewBackendUnavailable(cfg.Backend, err)
	}

	opts = append([]Option{WithCacheWindow(cfg.Window())}, opts...)
	return New(backend, opts...), nil
}
