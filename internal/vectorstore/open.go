package vectorstore

import (
	"context"
	"fmt"

	"prod-assistant/pkg/config"
	"prod-assistant/pkg/postgres"

	"go.uber.org/zap"
)

// Opener connects to the configured backend. The returned func releases it.
type Opener func(ctx context.Context) (Store, func(), error)

// NewOpener returns an Opener for cfg.VectorStore.
func NewOpener(cfg *config.Config, logger *zap.Logger) Opener {
	return func(ctx context.Context) (Store, func(), error) {
		switch cfg.VectorStore {
		case config.VectorStoreAstra, "":
			store, err := NewAstraStore(&cfg.AstraDB, logger)
			if err != nil {
				return nil, nil, err
			}
			return store, func() {}, nil

		case config.VectorStorePGVector:
			pool, err := postgres.NewPool(ctx, &cfg.Database, logger)
			if err != nil {
				return nil, nil, err
			}
			return NewPGVectorStore(pool, cfg.AstraDB.CollectionName, logger), pool.Close, nil

		default:
			return nil, nil, fmt.Errorf("unknown vector store %q", cfg.VectorStore)
		}
	}
}
