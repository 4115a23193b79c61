package postgres

import (
	"context"
	"fmt"

	"prod-assistant/pkg/config"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// DSN renders the keyword/value connection string for cfg.
func DSN(cfg *config.DatabaseConfig) string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)
}

func NewPool(ctx context.Context, cfg *config.DatabaseConfig, logger *zap.Logger) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(DSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Database connection established",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.DBName),
	)

	return pool, nil
}

// MigrateProducts creates the table used by the product repository.
func MigrateProducts(ctx context.Context, pool *pgxpool.Pool) error {
	return exec(ctx, pool,
		`CREATE TABLE IF NOT EXISTS products (
			product_id    TEXT PRIMARY KEY,
			product_title TEXT NOT NULL,
			rating        TEXT NOT NULL,
			total_reviews TEXT NOT NULL,
			price         TEXT NOT NULL,
			top_reviews   TEXT NOT NULL,
			scraped_at    TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	)
}

// Migrate creates the tables used by the product repository and the pgvector
// store. dimension is the embedding size of the configured model.
func Migrate(ctx context.Context, pool *pgxpool.Pool, dimension int) error {
	if err := MigrateProducts(ctx, pool); err != nil {
		return err
	}
	return exec(ctx, pool,
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS product_embeddings (
			id         UUID PRIMARY KEY,
			collection TEXT NOT NULL,
			content    TEXT NOT NULL,
			metadata   JSONB NOT NULL DEFAULT '{}'::jsonb,
			embedding  vector(%d) NOT NULL
		)`, dimension),
		`CREATE INDEX IF NOT EXISTS product_embeddings_collection_idx ON product_embeddings (collection)`,
	)
}

func exec(ctx context.Context, pool *pgxpool.Pool, statements ...string) error {
	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to run migration: %w", err)
		}
	}
	return nil
}
