package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"prod-assistant/internal/models"
	"prod-assistant/internal/service"
	"prod-assistant/internal/vectorstore"
	"prod-assistant/pkg/config"
	"prod-assistant/pkg/logger"
	"prod-assistant/pkg/postgres"

	"github.com/gocarina/gocsv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cacheFile string
	batchSize int
	force     bool
)

var rootCmd = &cobra.Command{
	Use:   "ingest [csv...]",
	Short: "Embed scraped products into the vector store",
	Long: `Reads scraped product CSV files, embeds each product's reviews and
upserts them into the configured vector store. Files whose content has not
changed since the last run are skipped.`,
	SilenceUsage: true,
	RunE:         runIngest,
}

func init() {
	rootCmd.Flags().StringVar(&cacheFile, "cache", ".ingest_cache.json", "file tracking already ingested CSVs")
	rootCmd.Flags().IntVar(&batchSize, "batch-size", 50, "documents per embedding request")
	rootCmd.Flags().BoolVarP(&force, "force", "f", false, "ingest even if the file is unchanged")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.Init(cfg.Logger.Level); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()
	appLogger := logger.Get()

	if err := config.CheckEnv(os.LookupEnv, cfg.RequiredEnv()); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if len(args) == 0 {
		args = []string{filepath.Join(cfg.Scraper.OutputDir, service.DefaultCSVName)}
	}

	embedder, err := service.NewLLMService(cfg, appLogger).Embedder(ctx)
	if err != nil {
		return err
	}
	ingester := service.NewIngestService(embedder, batchSize, appLogger)

	dimension, err := ingester.Dimension(ctx)
	if err != nil {
		return err
	}

	store, closeStore, err := openStore(ctx, cfg, dimension, appLogger)
	if err != nil {
		return err
	}
	defer closeStore()

	cache, err := loadCache(cacheFile)
	if err != nil {
		appLogger.Warn("Failed to load cache, will ingest all files", zap.Error(err))
		cache = &CacheData{Files: make(map[string]IngestedFile)}
	}

	return ingestFiles(ctx, cmd.OutOrStdout(), ingester, store, cache, cfg.AstraDB.CollectionName, args, appLogger)
}

type productIngester interface {
	Ingest(ctx context.Context, store vectorstore.Store, products []*models.Product) (int, error)
}

// ingestFiles ingests each path in order and stops at the first failure.
// Files finished before the failure stay recorded in the saved cache.
func ingestFiles(
	ctx context.Context,
	out io.Writer,
	ingester productIngester,
	store vectorstore.Store,
	cache *CacheData,
	collection string,
	paths []string,
	logger *zap.Logger,
) error {
	defer func() {
		if err := saveCache(cacheFile, cache); err != nil {
			logger.Warn("Failed to save cache", zap.Error(err))
		}
	}()

	for _, path := range paths {
		fileHash, err := calculateFileHash(path)
		if err != nil {
			return err
		}

		if cached, ok := cache.Unchanged(collection, path, fileHash); ok && !force {
			logger.Info("File already ingested, skipping",
				zap.String("path", path),
				zap.Time("ingested_at", cached.IngestedAt),
			)
			continue
		}

		products, err := readProducts(path)
		if err != nil {
			return err
		}

		written, err := ingester.Ingest(ctx, store, products)
		if err != nil {
			logger.Error("Ingestion failed", zap.String("path", path), zap.Int("written", written), zap.Error(err))
			return err
		}

		cache.Record(IngestedFile{
			FilePath:   path,
			FileHash:   fileHash,
			Collection: collection,
			Documents:  written,
			IngestedAt: time.Now(),
		})
		fmt.Fprintf(out, "Ingested %d documents from %s into %s\n", written, path, collection)
	}

	return nil
}

func readProducts(path string) ([]*models.Product, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	var products []*models.Product
	if err := gocsv.UnmarshalFile(file, &products); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return products, nil
}

// openStore connects to the configured backend and makes sure it can hold
// vectors of the given dimension.
func openStore(ctx context.Context, cfg *config.Config, dimension int, logger *zap.Logger) (vectorstore.Store, func(), error) {
	switch cfg.VectorStore {
	case config.VectorStorePGVector:
		db, err := postgres.NewPool(ctx, &cfg.Database, logger)
		if err != nil {
			return nil, nil, err
		}
		if err := postgres.Migrate(ctx, db, dimension); err != nil {
			db.Close()
			return nil, nil, err
		}
		return vectorstore.NewPGVectorStore(db, cfg.AstraDB.CollectionName, logger), db.Close, nil

	case config.VectorStoreAstra, "":
		store, err := vectorstore.NewAstraStore(&cfg.AstraDB, logger)
		if err != nil {
			return nil, nil, err
		}
		if err := store.EnsureCollection(ctx, dimension); err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown vector store %q", cfg.VectorStore)
	}
}
