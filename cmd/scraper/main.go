package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"prod-assistant/internal/models"
	"prod-assistant/internal/repository"
	"prod-assistant/internal/scraper"
	"prod-assistant/internal/service"
	"prod-assistant/pkg/config"
	"prod-assistant/pkg/logger"
	"prod-assistant/pkg/postgres"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	maxProducts int
	reviewCount int
	output      string
	saveDB      bool
	listLimit   int
	listOffset  int
)

var rootCmd = &cobra.Command{
	Use:   "scraper [query]",
	Short: "Scrape product listings and reviews",
	Long: `Searches the retail site for the query, collects the top listings with
their reviews and writes them to a CSV file.`,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE:         runScrape,
}

var listCmd = &cobra.Command{
	Use:          "list",
	Short:        "List products stored in Postgres",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE:         runList,
}

func init() {
	rootCmd.Flags().IntVarP(&maxProducts, "max-products", "n", 0, "maximum number of products (default from config)")
	rootCmd.Flags().IntVarP(&reviewCount, "review-count", "r", 0, "reviews per product (default from config)")
	rootCmd.Flags().StringVarP(&output, "output", "o", service.DefaultCSVName, "CSV destination; a bare file name goes to the output dir")
	rootCmd.Flags().BoolVar(&saveDB, "save-db", false, "also upsert the products into Postgres")

	listCmd.Flags().IntVar(&listLimit, "limit", 20, "number of products to show")
	listCmd.Flags().IntVar(&listOffset, "offset", 0, "number of products to skip")
	rootCmd.AddCommand(listCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runScrape(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.Init(cfg.Logger.Level); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()
	appLogger := logger.Get()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if maxProducts <= 0 {
		maxProducts = cfg.Scraper.DefaultItems
	}
	if reviewCount <= 0 {
		reviewCount = cfg.Scraper.DefaultReviews
	}

	svc, err := service.NewScraperService(scraper.NewFlipkartSource(&cfg.Scraper, appLogger), &cfg.Scraper, appLogger)
	if err != nil {
		return err
	}

	products, err := svc.SearchAndCollect(ctx, args[0], maxProducts, reviewCount)
	if err != nil {
		return fmt.Errorf("scrape failed: %w", err)
	}

	path, err := svc.Persist(products, output)
	if err != nil {
		return err
	}
	cmd.Printf("Saved %d products to %s\n", len(products), path)

	if !saveDB {
		return nil
	}

	db, err := postgres.NewPool(ctx, &cfg.Database, appLogger)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := postgres.MigrateProducts(ctx, db); err != nil {
		return err
	}

	if err := repository.NewProductRepository(db, appLogger).Upsert(ctx, products); err != nil {
		appLogger.Error("Failed to save products", zap.Error(err))
		return err
	}
	cmd.Printf("Upserted %d products into Postgres\n", len(products))

	return nil
}

func runList(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.Init(cfg.Logger.Level); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()
	appLogger := logger.Get()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgres.NewPool(ctx, &cfg.Database, appLogger)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := postgres.MigrateProducts(ctx, db); err != nil {
		return err
	}

	products, err := repository.NewProductRepository(db, appLogger).List(ctx, listLimit, listOffset)
	if err != nil {
		return err
	}

	return printProducts(cmd.OutOrStdout(), products)
}

func printProducts(out io.Writer, products []*models.Product) error {
	if len(products) == 0 {
		_, err := fmt.Fprintln(out, "No products stored")
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tRATING\tREVIEWS\tPRICE")
	for _, p := range products {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", p.ProductID, p.Title, p.Rating, p.TotalReviews, p.Price)
	}
	return w.Flush()
}
