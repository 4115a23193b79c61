package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"prod-assistant/internal/models"
	"prod-assistant/internal/scraper"
	"prod-assistant/pkg/config"

	"github.com/gocarina/gocsv"
	"go.uber.org/zap"
)

const (
	reviewSeparator = " || "
	DefaultCSVName  = "product_reviews.csv"
)

type ScraperService struct {
	source scraper.Source
	cfg    *config.ScraperConfig
	logger *zap.Logger
}

// NewScraperService creates the output directory if it does not exist.
func NewScraperService(source scraper.Source, cfg *config.ScraperConfig, logger *zap.Logger) (*ScraperService, error) {
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	return &ScraperService{
		source: source,
		cfg:    cfg,
		logger: logger,
	}, nil
}

// SearchAndCollect scrapes up to maxItems listings for query and the top
// reviews of each. Listings that fail extraction are skipped; only a failed
// search itself is returned as an error.
func (s *ScraperService) SearchAndCollect(ctx context.Context, query string, maxItems, reviewsPerItem int) ([]*models.Product, error) {
	listings, err := s.source.Search(ctx, query, maxItems)
	if err != nil {
		return nil, fmt.Errorf("failed to search %q: %w", query, err)
	}

	products := make([]*models.Product, 0, len(listings))
	for _, l := range listings {
		if l.Err != nil {
			s.logger.Warn("Skipping listing", zap.String("query", query), zap.Error(l.Err))
			continue
		}

		topReviews := models.InvalidProductURL
		if strings.Contains(l.Href, "flipkart.com") {
			topReviews = s.FetchTopReviews(ctx, l.Href, reviewsPerItem)
		}

		products = append(products, &models.Product{
			ProductID:    scraper.ParseProductID(l.Href),
			Title:        l.Title,
			Rating:       l.Rating,
			TotalReviews: scraper.ParseTotalReviews(l.ReviewsText),
			Price:        l.Price,
			TopReviews:   topReviews,
			ScrapedAt:    time.Now(),
		})
	}

	s.logger.Info("Products scraped",
		zap.String("query", query),
		zap.Int("listings", len(listings)),
		zap.Int("products", len(products)),
	)

	return products, nil
}

// FetchReviews returns (nil, nil) when the page has no reviews or the URL
// is not an http(s) address, and an error only when fetching failed.
func (s *ScraperService) FetchReviews(ctx context.Context, productURL string, count int) ([]string, error) {
	if !strings.HasPrefix(productURL, "http") {
		return nil, nil
	}

	reviews, err := s.source.FetchReviews(ctx, productURL, count)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch reviews: %w", err)
	}

	return reviews, nil
}

// FetchTopReviews joins the reviews with " || " or returns the
// "No reviews found" placeholder.
func (s *ScraperService) FetchTopReviews(ctx context.Context, productURL string, count int) string {
	reviews, err := s.FetchReviews(ctx, productURL, count)
	if err != nil {
		s.logger.Warn("Reviews unavailable", zap.String("url", productURL), zap.Error(err))
		return models.NoReviewsFound
	}
	if len(reviews) == 0 {
		return models.NoReviewsFound
	}
	return strings.Join(reviews, reviewSeparator)
}

// ResolvePath maps destination to the file Persist writes: bare file names
// go inside the output directory, any other path (absolute, or relative such
// as ./out.csv) is used as given.
func (s *ScraperService) ResolvePath(destination string) string {
	if destination == "" {
		destination = DefaultCSVName
	}
	if destination != filepath.Base(destination) {
		return destination
	}
	return filepath.Join(s.cfg.OutputDir, destination)
}

// Persist writes records as CSV and returns the path written.
func (s *ScraperService) Persist(records []*models.Product, destination string) (string, error) {
	path := s.ResolvePath(destination)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	if records == nil {
		records = []*models.Product{}
	}
	if err := gocsv.MarshalFile(&records, file); err != nil {
		return "", fmt.Errorf("failed to write csv: %w", err)
	}

	s.logger.Info("Products saved", zap.String("path", path), zap.Int("count", len(records)))

	return path, nil
}
