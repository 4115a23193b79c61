package repository

import (
	"context"
	"fmt"

	"prod-assistant/internal/models"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

var productColumns = []string{"product_id", "product_title", "rating", "total_reviews", "price", "top_reviews", "scraped_at"}

type ProductRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewProductRepository(db *pgxpool.Pool, logger *zap.Logger) *ProductRepository {
	return &ProductRepository{
		db:     db,
		logger: logger,
	}
}

// upsertQuery keeps the latest scrape of every product id.
func upsertQuery(products []*models.Product) squirrel.InsertBuilder {
	query := squirrel.Insert("products").
		Columns(productColumns...).
		Suffix(`ON CONFLICT (product_id) DO UPDATE SET
			product_title = EXCLUDED.product_title,
			rating = EXCLUDED.rating,
			total_reviews = EXCLUDED.total_reviews,
			price = EXCLUDED.price,
			top_reviews = EXCLUDED.top_reviews,
			scraped_at = EXCLUDED.scraped_at`).
		PlaceholderFormat(squirrel.Dollar)

	for _, p := range products {
		query = query.Values(p.ProductID, p.Title, p.Rating, p.TotalReviews, p.Price, p.TopReviews, p.ScrapedAt)
	}
	return query
}

// Upsert stores products one statement per row so duplicates within the
// batch do not conflict with each other.
func (r *ProductRepository) Upsert(ctx context.Context, products []*models.Product) error {
	for _, p := range products {
		if p.ProductID == "" || p.ProductID == models.NotAvailable {
			r.logger.Warn("Skipping product without id", zap.String("title", p.Title))
			continue
		}

		sql, args, err := upsertQuery([]*models.Product{p}).ToSql()
		if err != nil {
			return err
		}

		if _, err := r.db.Exec(ctx, sql, args...); err != nil {
			return fmt.Errorf("failed to upsert product %s: %w", p.ProductID, err)
		}
	}

	return nil
}

func listQuery(limit, offset int) squirrel.SelectBuilder {
	return squirrel.Select(productColumns...).
		From("products").
		OrderBy("scraped_at DESC").
		Limit(uint64(limit)).
		Offset(uint64(offset)).
		PlaceholderFormat(squirrel.Dollar)
}

func (r *ProductRepository) List(ctx context.Context, limit, offset int) ([]*models.Product, error) {
	sql, args, err := listQuery(limit, offset).ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []*models.Product
	for rows.Next() {
		var p models.Product
		if err := rows.Scan(&p.ProductID, &p.Title, &p.Rating, &p.TotalReviews, &p.Price, &p.TopReviews, &p.ScrapedAt); err != nil {
			return nil, err
		}
		products = append(products, &p)
	}

	return products, rows.Err()
}
