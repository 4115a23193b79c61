package models

import "time"

// Placeholders stored instead of empty fields.
const (
	NotAvailable      = "N/A"
	NoReviewsFound    = "No reviews found"
	InvalidProductURL = "Invalid product URL"
)

// Product is one scraped listing. Written once, never updated in place.
type Product struct {
	ProductID    string    `csv:"product_id" db:"product_id"`
	Title        string    `csv:"product_title" db:"product_title"`
	Rating       string    `csv:"rating" db:"rating"`
	TotalReviews string    `csv:"total_reviews" db:"total_reviews"`
	Price        string    `csv:"price" db:"price"`
	TopReviews   string    `csv:"top_reviews" db:"top_reviews"`
	ScrapedAt    time.Time `csv:"-" db:"scraped_at"`
}

// Metadata is the vector-store metadata written for this product.
func (p *Product) Metadata() map[string]any {
	return map[string]any{
		"product_id":    p.ProductID,
		"product_title": p.Title,
		"rating":        p.Rating,
		"total_reviews": p.TotalReviews,
		"price":         p.Price,
	}
}
