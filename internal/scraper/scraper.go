// Package scraper holds the site adapters that the scraping service drives.
// Adapters render pages; the parsing helpers here turn rendered HTML into
// listings and review texts so they can be exercised without a browser.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Source is the capability set a retail site adapter provides.
type Source interface {
	// Search returns up to max result entries for query, in page order.
	// Entries that could not be extracted carry a non-nil Err.
	Search(ctx context.Context, query string, max int) ([]Listing, error)
	// FetchReviews returns up to count distinct review texts from a
	// product detail page.
	FetchReviews(ctx context.Context, productURL string, count int) ([]string, error)
}

// Listing is one search result entry as rendered on the results page.
type Listing struct {
	Title       string
	Price       string
	Rating      string
	ReviewsText string
	Href        string
	Err         error
}

const (
	listingSelector = "div[data-id]"
	titleSelector   = "div.KzDlHZ"
	priceSelector   = "div.Nx9bqj"
	ratingSelector  = "div.XQDdHH"
	reviewsSelector = "span.Wphh3N"
	linkSelector    = "a[href*='/p/']"

	// ReviewBlockSelector lists the review containers in priority order.
	ReviewBlockSelector = "div._27M-vq, div.col.EPCmJX, div._6K-7Co"
)

var (
	totalReviewsRe = regexp.MustCompile(`(\d+(?:,\d+)?)\s+Reviews`)
	productIDRe    = regexp.MustCompile(`/p/(itm[0-9A-Za-z]+)`)
)

// ErrMissingField marks a listing whose markup lacks a required element.
var ErrMissingField = errors.New("missing field")

// ParseTotalReviews pulls "1,234" out of text such as "5,678 Ratings & 1,234 Reviews".
func ParseTotalReviews(text string) string {
	m := totalReviewsRe.FindStringSubmatch(text)
	if m == nil {
		return "N/A"
	}
	return m[1]
}

// ParseProductID extracts the itm… identifier from a product link.
func ParseProductID(href string) string {
	m := productIDRe.FindStringSubmatch(href)
	if m == nil {
		return "N/A"
	}
	return m[1]
}

// AbsoluteURL resolves a site-relative href against baseURL.
func AbsoluteURL(baseURL, href string) string {
	if strings.HasPrefix(href, "http") {
		return href
	}
	return strings.TrimRight(baseURL, "/") + href
}

// ParseListings reads the first max result entries from a rendered search page.
func ParseListings(page string, max int) ([]Listing, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("failed to parse search page: %w", err)
	}

	var listings []Listing
	doc.Find(listingSelector).EachWithBreak(func(_ int, item *goquery.Selection) bool {
		if len(listings) >= max {
			return false
		}
		listings = append(listings, parseListing(item))
		return true
	})

	return listings, nil
}

func parseListing(item *goquery.Selection) Listing {
	var l Listing
	fields := []struct {
		selector string
		dst      *string
	}{
		{titleSelector, &l.Title},
		{priceSelector, &l.Price},
		{ratingSelector, &l.Rating},
		{reviewsSelector, &l.ReviewsText},
	}

	for _, f := range fields {
		sel := item.Find(f.selector).First()
		if sel.Length() == 0 {
			l.Err = fmt.Errorf("%w: %s", ErrMissingField, f.selector)
			return l
		}
		*f.dst = strings.TrimSpace(sel.Text())
	}

	href, ok := item.Find(linkSelector).First().Attr("href")
	if !ok {
		l.Err = fmt.Errorf("%w: %s", ErrMissingField, linkSelector)
		return l
	}
	l.Href = href

	return l
}

// ExtractReviews returns up to count distinct review texts from a rendered
// product page, in document order.
func ExtractReviews(page string, count int) ([]string, error) {
	if count <= 0 {
		return nil, nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("failed to parse product page: %w", err)
	}

	seen := make(map[string]struct{})
	var reviews []string

	doc.Find(ReviewBlockSelector).EachWithBreak(func(_ int, block *goquery.Selection) bool {
		text := joinedText(block)
		if text != "" {
			if _, dup := seen[text]; !dup {
				seen[text] = struct{}{}
				reviews = append(reviews, text)
			}
		}
		return len(reviews) < count
	})

	return reviews, nil
}

// joinedText concatenates the trimmed text nodes under sel with single spaces.
func joinedText(sel *goquery.Selection) string {
	var parts []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				parts = append(parts, t)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return strings.Join(parts, " ")
}
