package scraper

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"prod-assistant/pkg/config"

	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"go.uber.org/zap"
)

const popupCloseXPath = `//button[contains(text(), 'X')]`

// FlipkartSource drives a headless Chrome against flipkart.com. Every call
// opens its own browser and closes it before returning.
type FlipkartSource struct {
	cfg    *config.ScraperConfig
	logger *zap.Logger
}

func NewFlipkartSource(cfg *config.ScraperConfig, logger *zap.Logger) *FlipkartSource {
	return &FlipkartSource{
		cfg:    cfg,
		logger: logger,
	}
}

// SearchURL builds the results page address for query.
func (s *FlipkartSource) SearchURL(query string) string {
	return strings.TrimRight(s.cfg.BaseURL, "/") + "/search?q=" + strings.ReplaceAll(query, " ", "+")
}

func (s *FlipkartSource) Search(ctx context.Context, query string, max int) ([]Listing, error) {
	browserCtx, cancel := s.newBrowser(ctx)
	defer cancel()

	if err := chromedp.Run(browserCtx,
		chromedp.Navigate(s.SearchURL(query)),
		chromedp.Sleep(s.cfg.PageLoadDelay),
	); err != nil {
		return nil, fmt.Errorf("failed to open search page: %w", err)
	}

	s.dismissPopup(browserCtx)

	var page string
	if err := chromedp.Run(browserCtx,
		chromedp.Sleep(s.cfg.SettleDelay),
		chromedp.OuterHTML("html", &page, chromedp.ByQuery),
	); err != nil {
		return nil, fmt.Errorf("failed to read search page: %w", err)
	}

	listings, err := ParseListings(page, max)
	if err != nil {
		return nil, err
	}

	for i := range listings {
		if listings[i].Href != "" {
			listings[i].Href = AbsoluteURL(s.cfg.BaseURL, listings[i].Href)
		}
	}

	return listings, nil
}

func (s *FlipkartSource) FetchReviews(ctx context.Context, productURL string, count int) ([]string, error) {
	if _, err := url.ParseRequestURI(productURL); err != nil {
		return nil, fmt.Errorf("invalid product url: %w", err)
	}

	browserCtx, cancel := s.newBrowser(ctx)
	defer cancel()

	if err := chromedp.Run(browserCtx,
		chromedp.Navigate(productURL),
		chromedp.Sleep(s.cfg.PageLoadDelay),
	); err != nil {
		return nil, fmt.Errorf("failed to open product page: %w", err)
	}

	s.dismissPopup(browserCtx)

	var page string
	if err := chromedp.Run(browserCtx,
		chromedp.KeyEvent(kb.End),
		chromedp.Sleep(s.cfg.ScrollDelay),
		chromedp.OuterHTML("html", &page, chromedp.ByQuery),
	); err != nil {
		return nil, fmt.Errorf("failed to read product page: %w", err)
	}

	return ExtractReviews(page, count)
}

// dismissPopup makes a single attempt at closing the login overlay.
func (s *FlipkartSource) dismissPopup(ctx context.Context) {
	popupCtx, cancel := context.WithTimeout(ctx, s.cfg.PopupTimeout)
	defer cancel()

	if err := chromedp.Run(popupCtx, chromedp.Click(popupCloseXPath, chromedp.BySearch, chromedp.NodeVisible)); err != nil {
		s.logger.Debug("Popup not dismissed", zap.Error(err))
		return
	}

	_ = chromedp.Run(ctx, chromedp.Sleep(s.cfg.PopupDelay))
}

func (s *FlipkartSource) newBrowser(ctx context.Context) (context.Context, context.CancelFunc) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("headless", s.cfg.Headless),
		chromedp.WindowSize(1366, 900),
	)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)

	return browserCtx, func() {
		cancelBrowser()
		cancelAlloc()
	}
}

var _ Source = (*FlipkartSource)(nil)

