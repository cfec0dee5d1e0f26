// Package scraper handles fetching and parsing Mandarake product pages.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"mandarake-watch/pkg/watch"

	"github.com/PuerkitoBio/goquery"
	"github.com/codeGROOVE-dev/retry"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/118.0.5993.90 Safari/537.36"

// ErrPageShape indicates the page carried neither an add-to-cart nor a
// sold-out marker, so stock state cannot be determined.
var ErrPageShape = errors.New("page has no stock markers")

// HTTP403Error indicates a 403 Forbidden response (bot detection or region block).
type HTTP403Error struct {
	URL string
}

func (e *HTTP403Error) Error() string {
	return fmt.Sprintf("HTTP 403 Forbidden: %s", e.URL)
}

// IsHTTP403Error checks if an error is an HTTP 403 error.
func IsHTTP403Error(err error) bool {
	var forbidden *HTTP403Error
	return errors.As(err, &forbidden)
}

// Scraper fetches and parses Mandarake product pages.
type Scraper struct {
	client    *http.Client
	logger    *slog.Logger
	userAgent string
}

// New creates a new scraper. An empty userAgent falls back to a browser-like default.
func New(client *http.Client, userAgent string, logger *slog.Logger) *Scraper {
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &Scraper{
		client:    client,
		userAgent: userAgent,
		logger:    logger,
	}
}

// Check fetches a product page and reports its current stock state.
// The caller is expected to bound the call with a context deadline; a page
// whose shape cannot be interpreted fails without retrying.
func (s *Scraper) Check(ctx context.Context, pageURL string) (*watch.StockResult, error) {
	itemURL, err := normalizeURL(pageURL)
	if err != nil {
		return nil, fmt.Errorf("normalize url: %w", err)
	}

	var result *watch.StockResult

	err = retry.Do(
		func() error {
			s.logger.Info("HTTP request starting",
				"method", "GET",
				"url", itemURL,
				"purpose", "stock_check")

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, itemURL, http.NoBody)
			if err != nil {
				return fmt.Errorf("create request: %w", err)
			}
			req.Header.Set("User-Agent", s.userAgent)
			req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
			req.Header.Set("Accept-Language", "en-US,en;q=0.9")

			startTime := time.Now()
			resp, err := s.client.Do(req)
			duration := time.Since(startTime)

			if err != nil {
				s.logger.Warn("HTTP request failed, will retry",
					"url", itemURL,
					"duration_ms", duration.Milliseconds(),
					"error", err)
				return err
			}
			defer func() {
				if closeErr := resp.Body.Close(); closeErr != nil {
					s.logger.Warn("Failed to close response body", "error", closeErr)
				}
			}()

			s.logger.Info("HTTP request completed",
				"url", itemURL,
				"status_code", resp.StatusCode,
				"duration_ms", duration.Milliseconds(),
				"content_length", resp.ContentLength)

			if resp.StatusCode == http.StatusForbidden {
				s.logger.Warn("HTTP 403 Forbidden - request blocked", "url", itemURL)
				return &HTTP403Error{URL: itemURL}
			}

			if resp.StatusCode != http.StatusOK {
				s.logger.Warn("HTTP request returned non-OK status, will retry", "status_code", resp.StatusCode)
				return fmt.Errorf("HTTP %d", resp.StatusCode)
			}

			result, err = parseProductPage(resp.Body, itemURL)
			if err != nil {
				s.logger.Error("Failed to parse product page", "url", itemURL, "error", err)
				return retry.Unrecoverable(err)
			}

			s.logger.Info("Product page parsed",
				"url", itemURL,
				"item_name", result.ItemName,
				"shop", result.ParentShopName,
				"in_stock", result.IsInStock,
				"other_stores", len(result.OtherStores))

			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(15*time.Second),
		retry.MaxJitter(2*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			s.logger.Info("Retrying stock check after error", "attempt", n, "error", err)
		}),
		retry.RetryIf(func(err error) bool {
			// A blocked request won't unblock within one check
			return !IsHTTP403Error(err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("after retries: %w", err)
	}

	return result, nil
}

// normalizeURL validates the product URL and forces lang=en so the page
// shape matches the selectors below.
func normalizeURL(pageURL string) (string, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return "", err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	q := u.Query()
	if q.Get("lang") == "" {
		q.Set("lang", "en")
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func parseProductPage(body interface{ Read([]byte) (int, error) }, pageURL string) (*watch.StockResult, error) {
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, err
	}

	itemName := strings.TrimSpace(doc.Find(".content_head .subject h1").First().Text())
	parentShop := strings.TrimSpace(doc.Find(".content_head .shop p").First().Text())

	mainInStock := doc.Find("#mypagelist_form .addcart").Length() > 0
	mainSoldOut := doc.Find("#mypagelist_form .soldout").Length() > 0

	var stores []watch.StoreListing
	doc.Find(".other_itemlist .block").Each(func(_ int, sel *goquery.Selection) {
		stores = append(stores, watch.StoreListing{
			Shop:        strings.TrimSpace(sel.Find(".shop p").First().Text()),
			Price:       strings.TrimSpace(sel.Find(".price").First().Text()),
			HasAdd:      sel.Find(".addcart").Length() > 0,
			SoldOut:     sel.Find(".soldout").Length() > 0,
			IsDefective: sel.Find(".defective").Length() > 0,
		})
	})

	// A real product page always shows one marker or the other; anything
	// else means we got an interstitial or a redesigned page.
	if !mainInStock && !mainSoldOut && len(stores) == 0 {
		return nil, fmt.Errorf("%w (name=%q, shop=%q)", ErrPageShape, itemName, parentShop)
	}

	inStock := mainInStock
	for _, st := range stores {
		if st.HasAdd && !st.SoldOut {
			inStock = true
			break
		}
	}

	return &watch.StockResult{
		URL:             pageURL,
		ItemName:        itemName,
		ParentShopName:  parentShop,
		OtherStores:     stores,
		IsInStock:       inStock,
		IsInMainInStock: mainInStock,
	}, nil
}
