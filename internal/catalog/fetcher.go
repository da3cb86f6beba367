package catalog

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"howett.net/plist"
)

// FeedResult is the outcome of fetching one catalog feed. Exactly one of
// Products, Err or DecodeErr is meaningful.
type FeedResult struct {
	URL       string
	Products  map[string]*Product
	Err       error // transport failure or non-200 status
	DecodeErr error // malformed property list
}

// OK reports whether the feed produced a usable product map.
func (r *FeedResult) OK() bool {
	return r.Err == nil && r.DecodeErr == nil
}

// Fetcher retrieves catalog feeds. Each fetch uses short-lived connections;
// catalog loads are infrequent enough that keeping sessions alive buys
// nothing.
type Fetcher struct {
	client *http.Client
	logger zerolog.Logger
}

// NewFetcher creates a catalog fetcher with the given per-request timeout.
func NewFetcher(timeout time.Duration, logger zerolog.Logger) *Fetcher {
	return &Fetcher{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DisableKeepAlives: true,
			},
		},
		logger: logger.With().Str("component", "catalog-fetcher").Logger(),
	}
}

// FetchAll retrieves every feed concurrently and returns one result per
// URL, in input order. It returns only when all feeds have reported;
// individual failures never abort the others.
func (f *Fetcher) FetchAll(ctx context.Context, urls []string) []FeedResult {
	results := make([]FeedResult, len(urls))

	g, ctx := errgroup.WithContext(ctx)
	for i, url := range urls {
		g.Go(func() error {
			results[i] = f.fetch(ctx, url)
			return nil
		})
	}
	g.Wait()

	return results
}

func (f *Fetcher) fetch(ctx context.Context, url string) FeedResult {
	result := FeedResult{URL: url}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		result.Err = fmt.Errorf("failed to create catalog request: %w", err)
		return result
	}

	resp, err := f.client.Do(req)
	if err != nil {
		f.logger.Warn().Err(err).Str("url", url).Msg("catalog feed request failed")
		result.Err = err
		return result
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		f.logger.Warn().Int("status", resp.StatusCode).Str("url", url).Msg("catalog feed returned non-200 status")
		result.Err = fmt.Errorf("catalog feed returned status %d", resp.StatusCode)
		return result
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		result.Err = fmt.Errorf("failed to read catalog body: %w", err)
		return result
	}

	var catalog Catalog
	if _, err := plist.Unmarshal(data, &catalog); err != nil {
		f.logger.Warn().Err(err).Str("url", url).Msg("catalog feed is not a valid property list")
		result.DecodeErr = fmt.Errorf("failed to decode catalog: %w", err)
		return result
	}

	for key, product := range catalog.Products {
		product.Key = key
	}
	result.Products = catalog.Products

	f.logger.Debug().Str("url", url).Int("products", len(catalog.Products)).Msg("catalog feed fetched")
	return result
}
