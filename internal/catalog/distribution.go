package catalog

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"github.com/pkgfetch/pkgfetch/internal/netutil"
)

// DistributionInfo is the metadata extracted from a product's distribution
// document.
type DistributionInfo struct {
	Title          string
	ProductVersion string
	BuildVersion   string
}

// DistributionLoader fetches and parses distribution documents.
type DistributionLoader struct {
	client   *http.Client
	retryCfg netutil.RetryConfig
	logger   zerolog.Logger
}

// NewDistributionLoader creates a distribution loader with the given
// per-request timeout.
func NewDistributionLoader(timeout time.Duration, logger zerolog.Logger) *DistributionLoader {
	return &DistributionLoader{
		client: &http.Client{Timeout: timeout},
		retryCfg: netutil.RetryConfig{
			InitialDelay: 2 * time.Second,
			MaxDelay:     10 * time.Second,
			MaxAttempts:  3,
			Multiplier:   2.0,
		},
		logger: logger.With().Str("component", "distribution-loader").Logger(),
	}
}

// Load fetches the distribution document at url and extracts the display
// title and build/version auxinfo. Transient network failures are retried
// a few times; the load is best-effort either way.
func (l *DistributionLoader) Load(ctx context.Context, url string) (*DistributionInfo, error) {
	var info *DistributionInfo

	err := netutil.WithRetry(ctx, "load distribution", l.retryCfg, func() error {
		parsed, err := l.fetch(ctx, url)
		if err != nil {
			return err
		}
		info = parsed
		return nil
	}, &l.logger)
	if err != nil {
		return nil, err
	}

	return info, nil
}

func (l *DistributionLoader) fetch(ctx context.Context, url string) (*DistributionInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create distribution request: %w", err)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("distribution returned status %d", resp.StatusCode)
	}

	return ParseDistribution(resp)
}

// ParseDistribution extracts title and auxinfo from a distribution
// document. The document is installer-gui-script XML; its auxinfo block
// holds VERSION and BUILD as key/string pairs.
func ParseDistribution(resp *http.Response) (*DistributionInfo, error) {
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse distribution document: %w", err)
	}

	info := &DistributionInfo{}

	info.Title = strings.TrimSpace(doc.Find("title").First().Text())

	doc.Find("auxinfo key").Each(func(_ int, key *goquery.Selection) {
		value := key.Next()
		if !value.Is("string") {
			return
		}
		switch strings.ToUpper(strings.TrimSpace(key.Text())) {
		case "VERSION":
			info.ProductVersion = strings.TrimSpace(value.Text())
		case "BUILD":
			info.BuildVersion = strings.TrimSpace(value.Text())
		}
	})

	if info.Title == "" && info.ProductVersion == "" && info.BuildVersion == "" {
		return nil, fmt.Errorf("distribution document carries no usable metadata")
	}

	return info, nil
}
