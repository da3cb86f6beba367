// Package catalog fetches the vendor software-update catalogs, merges them
// into a deduplicated, sorted list of installer products and publishes the
// list to the event hub.
package catalog

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/pkgfetch/pkgfetch/internal/preferences"
)

// ErrLoadInProgress is returned when Load is called while a prior load has
// not finished.
var ErrLoadInProgress = errors.New("catalog: load already in progress")

// resortDebounce is the coalescing window for re-sorts triggered by
// distribution metadata arriving. Rapid arrivals collapse into one sort.
const resortDebounce = 100 * time.Millisecond

// PreferencesProvider supplies the seed program and OS filter selection.
type PreferencesProvider interface {
	Get(ctx context.Context) (*preferences.Preferences, error)
}

// Broadcaster publishes events to the presentation layer.
type Broadcaster interface {
	Broadcast(msgType string, payload interface{}) error
}

// Service owns the aggregated installer list. All mutations of the
// published list go through its mutex; fetch and distribution goroutines
// deliver their results into it.
type Service struct {
	fetcher *Fetcher
	dist    *DistributionLoader
	feeds   *FeedSet
	prefs   PreferencesProvider
	hub     Broadcaster
	logger  zerolog.Logger

	mu            sync.Mutex
	installers    []*Product
	loading       bool
	hasLoaded     bool
	resortPending bool
	loadGen       int
	distCancel    context.CancelFunc
}

// NewService creates the catalog service.
func NewService(fetcher *Fetcher, dist *DistributionLoader, feeds *FeedSet, prefs PreferencesProvider, hub Broadcaster, logger zerolog.Logger) *Service {
	return &Service{
		fetcher: fetcher,
		dist:    dist,
		feeds:   feeds,
		prefs:   prefs,
		hub:     hub,
		logger:  logger.With().Str("component", "catalog").Logger(),
	}
}

// Load starts a full catalog reload. It returns ErrLoadInProgress when a
// load is already running; otherwise the fetch and aggregation run in the
// background and the result is published exactly once, after every feed
// has reported.
func (s *Service) Load(ctx context.Context) error {
	prefs, err := s.prefs.Get(ctx)
	if err != nil {
		return err
	}

	urls, err := s.feeds.URLs(string(prefs.SeedProgram), prefs.OSFilter)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.loading {
		s.mu.Unlock()
		return ErrLoadInProgress
	}
	s.loading = true
	s.loadGen++
	gen := s.loadGen
	// A reload discards the previous generation's products; stop their
	// pending distribution loads.
	if s.distCancel != nil {
		s.distCancel()
		s.distCancel = nil
	}
	s.mu.Unlock()

	s.logger.Info().
		Int("feeds", len(urls)).
		Str("seedProgram", string(prefs.SeedProgram)).
		Str("osFilter", prefs.OSFilter).
		Msg("starting catalog load")

	// The load outlives the triggering request.
	go s.load(context.Background(), gen, urls)

	return nil
}

func (s *Service) load(ctx context.Context, gen int, urls []string) {
	results := s.fetcher.FetchAll(ctx, urls)

	installers := s.aggregate(results)
	sortProducts(installers)

	distCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	if gen != s.loadGen {
		// A newer load superseded this one before it published.
		s.mu.Unlock()
		cancel()
		return
	}
	s.installers = installers
	s.loading = false
	s.hasLoaded = true
	s.distCancel = cancel
	s.mu.Unlock()

	failed := 0
	for i := range results {
		if !results[i].OK() {
			failed++
		}
	}
	s.logger.Info().
		Int("installers", len(installers)).
		Int("feeds", len(results)).
		Int("failedFeeds", failed).
		Msg("catalog load complete")

	s.broadcastUpdated()

	for _, product := range installers {
		go s.loadDistribution(distCtx, gen, product)
	}
}

// aggregate merges the feed results: installer products only, deduplicated
// by product key with the first occurrence winning.
func (s *Service) aggregate(results []FeedResult) []*Product {
	seen := make(map[string]bool)
	var installers []*Product

	for i := range results {
		if !results[i].OK() {
			continue
		}
		for key, product := range results[i].Products {
			if !product.IsInstaller() || seen[key] {
				continue
			}
			seen[key] = true
			installers = append(installers, product)
		}
	}

	return installers
}

// sortProducts orders by post date descending, build version descending on
// equal dates.
func sortProducts(products []*Product) {
	sort.SliceStable(products, func(i, j int) bool {
		if !products[i].PostDate.Equal(products[j].PostDate) {
			return products[i].PostDate.After(products[j].PostDate)
		}
		return CompareBuilds(products[i].BuildVersion, products[j].BuildVersion) > 0
	})
}

func (s *Service) loadDistribution(ctx context.Context, gen int, product *Product) {
	url := product.DistributionURL("English")
	if url == "" {
		return
	}

	info, err := s.dist.Load(ctx, url)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Warn().Err(err).Str("product", product.Key).Msg("failed to load distribution metadata")
		}
		return
	}

	s.applyDistribution(gen, product, info)
}

// applyDistribution writes distribution metadata into the product and
// schedules a coalesced re-sort. Results from a superseded load generation
// are dropped.
func (s *Service) applyDistribution(gen int, product *Product, info *DistributionInfo) {
	s.mu.Lock()
	if gen != s.loadGen {
		s.mu.Unlock()
		return
	}
	product.Title = info.Title
	product.ProductVersion = info.ProductVersion
	product.BuildVersion = info.BuildVersion
	product.OSName = s.feeds.OSNameForVersion(info.ProductVersion)
	s.mu.Unlock()

	s.scheduleResort()
}

// scheduleResort arms the debounce timer; at most one re-sort happens per
// window no matter how many metadata arrivals request one.
func (s *Service) scheduleResort() {
	s.mu.Lock()
	if s.resortPending {
		s.mu.Unlock()
		return
	}
	s.resortPending = true
	s.mu.Unlock()

	time.AfterFunc(resortDebounce, s.resortNow)
}

func (s *Service) resortNow() {
	s.mu.Lock()
	s.resortPending = false
	sortProducts(s.installers)
	s.mu.Unlock()

	s.broadcastUpdated()
}

// Installers returns a snapshot of the published installer list.
func (s *Service) Installers() []*Product {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := make([]*Product, len(s.installers))
	copy(snapshot, s.installers)
	return snapshot
}

// IsLoading reports whether a load is in flight.
func (s *Service) IsLoading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// HasLoaded reports whether at least one load has published.
func (s *Service) HasLoaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasLoaded
}

func (s *Service) broadcastUpdated() {
	if s.hub == nil {
		return
	}
	if err := s.hub.Broadcast("catalog:updated", s.productViews()); err != nil {
		s.logger.Warn().Err(err).Msg("failed to broadcast catalog update")
	}
}
