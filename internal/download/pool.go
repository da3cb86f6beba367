package download

import (
	"context"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// Broadcaster pushes download events to connected clients.
type Broadcaster interface {
	Broadcast(messageType string, payload interface{}) error
}

// DirectoryProvider resolves the destination directory at admission time,
// so a preference change applies to the next download without a restart.
type DirectoryProvider interface {
	DownloadDirectory(ctx context.Context) (string, error)
}

// Config holds the pool's tunables.
type Config struct {
	MaxConcurrent   int
	RetryLimit      int
	RetryDelay      time.Duration
	RequestTimeout  time.Duration
	TransferTimeout time.Duration // 0 means no overall deadline
}

// PoolView is the wire representation of the whole pool.
type PoolView struct {
	Active            []ItemView `json:"active"`
	Completed         []ItemView `json:"completed"`
	AggregateProgress float64    `json:"aggregateProgress"`
}

// Pool manages concurrent downloads. All mutations are serialized through
// a single mutex so admission checks, completions and cancellations never
// interleave.
type Pool struct {
	fs     afero.Fs
	grants GrantProvider
	dirs   DirectoryProvider
	hub    Broadcaster
	client *http.Client
	logger zerolog.Logger
	cfg    Config

	mu        sync.Mutex
	active    []*Item
	completed []*Item
}

// NewPool creates a pool. A nil hub disables event broadcasting.
func NewPool(fs afero.Fs, grants GrantProvider, dirs DirectoryProvider, hub Broadcaster, logger zerolog.Logger, cfg Config) *Pool {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 3
	}
	transport := &http.Transport{
		ResponseHeaderTimeout: cfg.RequestTimeout,
		Proxy:                 http.ProxyFromEnvironment,
	}
	return &Pool{
		fs:     fs,
		grants: grants,
		dirs:   dirs,
		hub:    hub,
		client: &http.Client{Transport: transport, Timeout: cfg.TransferTimeout},
		logger: logger.With().Str("component", "downloads").Logger(),
		cfg:    cfg,
	}
}

// CanStart reports whether the pool has capacity for another download.
func (p *Pool) CanStart() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.active) < p.cfg.MaxConcurrent
}

// Start admits a new download. Admission fails when the pool is at its
// concurrency limit, when another active download targets the same
// filename, or when the destination file exists and replacing is false.
func (p *Pool) Start(ctx context.Context, url, filename string, replacing bool) (*Item, error) {
	dir, err := p.dirs.DownloadDirectory(ctx)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	if len(p.active) >= p.cfg.MaxConcurrent {
		p.mu.Unlock()
		return nil, ErrLimitReached
	}
	for _, it := range p.active {
		if it.Filename == filename {
			p.mu.Unlock()
			return nil, ErrDuplicateFilename
		}
	}
	dest := filepath.Join(dir, filename)
	if exists, _ := afero.Exists(p.fs, dest); exists {
		if !replacing {
			p.mu.Unlock()
			return nil, ErrFileExists
		}
		if err := p.fs.Remove(dest); err != nil {
			p.mu.Unlock()
			return nil, err
		}
	}

	grant, err := p.grants.Acquire(dir)
	if err != nil {
		p.mu.Unlock()
		return nil, err
	}

	item := newItem(itemConfig{
		url:        url,
		filename:   filename,
		destDir:    dir,
		replacing:  replacing,
		fs:         p.fs,
		client:     p.client,
		observer:   p,
		grant:      grant,
		logger:     p.logger,
		retryLimit: p.cfg.RetryLimit,
		retryDelay: p.cfg.RetryDelay,
	})
	p.active = append(p.active, item)
	p.mu.Unlock()

	// Announce before starting so the started event always precedes the
	// item's terminal event.
	p.broadcast(EventStarted, item.View())
	item.start()
	return item, nil
}

// Cancel aborts an active download by ID.
func (p *Pool) Cancel(id string) error {
	p.mu.Lock()
	var target *Item
	for _, it := range p.active {
		if it.ID == id {
			target = it
			break
		}
	}
	p.mu.Unlock()

	if target == nil {
		return ErrNotFound
	}
	target.Cancel()
	return nil
}

// Dismiss removes a completed download from the completed set.
func (p *Pool) Dismiss(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, it := range p.completed {
		if it.ID == id {
			p.completed = append(p.completed[:i], p.completed[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

// DismissAll clears the completed set.
func (p *Pool) DismissAll() {
	p.mu.Lock()
	p.completed = nil
	p.mu.Unlock()
}

// ActiveCount returns the number of in-flight downloads.
func (p *Pool) ActiveCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.active)
}

// AggregateProgress is the mean progress fraction across active downloads,
// or 0 when none are active.
func (p *Pool) AggregateProgress() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.aggregateLocked()
}

func (p *Pool) aggregateLocked() float64 {
	if len(p.active) == 0 {
		return 0
	}
	var sum float64
	for _, it := range p.active {
		sum += it.Progress()
	}
	return sum / float64(len(p.active))
}

// View returns a snapshot of both sets.
func (p *Pool) View() PoolView {
	p.mu.Lock()
	defer p.mu.Unlock()
	v := PoolView{
		Active:            make([]ItemView, 0, len(p.active)),
		Completed:         make([]ItemView, 0, len(p.completed)),
		AggregateProgress: p.aggregateLocked(),
	}
	for _, it := range p.active {
		v.Active = append(v.Active, it.View())
	}
	for _, it := range p.completed {
		v.Completed = append(v.Completed, it.View())
	}
	return v
}

// itemProgress implements itemObserver.
func (p *Pool) itemProgress(item *Item) {
	p.broadcast(EventProgress, item.View())
}

// itemFinished implements itemObserver. The item has already reached a
// terminal state; the pool moves it between sets and announces the result.
func (p *Pool) itemFinished(item *Item, event string) {
	p.mu.Lock()
	for i, it := range p.active {
		if it == item {
			p.active = append(p.active[:i], p.active[i+1:]...)
			break
		}
	}
	if event == EventCompleted {
		p.completed = append(p.completed, item)
	}
	p.mu.Unlock()

	p.broadcast(event, item.View())
}

func (p *Pool) broadcast(event string, view ItemView) {
	if p.hub == nil {
		return
	}
	if err := p.hub.Broadcast(event, view); err != nil {
		p.logger.Debug().Err(err).Msg("Failed to broadcast download event")
	}
	if err := p.hub.Broadcast(EventState, p.View()); err != nil {
		p.logger.Debug().Err(err).Msg("Failed to broadcast download state")
	}
}
