package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/pkgfetch/pkgfetch/internal/netutil"
)

const (
	partialSuffix    = ".partial"
	progressInterval = 100 * time.Millisecond
	copyBufferSize   = 64 * 1024
)

// itemObserver receives lifecycle notifications from an item. The pool
// implements it. Callbacks are invoked without the item's mutex held.
type itemObserver interface {
	itemProgress(item *Item)
	itemFinished(item *Item, event string)
}

// resumeToken records where a partial transfer left off. It is scoped to
// the item that produced it and is discarded on cancellation, on success
// and when the retry budget is exhausted.
type resumeToken struct {
	offset int64
	etag   string
}

// Item is a single download with retry-with-resume semantics. Transient
// network failures put the item into StateRetrying and schedule a fresh
// attempt that resumes from the last written byte; any other failure is
// terminal.
type Item struct {
	ID        string
	URL       string
	Filename  string
	destDir   string
	replacing bool

	fs       afero.Fs
	client   *http.Client
	observer itemObserver
	grant    Grant
	logger   zerolog.Logger

	retryLimit int
	retryDelay time.Duration

	mu             sync.Mutex
	state          State
	bytesWritten   int64
	bytesExpected  int64
	retryCount     int
	lastErr        error
	token          *resumeToken
	retryTimer     *time.Timer
	cancel         context.CancelFunc
	lastProgressAt time.Time
}

type itemConfig struct {
	url        string
	filename   string
	destDir    string
	replacing  bool
	fs         afero.Fs
	client     *http.Client
	observer   itemObserver
	grant      Grant
	logger     zerolog.Logger
	retryLimit int
	retryDelay time.Duration
}

func newItem(cfg itemConfig) *Item {
	return &Item{
		ID:         uuid.New().String(),
		URL:        cfg.url,
		Filename:   cfg.filename,
		destDir:    cfg.destDir,
		replacing:  cfg.replacing,
		fs:         cfg.fs,
		client:     cfg.client,
		observer:   cfg.observer,
		grant:      cfg.grant,
		logger:     cfg.logger.With().Str("filename", cfg.filename).Logger(),
		retryLimit: cfg.retryLimit,
		retryDelay: cfg.retryDelay,
		state:      StateIdle,
	}
}

func (it *Item) destPath() string {
	return filepath.Join(it.destDir, it.Filename)
}

func (it *Item) partialPath() string {
	return it.destPath() + partialSuffix
}

// State returns the current lifecycle state.
func (it *Item) State() State {
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.state
}

// Progress returns the completed fraction, or 0 when the total is unknown.
func (it *Item) Progress() float64 {
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.progressLocked()
}

func (it *Item) progressLocked() float64 {
	if it.bytesExpected <= 0 {
		return 0
	}
	return float64(it.bytesWritten) / float64(it.bytesExpected)
}

// View returns a snapshot for the wire.
func (it *Item) View() ItemView {
	it.mu.Lock()
	defer it.mu.Unlock()
	v := ItemView{
		ID:             it.ID,
		URL:            it.URL,
		Filename:       it.Filename,
		State:          it.state,
		BytesWritten:   it.bytesWritten,
		BytesExpected:  it.bytesExpected,
		Progress:       it.progressLocked(),
		ProgressString: progressString(it.bytesWritten, it.bytesExpected),
		RetryCount:     it.retryCount,
	}
	if it.lastErr != nil {
		v.Error = it.lastErr.Error()
	}
	if it.state == StateCompleted {
		v.LocalPath = it.destPath()
	}
	return v
}

// start begins the first attempt. Called once by the pool after admission.
func (it *Item) start() {
	it.mu.Lock()
	if it.state != StateIdle {
		it.mu.Unlock()
		return
	}
	it.state = StateDownloading
	ctx, cancel := context.WithCancel(context.Background())
	it.cancel = cancel
	it.mu.Unlock()

	it.logger.Info().Str("url", it.URL).Msg("Download started")
	go it.attempt(ctx)
}

// Cancel moves the item to StateCancelled, aborts the in-flight transfer
// and discards the partial file and resume token. Cancellation wins over
// a completion racing with it.
func (it *Item) Cancel() {
	it.mu.Lock()
	if it.state != StateDownloading && it.state != StateRetrying {
		it.mu.Unlock()
		return
	}
	it.state = StateCancelled
	if it.cancel != nil {
		it.cancel()
	}
	if it.retryTimer != nil {
		it.retryTimer.Stop()
		it.retryTimer = nil
	}
	it.token = nil
	it.bytesWritten = 0
	it.mu.Unlock()

	it.fs.Remove(it.partialPath())
	it.grant.Release()
	it.logger.Info().Msg("Download cancelled")
	it.observer.itemFinished(it, EventCancelled)
}

// attempt runs one transfer and drives the state machine from its outcome.
func (it *Item) attempt(ctx context.Context) {
	err := it.transfer(ctx)

	it.mu.Lock()
	if it.state == StateCancelled {
		// Cancel already completed the lifecycle.
		it.mu.Unlock()
		return
	}

	if err == nil {
		it.state = StateCompleted
		it.token = nil
		it.lastErr = nil
		it.mu.Unlock()

		it.grant.Release()
		it.logger.Info().Msg("Download completed")
		it.observer.itemFinished(it, EventCompleted)
		return
	}

	if netutil.IsNetworkError(err) && it.retryCount < it.retryLimit {
		it.retryCount++
		it.state = StateRetrying
		it.lastErr = err
		delay := it.retryDelay
		it.retryTimer = time.AfterFunc(delay, it.resume)
		count := it.retryCount
		it.mu.Unlock()

		it.logger.Warn().Err(err).Int("attempt", count).Dur("delay", delay).
			Msg("Download interrupted, retrying")
		it.observer.itemProgress(it)
		return
	}

	it.state = StateFailed
	it.lastErr = err
	it.token = nil
	it.mu.Unlock()

	it.fs.Remove(it.partialPath())
	it.grant.Release()
	it.logger.Error().Err(err).Msg("Download failed")
	it.observer.itemFinished(it, EventFailed)
}

// resume fires when the retry delay elapses.
func (it *Item) resume() {
	it.mu.Lock()
	if it.state != StateRetrying {
		it.mu.Unlock()
		return
	}
	it.state = StateDownloading
	it.retryTimer = nil
	ctx, cancel := context.WithCancel(context.Background())
	it.cancel = cancel
	it.mu.Unlock()

	go it.attempt(ctx)
}

// transfer performs one HTTP attempt, resuming from the token's offset
// when the server honors the range request.
func (it *Item) transfer(ctx context.Context) error {
	it.mu.Lock()
	token := it.token
	it.mu.Unlock()

	var offset int64
	var etag string
	if token != nil {
		offset = token.offset
		etag = token.etag
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, it.URL, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if offset > 0 {
		req.Header.Set("Range", "bytes="+strconv.FormatInt(offset, 10)+"-")
		if etag != "" {
			req.Header.Set("If-Range", etag)
		}
	}

	resp, err := it.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var file afero.File
	switch resp.StatusCode {
	case http.StatusPartialContent:
		file, err = it.fs.OpenFile(it.partialPath(), os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			it.clearToken()
			return fmt.Errorf("reopening partial file: %w", err)
		}
	case http.StatusOK:
		// Full body: either the first attempt or the server ignored the
		// range (content changed under If-Range). Start over.
		offset = 0
		it.mu.Lock()
		it.bytesWritten = 0
		it.mu.Unlock()
		file, err = it.fs.OpenFile(it.partialPath(), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
		if err != nil {
			return fmt.Errorf("creating partial file: %w", err)
		}
	default:
		return fmt.Errorf("unexpected status %d fetching %s", resp.StatusCode, it.URL)
	}
	defer file.Close()

	it.mu.Lock()
	if resp.ContentLength > 0 {
		it.bytesExpected = offset + resp.ContentLength
	}
	it.mu.Unlock()

	newEtag := resp.Header.Get("ETag")
	written, err := it.copyBody(ctx, file, resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// Remember how far we got so a retry can resume.
		it.mu.Lock()
		it.token = &resumeToken{offset: offset + written, etag: newEtag}
		it.mu.Unlock()
		return err
	}

	if err := file.Close(); err != nil {
		return fmt.Errorf("closing partial file: %w", err)
	}
	return it.finalize()
}

// copyBody streams the body to the partial file, publishing progress at
// most every progressInterval.
func (it *Item) copyBody(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, copyBufferSize)
	var written int64
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		n, readErr := src.Read(buf)
		if n > 0 {
			wn, writeErr := dst.Write(buf[:n])
			written += int64(wn)
			it.recordProgress(int64(wn))
			if writeErr != nil {
				return written, writeErr
			}
		}
		if readErr == io.EOF {
			return written, nil
		}
		if readErr != nil {
			return written, readErr
		}
	}
}

func (it *Item) recordProgress(n int64) {
	it.mu.Lock()
	it.bytesWritten += n
	now := time.Now()
	publish := now.Sub(it.lastProgressAt) >= progressInterval
	if publish {
		it.lastProgressAt = now
	}
	it.mu.Unlock()

	if publish {
		it.observer.itemProgress(it)
	}
}

// finalize moves the completed partial file into place.
func (it *Item) finalize() error {
	dest := it.destPath()
	if it.replacing {
		if err := it.fs.Remove(dest); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing existing file: %w", err)
		}
	}
	if err := it.fs.Rename(it.partialPath(), dest); err != nil {
		return fmt.Errorf("moving download into place: %w", err)
	}
	return nil
}

func (it *Item) clearToken() {
	it.mu.Lock()
	it.token = nil
	it.bytesWritten = 0
	it.mu.Unlock()
}
