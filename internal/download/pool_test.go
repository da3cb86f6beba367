package download

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/pkgfetch/pkgfetch/internal/testutil"
)

const testDir = "/downloads"

type staticDir string

func (d staticDir) DownloadDirectory(ctx context.Context) (string, error) {
	return string(d), nil
}

func newTestPool(t *testing.T, fs afero.Fs, cfg Config) *Pool {
	t.Helper()
	if cfg.MaxConcurrent == 0 {
		cfg.MaxConcurrent = 3
	}
	if cfg.RetryLimit == 0 {
		cfg.RetryLimit = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 10 * time.Millisecond
	}
	return NewPool(fs, NewDirGrantProvider(fs), staticDir(testDir), nil, testutil.NewTestLogger(t), cfg)
}

func waitForState(t *testing.T, item *Item, want State) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if item.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("item stuck in state %q, want %q", item.State(), want)
}

func TestPoolDownloadCompletes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "installer payload")
	}))
	defer srv.Close()

	fs := afero.NewMemMapFs()
	pool := newTestPool(t, fs, Config{})

	item, err := pool.Start(context.Background(), srv.URL, "InstallAssistant-15.5-24F74.pkg", false)
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	waitForState(t, item, StateCompleted)

	data, err := afero.ReadFile(fs, testDir+"/InstallAssistant-15.5-24F74.pkg")
	if err != nil {
		t.Fatalf("completed file missing: %v", err)
	}
	if string(data) != "installer payload" {
		t.Errorf("file content = %q, want %q", data, "installer payload")
	}

	if exists, _ := afero.Exists(fs, testDir+"/InstallAssistant-15.5-24F74.pkg"+partialSuffix); exists {
		t.Error("partial file left behind after completion")
	}

	view := pool.View()
	if len(view.Active) != 0 {
		t.Errorf("active set has %d items after completion, want 0", len(view.Active))
	}
	if len(view.Completed) != 1 {
		t.Fatalf("completed set has %d items, want 1", len(view.Completed))
	}
	if view.Completed[0].LocalPath != testDir+"/InstallAssistant-15.5-24F74.pkg" {
		t.Errorf("unexpected local path %q", view.Completed[0].LocalPath)
	}
}

func TestPoolConcurrencyLimit(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	fs := afero.NewMemMapFs()
	pool := newTestPool(t, fs, Config{MaxConcurrent: 2})

	for i := 0; i < 2; i++ {
		name := fmt.Sprintf("file-%d.pkg", i)
		if _, err := pool.Start(context.Background(), srv.URL, name, false); err != nil {
			t.Fatalf("Start(%s) error: %v", name, err)
		}
	}

	if _, err := pool.Start(context.Background(), srv.URL, "file-2.pkg", false); err != ErrLimitReached {
		t.Fatalf("third Start() error = %v, want ErrLimitReached", err)
	}
	if pool.CanStart() {
		t.Error("CanStart() = true at the concurrency limit")
	}
}

func TestPoolRejectsDuplicateFilename(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	fs := afero.NewMemMapFs()
	pool := newTestPool(t, fs, Config{})

	if _, err := pool.Start(context.Background(), srv.URL, "same.pkg", false); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if _, err := pool.Start(context.Background(), srv.URL, "same.pkg", false); err != ErrDuplicateFilename {
		t.Fatalf("duplicate Start() error = %v, want ErrDuplicateFilename", err)
	}
}

func TestPoolExistingFileNeedsReplacing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "new build")
	}))
	defer srv.Close()

	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, testDir+"/existing.pkg", []byte("old build"), 0o644); err != nil {
		t.Fatal(err)
	}

	pool := newTestPool(t, fs, Config{})

	if _, err := pool.Start(context.Background(), srv.URL, "existing.pkg", false); err != ErrFileExists {
		t.Fatalf("Start() error = %v, want ErrFileExists", err)
	}

	item, err := pool.Start(context.Background(), srv.URL, "existing.pkg", true)
	if err != nil {
		t.Fatalf("replacing Start() error: %v", err)
	}
	waitForState(t, item, StateCompleted)

	data, _ := afero.ReadFile(fs, testDir+"/existing.pkg")
	if string(data) != "new build" {
		t.Errorf("file content = %q, want replaced content", data)
	}
}

func TestPoolCancelRemovesPartial(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1048576")
		w.Write([]byte("partial bytes"))
		w.(http.Flusher).Flush()
		close(started)
		<-release
	}))
	defer srv.Close()
	defer close(release)

	fs := afero.NewMemMapFs()
	pool := newTestPool(t, fs, Config{})

	item, err := pool.Start(context.Background(), srv.URL, "cancelled.pkg", false)
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	<-started

	if err := pool.Cancel(item.ID); err != nil {
		t.Fatalf("Cancel() error: %v", err)
	}
	waitForState(t, item, StateCancelled)

	if exists, _ := afero.Exists(fs, testDir+"/cancelled.pkg"+partialSuffix); exists {
		t.Error("partial file not removed on cancel")
	}
	if pool.ActiveCount() != 0 {
		t.Errorf("active count = %d after cancel, want 0", pool.ActiveCount())
	}
	if len(pool.View().Completed) != 0 {
		t.Error("cancelled item must not land in the completed set")
	}

	if err := pool.Cancel(item.ID); err != ErrNotFound {
		t.Errorf("second Cancel() error = %v, want ErrNotFound", err)
	}
}

func TestPoolDismiss(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "payload")
	}))
	defer srv.Close()

	fs := afero.NewMemMapFs()
	pool := newTestPool(t, fs, Config{})

	first, err := pool.Start(context.Background(), srv.URL, "first.pkg", false)
	if err != nil {
		t.Fatal(err)
	}
	waitForState(t, first, StateCompleted)
	second, err := pool.Start(context.Background(), srv.URL, "second.pkg", false)
	if err != nil {
		t.Fatal(err)
	}
	waitForState(t, second, StateCompleted)

	if err := pool.Dismiss(first.ID); err != nil {
		t.Fatalf("Dismiss() error: %v", err)
	}
	if got := len(pool.View().Completed); got != 1 {
		t.Fatalf("completed set has %d items after dismiss, want 1", got)
	}
	if err := pool.Dismiss(first.ID); err != ErrNotFound {
		t.Errorf("dismissing twice: error = %v, want ErrNotFound", err)
	}

	pool.DismissAll()
	if got := len(pool.View().Completed); got != 0 {
		t.Errorf("completed set has %d items after DismissAll, want 0", got)
	}
}

type recordingHub struct {
	mu     sync.Mutex
	events []string
}

func (h *recordingHub) Broadcast(msgType string, payload interface{}) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, msgType)
	return nil
}

func (h *recordingHub) snapshot() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.events...)
}

func TestPoolEventOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "tiny")
	}))
	defer srv.Close()

	fs := afero.NewMemMapFs()
	hub := &recordingHub{}
	pool := NewPool(fs, NewDirGrantProvider(fs), staticDir(testDir), hub, testutil.NewTestLogger(t), Config{
		MaxConcurrent: 3,
		RetryLimit:    3,
		RetryDelay:    10 * time.Millisecond,
	})

	item, err := pool.Start(context.Background(), srv.URL, "ordered.pkg", false)
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	waitForState(t, item, StateCompleted)

	started, completed := -1, -1
	for i, event := range hub.snapshot() {
		switch event {
		case EventStarted:
			if started == -1 {
				started = i
			}
		case EventCompleted:
			if completed == -1 {
				completed = i
			}
		}
	}
	if started == -1 || completed == -1 {
		t.Fatalf("missing lifecycle events, got %v", hub.snapshot())
	}
	if started > completed {
		t.Errorf("started event at %d after completed event at %d", started, completed)
	}
}

func TestPoolAggregateProgress(t *testing.T) {
	fs := afero.NewMemMapFs()
	pool := newTestPool(t, fs, Config{})

	if got := pool.AggregateProgress(); got != 0 {
		t.Errorf("aggregate with no active downloads = %v, want 0", got)
	}

	half := &Item{bytesWritten: 50, bytesExpected: 100, state: StateDownloading}
	full := &Item{bytesWritten: 100, bytesExpected: 100, state: StateDownloading}
	pool.active = append(pool.active, half, full)

	if got, want := pool.AggregateProgress(), 0.75; got != want {
		t.Errorf("aggregate = %v, want %v", got, want)
	}
}
