package download

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/spf13/afero"
)

func newTestServer(t *testing.T, pool *Pool) *echo.Echo {
	t.Helper()
	e := echo.New()
	NewHandlers(pool).RegisterRoutes(e.Group("/api/v1/downloads"))
	return e
}

func TestStartDownloadEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "payload")
	}))
	defer srv.Close()

	fs := afero.NewMemMapFs()
	pool := newTestPool(t, fs, Config{})
	e := newTestServer(t, pool)

	body := fmt.Sprintf(`{"url":%q,"filename":"api.pkg"}`, srv.URL)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/downloads", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body)
	}

	var view ItemView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	if view.Filename != "api.pkg" {
		t.Errorf("Filename = %q, want %q", view.Filename, "api.pkg")
	}
	if view.ID == "" {
		t.Error("response missing item ID")
	}
}

func TestStartDownloadEndpointValidation(t *testing.T) {
	fs := afero.NewMemMapFs()
	pool := newTestPool(t, fs, Config{})
	e := newTestServer(t, pool)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/downloads", strings.NewReader(`{"url":""}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d for empty url, want 400", rec.Code)
	}
}

func TestStartDownloadEndpointConflicts(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	fs := afero.NewMemMapFs()
	pool := newTestPool(t, fs, Config{MaxConcurrent: 1})
	e := newTestServer(t, pool)

	post := func(filename string) *httptest.ResponseRecorder {
		body := fmt.Sprintf(`{"url":%q,"filename":%q}`, srv.URL, filename)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/downloads", strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec
	}

	if rec := post("busy.pkg"); rec.Code != http.StatusAccepted {
		t.Fatalf("first start: status = %d, want 202", rec.Code)
	}
	if rec := post("other.pkg"); rec.Code != http.StatusTooManyRequests {
		t.Errorf("at limit: status = %d, want 429", rec.Code)
	}
}

func TestCancelEndpointUnknownID(t *testing.T) {
	fs := afero.NewMemMapFs()
	pool := newTestPool(t, fs, Config{})
	e := newTestServer(t, pool)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/downloads/nope", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
