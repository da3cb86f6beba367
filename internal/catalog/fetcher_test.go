package catalog

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkgfetch/pkgfetch/internal/testutil"
)

const catalogPlist = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>CatalogVersion</key>
	<integer>2</integer>
	<key>Products</key>
	<dict>
		<key>%s</key>
		<dict>
			<key>PostDate</key>
			<date>2025-05-26T17:03:55Z</date>
			<key>Distributions</key>
			<dict>
				<key>English</key>
				<string>https://example.com/031-86321/English.dist</string>
			</dict>
			<key>Packages</key>
			<array>
				<dict>
					<key>URL</key>
					<string>https://example.com/031-86321/InstallAssistant.pkg</string>
					<key>Size</key>
					<integer>13338327179</integer>
				</dict>
			</array>
			<key>ExtendedMetaInfo</key>
			<dict>
				<key>InstallAssistantPackageIdentifiers</key>
				<dict>
					<key>OSInstall</key>
					<string>com.apple.mpkg.OSInstall</string>
					<key>SharedSupport</key>
					<string>com.apple.pkg.InstallAssistant.macOSSequoia</string>
				</dict>
			</dict>
		</dict>
	</dict>
</dict>
</plist>`

func catalogHandler(productKey string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, catalogPlist, productKey)
	}
}

func TestFetcherFetchAll(t *testing.T) {
	srv := httptest.NewServer(catalogHandler("062-01234"))
	defer srv.Close()

	f := NewFetcher(5*time.Second, testutil.NewTestLogger(t))
	results := f.FetchAll(context.Background(), []string{srv.URL})

	require.Len(t, results, 1)
	require.True(t, results[0].OK())

	product, ok := results[0].Products["062-01234"]
	require.True(t, ok, "product 062-01234 missing from decoded feed")

	assert.Equal(t, "062-01234", product.Key)
	assert.True(t, product.IsInstaller())
	assert.Equal(t, "https://example.com/031-86321/InstallAssistant.pkg", product.InstallerURL())
	assert.Equal(t, int64(13338327179), product.InstallerSize())
	assert.Equal(t, time.Date(2025, 5, 26, 17, 3, 55, 0, time.UTC), product.PostDate.UTC())
}

func TestFetchAllIsolatesFailures(t *testing.T) {
	good := httptest.NewServer(catalogHandler("062-11111"))
	defer good.Close()

	missing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer missing.Close()

	garbage := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "not a property list")
	}))
	defer garbage.Close()

	refused := httptest.NewServer(http.NotFoundHandler())
	refused.Close() // connection refused

	urls := []string{good.URL, missing.URL, garbage.URL, refused.URL}
	f := NewFetcher(5*time.Second, testutil.NopLogger())
	results := f.FetchAll(context.Background(), urls)

	require.Len(t, results, 4, "every feed must report, failed or not")

	assert.True(t, results[0].OK())
	assert.Len(t, results[0].Products, 1)

	assert.Error(t, results[1].Err, "non-200 status should surface as a feed error")
	assert.Error(t, results[2].DecodeErr, "malformed plist should surface as a decode error")
	assert.Error(t, results[3].Err, "transport failure should surface as a feed error")

	for i, r := range results {
		assert.Equal(t, urls[i], r.URL, "results must stay in input order")
	}
}

func TestFetchAllWaitsForSlowFeeds(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(150 * time.Millisecond)
		catalogHandler("062-22222")(w, r)
	}))
	defer slow.Close()

	fast := httptest.NewServer(catalogHandler("062-33333"))
	defer fast.Close()

	f := NewFetcher(5*time.Second, testutil.NopLogger())
	start := time.Now()
	results := f.FetchAll(context.Background(), []string{slow.URL, fast.URL})

	require.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond, "FetchAll must wait for the slowest feed")
	assert.True(t, results[0].OK())
	assert.True(t, results[1].OK())
}
