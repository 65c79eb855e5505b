package lyrics

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

const searchPage = `<html><body>
<a href="/about.php">About</a>
<a href="/anime/bocchi/seishun.htm">Seishun Complex</a>
<a href="/anime/bocchi/other.htm">Other</a>
</body></html>`

const lyricsPage = `<html><body>
<h1>Seishun Complex</h1>
<p>Artist: Kessoku Band
Lyrics: Higuchi Ai</p>
<pre>
Line   one


Line two
</pre>
</body></html>`

func newSite(t *testing.T, searches *atomic.Int32) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/search.php", func(w http.ResponseWriter, r *http.Request) {
		searches.Add(1)
		if r.URL.Query().Get("search") == "unknown" {
			fmt.Fprint(w, "<html><body>Nothing here</body></html>")
			return
		}
		fmt.Fprint(w, searchPage)
	})
	mux.HandleFunc("/anime/bocchi/seishun.htm", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, lyricsPage)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newScraper(url string) *Scraper {
	s := NewScraper(url, nil)
	s.limiter = rate.NewLimiter(rate.Inf, 0)
	return s
}

func TestScraperSearch(t *testing.T) {
	var searches atomic.Int32
	server := newSite(t, &searches)
	scraper := newScraper(server.URL)

	result, err := scraper.Search(context.Background(), "Seishun Complex")
	require.NoError(t, err)
	assert.Equal(t, "Seishun Complex", result.Title)
	assert.Equal(t, "Kessoku Band", result.Artist)
	assert.Equal(t, "Line one\n\nLine two", result.Lyrics)
	assert.Equal(t, server.URL+"/anime/bocchi/seishun.htm", result.URL)

	// Cached, case-insensitively
	_, err = scraper.Search(context.Background(), "seishun complex ")
	require.NoError(t, err)
	assert.Equal(t, int32(1), searches.Load())

	scraper.ClearCache()
	_, err = scraper.Search(context.Background(), "Seishun Complex")
	require.NoError(t, err)
	assert.Equal(t, int32(2), searches.Load())
}

func TestScraperNotFound(t *testing.T) {
	var searches atomic.Int32
	server := newSite(t, &searches)
	scraper := newScraper(server.URL)

	_, err := scraper.Search(context.Background(), "unknown")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = scraper.Search(context.Background(), "unknown")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, int32(1), searches.Load())

	_, err = scraper.Search(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestScraperHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := newScraper(server.URL).Search(context.Background(), "song")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestScraperCancelledContextIsNotCached(t *testing.T) {
	var searches atomic.Int32
	server := newSite(t, &searches)
	scraper := newScraper(server.URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := scraper.Search(ctx, "Seishun Complex")
	require.Error(t, err)

	_, err = scraper.Search(context.Background(), "Seishun Complex")
	assert.NoError(t, err)
}

func TestClean(t *testing.T) {
	assert.Equal(t, "", Clean("  \n\n "))
	assert.Equal(t, "a b\n\nc", Clean(" a   b \n\n\n\n c "))

	long := Clean(strings.Repeat("x", MaxLength+10))
	assert.Len(t, []rune(long), MaxLength)
	assert.True(t, strings.HasSuffix(long, "..."))
}
