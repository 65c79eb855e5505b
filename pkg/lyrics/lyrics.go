package lyrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"github.com/latoulicious/Conch/pkg/pipeline"
)

const (
	// DefaultBaseURL is the lyrics site searched by default
	DefaultBaseURL = "https://www.animelyrics.com"

	// MaxLength keeps lyrics inside a single embed description
	MaxLength = 4000

	defaultCacheTTL = 30 * time.Minute
)

var (
	ErrEmptyQuery = errors.New("empty search query")
	ErrNotFound   = errors.New("no lyrics found")
)

var whitespaceRun = regexp.MustCompile(`[ \t\r\f\v]+`)
var blankLines = regexp.MustCompile(`\n{3,}`)

// Result is a lyrics page that matched a search
type Result struct {
	Title  string
	Artist string
	Lyrics string
	URL    string
}

type cached struct {
	result  *Result
	err     error
	expires time.Time
}

// Scraper searches a lyrics site and extracts lyrics from its pages.
// Results, misses included, are cached for a while.
type Scraper struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	ttl     time.Duration
	logger  pipeline.Logger

	mu    sync.Mutex
	cache map[string]cached
}

// NewScraper creates a scraper for baseURL, DefaultBaseURL when empty
func NewScraper(baseURL string, logger pipeline.Logger) *Scraper {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = pipeline.NullLogger()
	}
	return &Scraper{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
		// One request a second with room for a search plus its page
		limiter: rate.NewLimiter(rate.Every(time.Second), 2),
		ttl:     defaultCacheTTL,
		logger:  logger.With(pipeline.String("component", "lyrics")),
		cache:   make(map[string]cached),
	}
}

// Search finds the lyrics of the first page matching query
func (s *Scraper) Search(ctx context.Context, query string) (*Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	key := strings.ToLower(query)
	s.mu.Lock()
	if c, ok := s.cache[key]; ok && time.Now().Before(c.expires) {
		s.mu.Unlock()
		return c.result, c.err
	}
	s.mu.Unlock()

	result, err := s.search(ctx, query)
	if ctx.Err() == nil {
		s.mu.Lock()
		s.cache[key] = cached{result: result, err: err, expires: time.Now().Add(s.ttl)}
		s.mu.Unlock()
	}
	return result, err
}

func (s *Scraper) search(ctx context.Context, query string) (*Result, error) {
	doc, err := s.fetch(ctx, s.baseURL+"/search.php?search="+url.QueryEscape(query))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch search results: %w", err)
	}

	href, ok := doc.Find("a[href*='anime/']").First().Attr("href")
	if !ok || href == "" {
		return nil, fmt.Errorf("%w for %q", ErrNotFound, query)
	}

	pageURL, err := s.resolve(href)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Fetching lyrics page", pipeline.String("query", query), pipeline.String("url", pageURL))
	page, err := s.fetch(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch lyrics page: %w", err)
	}

	result := parsePage(page)
	if result.Lyrics == "" {
		return nil, fmt.Errorf("%w on %s", ErrNotFound, pageURL)
	}
	result.URL = pageURL
	return result, nil
}

func (s *Scraper) resolve(href string) (string, error) {
	base, err := url.Parse(s.baseURL + "/")
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("invalid result link %q: %w", href, err)
	}
	return base.ResolveReference(ref).String(), nil
}

func (s *Scraper) fetch(ctx context.Context, target string) (*goquery.Document, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("request failed with status: %d", resp.StatusCode)
	}
	return goquery.NewDocumentFromReader(resp.Body)
}

func parsePage(doc *goquery.Document) *Result {
	result := &Result{
		Title: strings.TrimSpace(doc.Find("h1, h2, h3").First().Text()),
	}

	doc.Find("p, div").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		text := strings.TrimSpace(sel.Text())
		for _, label := range []string{"Artist:", "歌手:"} {
			if i := strings.Index(text, label); i >= 0 {
				line, _, _ := strings.Cut(text[i+len(label):], "\n")
				result.Artist = strings.TrimSpace(line)
				return false
			}
		}
		return true
	})

	result.Lyrics = Clean(doc.Find("div.lyrics, div#lyrics, pre, .lyrics-content").First().Text())
	return result
}

// Clean collapses runs of blanks and cuts the text to MaxLength
func Clean(text string) string {
	lines := strings.Split(strings.ReplaceAll(text, "\u00a0", " "), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(whitespaceRun.ReplaceAllString(line, " "))
	}
	text = strings.TrimSpace(blankLines.ReplaceAllString(strings.Join(lines, "\n"), "\n\n"))

	if runes := []rune(text); len(runes) > MaxLength {
		text = string(runes[:MaxLength-3]) + "..."
	}
	return text
}

// ClearCache forgets all cached searches
func (s *Scraper) ClearCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = make(map[string]cached)
}
