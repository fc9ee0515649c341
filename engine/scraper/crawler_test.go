package scraper

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/curbside-labs/contenthub/engine/domain"
	"github.com/curbside-labs/contenthub/pkg/fn"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testSite serves a handful of pages and records which paths were hit.
type testSite struct {
	mu   sync.Mutex
	hits map[string]int
}

func newTestSite() *testSite {
	return &testSite{hits: map[string]int{}}
}

func (s *testSite) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.hits[r.URL.Path]++
	s.mu.Unlock()

	page := func(title, body string) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, "<html><head><title>%s</title></head><body><main>%s</main></body></html>", title, body)
	}

	switch r.URL.Path {
	case "/":
		page("Home", `<a href="/blog/post-1/">One</a>
			<a href="/solutions/microtransit/">Micro</a>
			<a href="https://elsewhere.example.net/x">Ext</a>
			<a href="/assets/hero.png">Img</a>
			<a href="/pricing/">Pricing</a>
			<a href="/blog/broken/">Broken</a>
			<a href="/blog/feed/">Feed</a>`)
	case "/blog/":
		page("Blog", `<a href="/blog/post-1/">One</a><a href="/blog/post-2/">Two</a>`)
	case "/solutions/":
		page("Solutions", `<a href="/solutions/microtransit/">Micro</a>`)
	case "/blog/post-1/":
		page("Post One", "First post about flexible routing.")
	case "/blog/post-2/":
		page("Post Two", "Second post.")
	case "/solutions/microtransit/":
		page("Microtransit", "Zone based shared rides.")
	case "/blog/broken/":
		http.Error(w, "boom", http.StatusInternalServerError)
	case "/blog/feed/":
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"items":[]}`)
	default:
		http.NotFound(w, r)
	}
}

func (s *testSite) hitCount(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

func collectCrawl(t *testing.T, ch <-chan fn.Result[domain.ScrapedPage]) ([]domain.ScrapedPage, []error) {
	t.Helper()
	var pages []domain.ScrapedPage
	var errs []error
	for r := range ch {
		page, err := r.Unwrap()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		pages = append(pages, page)
	}
	return pages, errs
}

func TestCrawl_WalksConfiguredSections(t *testing.T) {
	site := newTestSite()
	srv := httptest.NewServer(site)
	defer srv.Close()

	c, err := New(Options{
		BaseURL:  srv.URL,
		Sections: []string{"/blog/", "/solutions/"},
	}, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pages, errs := collectCrawl(t, c.Crawl(ctx))

	byPath := map[string]domain.ScrapedPage{}
	for _, p := range pages {
		byPath[strings.TrimPrefix(p.URL, srv.URL)] = p
	}
	for _, path := range []string{"/", "/blog/post-1/", "/blog/post-2/", "/solutions/microtransit/"} {
		if _, ok := byPath[path]; !ok {
			t.Errorf("expected page for %s, got paths %v", path, pages)
		}
	}

	if got := byPath["/blog/post-1/"]; got.Section != "blog" {
		t.Errorf("section = %q, want blog", got.Section)
	}
	if got := byPath["/"]; got.Section != "" {
		t.Errorf("root section = %q, want empty", got.Section)
	}
	if got := byPath["/blog/post-1/"]; got.Title != "Post One" {
		t.Errorf("title = %q", got.Title)
	}

	if site.hitCount("/pricing/") != 0 {
		t.Error("followed a link outside the configured sections")
	}
	if site.hitCount("/assets/hero.png") != 0 {
		t.Error("fetched a static asset")
	}
	if site.hitCount("/blog/post-1/") != 1 {
		t.Errorf("post-1 fetched %d times, want 1", site.hitCount("/blog/post-1/"))
	}

	if len(errs) != 1 || !strings.Contains(errs[0].Error(), "/blog/broken/") {
		t.Errorf("errs = %v, want one error for /blog/broken/", errs)
	}
	if _, ok := byPath["/blog/feed/"]; ok {
		t.Error("non-HTML response should be skipped, not emitted")
	}
}

func TestCrawl_MaxPagesBoundsTheWalk(t *testing.T) {
	site := newTestSite()
	srv := httptest.NewServer(site)
	defer srv.Close()

	c, err := New(Options{
		BaseURL:  srv.URL,
		Sections: []string{"/blog/", "/solutions/"},
		MaxPages: 1,
	}, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	pages, errs := collectCrawl(t, c.Crawl(context.Background()))
	if len(pages) != 1 || len(errs) != 0 {
		t.Fatalf("got %d pages and %d errors, want exactly the root page", len(pages), len(errs))
	}
	if pages[0].URL != srv.URL+"/" {
		t.Errorf("first page = %q, want root", pages[0].URL)
	}
}

func TestCrawl_StopsOnCancel(t *testing.T) {
	site := newTestSite()
	srv := httptest.NewServer(site)
	defer srv.Close()

	c, err := New(Options{BaseURL: srv.URL, Sections: []string{"/blog/"}}, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		for range c.Crawl(ctx) {
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("crawl did not stop after cancel")
	}
}

func TestNew_RequiresAbsoluteBaseURL(t *testing.T) {
	if _, err := New(Options{BaseURL: "example.com"}, testLogger()); err == nil {
		t.Fatal("expected error for relative base url")
	}
}

func TestNew_AppliesDefaults(t *testing.T) {
	c, err := New(Options{BaseURL: "https://example.com"}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c.maxPages != DefaultMaxPages {
		t.Errorf("maxPages = %d, want %d", c.maxPages, DefaultMaxPages)
	}
	if len(c.sections) != len(DefaultSections) {
		t.Errorf("sections = %v, want defaults", c.sections)
	}
	if c.userAgent != DefaultUserAgent {
		t.Errorf("userAgent = %q", c.userAgent)
	}
}
