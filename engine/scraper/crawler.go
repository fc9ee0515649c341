// Package scraper crawls the marketing site and turns its pages into clean
// text for the content pipeline. The crawler stays on one host, visits
// only the configured content sections, and never exceeds its page budget.
package scraper

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/curbside-labs/contenthub/engine/domain"
	"github.com/curbside-labs/contenthub/pkg/fn"
)

// DefaultSections are the site areas worth caching. Links outside them are
// never followed.
var DefaultSections = []string{
	"/audience/", "/solutions/", "/resources/", "/blog/", "/case-studies/", "/about/",
}

const (
	// DefaultMaxPages bounds a crawl regardless of how many links the site
	// exposes.
	DefaultMaxPages = 200

	DefaultUserAgent = "contenthub-crawler/1.0"

	requestTimeout = 10 * time.Second
	maxBodyBytes   = 2 << 20
)

// assetExtensions are skipped without fetching.
var assetExtensions = []string{
	".png", ".jpg", ".jpeg", ".gif", ".webp", ".svg", ".ico",
	".css", ".js", ".pdf", ".zip", ".mp4", ".webm", ".woff", ".woff2",
}

// Options configures a Crawler.
type Options struct {
	BaseURL   string
	Sections  []string
	MaxPages  int
	UserAgent string
	// Client overrides the default HTTP client, mainly for tests.
	Client *http.Client
}

// Crawler walks the site breadth-first from the section seeds.
type Crawler struct {
	base      *url.URL
	sections  []string
	maxPages  int
	userAgent string
	limiter   *rate.Limiter
	client    *http.Client
	seen      sync.Map // visited URLs
	logger    *slog.Logger
}

// New creates a Crawler for the given base URL.
func New(opts Options, logger *slog.Logger) (*Crawler, error) {
	base, err := url.Parse(opts.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("scraper: base url %q is not absolute", opts.BaseURL)
	}
	if len(opts.Sections) == 0 {
		opts.Sections = DefaultSections
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = DefaultMaxPages
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: requestTimeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Crawler{
		base:      base,
		sections:  opts.Sections,
		maxPages:  opts.MaxPages,
		userAgent: opts.UserAgent,
		limiter:   rate.NewLimiter(rate.Every(200*time.Millisecond), 5),
		client:    client,
		logger:    logger,
	}, nil
}

// Crawl streams pages as they are fetched. Fetch failures come through as
// error results so callers can count them; the crawl itself keeps going.
// The channel closes when the queue empties, the page budget is spent, or
// ctx is cancelled.
func (c *Crawler) Crawl(ctx context.Context) <-chan fn.Result[domain.ScrapedPage] {
	ch := make(chan fn.Result[domain.ScrapedPage], 32)

	go func() {
		defer close(ch)

		queue := []string{c.base.ResolveReference(&url.URL{Path: "/"}).String()}
		for _, section := range c.sections {
			queue = append(queue, c.base.ResolveReference(&url.URL{Path: section}).String())
		}

		visited := 0
		for len(queue) > 0 && visited < c.maxPages {
			if ctx.Err() != nil {
				return
			}

			pageURL := queue[0]
			queue = queue[1:]
			if _, dup := c.seen.LoadOrStore(pageURL, true); dup {
				continue
			}
			visited++

			if err := c.limiter.Wait(ctx); err != nil {
				return
			}

			body, err := c.fetch(ctx, pageURL)
			if err != nil {
				select {
				case ch <- fn.Err[domain.ScrapedPage](fmt.Errorf("scraper: fetch %s: %w", pageURL, err)):
				case <-ctx.Done():
					return
				}
				continue
			}
			if body == nil {
				// Not an HTML page.
				continue
			}

			page := ExtractPage(pageURL, body)
			page.Section = c.sectionOf(pageURL)
			select {
			case ch <- fn.Ok(page):
			case <-ctx.Done():
				return
			}

			for _, link := range ExtractLinks(pageURL, body) {
				if !c.wanted(link) {
					continue
				}
				if _, dup := c.seen.Load(link); !dup {
					queue = append(queue, link)
				}
			}
		}
		c.logger.Info("crawl finished", "visited", visited, "queued_remaining", len(queue))
	}()

	return ch
}

// fetch returns the page bytes, or (nil, nil) for non-HTML responses.
func (c *Crawler) fetch(ctx context.Context, pageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "text/html") {
		return nil, nil
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
}

// wanted reports whether a discovered link belongs to the crawl: same
// host, inside a configured section, not a static asset.
func (c *Crawler) wanted(link string) bool {
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	if !strings.EqualFold(u.Host, c.base.Host) {
		return false
	}
	lower := strings.ToLower(u.Path)
	for _, ext := range assetExtensions {
		if strings.HasSuffix(lower, ext) {
			return false
		}
	}
	for _, section := range c.sections {
		if strings.Contains(u.Path, section) {
			return true
		}
	}
	return false
}

// sectionOf returns the configured section a URL falls under, without
// slashes, or "" for pages outside every section (the seeds themselves).
func (c *Crawler) sectionOf(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	for _, section := range c.sections {
		if strings.Contains(u.Path, section) {
			return strings.Trim(section, "/")
		}
	}
	return ""
}
