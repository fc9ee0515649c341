// Command crawler walks the marketing site and emits scraped pages as JSON
// to stdout, JSON files in a directory, or a NATS subject for the ingest
// pipeline.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"

	"github.com/curbside-labs/contenthub/engine/domain"
	"github.com/curbside-labs/contenthub/engine/ingest"
	"github.com/curbside-labs/contenthub/engine/scraper"
	"github.com/curbside-labs/contenthub/pkg/fn"
	"github.com/curbside-labs/contenthub/pkg/metrics"
	"github.com/curbside-labs/contenthub/pkg/natsutil"
)

var (
	met        = metrics.New()
	pagesTotal = func(section string) *metrics.Counter {
		return met.Counter(metrics.WithLabels("contenthub_crawler_pages_total", "section", section), "Pages scraped by section.")
	}
	fetchErrors   = met.Counter("contenthub_crawler_fetch_errors_total", "Fetches that failed.")
	crawlDuration = met.Histogram("contenthub_crawler_crawl_seconds", "Duration of a full crawl.", nil)
	lastCrawl     = met.Gauge("contenthub_crawler_last_crawl_timestamp", "Epoch of the last completed crawl.")
)

// Config holds flag and environment based configuration.
type Config struct {
	BaseURL     string
	Sections    string
	MaxPages    int
	UserAgent   string
	NATSURL     string
	OutputDir   string
	Interval    time.Duration
	MetricsPort int
}

func loadConfig() Config {
	var cfg Config
	flag.StringVar(&cfg.BaseURL, "base", envOr("CRAWL_BASE_URL", ""), "site base URL to crawl (required)")
	flag.StringVar(&cfg.Sections, "sections", envOr("CRAWL_SECTIONS", ""), "comma-separated section paths, empty uses the defaults")
	flag.IntVar(&cfg.MaxPages, "max-pages", scraper.DefaultMaxPages, "page budget per crawl")
	flag.StringVar(&cfg.UserAgent, "user-agent", scraper.DefaultUserAgent, "User-Agent header")
	flag.StringVar(&cfg.NATSURL, "nats", envOr("NATS_URL", ""), "NATS URL, empty writes JSON to stdout")
	flag.StringVar(&cfg.OutputDir, "output-dir", envOr("CRAWL_OUTPUT_DIR", ""), "directory for per-run NDJSON files, empty disables")
	flag.DurationVar(&cfg.Interval, "interval", 0, "recrawl interval, 0 runs once")
	flag.IntVar(&cfg.MetricsPort, "metrics-port", 9091, "metrics listen port, 0 disables")
	flag.Parse()
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := loadConfig()

	if err := run(cfg, logger); err != nil {
		logger.Error("crawler exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	crawler, err := scraper.New(scraper.Options{
		BaseURL:   cfg.BaseURL,
		Sections:  splitSections(cfg.Sections),
		MaxPages:  cfg.MaxPages,
		UserAgent: cfg.UserAgent,
	}, logger)
	if err != nil {
		return err
	}

	var nc *nats.Conn
	if cfg.NATSURL != "" {
		if nc, err = nats.Connect(cfg.NATSURL); err != nil {
			return fmt.Errorf("nats connect: %w", err)
		}
		defer nc.Close()
		logger.Info("publishing pages", "subject", ingest.PagesSubject)
	}
	if cfg.OutputDir != "" {
		if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
			return fmt.Errorf("output dir: %w", err)
		}
	}
	if cfg.MetricsPort > 0 {
		met.ServeAsync(cfg.MetricsPort)
	}

	stdout := json.NewEncoder(os.Stdout)
	stdout.SetIndent("", "  ")

	crawl := func(ctx context.Context) error {
		start := time.Now()
		var emitted []domain.ScrapedPage
		var failures int

		for res := range crawler.Crawl(ctx) {
			page, err := res.Unwrap()
			if err != nil {
				fetchErrors.Inc()
				failures++
				logger.Warn("fetch failed", "error", err)
				continue
			}
			if nc != nil {
				if err := natsutil.Publish(ctx, nc, ingest.PagesSubject, page); err != nil {
					logger.Error("nats publish failed", "url", page.URL, "error", err)
					continue
				}
			} else if err := stdout.Encode(page); err != nil {
				return fmt.Errorf("encode: %w", err)
			}
			pagesTotal(sectionLabel(page.Section)).Inc()
			emitted = append(emitted, page)
		}

		if cfg.OutputDir != "" && len(emitted) > 0 {
			name, err := writeRunFile(cfg.OutputDir, emitted)
			if err != nil {
				logger.Error("run file write failed", "error", err)
			} else {
				logger.Info("run file written", "file", name, "pages", len(emitted))
			}
		}

		crawlDuration.Since(start)
		lastCrawl.Set(time.Now().Unix())
		logger.Info("crawl complete",
			"pages", len(emitted), "failures", failures, "duration", time.Since(start))
		return nil
	}

	if err := crawl(ctx); err != nil {
		return err
	}
	if cfg.Interval <= 0 {
		return nil
	}

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("shutdown signal received")
			return nil
		case <-ticker.C:
			if err := crawl(ctx); err != nil {
				logger.Error("crawl failed", "error", err)
			}
		}
	}
}

// splitSections parses the comma-separated -sections flag. Empty input
// returns nil so the crawler falls back to its defaults.
func splitSections(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := fn.Map(strings.Split(s, ","), strings.TrimSpace)
	return fn.Filter(parts, func(p string) bool { return p != "" })
}

// sectionLabel names the metrics series for a page's section. Seed pages
// outside every section count under "root".
func sectionLabel(section string) string {
	if section == "" {
		return "root"
	}
	return section
}

// writeRunFile writes one crawl run's pages as NDJSON, named by the run
// timestamp so files sort chronologically.
func writeRunFile(dir string, pages []domain.ScrapedPage) (string, error) {
	name := filepath.Join(dir, "pages-"+strconv.FormatInt(time.Now().UnixNano(), 10)+".json")
	f, err := os.Create(name)
	if err != nil {
		return "", err
	}
	enc := json.NewEncoder(f)
	for _, p := range pages {
		if err := enc.Encode(p); err != nil {
			f.Close()
			return "", err
		}
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return name, nil
}
