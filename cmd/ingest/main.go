// Command ingest turns crawled pages into the content snapshot. Pages
// arrive as NDJSON files in a watched directory, on a NATS subject, or
// both; finished snapshots are written to disk and announced on the bus.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"

	"github.com/curbside-labs/contenthub/engine/content"
	"github.com/curbside-labs/contenthub/engine/domain"
	"github.com/curbside-labs/contenthub/engine/ingest"
	"github.com/curbside-labs/contenthub/pkg/fn"
	"github.com/curbside-labs/contenthub/pkg/metrics"
	"github.com/curbside-labs/contenthub/pkg/openai"
	"github.com/curbside-labs/contenthub/pkg/resilience"
	"github.com/curbside-labs/contenthub/pkg/secrets"
)

var (
	met        = metrics.New()
	pagesTotal = func(section string) *metrics.Counter {
		return met.Counter(metrics.WithLabels("contenthub_ingest_pages_total", "section", section), "Pages accumulated by section.")
	}
	errorsTotal = func(stage string) *metrics.Counter {
		return met.Counter(metrics.WithLabels("contenthub_ingest_errors_total", "stage", stage), "Ingest errors by stage.")
	}
	pagesSkipped   = met.Counter("contenthub_ingest_pages_skipped_total", "Pages skipped by URL dedup.")
	filesProcessed = met.Counter("contenthub_ingest_files_processed_total", "Scanned files fully processed.")
	lastScan       = met.Gauge("contenthub_ingest_last_scan_timestamp", "Epoch of the last directory scan.")
	pipelineDur    = met.Histogram("contenthub_ingest_pipeline_seconds", "Per-page pipeline time.", nil)
	snapshotBuilds = met.Counter("contenthub_ingest_snapshot_builds_total", "Snapshots built and written.")
	snapshotSize   = met.Gauge("contenthub_ingest_snapshot_items", "Items in the last written snapshot.")
	buildDur       = met.Histogram("contenthub_ingest_build_seconds", "Snapshot build time including embedding.", nil)
)

// Config holds flag and environment based configuration.
type Config struct {
	DataDir       string
	NATSURL       string
	SnapshotPath  string
	SecretsPath   string
	StateFile     string
	FallbackThumb string
	ScanInterval  time.Duration
	FlushInterval time.Duration
	MetricsPort   int
}

func loadConfig() Config {
	var cfg Config
	flag.StringVar(&cfg.DataDir, "dir", envOr("INGEST_DATA_DIR", ""), "directory of NDJSON page files, empty disables scanning")
	flag.StringVar(&cfg.NATSURL, "nats", envOr("NATS_URL", ""), "NATS URL, empty disables the consumer")
	flag.StringVar(&cfg.SnapshotPath, "snapshot", envOr("SNAPSHOT_PATH", "data/snapshot.json"), "snapshot output file")
	flag.StringVar(&cfg.SecretsPath, "secrets", envOr("SECRETS_PATH", secrets.DefaultPath), "secrets TOML file")
	flag.StringVar(&cfg.StateFile, "state", "", "processed files state, defaults to .ingest-state.json inside -dir")
	flag.StringVar(&cfg.FallbackThumb, "fallback-thumbnail", envOr("FALLBACK_THUMBNAIL", ""), "thumbnail URL for pages without an image")
	flag.DurationVar(&cfg.ScanInterval, "scan-interval", 30*time.Second, "directory scan interval")
	flag.DurationVar(&cfg.FlushInterval, "flush-interval", 30*time.Second, "snapshot build interval")
	flag.IntVar(&cfg.MetricsPort, "metrics-port", 9092, "metrics listen port, 0 disables")
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
		logger.Error("ingest exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	if cfg.DataDir == "" && cfg.NATSURL == "" {
		return fmt.Errorf("nothing to ingest: set -dir or -nats")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Embedding client (required; ingest exists to embed) ---
	sec, err := secrets.Load(cfg.SecretsPath)
	if err != nil {
		return fmt.Errorf("load secrets: %w", err)
	}
	key, err := sec.OpenAIKey()
	if err != nil {
		return fmt.Errorf("resolve openai key: %w", err)
	}
	client, err := openai.New(openai.Options{APIKey: key})
	if err != nil {
		return fmt.Errorf("openai client: %w", err)
	}

	builder := ingest.NewBuilder(client.EmbedModel())
	deps := ingest.Deps{
		Embedder:          client,
		Builder:           builder,
		Breaker:           resilience.NewBreaker(resilience.DefaultBreakerOpts),
		FallbackThumbnail: cfg.FallbackThumb,
		Logger:            logger,
	}

	if cfg.MetricsPort > 0 {
		met.ServeAsync(cfg.MetricsPort)
	}

	// --- NATS consumer ---
	var nc *nats.Conn
	if cfg.NATSURL != "" {
		if nc, err = nats.Connect(cfg.NATSURL); err != nil {
			return fmt.Errorf("nats connect: %w", err)
		}
		defer nc.Close()

		sub, err := ingest.StartConsumer(nc, deps)
		if err != nil {
			return fmt.Errorf("start consumer: %w", err)
		}
		defer sub.Unsubscribe()
		logger.Info("consuming pages", "subject", ingest.PagesSubject)
	}

	// --- Directory scanner ---
	var scan func(context.Context)
	if cfg.DataDir != "" {
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return fmt.Errorf("data dir: %w", err)
		}
		stateFile := cfg.StateFile
		if stateFile == "" {
			stateFile = filepath.Join(cfg.DataDir, ".ingest-state.json")
		}
		pipeline := ingest.NewPipeline(deps)
		processed := loadState(stateFile)
		logger.Info("watching for page files", "dir", cfg.DataDir, "interval", cfg.ScanInterval)

		scan = func(ctx context.Context) {
			lastScan.Set(time.Now().Unix())
			entries, err := os.ReadDir(cfg.DataDir)
			if err != nil {
				errorsTotal("scan").Inc()
				logger.Error("readdir failed", "error", err)
				return
			}

			for _, e := range entries {
				if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") || e.Name()[0] == '.' {
					continue
				}
				info, err := e.Info()
				if err != nil {
					continue
				}
				key := fmt.Sprintf("%s:%d", e.Name(), info.Size())
				if processed[key] {
					continue
				}

				path := filepath.Join(cfg.DataDir, e.Name())
				count, errs := processFile(ctx, path, pipeline, builder, logger)
				logger.Info("file done", "file", e.Name(), "accumulated", count, "errors", errs)
				filesProcessed.Inc()

				// Files with errors stay unmarked so the next scan retries.
				if errs == 0 {
					processed[key] = true
					saveState(stateFile, processed, logger)
				} else {
					logger.Warn("file had errors, retrying next scan", "file", e.Name(), "errors", errs)
				}
			}
		}
	}

	// --- Build loop ---
	flush := func(ctx context.Context) {
		if !builder.Dirty() {
			return
		}
		start := time.Now()
		snap, err := builder.Build(ctx, client)
		if err != nil {
			errorsTotal("build").Inc()
			logger.Error("snapshot build failed", "error", err)
			return
		}
		if err := content.Write(cfg.SnapshotPath, snap); err != nil {
			errorsTotal("write").Inc()
			logger.Error("snapshot write failed", "path", cfg.SnapshotPath, "error", err)
			return
		}
		buildDur.Since(start)
		snapshotBuilds.Inc()
		snapshotSize.Set(int64(snap.Len()))
		logger.Info("snapshot written",
			"path", cfg.SnapshotPath, "items", snap.Len(), "duration", time.Since(start))

		if nc != nil {
			ev := ingest.RefreshEvent{Path: cfg.SnapshotPath, Items: snap.Len(), BuiltAt: snap.BuiltAt()}
			if err := ingest.PublishRefresh(ctx, nc, ev); err != nil {
				logger.Error("refresh publish failed", "error", err)
			}
		}
	}

	if scan != nil {
		scan(ctx)
	}
	flush(ctx)

	var scanC <-chan time.Time
	if scan != nil {
		scanTicker := time.NewTicker(cfg.ScanInterval)
		defer scanTicker.Stop()
		scanC = scanTicker.C
	}
	flushTicker := time.NewTicker(cfg.FlushInterval)
	defer flushTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutdown signal received")
			// Accumulated pages still get a snapshot on the way out.
			final, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
			flush(final)
			cancel()
			return nil
		case <-scanC:
			scan(ctx)
		case <-flushTicker.C:
			flush(ctx)
		}
	}
}

// processFile streams one NDJSON page file through the pipeline into the
// builder. Returns pages accumulated and pages that errored.
func processFile(ctx context.Context, path string, pipeline fn.Stage[domain.ScrapedPage, domain.ContentItem], builder *ingest.Builder, logger *slog.Logger) (int, int) {
	f, err := os.Open(path)
	if err != nil {
		errorsTotal("read").Inc()
		return 0, 1
	}
	defer f.Close()

	count, errs := 0, 0
	dec := json.NewDecoder(f)
	for {
		if ctx.Err() != nil {
			break
		}
		var page domain.ScrapedPage
		if err := dec.Decode(&page); err == io.EOF {
			break
		} else if err != nil {
			errorsTotal("decode").Inc()
			logger.Error("bad page record", "file", path, "error", err)
			errs++
			break
		}
		if builder.Has(page.URL) {
			pagesSkipped.Inc()
			continue
		}

		start := time.Now()
		result := pipeline(ctx, page)
		pipelineDur.Since(start)
		if result.IsErr() {
			_, pipeErr := result.Unwrap()
			errorsTotal("pipeline").Inc()
			logger.Error("pipeline failed", "url", page.URL, "error", pipeErr)
			errs++
			continue
		}
		item, _ := result.Unwrap()
		builder.Add(item)
		pagesTotal(sectionLabel(page.Section)).Inc()
		count++
	}
	return count, errs
}

// sectionLabel names the metrics series for a page's section.
func sectionLabel(section string) string {
	if section == "" {
		return "root"
	}
	return section
}

func loadState(path string) map[string]bool {
	m := make(map[string]bool)
	data, err := os.ReadFile(path)
	if err != nil {
		return m
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return make(map[string]bool)
	}
	return m
}

func saveState(path string, m map[string]bool, logger *slog.Logger) {
	data, err := json.Marshal(m)
	if err != nil {
		return
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		logger.Warn("state write failed", "path", path, "error", err)
	}
}
