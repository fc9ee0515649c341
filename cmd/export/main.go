// Command export renders the content snapshot or the Q&A log as a readable
// text report for content review.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/curbside-labs/contenthub/engine/content"
	"github.com/curbside-labs/contenthub/engine/domain"
	"github.com/curbside-labs/contenthub/engine/qalog"
	"github.com/curbside-labs/contenthub/pkg/fn"
)

const rule = "================================================================================"
const thinRule = "--------------------------------------------------------------------------------"

// Config holds flag and environment based configuration.
type Config struct {
	Mode         string
	SnapshotPath string
	CSVPath      string
	OutPath      string
	Preview      int
	Recent       int
}

func loadConfig() Config {
	var cfg Config
	flag.StringVar(&cfg.Mode, "mode", "content", "report to render: content or qa")
	flag.StringVar(&cfg.SnapshotPath, "snapshot", envOr("SNAPSHOT_PATH", "data/snapshot.json"), "content snapshot file")
	flag.StringVar(&cfg.CSVPath, "qa-csv", envOr("QA_CSV_PATH", "data/qa_log.csv"), "Q&A log file")
	flag.StringVar(&cfg.OutPath, "out", "", "output file, empty writes to stdout")
	flag.IntVar(&cfg.Preview, "preview", 300, "body preview length in characters")
	flag.IntVar(&cfg.Recent, "recent", 20, "recent questions shown in the qa report")
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

	// Diagnostics go to stderr so the report itself can be piped.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := loadConfig()

	if err := run(cfg, logger); err != nil {
		logger.Error("export failed", "err", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	var out io.Writer = os.Stdout
	if cfg.OutPath != "" {
		f, err := os.Create(cfg.OutPath)
		if err != nil {
			return fmt.Errorf("create %s: %w", cfg.OutPath, err)
		}
		defer f.Close()
		out = f
	}

	switch cfg.Mode {
	case "content":
		snap, err := content.Load(cfg.SnapshotPath)
		if err != nil {
			return fmt.Errorf("load snapshot: %w", err)
		}
		if err := contentReport(out, snap, cfg.Preview); err != nil {
			return err
		}
		logger.Info("content report written", "items", snap.Len())
	case "qa":
		reader := qalog.NewReader(logger, qalog.NewCSVSink(cfg.CSVPath))
		records, err := reader.ReadAll(context.Background())
		if err != nil {
			return fmt.Errorf("read qa log: %w", err)
		}
		if err := qaReport(out, records, cfg.Recent); err != nil {
			return err
		}
		logger.Info("qa report written", "records", len(records))
	default:
		return fmt.Errorf("unknown mode %q, want content or qa", cfg.Mode)
	}
	return nil
}

// contentReport writes the snapshot as a category summary followed by one
// block per item.
func contentReport(w io.Writer, snap *content.Snapshot, preview int) error {
	items := snap.Items()

	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, "CONTENT SNAPSHOT REPORT")
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "Generated: %s\n", time.Now().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "Model: %s\n", snap.Model())
	fmt.Fprintf(w, "Built: %s\n", snap.BuiltAt().Format(time.RFC3339))
	fmt.Fprintf(w, "Total Items: %d\n", len(items))
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w)

	byCategory := fn.GroupBy(items, func(it domain.ContentItem) string {
		return string(it.Category)
	})
	fmt.Fprintln(w, "SUMMARY BY CATEGORY")
	fmt.Fprintln(w, thinRule)
	for _, cat := range sortedKeys(byCategory) {
		fmt.Fprintf(w, "%s: %d items\n", strings.ToUpper(cat), len(byCategory[cat]))
	}
	fmt.Fprintln(w)

	for i, item := range items {
		fmt.Fprintln(w, rule)
		fmt.Fprintf(w, "ITEM #%d\n", i+1)
		fmt.Fprintln(w, rule)
		fmt.Fprintf(w, "Category: %s\n", item.Category)
		fmt.Fprintf(w, "Title: %s\n", item.Title)
		fmt.Fprintf(w, "URL: %s\n", item.URL)
		if item.Description != "" {
			fmt.Fprintf(w, "Description: %s\n", item.Description)
		}
		if len(item.RegionTags) > 0 {
			fmt.Fprintf(w, "Regions: %s\n", strings.Join(item.RegionTags, ", "))
		}
		if item.BodyText != "" {
			fmt.Fprintf(w, "Preview: %s\n", previewText(item.BodyText, preview))
		}
		fmt.Fprintln(w)
	}
	return nil
}

// qaReport writes a user-type summary of logged questions and the most
// recent entries in full.
func qaReport(w io.Writer, records []domain.QARecord, recent int) error {
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, "Q&A LOG REPORT")
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "Generated: %s\n", time.Now().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "Total Records: %d\n", len(records))
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w)

	byType := fn.GroupBy(records, func(r domain.QARecord) string {
		if r.UserType == "" {
			return "(unspecified)"
		}
		return string(r.UserType)
	})
	fmt.Fprintln(w, "SUMMARY BY USER TYPE")
	fmt.Fprintln(w, thinRule)
	for _, ut := range sortedKeys(byType) {
		fmt.Fprintf(w, "%s: %d questions\n", ut, len(byType[ut]))
	}
	fmt.Fprintln(w)

	if recent > 0 && len(records) > recent {
		records = records[len(records)-recent:]
	}
	fmt.Fprintf(w, "RECENT QUESTIONS (%d)\n", len(records))
	fmt.Fprintln(w, thinRule)
	for _, r := range records {
		who := string(r.UserType)
		if who == "" {
			who = "?"
		}
		region := r.Region
		if region == "" {
			region = "?"
		}
		fmt.Fprintf(w, "[%s] (%s/%s)\n", r.Timestamp.Format("2006-01-02 15:04"), who, region)
		fmt.Fprintf(w, "Q: %s\n", r.Question)
		fmt.Fprintf(w, "A: %s\n\n", previewText(r.Answer, 200))
	}
	return nil
}

// previewText truncates s to n runes, marking the cut.
func previewText(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
