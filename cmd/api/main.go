// Package main implements the content hub API server.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"

	"github.com/curbside-labs/contenthub/engine/answer"
	"github.com/curbside-labs/contenthub/engine/content"
	"github.com/curbside-labs/contenthub/engine/domain"
	"github.com/curbside-labs/contenthub/engine/ingest"
	"github.com/curbside-labs/contenthub/engine/qalog"
	"github.com/curbside-labs/contenthub/engine/recommend"
	"github.com/curbside-labs/contenthub/pkg/fn"
	"github.com/curbside-labs/contenthub/pkg/metrics"
	"github.com/curbside-labs/contenthub/pkg/mid"
	"github.com/curbside-labs/contenthub/pkg/openai"
	"github.com/curbside-labs/contenthub/pkg/secrets"
)

const defaultLogLimit = 50

var (
	met          = metrics.New()
	chatRequests = met.Counter("contenthub_chat_requests_total", "Chat requests received.")
	chatFailures = func(kind string) *metrics.Counter {
		return met.Counter(metrics.WithLabels("contenthub_chat_failures_total", "kind", kind), "Chat failures by kind.")
	}
	chatLatency = met.Histogram("contenthub_chat_seconds", "Chat request latency.", nil)
	recRequests = met.Counter("contenthub_recommendation_requests_total", "Recommendation requests received.")
	recFailures = func(kind string) *metrics.Counter {
		return met.Counter(metrics.WithLabels("contenthub_recommendation_failures_total", "kind", kind), "Recommendation failures by kind.")
	}
	refreshTotal     = met.Counter("contenthub_snapshot_reloads_total", "Snapshot reloads swapped in.")
	refreshConflicts = met.Counter("contenthub_refresh_conflicts_total", "Refresh requests rejected while one was running.")
	snapshotItems    = met.Gauge("contenthub_snapshot_items", "Items in the live snapshot.")
)

// Config holds flag and environment based configuration.
type Config struct {
	Port         string
	SnapshotPath string
	SecretsPath  string
	NATSURL      string
	CSVPath      string
	CORSOrigin   string
}

func loadConfig() Config {
	var cfg Config
	flag.StringVar(&cfg.Port, "port", envOr("PORT", "8080"), "HTTP listen port")
	flag.StringVar(&cfg.SnapshotPath, "snapshot", envOr("SNAPSHOT_PATH", "data/snapshot.json"), "content snapshot file")
	flag.StringVar(&cfg.SecretsPath, "secrets", envOr("SECRETS_PATH", secrets.DefaultPath), "secrets TOML file")
	flag.StringVar(&cfg.NATSURL, "nats", envOr("NATS_URL", ""), "NATS server URL, empty disables refresh events")
	flag.StringVar(&cfg.CSVPath, "qa-csv", envOr("QA_CSV_PATH", "data/qa_log.csv"), "fallback Q&A log file")
	flag.StringVar(&cfg.CORSOrigin, "cors-origin", envOr("CORS_ORIGIN", "*"), "Access-Control-Allow-Origin value")
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
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sec, err := secrets.Load(cfg.SecretsPath)
	if err != nil {
		return fmt.Errorf("load secrets: %w", err)
	}

	// --- OpenAI client (absent key degrades chat + recommendations) ---
	var aiClient *openai.Client
	key, err := sec.OpenAIKey()
	switch {
	case errors.Is(err, secrets.ErrMissing):
		logger.Warn("openai key not configured, chat and recommendations disabled")
	case err != nil:
		return fmt.Errorf("resolve openai key: %w", err)
	default:
		if aiClient, err = openai.New(openai.Options{APIKey: key}); err != nil {
			return fmt.Errorf("openai client: %w", err)
		}
	}

	// --- Q&A log sinks: Sheets primary when configured, CSV always ---
	var (
		sinks    []qalog.Sink
		readers  []qalog.RecordReader
		sheetsOn bool
	)
	if shCfg, err := sec.Sheets(); err == nil {
		svc, err := qalog.NewSheetsService(ctx, shCfg.CredentialsJSON)
		if err != nil {
			logger.Warn("sheets service unavailable, logging to csv only", "error", err)
		} else if sink, err := qalog.NewSheetsSink(svc, shCfg.SpreadsheetID, shCfg.SheetName); err != nil {
			logger.Warn("sheets sink unavailable, logging to csv only", "error", err)
		} else {
			sinks = append(sinks, sink)
			readers = append(readers, sink)
			sheetsOn = true
		}
	} else if !errors.Is(err, secrets.ErrMissing) {
		logger.Warn("sheets config invalid, logging to csv only", "error", err)
	}
	csvSink := qalog.NewCSVSink(cfg.CSVPath)
	sinks = append(sinks, csvSink)
	readers = append(readers, csvSink)

	qa := qalog.New(logger, sinks...)
	qaReader := qalog.NewReader(logger, readers...)

	// --- Services (nil while degraded; handlers answer 503) ---
	var ansSvc *answer.Service
	var recSvc *recommend.Service
	if aiClient != nil {
		ansSvc = answer.New(aiClient, &generatorAdapter{client: aiClient}, qa, answer.DefaultOptions(), logger)
		recSvc = recommend.New(aiClient, recommend.DefaultOptions(), logger)
	}

	// --- Content snapshot: load, then keep fresh from disk and the bus ---
	handle := content.NewHandle(nil)
	if snap, err := content.Load(cfg.SnapshotPath); err != nil {
		logger.Warn("no snapshot at start, serving degraded until one lands", "path", cfg.SnapshotPath, "error", err)
	} else {
		handle.Swap(snap)
		logger.Info("snapshot loaded", "items", snap.Len(), "dims", snap.Dims(), "built_at", snap.BuiltAt())
	}
	go func() {
		if err := content.Watch(ctx, cfg.SnapshotPath, handle, logger); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("snapshot watcher stopped", "error", err)
		}
	}()

	if cfg.NATSURL != "" {
		nc, err := nats.Connect(cfg.NATSURL)
		if err != nil {
			return fmt.Errorf("nats connect: %w", err)
		}
		defer nc.Close()

		sub, err := natsRefresh(nc, handle, logger)
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", ingest.RefreshSubject, err)
		}
		defer sub.Unsubscribe()
		logger.Info("listening for refresh events", "subject", ingest.RefreshSubject)
	}

	// --- HTTP server ---
	var reloading atomic.Bool
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", handleHealth(handle, qa, sheetsOn))
	mux.HandleFunc("POST /api/recommendations", handleRecommendations(recSvc, handle, logger))
	mux.HandleFunc("POST /api/chat", handleChat(ansSvc, handle, logger))
	mux.HandleFunc("GET /api/logs", handleLogs(qaReader))
	mux.HandleFunc("POST /api/refresh", handleRefresh(cfg.SnapshotPath, handle, &reloading, logger))
	mux.HandleFunc("GET /metrics", func(w http.ResponseWriter, r *http.Request) {
		if snap := handle.Current(); snap != nil {
			snapshotItems.Set(int64(snap.Len()))
		} else {
			snapshotItems.Set(0)
		}
		met.Handler().ServeHTTP(w, r)
	})

	handler := mid.Chain(mux,
		mid.OTel("contenthub-api"),
		mid.Recover(logger),
		mid.Logger(logger),
		mid.CORS(cfg.CORSOrigin),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// --- Graceful shutdown ---
	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

// natsRefresh swaps in the announced snapshot whenever a build lands.
func natsRefresh(nc *nats.Conn, handle *content.Handle, logger *slog.Logger) (*nats.Subscription, error) {
	return ingest.SubscribeRefresh(nc, func(ev ingest.RefreshEvent) {
		snap, err := content.Load(ev.Path)
		if err != nil {
			logger.Error("refresh event reload failed", "path", ev.Path, "error", err)
			return
		}
		handle.Swap(snap)
		refreshTotal.Inc()
		logger.Info("snapshot swapped from refresh event", "path", ev.Path, "items", snap.Len())
	})
}

// --- Handlers ---

// SnapshotInfo describes the live snapshot in health responses.
type SnapshotInfo struct {
	Items   int       `json:"items"`
	Dims    int       `json:"dims"`
	Model   string    `json:"model"`
	BuiltAt time.Time `json:"built_at"`
}

// HealthResponse is the JSON response for GET /api/health.
type HealthResponse struct {
	Status   string        `json:"status"`
	Snapshot *SnapshotInfo `json:"snapshot,omitempty"`
	Sheets   bool          `json:"sheets_logging"`
	QALog    qalog.Stats   `json:"qa_log"`
}

func handleHealth(handle *content.Handle, qa *qalog.Logger, sheetsOn bool) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := HealthResponse{Status: "ok", Sheets: sheetsOn, QALog: qa.Stats()}
		if snap := handle.Current(); snap != nil {
			resp.Snapshot = &SnapshotInfo{
				Items:   snap.Len(),
				Dims:    snap.Dims(),
				Model:   snap.Model(),
				BuiltAt: snap.BuiltAt(),
			}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}

// card is the wire shape for one recommended or cited content item.
type card struct {
	ID           string   `json:"id"`
	URL          string   `json:"url"`
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	ThumbnailURL string   `json:"thumbnail_url,omitempty"`
	Category     string   `json:"category"`
	RegionTags   []string `json:"region_tags,omitempty"`
	Score        float64  `json:"score"`
}

func toCard(r domain.RankedResult) card {
	return card{
		ID:           r.Item.ID,
		URL:          r.Item.URL,
		Title:        r.Item.Title,
		Description:  r.Item.Description,
		ThumbnailURL: r.Item.ThumbnailURL,
		Category:     string(r.Item.Category),
		RegionTags:   r.Item.RegionTags,
		Score:        r.Score,
	}
}

// RecommendationsRequest is the JSON body for POST /api/recommendations.
type RecommendationsRequest struct {
	UserType string `json:"user_type"`
	Region   string `json:"region"`
}

// RecommendationsResponse is the JSON response for POST /api/recommendations.
type RecommendationsResponse struct {
	General  []card `json:"general"`
	Regional []card `json:"regional"`
}

func handleRecommendations(svc *recommend.Service, handle *content.Handle, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		recRequests.Inc()

		var req RecommendationsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			recFailures("validation").Inc()
			http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
			return
		}
		profile := profileFrom(req.UserType, req.Region)
		if err := domain.ValidateProfile(profile); err != nil {
			recFailures("validation").Inc()
			http.Error(w, `{"error":"unknown user_type or region"}`, http.StatusBadRequest)
			return
		}
		if svc == nil {
			recFailures("not_configured").Inc()
			http.Error(w, `{"error":"not configured"}`, http.StatusServiceUnavailable)
			return
		}
		snap := handle.Current()
		if snap == nil {
			recFailures("not_ready").Inc()
			http.Error(w, `{"error":"content not ready"}`, http.StatusServiceUnavailable)
			return
		}

		buckets, err := svc.Recommend(r.Context(), profile, snap.Items())
		if err != nil {
			logger.Error("recommendations failed", "error", err)
			status := http.StatusInternalServerError
			kind := "internal"
			if errors.Is(err, domain.ErrEmbedding) {
				status, kind = http.StatusBadGateway, "embedding"
			}
			recFailures(kind).Inc()
			http.Error(w, `{"error":"recommendations unavailable"}`, status)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(RecommendationsResponse{
			General:  fn.Map(buckets.General, toCard),
			Regional: fn.Map(buckets.Regional, toCard),
		})
	}
}

// ChatRequest is the JSON body for POST /api/chat. user_type and region are
// optional personalization hints carried into the Q&A log.
type ChatRequest struct {
	Question string `json:"question"`
	UserType string `json:"user_type,omitempty"`
	Region   string `json:"region,omitempty"`
}

// ChatResponse is the JSON response for POST /api/chat.
type ChatResponse struct {
	Answer  string `json:"answer"`
	Sources []card `json:"sources"`
}

func handleChat(svc *answer.Service, handle *content.Handle, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		chatRequests.Inc()
		start := time.Now()
		defer func() { chatLatency.Since(start) }()

		var req ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			chatFailures("validation").Inc()
			http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
			return
		}
		if err := domain.ValidateQuestion(req.Question); err != nil {
			chatFailures("validation").Inc()
			http.Error(w, `{"error":"question must be at least 5 characters"}`, http.StatusBadRequest)
			return
		}
		if svc == nil {
			chatFailures("not_configured").Inc()
			http.Error(w, `{"error":"not configured"}`, http.StatusServiceUnavailable)
			return
		}
		snap := handle.Current()
		if snap == nil {
			chatFailures("not_ready").Inc()
			http.Error(w, `{"error":"content not ready"}`, http.StatusServiceUnavailable)
			return
		}

		ans, err := svc.Answer(r.Context(), req.Question, profileFrom(req.UserType, req.Region), snap.Items())
		if err != nil {
			logger.Error("chat failed", "error", err)
			status := http.StatusInternalServerError
			kind := "internal"
			switch {
			case errors.Is(err, domain.ErrEmbedding):
				status, kind = http.StatusBadGateway, "embedding"
			case errors.Is(err, domain.ErrGeneration):
				status, kind = http.StatusBadGateway, "generation"
			}
			chatFailures(kind).Inc()
			http.Error(w, `{"error":"answer generation failed"}`, status)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(ChatResponse{
			Answer:  ans.Text,
			Sources: fn.Map(ans.Sources, toCard),
		})
	}
}

// LogsResponse is the JSON response for GET /api/logs.
type LogsResponse struct {
	Records []domain.QARecord `json:"records"`
	Count   int               `json:"count"`
}

func handleLogs(reader *qalog.Reader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := fn.FromPair(strconv.Atoi(r.URL.Query().Get("limit"))).UnwrapOr(defaultLogLimit)
		if limit <= 0 {
			limit = defaultLogLimit
		}

		records, err := reader.ReadAll(r.Context())
		if err != nil {
			http.Error(w, `{"error":"log history unavailable"}`, http.StatusInternalServerError)
			return
		}
		// Most recent records, oldest first within the window.
		if len(records) > limit {
			records = records[len(records)-limit:]
		}
		if records == nil {
			records = []domain.QARecord{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(LogsResponse{Records: records, Count: len(records)})
	}
}

// RefreshResponse is the JSON response for POST /api/refresh.
type RefreshResponse struct {
	Items   int       `json:"items"`
	Dims    int       `json:"dims"`
	BuiltAt time.Time `json:"built_at"`
}

func handleRefresh(path string, handle *content.Handle, inFlight *atomic.Bool, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if !inFlight.CompareAndSwap(false, true) {
			refreshConflicts.Inc()
			http.Error(w, `{"error":"refresh already running"}`, http.StatusConflict)
			return
		}
		defer inFlight.Store(false)

		snap, err := content.Load(path)
		if err != nil {
			logger.Error("snapshot reload failed", "path", path, "error", err)
			http.Error(w, `{"error":"snapshot reload failed"}`, http.StatusInternalServerError)
			return
		}
		handle.Swap(snap)
		refreshTotal.Inc()
		logger.Info("snapshot reloaded via api", "items", snap.Len(), "dims", snap.Dims())

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(RefreshResponse{Items: snap.Len(), Dims: snap.Dims(), BuiltAt: snap.BuiltAt()})
	}
}

// profileFrom normalizes raw request fields into a profile. Region codes
// are accepted in any case.
func profileFrom(userType, region string) domain.UserProfile {
	return domain.UserProfile{
		UserType: domain.UserType(strings.TrimSpace(userType)),
		Region:   strings.ToUpper(strings.TrimSpace(region)),
	}
}

// --- Adapters ---

// generatorAdapter adapts the OpenAI chat client to the answer.Generator
// interface.
type generatorAdapter struct {
	client *openai.Client
}

func (a *generatorAdapter) Generate(ctx context.Context, req answer.GenerateRequest) (string, error) {
	return a.client.Chat(ctx, openai.ChatRequest{
		Model: req.Model,
		Messages: []openai.Message{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.Prompt},
		},
		Temperature: float64(req.Temperature),
		MaxTokens:   req.MaxTokens,
	})
}
