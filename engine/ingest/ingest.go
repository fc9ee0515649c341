// Package ingest builds content snapshots from crawled pages through
// validation, extraction, embedding, and accumulation stages.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/curbside-labs/contenthub/engine/domain"
	"github.com/curbside-labs/contenthub/engine/scraper"
	"github.com/curbside-labs/contenthub/pkg/fn"
	"github.com/curbside-labs/contenthub/pkg/natsutil"
	"github.com/curbside-labs/contenthub/pkg/resilience"
)

const (
	// PagesSubject is the NATS subject for crawled pages awaiting ingest.
	PagesSubject = "content.pages"
	// DLQSubject is the dead letter queue subject for failed messages.
	DLQSubject = "content.pages.dlq"
	// RefreshSubject announces a freshly written snapshot; the message body
	// is a RefreshEvent.
	RefreshSubject = "content.refresh"
	// MaxRetries before sending to DLQ.
	MaxRetries = 3
	// EmbedBatchSize is the max texts per embedding request.
	EmbedBatchSize = 100
	// embedWorkers bounds concurrent embedding requests during Build.
	embedWorkers = 4
	// embedBodyChars is how much body text feeds the embedding input.
	embedBodyChars = 500
)

// Embedder is the slice of the embedding client the pipeline needs.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// RefreshEvent is published on RefreshSubject after a snapshot is written.
// Servers reload the snapshot at Path when they receive one.
type RefreshEvent struct {
	Path    string    `json:"path"`
	Items   int       `json:"items"`
	BuiltAt time.Time `json:"built_at"`
}

// PublishRefresh announces a freshly written snapshot on RefreshSubject.
func PublishRefresh(ctx context.Context, nc *nats.Conn, ev RefreshEvent) error {
	return natsutil.Publish(ctx, nc, RefreshSubject, ev)
}

// SubscribeRefresh invokes h for every snapshot announcement.
func SubscribeRefresh(nc *nats.Conn, h func(RefreshEvent)) (*nats.Subscription, error) {
	return natsutil.Subscribe(nc, RefreshSubject, func(_ context.Context, ev RefreshEvent) {
		h(ev)
	})
}

// Deps holds the external dependencies for the ingestion pipeline.
type Deps struct {
	Embedder Embedder
	Builder  *Builder
	// Breaker, when set, guards the embed stage so a dead provider fails
	// fast during bulk crawls instead of being called for every page.
	Breaker *resilience.Breaker
	// FallbackThumbnail is used for pages that expose no usable image.
	FallbackThumbnail string
	Logger            *slog.Logger
}

// --- Pipeline Stages ---

// Validate checks a crawled page via domain validation.
var Validate fn.Stage[domain.ScrapedPage, domain.ScrapedPage] = func(_ context.Context, page domain.ScrapedPage) fn.Result[domain.ScrapedPage] {
	if err := domain.ValidateScrapedPage(page); err != nil {
		return fn.Err[domain.ScrapedPage](err)
	}
	return fn.Ok(page)
}

// NewExtract creates the stage that turns a page into a content item:
// deterministic ID from the URL, category, region tags, and the thumbnail
// fallback. The embedding is filled in later.
func NewExtract(fallbackThumbnail string) fn.Stage[domain.ScrapedPage, domain.ContentItem] {
	return func(_ context.Context, page domain.ScrapedPage) fn.Result[domain.ContentItem] {
		thumb := page.ThumbnailURL
		if thumb == "" {
			thumb = fallbackThumbnail
		}
		item := domain.ContentItem{
			ID:           uuid.NewSHA1(uuid.NameSpaceURL, []byte(page.URL)).String(),
			URL:          page.URL,
			Title:        page.Title,
			Description:  page.Description,
			BodyText:     page.Body,
			ThumbnailURL: thumb,
			Category:     scraper.Classify(page),
			RegionTags:   scraper.ExtractRegions(page.Title + " " + page.Body),
		}
		return fn.Ok(item)
	}
}

// NewEmbed creates the stage that embeds a single item. Streaming mode
// only; batch builds go through Builder.Build instead.
func NewEmbed(embedder Embedder) fn.Stage[domain.ContentItem, domain.ContentItem] {
	return func(ctx context.Context, item domain.ContentItem) fn.Result[domain.ContentItem] {
		vecs, err := embedder.EmbedBatch(ctx, []string{embedInput(item)})
		if err != nil {
			return fn.Err[domain.ContentItem](fmt.Errorf("ingest: embed: %w: %w", domain.ErrEmbedding, err))
		}
		if len(vecs) != 1 || len(vecs[0]) == 0 {
			return fn.Errf[domain.ContentItem]("ingest: embed: no embedding returned for %s", item.URL)
		}
		item.Embedding = vecs[0]
		return fn.Ok(item)
	}
}

// LoggedTap wraps a stage with debug entry and exit logs. The exit log
// carries the stage duration and outcome.
func LoggedTap[In, Out any](name string, log *slog.Logger, stage fn.Stage[In, Out]) fn.Stage[In, Out] {
	return func(ctx context.Context, in In) fn.Result[Out] {
		log.Debug("stage.enter", "stage", name)
		start := time.Now()
		r := stage(ctx, in)
		log.Debug("stage.exit", "stage", name, "duration", time.Since(start), "ok", r.IsOk())
		return r
	}
}

// NewPipeline constructs the streaming ingestion pipeline with all stages
// wired: Validate, Extract, Embed.
func NewPipeline(deps Deps) fn.Stage[domain.ScrapedPage, domain.ContentItem] {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	embedStage := NewEmbed(deps.Embedder)
	if deps.Breaker != nil {
		embedStage = resilience.BreakerStage(deps.Breaker, embedStage)
	}

	validate := LoggedTap("validate", log, fn.TracedStage("ingest.validate", Validate))
	extract := LoggedTap("extract", log, fn.TracedStage("ingest.extract", NewExtract(deps.FallbackThumbnail)))
	embed := LoggedTap("embed", log, fn.TracedStage("ingest.embed", embedStage))

	return fn.Then(fn.Then(validate, extract), embed)
}

// embedInput builds the text an item is embedded on: title, description,
// and the opening body text.
func embedInput(item domain.ContentItem) string {
	body := item.BodyText
	if r := []rune(body); len(r) > embedBodyChars {
		body = string(r[:embedBodyChars])
	}
	parts := fn.Filter([]string{item.Title, item.Description, body}, func(s string) bool {
		return s != ""
	})
	return strings.Join(parts, " ")
}

// dlqMessage is published to the DLQ on repeated failure.
type dlqMessage struct {
	Page    domain.ScrapedPage `json:"page"`
	Error   string             `json:"error"`
	Retries int                `json:"retries"`
}

// StartConsumer starts a NATS consumer that runs crawled pages through the
// ingestion pipeline with retry and DLQ support. Successful items land in
// the builder; snapshot writes are the caller's concern.
func StartConsumer(nc *nats.Conn, deps Deps) (*nats.Subscription, error) {
	pipeline := NewPipeline(deps)
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	return nc.Subscribe(PagesSubject, func(msg *nats.Msg) {
		var page domain.ScrapedPage
		if err := json.Unmarshal(msg.Data, &page); err != nil {
			log.Error("ingest: unmarshal failed", "error", err)
			return
		}

		ctx := context.Background()

		// Already accumulated pages skip the pipeline so the embedder is
		// not paid twice for one URL.
		if deps.Builder != nil && deps.Builder.Has(page.URL) {
			log.Info("ingest: skipping duplicate", "url", page.URL)
			if msg.Reply != "" {
				_ = msg.Ack()
			}
			return
		}

		retries := 0
		if msg.Header != nil {
			if v := msg.Header.Get("X-Retry-Count"); v != "" {
				fmt.Sscanf(v, "%d", &retries)
			}
		}

		result := pipeline(ctx, page)
		if result.IsErr() {
			_, pipeErr := result.Unwrap()
			retries++
			log.Error("ingest: pipeline failed",
				"error", pipeErr,
				"url", page.URL,
				"retry", retries,
			)

			if retries >= MaxRetries {
				dlq := dlqMessage{
					Page:    page,
					Error:   pipeErr.Error(),
					Retries: retries,
				}
				data, _ := json.Marshal(dlq)
				if err := nc.Publish(DLQSubject, data); err != nil {
					log.Error("ingest: DLQ publish failed", "error", err)
				}
			} else {
				retryMsg := nats.NewMsg(PagesSubject)
				retryMsg.Data = msg.Data
				retryMsg.Header = nats.Header{}
				retryMsg.Header.Set("X-Retry-Count", fmt.Sprintf("%d", retries))
				if err := nc.PublishMsg(retryMsg); err != nil {
					log.Error("ingest: retry publish failed", "error", err)
				}
			}
		} else {
			item, _ := result.Unwrap()
			if deps.Builder != nil {
				deps.Builder.Add(item)
			}
			log.Info("ingest: page accumulated", "url", item.URL, "category", item.Category)
		}

		if msg.Reply != "" {
			_ = msg.Ack()
		}
	})
}
