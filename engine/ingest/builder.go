package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/curbside-labs/contenthub/engine/content"
	"github.com/curbside-labs/contenthub/engine/domain"
	"github.com/curbside-labs/contenthub/pkg/fn"
)

// Builder accumulates content items for the next snapshot. Items keep
// insertion order; a URL is accepted once. Safe for concurrent use.
type Builder struct {
	mu      sync.Mutex
	model   string
	items   []domain.ContentItem
	byURL   map[string]bool
	pending int // items added since the last successful Build
}

// NewBuilder creates a Builder. The model name is recorded on every
// snapshot it produces.
func NewBuilder(model string) *Builder {
	return &Builder{
		model: model,
		byURL: map[string]bool{},
	}
}

// Add accumulates an item. Returns false when its URL is already present.
func (b *Builder) Add(item domain.ContentItem) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.byURL[item.URL] {
		return false
	}
	b.byURL[item.URL] = true
	b.items = append(b.items, item)
	b.pending++
	return true
}

// Has reports whether an item with this URL was already accumulated.
func (b *Builder) Has(url string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.byURL[url]
}

// Len returns the number of accumulated items.
func (b *Builder) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// Dirty reports whether items arrived since the last successful Build.
func (b *Builder) Dirty() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pending > 0
}

// Build embeds every item still missing an embedding, in batches, and
// produces a snapshot. Computed embeddings are kept so a later Build does
// not pay for them again.
func (b *Builder) Build(ctx context.Context, embedder Embedder) (*content.Snapshot, error) {
	b.mu.Lock()
	items := make([]domain.ContentItem, len(b.items))
	copy(items, b.items)
	b.mu.Unlock()

	if len(items) == 0 {
		return nil, fmt.Errorf("ingest: build: no items accumulated")
	}

	var missing []int
	for i, item := range items {
		if len(item.Embedding) == 0 {
			missing = append(missing, i)
		}
	}

	// Fan batches out with bounded concurrency. The closure only reads
	// items; embeddings are written back after every batch has returned.
	batches := fn.Chunk(missing, EmbedBatchSize)
	results := fn.ParMapResult(batches, embedWorkers, func(batch []int) fn.Result[[][]float32] {
		texts := fn.Map(batch, func(i int) string { return embedInput(items[i]) })
		return fn.FromPair(embedder.EmbedBatch(ctx, texts))
	})
	vecsByBatch, err := fn.Collect(results).Unwrap()
	if err != nil {
		return nil, fmt.Errorf("ingest: build: %w: %w", domain.ErrEmbedding, err)
	}
	for bi, batch := range batches {
		vecs := vecsByBatch[bi]
		if len(vecs) != len(batch) {
			return nil, fmt.Errorf("ingest: build: got %d embeddings for %d texts", len(vecs), len(batch))
		}
		for j, i := range batch {
			items[i].Embedding = vecs[j]
		}
	}

	snap, err := content.NewSnapshot(items, b.model, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("ingest: build: %w", err)
	}

	// Indexes are stable: Add only appends. Write embeddings back and mark
	// the builder clean.
	b.mu.Lock()
	for i := range items {
		if i < len(b.items) && len(b.items[i].Embedding) == 0 {
			b.items[i].Embedding = items[i].Embedding
		}
	}
	b.pending = 0
	b.mu.Unlock()

	return snap, nil
}
