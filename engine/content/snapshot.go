// Package content owns the cached site-content snapshot. A Snapshot is an
// immutable, insertion-ordered set of embedded content items built by the
// ingest pipeline. Readers always see a complete snapshot; refresh replaces
// the whole set in one pointer swap, never item by item.
package content

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/curbside-labs/contenthub/engine/domain"
)

// Snapshot is one complete generation of the content cache. It is immutable
// after construction; all mutation happens by building a new Snapshot and
// swapping it into a Handle.
type Snapshot struct {
	items   []domain.ContentItem
	byID    map[string]int
	dims    int
	model   string
	builtAt time.Time
}

// NewSnapshot builds a snapshot from validated items. Item order is
// preserved as given and becomes the tie-break order for equal-score
// ranking. Duplicate IDs and mixed embedding dimensions are rejected.
func NewSnapshot(items []domain.ContentItem, model string, builtAt time.Time) (*Snapshot, error) {
	if builtAt.IsZero() {
		builtAt = time.Now().UTC()
	}

	s := &Snapshot{
		items:   make([]domain.ContentItem, len(items)),
		byID:    make(map[string]int, len(items)),
		model:   model,
		builtAt: builtAt,
	}
	copy(s.items, items)

	for i, item := range s.items {
		if err := domain.ValidateItem(item); err != nil {
			return nil, fmt.Errorf("content: item %d: %w", i, err)
		}
		if _, dup := s.byID[item.ID]; dup {
			return nil, fmt.Errorf("content: duplicate item id %s", item.ID)
		}
		s.byID[item.ID] = i

		if s.dims == 0 {
			s.dims = len(item.Embedding)
		} else if len(item.Embedding) != s.dims {
			return nil, fmt.Errorf("content: item %s: embedding has %d dims, snapshot has %d",
				item.ID, len(item.Embedding), s.dims)
		}
	}
	return s, nil
}

// Items returns the snapshot's items in insertion order. The returned slice
// is shared; callers must treat it as read-only.
func (s *Snapshot) Items() []domain.ContentItem {
	return s.items
}

// Get looks an item up by ID.
func (s *Snapshot) Get(id string) (domain.ContentItem, bool) {
	i, ok := s.byID[id]
	if !ok {
		return domain.ContentItem{}, false
	}
	return s.items[i], true
}

// Len returns the number of items.
func (s *Snapshot) Len() int {
	return len(s.items)
}

// Dims returns the embedding dimensionality shared by every item, or 0 for
// an empty snapshot.
func (s *Snapshot) Dims() int {
	return s.dims
}

// Model returns the embedding model the snapshot was built with.
func (s *Snapshot) Model() string {
	return s.model
}

// BuiltAt returns when the snapshot was built.
func (s *Snapshot) BuiltAt() time.Time {
	return s.builtAt
}

// snapshotFile is the on-disk JSON layout.
type snapshotFile struct {
	BuiltAt time.Time            `json:"built_at"`
	Model   string               `json:"model"`
	Dims    int                  `json:"dims"`
	Items   []domain.ContentItem `json:"items"`
}

// Load reads a snapshot file and validates it into a Snapshot.
func Load(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("content: read snapshot %s: %w", path, err)
	}

	var f snapshotFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("content: parse snapshot %s: %w", path, err)
	}

	s, err := NewSnapshot(f.Items, f.Model, f.BuiltAt)
	if err != nil {
		return nil, err
	}
	if f.Dims != 0 && s.Dims() != f.Dims {
		return nil, fmt.Errorf("content: snapshot %s declares %d dims, items have %d", path, f.Dims, s.Dims())
	}
	return s, nil
}

// Write persists a snapshot as JSON. The file is written to a temp file in
// the target directory and renamed into place so concurrent readers never
// observe a partial snapshot.
func Write(path string, s *Snapshot) error {
	data, err := json.MarshalIndent(snapshotFile{
		BuiltAt: s.builtAt,
		Model:   s.model,
		Dims:    s.dims,
		Items:   s.items,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("content: encode snapshot: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("content: create snapshot dir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".snapshot-*.json")
	if err != nil {
		return fmt.Errorf("content: create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("content: write temp snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("content: close temp snapshot: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("content: rename snapshot into place: %w", err)
	}
	return nil
}
