package qalog

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/curbside-labs/contenthub/engine/domain"
)

// Reader reads the Q&A history back, trying sources in the same order the
// Logger writes them. The first source that answers wins, so after a
// Sheets outage the history served is whatever the CSV fallback captured.
type Reader struct {
	sources []RecordReader
	logger  *slog.Logger
}

// NewReader creates a Reader over an ordered source list, primary first.
func NewReader(logger *slog.Logger, sources ...RecordReader) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{sources: sources, logger: logger}
}

// ReadAll returns the history from the first source that succeeds. It
// fails only when every source fails.
func (r *Reader) ReadAll(ctx context.Context) ([]domain.QARecord, error) {
	var lastErr error
	for _, src := range r.sources {
		records, err := src.ReadAll(ctx)
		if err != nil {
			r.logger.Warn("qa source read failed", "source", src.Name(), "error", err)
			lastErr = err
			continue
		}
		return records, nil
	}
	if lastErr != nil {
		return nil, fmt.Errorf("qalog: all sources failed: %w", lastErr)
	}
	return nil, nil
}
