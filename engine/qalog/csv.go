package qalog

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/curbside-labs/contenthub/engine/domain"
	"github.com/curbside-labs/contenthub/pkg/fn"
)

// CSVSink appends records to a local append-only CSV file. It is the
// always-available fallback: the file is created (with a header row) on
// first append.
type CSVSink struct {
	path string
	mu   sync.Mutex
}

// NewCSVSink creates a sink writing to path. The file is not touched until
// the first append.
func NewCSVSink(path string) *CSVSink {
	return &CSVSink{path: path}
}

// Name identifies the sink in logs.
func (s *CSVSink) Name() string { return "csv" }

// Append writes one record, creating the file with a header row first if
// needed.
func (s *CSVSink) Append(_ context.Context, rec domain.QARecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, statErr := os.Stat(s.path)
	writeHeader := errors.Is(statErr, fs.ErrNotExist)

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("qalog: open csv %s: %w", s.path, err)
	}

	w := csv.NewWriter(f)
	if writeHeader {
		if err := w.Write(rowHeader); err != nil {
			f.Close()
			return fmt.Errorf("qalog: write csv header: %w", err)
		}
	}
	if err := w.Write(recordRow(rec)); err != nil {
		f.Close()
		return fmt.Errorf("qalog: write csv row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("qalog: flush csv: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("qalog: close csv: %w", err)
	}
	return nil
}

// ReadAll returns every record in the file, oldest first. A missing file is
// an empty log, not an error. Malformed rows are skipped.
func (s *CSVSink) ReadAll(_ context.Context) ([]domain.QARecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("qalog: open csv %s: %w", s.path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("qalog: read csv %s: %w", s.path, err)
	}

	return fn.FilterMap(rows, parseRow), nil
}

// recordRow flattens a record into the shared column layout.
func recordRow(rec domain.QARecord) []string {
	return []string{
		rec.Timestamp.UTC().Format(time.RFC3339),
		rec.Question,
		rec.Answer,
		string(rec.UserType),
		rec.Region,
	}
}

// parseRow is the inverse of recordRow. Header rows and rows with too few
// columns report ok=false.
func parseRow(row []string) (domain.QARecord, bool) {
	if len(row) < 3 {
		return domain.QARecord{}, false
	}
	ts, err := time.Parse(time.RFC3339, row[0])
	if err != nil {
		// Header row or hand-edited timestamp.
		return domain.QARecord{}, false
	}
	rec := domain.QARecord{
		Timestamp: ts,
		Question:  row[1],
		Answer:    row[2],
	}
	if len(row) > 3 {
		rec.UserType = domain.UserType(row[3])
	}
	if len(row) > 4 {
		rec.Region = row[4]
	}
	return rec, true
}
