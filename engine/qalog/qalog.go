// Package qalog records question/answer interactions through an ordered
// list of sinks. The first sink that accepts the record wins; failures fall
// through to the next sink. Logging is strictly best-effort: a record that
// every sink rejects is dropped and the drop is only visible in logs and
// counters, never to the caller.
package qalog

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/curbside-labs/contenthub/engine/domain"
)

// Sink appends one record to a destination.
type Sink interface {
	Name() string
	Append(ctx context.Context, rec domain.QARecord) error
}

// RecordReader reads back all records from a destination.
type RecordReader interface {
	Name() string
	ReadAll(ctx context.Context) ([]domain.QARecord, error)
}

// Stats is a point-in-time view of the logger's counters.
type Stats struct {
	Appended int64 `json:"appended"`
	Failures int64 `json:"failures"`
	Dropped  int64 `json:"dropped"`
}

// Logger fans a record down its sink list in order.
type Logger struct {
	sinks  []Sink
	logger *slog.Logger

	appended atomic.Int64
	failures atomic.Int64
	dropped  atomic.Int64
}

// New creates a Logger over an ordered sink list, primary first. A Logger
// with no sinks drops everything.
func New(logger *slog.Logger, sinks ...Sink) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{sinks: sinks, logger: logger}
}

// Log writes the record to the first sink that accepts it. It never
// returns an error and never panics; a failure here must not interrupt the
// user-facing flow that produced the record.
func (l *Logger) Log(ctx context.Context, rec domain.QARecord) {
	defer func() {
		if r := recover(); r != nil {
			l.dropped.Add(1)
			l.logger.Error("qa log panic swallowed", "panic", r)
		}
	}()

	for _, sink := range l.sinks {
		if err := sink.Append(ctx, rec); err != nil {
			l.failures.Add(1)
			l.logger.Warn("qa sink append failed", "sink", sink.Name(), "record", rec.ID, "error", err)
			continue
		}
		l.appended.Add(1)
		l.logger.Info("qa record appended", "sink", sink.Name(), "record", rec.ID)
		return
	}

	l.dropped.Add(1)
	l.logger.Error("qa record dropped, all sinks failed", "record", rec.ID, "sinks", len(l.sinks))
}

// Stats returns the logger's counters.
func (l *Logger) Stats() Stats {
	return Stats{
		Appended: l.appended.Load(),
		Failures: l.failures.Load(),
		Dropped:  l.dropped.Load(),
	}
}

// rowHeader is the column layout shared by every sink.
var rowHeader = []string{"timestamp", "question", "answer", "user_type", "region"}
