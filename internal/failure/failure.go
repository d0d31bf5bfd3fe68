// Package failure is the single place swallowed runtime errors are reported.
//
// Event handlers never return errors that stop the process. Instead they hand
// the failure to a Reporter together with its Kind. The default LogReporter
// logs and counts it; a stricter implementation (retry queue, dead-letter
// log) can be substituted without touching the tracking logic.
package failure

import (
	"context"
	"sync"

	"github.com/goodtune/voicetime/internal/metrics"
	"github.com/rs/zerolog"
)

// Kind classifies a failure.
type Kind string

const (
	// MissingContext means guild, member, presence or device data was absent.
	MissingContext Kind = "missing_context"
	// Validation means an input value was malformed, e.g. a zero timestamp.
	Validation Kind = "validation"
	// Persistence means the store was unreachable or rejected a write.
	Persistence Kind = "persistence"
	// Notification means a message could not be delivered.
	Notification Kind = "notification"
)

// Reporter receives failures that were handled locally.
type Reporter interface {
	Report(ctx context.Context, kind Kind, op string, err error)
}

// LogReporter logs failures with zerolog and counts them in Prometheus.
type LogReporter struct {
	logger zerolog.Logger
}

// NewLogReporter creates a LogReporter.
func NewLogReporter(logger zerolog.Logger) *LogReporter {
	return &LogReporter{
		logger: logger.With().Str("component", "failure").Logger(),
	}
}

// Report logs and counts a failure.
func (r *LogReporter) Report(_ context.Context, kind Kind, op string, err error) {
	metrics.Failures.WithLabelValues(string(kind), op).Inc()

	ev := r.logger.Error()
	if kind == MissingContext || kind == Validation {
		ev = r.logger.Warn()
	}
	ev.Err(err).
		Str("kind", string(kind)).
		Str("op", op).
		Msg("Event handling failed")
}

// Record is a failure captured by Recorder.
type Record struct {
	Kind Kind
	Op   string
	Err  error
}

// Recorder keeps reported failures in memory instead of logging them.
type Recorder struct {
	mu      sync.Mutex
	records []Record
}

// Report stores the failure.
func (r *Recorder) Report(_ context.Context, kind Kind, op string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, Record{Kind: kind, Op: op, Err: err})
}

// Records returns a copy of everything reported so far.
func (r *Recorder) Records() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Record, len(r.records))
	copy(out, r.records)
	return out
}

// Count returns how many failures of kind were reported.
func (r *Recorder) Count(kind Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, rec := range r.records {
		if rec.Kind == kind {
			n++
		}
	}
	return n
}
