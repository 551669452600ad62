// Package analytics records one event per finished generation pipeline.
package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"vtokiosk/internal/infra"
	"vtokiosk/internal/sqlinline"
)

// Pipeline outcomes.
const (
	OutcomeSuccess  = "success"
	OutcomeDegraded = "degraded"
	OutcomeFailure  = "failure"
)

// Event describes one generation attempt.
type Event struct {
	SessionID   uuid.UUID
	Flow        string
	Outcome     string
	FailureKind string
	Latency     time.Duration
}

// Summary aggregates events per flow and outcome.
type Summary struct {
	Flow         string `json:"flow"`
	Outcome      string `json:"outcome"`
	Total        int    `json:"total"`
	AvgLatencyMS int    `json:"avg_latency_ms"`
}

// Recorder stores generation events.
type Recorder interface {
	Record(ctx context.Context, ev Event) error
	Summarize(ctx context.Context, since time.Time) ([]Summary, error)
}

// Nop discards events. It is used when no operator database is configured.
type Nop struct{}

func (Nop) Record(context.Context, Event) error { return nil }

func (Nop) Summarize(context.Context, time.Time) ([]Summary, error) { return nil, nil }

// SQLRecorder writes events to Postgres through the marker-checked runner.
type SQLRecorder struct {
	sql infra.SQLExecutor
}

func NewSQLRecorder(sql infra.SQLExecutor) *SQLRecorder {
	return &SQLRecorder{sql: sql}
}

func (r *SQLRecorder) Record(ctx context.Context, ev Event) error {
	if ev.Flow == "" || ev.Outcome == "" {
		return fmt.Errorf("analytics: flow and outcome are required")
	}
	_, err := r.sql.Exec(ctx, sqlinline.QInsertGenerationEvent,
		uuid.New(),
		ev.SessionID,
		ev.Flow,
		ev.Outcome,
		ev.FailureKind,
		int(ev.Latency/time.Millisecond),
	)
	if err != nil {
		return fmt.Errorf("analytics: record: %w", err)
	}
	return nil
}

func (r *SQLRecorder) Summarize(ctx context.Context, since time.Time) ([]Summary, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QSummarizeGenerationEvents, since)
	if err != nil {
		return nil, fmt.Errorf("analytics: summarize: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var s Summary
		if err := rows.Scan(&s.Flow, &s.Outcome, &s.Total, &s.AvgLatencyMS); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
