package infra

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SQLExecutor is the query surface of the operator database.
type SQLExecutor interface {
	Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, query string, args ...any) pgx.Row
	Query(ctx context.Context, query string, args ...any) (pgx.Rows, error)
}

// ErrUnmarkedQuery is returned for queries that do not start with a
// "--sql <uuid>" line.
var ErrUnmarkedQuery = errors.New("sql: query has no --sql <uuid> marker")

var markerLine = regexp.MustCompile(`^--sql ([0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12})$`)

// SQLRunner sends marked queries to Postgres with the marker line removed and
// logs every call under its marker.
type SQLRunner struct {
	db     SQLExecutor
	logger Logger
	now    func() time.Time
}

func NewSQLRunner(pool *pgxpool.Pool, logger Logger) *SQLRunner {
	return newSQLRunner(pool, logger)
}

func newSQLRunner(db SQLExecutor, logger Logger) *SQLRunner {
	return &SQLRunner{db: db, logger: logger, now: time.Now}
}

func (r *SQLRunner) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	marker, body, err := splitMarker(query)
	if err != nil {
		return pgconn.CommandTag{}, err
	}
	started := r.now()
	tag, err := r.db.Exec(ctx, body, args...)
	if err != nil {
		r.logger.Error().Err(err).Str("sql", marker).Msg("sql exec failed")
		return tag, err
	}
	r.logger.Debug().Str("sql", marker).Int64("rows", tag.RowsAffected()).Dur("latency", r.now().Sub(started)).Msg("sql exec")
	return tag, nil
}

func (r *SQLRunner) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	marker, body, err := splitMarker(query)
	if err != nil {
		return failedRow{err: err}
	}
	return markedRow{Row: r.db.QueryRow(ctx, body, args...), marker: marker, logger: r.logger}
}

func (r *SQLRunner) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	marker, body, err := splitMarker(query)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.Query(ctx, body, args...)
	if err != nil {
		r.logger.Error().Err(err).Str("sql", marker).Msg("sql query failed")
		return nil, err
	}
	r.logger.Debug().Str("sql", marker).Msg("sql query")
	return rows, nil
}

// IsNoRows reports whether err signals an empty result set.
func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// markedRow logs scan failures other than an empty result.
type markedRow struct {
	pgx.Row
	marker string
	logger Logger
}

func (m markedRow) Scan(dest ...any) error {
	err := m.Row.Scan(dest...)
	switch {
	case err == nil:
		m.logger.Debug().Str("sql", m.marker).Msg("sql query_row")
	case !IsNoRows(err):
		m.logger.Error().Err(err).Str("sql", m.marker).Msg("sql scan failed")
	}
	return err
}

type failedRow struct{ err error }

func (f failedRow) Scan(...any) error { return f.err }

// splitMarker returns the marker id and the statement that follows it.
func splitMarker(query string) (marker, body string, err error) {
	query = strings.TrimSpace(query)
	first, rest, _ := strings.Cut(query, "\n")
	m := markerLine.FindStringSubmatch(strings.TrimSpace(first))
	if m == nil {
		return "", "", ErrUnmarkedQuery
	}
	body = strings.TrimSpace(rest)
	if body == "" {
		return "", "", ErrUnmarkedQuery
	}
	return m[1], body, nil
}

var _ SQLExecutor = (*SQLRunner)(nil)
