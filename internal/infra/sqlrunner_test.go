package infra

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
)

type recordingDB struct {
	queries []string
	execErr error
	rowErr  error
}

func (d *recordingDB) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	d.queries = append(d.queries, query)
	return pgconn.NewCommandTag("INSERT 0 1"), d.execErr
}

func (d *recordingDB) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	d.queries = append(d.queries, query)
	return failedRow{err: d.rowErr}
}

func (d *recordingDB) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	d.queries = append(d.queries, query)
	return nil, errors.New("not supported")
}

const markedInsert = "--sql 0b7f1c52-5a0e-4c8b-9f3a-2d6e8c1f4a90\ninsert into t values (1);\n"

func TestSplitMarker(t *testing.T) {
	marker, body, err := splitMarker(markedInsert)
	if err != nil {
		t.Fatalf("splitMarker: %v", err)
	}
	if marker != "0b7f1c52-5a0e-4c8b-9f3a-2d6e8c1f4a90" {
		t.Fatalf("marker = %q", marker)
	}
	if body != "insert into t values (1);" {
		t.Fatalf("body = %q", body)
	}
}

func TestSplitMarkerRejectsUnmarkedQueries(t *testing.T) {
	for _, query := range []string{
		"",
		"select 1;",
		"--sql not-a-uuid\nselect 1;",
		"--sql 0b7f1c52-5a0e-4c8b-9f3a-2d6e8c1f4a90",
	} {
		if _, _, err := splitMarker(query); !errors.Is(err, ErrUnmarkedQuery) {
			t.Fatalf("splitMarker(%q) error = %v, want ErrUnmarkedQuery", query, err)
		}
	}
}

func TestSQLRunnerExecStripsMarkerAndLogs(t *testing.T) {
	var buf bytes.Buffer
	db := &recordingDB{}
	runner := newSQLRunner(db, zerolog.New(&buf).Level(zerolog.DebugLevel))

	tag, err := runner.Exec(context.Background(), markedInsert)
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if tag.RowsAffected() != 1 {
		t.Fatalf("rows = %d, want 1", tag.RowsAffected())
	}
	if len(db.queries) != 1 || db.queries[0] != "insert into t values (1);" {
		t.Fatalf("queries = %q", db.queries)
	}
	if !strings.Contains(buf.String(), `"sql":"0b7f1c52-5a0e-4c8b-9f3a-2d6e8c1f4a90"`) {
		t.Fatalf("log %q does not carry the marker", buf.String())
	}
}

func TestSQLRunnerNeverSendsUnmarkedQueries(t *testing.T) {
	db := &recordingDB{}
	runner := newSQLRunner(db, zerolog.Nop())

	if _, err := runner.Exec(context.Background(), "delete from t;"); !errors.Is(err, ErrUnmarkedQuery) {
		t.Fatalf("Exec error = %v", err)
	}
	var v int
	if err := runner.QueryRow(context.Background(), "select 1;").Scan(&v); !errors.Is(err, ErrUnmarkedQuery) {
		t.Fatalf("QueryRow error = %v", err)
	}
	if len(db.queries) != 0 {
		t.Fatalf("database saw %q", db.queries)
	}
}

func TestSQLRunnerLogsScanFailuresButNotEmptyResults(t *testing.T) {
	var buf bytes.Buffer
	db := &recordingDB{rowErr: pgx.ErrNoRows}
	runner := newSQLRunner(db, zerolog.New(&buf).Level(zerolog.InfoLevel))

	var v int
	if err := runner.QueryRow(context.Background(), markedInsert).Scan(&v); !IsNoRows(err) {
		t.Fatalf("Scan error = %v, want no rows", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("empty result was logged: %s", buf.String())
	}

	db.rowErr = errors.New("connection reset")
	_ = runner.QueryRow(context.Background(), markedInsert).Scan(&v)
	if !strings.Contains(buf.String(), "sql scan failed") {
		t.Fatalf("scan failure not logged: %s", buf.String())
	}
}
