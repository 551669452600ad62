package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// SQL stores values in a single kiosk_kv table on SQLite or Postgres.
type SQL struct {
	db *sqlx.DB
}

// OpenSQL opens driverName ("sqlite" or "postgres") and creates the table.
func OpenSQL(ctx context.Context, driverName, dsn string) (*SQL, error) {
	db, err := sqlx.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", driverName, err)
	}
	if driverName == "sqlite" {
		// A single connection keeps in-memory databases alive and writes serialized.
		db.SetMaxOpenConns(1)
	}
	s := NewSQL(db)
	if err := s.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQL wraps an open handle without touching the schema.
func NewSQL(db *sqlx.DB) *SQL {
	return &SQL{db: db}
}

func (s *SQL) EnsureSchema(ctx context.Context) error {
	blob := "BLOB"
	if s.db.DriverName() == "postgres" {
		blob = "BYTEA"
	}
	q := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS kiosk_kv (
	k TEXT PRIMARY KEY,
	v %s NOT NULL,
	updated_at TIMESTAMP NOT NULL
)`, blob)
	if _, err := s.db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("store: ensure schema: %w", err)
	}
	return nil
}

const (
	qGet    = `SELECT v FROM kiosk_kv WHERE k = ?`
	qUpsert = `INSERT INTO kiosk_kv (k, v, updated_at) VALUES (?, ?, ?)
ON CONFLICT (k) DO UPDATE SET v = excluded.v, updated_at = excluded.updated_at`
	qDelete = `DELETE FROM kiosk_kv WHERE k = ?`
)

func (s *SQL) Get(ctx context.Context, key string) ([]byte, error) {
	var v []byte
	if err := s.db.GetContext(ctx, &v, s.db.Rebind(qGet), key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: get %s: %w", key, err)
	}
	return v, nil
}

func (s *SQL) Set(ctx context.Context, key string, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(qUpsert), key, value, time.Now().UTC()); err != nil {
		if isFull(err) {
			return fmt.Errorf("%w: %v", ErrQuotaExceeded, err)
		}
		return fmt.Errorf("store: set %s: %w", key, err)
	}
	return nil
}

func (s *SQL) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(qDelete), key); err != nil {
		return fmt.Errorf("store: delete %s: %w", key, err)
	}
	return nil
}

func (s *SQL) Close() error {
	return s.db.Close()
}

// isFull recognizes out-of-space errors from either driver.
func isFull(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "53100", "54000":
			return true
		}
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code()&0xff == sqlite3.SQLITE_FULL
	}
	return false
}
