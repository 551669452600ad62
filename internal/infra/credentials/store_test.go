package credentials

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vtokiosk/internal/sqlinline"
)

type call struct {
	query string
	args  []any
}

// fakeDB keeps secrets in a map and answers the credential queries.
type fakeDB struct {
	tokens  map[string]string
	kinds   map[string]string
	updated time.Time
	fail    error
	execs   []call
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		tokens:  map[string]string{},
		kinds:   map[string]string{},
		updated: time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC),
	}
}

func (d *fakeDB) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	d.execs = append(d.execs, call{query: query, args: args})
	if d.fail != nil {
		return pgconn.CommandTag{}, d.fail
	}
	provider := args[0].(string)
	switch query {
	case sqlinline.QSaveIntegrationToken:
		d.tokens[provider] = args[1].(string)
		return pgconn.NewCommandTag("INSERT 0 1"), nil
	case sqlinline.QDeleteIntegrationToken:
		if _, ok := d.tokens[provider]; !ok {
			return pgconn.NewCommandTag("DELETE 0"), nil
		}
		delete(d.tokens, provider)
		return pgconn.NewCommandTag("DELETE 1"), nil
	}
	return pgconn.CommandTag{}, errors.New("unexpected exec")
}

func (d *fakeDB) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	if d.fail != nil {
		return errRow{d.fail}
	}
	token, ok := d.tokens[args[0].(string)]
	if !ok {
		return errRow{pgx.ErrNoRows}
	}
	return &fakeRows{rows: [][]any{{token}}}
}

func (d *fakeDB) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	if d.fail != nil {
		return nil, d.fail
	}
	rows := &fakeRows{}
	for _, p := range []string{ProviderBridge, ProviderFal} {
		if token, ok := d.tokens[p]; ok {
			rows.rows = append(rows.rows, []any{p, token, d.kinds[p], d.updated})
		}
	}
	return rows, nil
}

type errRow struct{ err error }

func (r errRow) Scan(...any) error { return r.err }

// fakeRows serves canned rows. It also works as a pgx.Row for the first row.
type fakeRows struct {
	rows [][]any
	pos  int
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.NewCommandTag("SELECT") }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	if r.pos >= len(r.rows) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeRows) Values() ([]any, error) { return r.rows[r.pos-1], nil }

func (r *fakeRows) Scan(dest ...any) error {
	if r.pos == 0 {
		r.pos = 1
	}
	row := r.rows[r.pos-1]
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = row[i].(string)
		case *time.Time:
			*p = row[i].(time.Time)
		default:
			return errors.New("unsupported scan target")
		}
	}
	return nil
}

func TestTokenRoundTrip(t *testing.T) {
	db := newFakeDB()
	s := NewStore(db)
	ctx := context.Background()

	key, err := s.FalKey(ctx)
	require.NoError(t, err)
	assert.Empty(t, key)

	require.NoError(t, s.SetFalKey(ctx, "  fal-123456  "))
	key, err = s.FalKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, "fal-123456", key)

	require.Len(t, db.execs, 1)
	assert.Equal(t, []any{ProviderFal, "fal-123456", `{"kind":"api_key"}`}, db.execs[0].args)
}

func TestSetRejectsBadInput(t *testing.T) {
	db := newFakeDB()
	s := NewStore(db)
	ctx := context.Background()

	assert.Error(t, s.SetFalKey(ctx, " "))
	assert.Error(t, s.SetBridgeURL(ctx, "script.google.com/macros/s/x/exec"))
	assert.Error(t, s.SetBridgeURL(ctx, "ftp://script.google.com/x"))
	assert.Empty(t, db.execs)

	require.NoError(t, s.SetBridgeURL(ctx, "https://script.google.com/macros/s/x/exec"))
	url, err := s.BridgeURL(ctx)
	require.NoError(t, err)
	assert.Equal(t, "https://script.google.com/macros/s/x/exec", url)
}

func TestListMasksSecrets(t *testing.T) {
	db := newFakeDB()
	db.tokens[ProviderFal] = "fal-abcdef"
	db.kinds[ProviderFal] = "api_key"
	db.tokens[ProviderBridge] = "abc"

	got, err := NewStore(db).List(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, Secret{Provider: ProviderBridge, Hint: "***", UpdatedAt: db.updated}, got[0])
	assert.Equal(t, Secret{Provider: ProviderFal, Kind: "api_key", Hint: "...cdef", UpdatedAt: db.updated}, got[1])
}

func TestDelete(t *testing.T) {
	db := newFakeDB()
	db.tokens[ProviderFal] = "fal-1"
	s := NewStore(db)
	ctx := context.Background()

	removed, err := s.Delete(ctx, ProviderFal)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = s.Delete(ctx, ProviderFal)
	require.NoError(t, err)
	assert.False(t, removed)

	_, err = s.Delete(ctx, "openai")
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestResolve(t *testing.T) {
	db := newFakeDB()
	db.tokens[ProviderFal] = "from-db"
	ctx := context.Background()

	assert.Equal(t, "from-env", Resolve(ctx, NewStore(db), "from-env", ProviderFal))
	assert.Equal(t, "from-db", Resolve(ctx, NewStore(db), "", ProviderFal))
	assert.Empty(t, Resolve(ctx, nil, "", ProviderFal))

	db.fail = errors.New("connection refused")
	assert.Empty(t, Resolve(ctx, NewStore(db), "", ProviderFal))
	_, err := NewStore(db).Token(ctx, ProviderFal)
	assert.ErrorIs(t, err, db.fail)
}
