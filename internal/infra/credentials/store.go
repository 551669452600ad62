// Package credentials keeps integration secrets in the operator database so
// a fleet of kiosks can be provisioned without per-device environment files.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"vtokiosk/internal/infra"
	"vtokiosk/internal/sqlinline"
)

const (
	ProviderFal    = "fal"
	ProviderBridge = "bridge"
)

var ErrUnknownProvider = errors.New("credentials: unknown provider")

// Secret describes a stored secret without exposing it.
type Secret struct {
	Provider  string
	Kind      string
	Hint      string
	UpdatedAt time.Time
}

type Store struct {
	sql infra.SQLExecutor
}

func NewStore(sql infra.SQLExecutor) *Store {
	return &Store{sql: sql}
}

func (s *Store) FalKey(ctx context.Context) (string, error) {
	return s.Token(ctx, ProviderFal)
}

func (s *Store) BridgeURL(ctx context.Context) (string, error) {
	return s.Token(ctx, ProviderBridge)
}

// Token returns the secret for provider. A missing row is not an error.
func (s *Store) Token(ctx context.Context, provider string) (string, error) {
	var token string
	err := s.sql.QueryRow(ctx, sqlinline.QSelectIntegrationToken, provider).Scan(&token)
	switch {
	case infra.IsNoRows(err):
		return "", nil
	case err != nil:
		return "", fmt.Errorf("credentials: read %s: %w", provider, err)
	}
	return strings.TrimSpace(token), nil
}

func (s *Store) SetFalKey(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("credentials: fal key is empty")
	}
	return s.save(ctx, ProviderFal, key, map[string]string{"kind": "api_key"})
}

// SetBridgeURL stores the Apps Script web app that proxies Vertex and Drive.
func (s *Store) SetBridgeURL(ctx context.Context, raw string) error {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return fmt.Errorf("credentials: bridge url %q must be absolute", raw)
	}
	return s.save(ctx, ProviderBridge, raw, map[string]string{"kind": "apps_script"})
}

func (s *Store) save(ctx context.Context, provider, token string, props map[string]string) error {
	raw, err := json.Marshal(props)
	if err != nil {
		return err
	}
	if _, err := s.sql.Exec(ctx, sqlinline.QSaveIntegrationToken, provider, token, string(raw)); err != nil {
		return fmt.Errorf("credentials: save %s: %w", provider, err)
	}
	return nil
}

// List returns every stored secret ordered by provider.
func (s *Store) List(ctx context.Context) ([]Secret, error) {
	rows, err := s.sql.Query(ctx, sqlinline.QListIntegrationTokens)
	if err != nil {
		return nil, fmt.Errorf("credentials: list: %w", err)
	}
	defer rows.Close()

	var out []Secret
	for rows.Next() {
		var (
			sec   Secret
			token string
		)
		if err := rows.Scan(&sec.Provider, &token, &sec.Kind, &sec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("credentials: list: %w", err)
		}
		sec.Hint = hint(token)
		out = append(out, sec)
	}
	return out, rows.Err()
}

// Delete removes the secret for provider and reports whether one existed.
func (s *Store) Delete(ctx context.Context, provider string) (bool, error) {
	if provider != ProviderFal && provider != ProviderBridge {
		return false, fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}
	tag, err := s.sql.Exec(ctx, sqlinline.QDeleteIntegrationToken, provider)
	if err != nil {
		return false, fmt.Errorf("credentials: delete %s: %w", provider, err)
	}
	return tag.RowsAffected() > 0, nil
}

// hint keeps the last four characters of a secret.
func hint(token string) string {
	token = strings.TrimSpace(token)
	if len(token) <= 4 {
		return strings.Repeat("*", len(token))
	}
	return "..." + token[len(token)-4:]
}

// Resolve returns current when set, otherwise the stored secret. Lookup
// failures resolve to "" so callers treat them like a missing secret.
func Resolve(ctx context.Context, s *Store, current, provider string) string {
	if strings.TrimSpace(current) != "" || s == nil {
		return current
	}
	token, err := s.Token(ctx, provider)
	if err != nil {
		return ""
	}
	return token
}
