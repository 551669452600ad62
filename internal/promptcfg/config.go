// Package promptcfg resolves the instruction prompts for the consult flows:
// embedded defaults, an optional operator file, and a stored override of the
// grooming prompt.
package promptcfg

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"

	"vtokiosk/internal/domain"
	"vtokiosk/internal/domain/jsoncfg"
	"vtokiosk/internal/gateway"
	"vtokiosk/internal/infra"
	"vtokiosk/internal/store"
)

// OverrideKey holds the operator's grooming prompt in the store.
const OverrideKey = "barber_master_prompt"

// Prompt sources reported by Resolve.
const (
	SourceDefault  = "default"
	SourceFile     = "file"
	SourceOverride = "override"
)

//go:embed defaults.json
var defaultsJSON []byte

// Config is an immutable snapshot of the consult settings.
type Config struct {
	Grooming jsoncfg.ConsultJSON
	Glam     jsoncfg.ConsultJSON
	// Source names where the grooming prompt came from.
	Source    string
	UpdatedAt string
}

// Consult returns the gateway request settings for flow.
func (c Config) Consult(flow domain.Flow) (gateway.ConsultRequest, error) {
	var cj jsoncfg.ConsultJSON
	switch flow {
	case domain.FlowGrooming:
		cj = c.Grooming
	case domain.FlowGlam:
		cj = c.Glam
	default:
		return gateway.ConsultRequest{}, fmt.Errorf("%w: flow %q has no consultation", domain.ErrInvalidInput, flow)
	}
	return gateway.ConsultRequest{
		Prompt:       cj.MasterPrompt,
		NoteField:    cj.NoteField,
		Width:        cj.Width,
		Height:       cj.Height,
		FallbackNote: cj.FallbackNote,
	}, nil
}

// Manager owns the base prompt file and the stored override.
type Manager struct {
	kv     store.KV
	path   string
	logger *infra.Logger
	now    func() time.Time

	base       atomic.Pointer[jsoncfg.PromptFileJSON]
	baseSource atomic.Value
	mu         sync.Mutex
}

// NewManager loads the embedded defaults and, when path is set, the operator
// file on top of them. A broken operator file is an error at startup.
func NewManager(kv store.KV, path string, logger *infra.Logger) (*Manager, error) {
	if logger == nil {
		logger = infra.NopLogger()
	}
	m := &Manager{kv: kv, path: strings.TrimSpace(path), logger: logger, now: time.Now}

	defaults, err := parseFile(defaultsJSON)
	if err != nil {
		return nil, fmt.Errorf("promptcfg: embedded defaults: %w", err)
	}
	m.base.Store(defaults)
	m.baseSource.Store(SourceDefault)

	if m.path != "" {
		if err := m.Reload(); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Defaults returns the embedded prompt file.
func Defaults() (*jsoncfg.PromptFileJSON, error) {
	return parseFile(defaultsJSON)
}

func parseFile(raw []byte) (*jsoncfg.PromptFileJSON, error) {
	var f jsoncfg.PromptFileJSON
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	f.Normalize()
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	return &f, nil
}

// Reload re-reads the operator file. On error the previous settings stay.
func (m *Manager) Reload() error {
	if m.path == "" {
		return nil
	}
	raw, err := os.ReadFile(m.path)
	if err != nil {
		return fmt.Errorf("promptcfg: read %s: %w", m.path, err)
	}
	f, err := parseFile(raw)
	if err != nil {
		return fmt.Errorf("promptcfg: %s: %w", m.path, err)
	}
	m.base.Store(f)
	m.baseSource.Store(SourceFile)
	m.logger.Info().Str("path", m.path).Msg("prompt config loaded")
	return nil
}

// Resolve returns the settings to use for one operation.
func (m *Manager) Resolve(ctx context.Context) Config {
	base := *m.base.Load()
	cfg := Config{Grooming: base.Grooming, Glam: base.Glam, Source: m.baseSource.Load().(string)}

	override, err := m.override(ctx)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			m.logger.Warn().Err(err).Msg("prompt override unreadable; using base prompt")
		}
		return cfg
	}
	cfg.Grooming.MasterPrompt = override.Prompt
	cfg.Source = SourceOverride
	cfg.UpdatedAt = override.UpdatedAt
	return cfg
}

func (m *Manager) override(ctx context.Context) (jsoncfg.StoredPromptJSON, error) {
	var stored jsoncfg.StoredPromptJSON
	raw, err := m.kv.Get(ctx, OverrideKey)
	if err != nil {
		return stored, err
	}
	if err := json.Unmarshal(raw, &stored); err != nil {
		return stored, err
	}
	if strings.TrimSpace(stored.Prompt) == "" {
		return stored, store.ErrNotFound
	}
	return stored, nil
}

// Set stores a grooming prompt override.
func (m *Manager) Set(ctx context.Context, prompt string) (jsoncfg.StoredPromptJSON, error) {
	prompt = strings.TrimSpace(prompt)
	if err := jsoncfg.ValidatePrompt(prompt); err != nil {
		return jsoncfg.StoredPromptJSON{}, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	stored := jsoncfg.StoredPromptJSON{Prompt: prompt, UpdatedAt: m.now().UTC().Format(time.RFC3339)}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.kv.Set(ctx, OverrideKey, jsoncfg.MustMarshal(stored)); err != nil {
		return jsoncfg.StoredPromptJSON{}, err
	}
	return stored, nil
}

// Reset drops the override so the base prompt applies again.
func (m *Manager) Reset(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.kv.Delete(ctx, OverrideKey)
}

// Export returns the effective grooming prompt in the export format.
func (m *Manager) Export(ctx context.Context) jsoncfg.MasterPromptJSON {
	cfg := m.Resolve(ctx)
	out := jsoncfg.MasterPromptJSON{MasterPrompt: cfg.Grooming.MasterPrompt, UpdatedAt: cfg.UpdatedAt}
	out.Normalize(m.now())
	return out
}

// Import reads an exported document and stores its prompt as the override.
func (m *Manager) Import(ctx context.Context, raw []byte) (jsoncfg.MasterPromptJSON, error) {
	var doc jsoncfg.MasterPromptJSON
	if err := json.Unmarshal(raw, &doc); err != nil {
		return doc, fmt.Errorf("%w: invalid JSON file", domain.ErrInvalidInput)
	}
	doc.Normalize(m.now())
	if err := doc.Validate(); err != nil {
		return doc, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	stored, err := m.Set(ctx, doc.MasterPrompt)
	if err != nil {
		return doc, err
	}
	doc.UpdatedAt = stored.UpdatedAt
	return doc, nil
}
