package jsoncfg

import (
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// ConsultJSON configures one consult-and-synthesize flow.
type ConsultJSON struct {
	MasterPrompt string `json:"master_prompt"`
	NoteField    string `json:"note_field"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	FallbackNote string `json:"fallback_note"`
}

// PromptFileJSON is the operator-editable instruction prompt file. The
// embedded defaults use the same shape.
type PromptFileJSON struct {
	Version  string      `json:"version"`
	Grooming ConsultJSON `json:"grooming"`
	Glam     ConsultJSON `json:"glam"`
}

// MasterPromptJSON is the export and import format of the grooming prompt.
type MasterPromptJSON struct {
	MasterPrompt string `json:"master_prompt"`
	Version      string `json:"version"`
	UpdatedAt    string `json:"updated_at,omitempty"`
}

// StoredPromptJSON is the override persisted in the key-value store.
type StoredPromptJSON struct {
	Prompt    string `json:"prompt"`
	UpdatedAt string `json:"updated_at"`
}

const (
	// DefaultPromptVersion is written into exports and prompt files.
	DefaultPromptVersion = "1.0"
	// MaxPromptLength bounds operator-supplied prompts.
	MaxPromptLength = 20000
	// DefaultNoteField is the advisory field requested when a flow names none.
	DefaultNoteField = "note"
	// DefaultCollageWidth and DefaultCollageHeight apply when a flow omits its size.
	DefaultCollageWidth  = 1280
	DefaultCollageHeight = 720
)

// Normalize fills defaults and trims whitespace.
func (c *ConsultJSON) Normalize() {
	if c == nil {
		return
	}
	c.MasterPrompt = strings.TrimSpace(c.MasterPrompt)
	c.NoteField = strings.TrimSpace(c.NoteField)
	if c.NoteField == "" {
		c.NoteField = DefaultNoteField
	}
	if c.Width <= 0 {
		c.Width = DefaultCollageWidth
	}
	if c.Height <= 0 {
		c.Height = DefaultCollageHeight
	}
}

// Validate reports the first contract violation.
func (c ConsultJSON) Validate() error {
	if err := ValidatePrompt(c.MasterPrompt); err != nil {
		return err
	}
	if !strings.Contains(c.MasterPrompt, c.NoteField) {
		return fmt.Errorf("master_prompt must ask for the %q field", c.NoteField)
	}
	if strings.TrimSpace(c.FallbackNote) == "" {
		return fmt.Errorf("fallback_note is required")
	}
	return nil
}

// Normalize applies defaults to both flows.
func (f *PromptFileJSON) Normalize() {
	if f == nil {
		return
	}
	if f.Version == "" {
		f.Version = DefaultPromptVersion
	}
	f.Grooming.Normalize()
	f.Glam.Normalize()
}

func (f PromptFileJSON) Validate() error {
	if err := f.Grooming.Validate(); err != nil {
		return fmt.Errorf("grooming: %w", err)
	}
	if err := f.Glam.Validate(); err != nil {
		return fmt.Errorf("glam: %w", err)
	}
	return nil
}

// Normalize trims the prompt and stamps version and time.
func (p *MasterPromptJSON) Normalize(now time.Time) {
	if p == nil {
		return
	}
	p.MasterPrompt = strings.TrimSpace(p.MasterPrompt)
	if p.Version == "" {
		p.Version = DefaultPromptVersion
	}
	if p.UpdatedAt == "" {
		p.UpdatedAt = now.UTC().Format(time.RFC3339)
	}
}

func (p MasterPromptJSON) Validate() error {
	return ValidatePrompt(p.MasterPrompt)
}

// ValidatePrompt checks an instruction prompt before it is stored.
func ValidatePrompt(prompt string) error {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return fmt.Errorf("master_prompt is required")
	}
	if len(prompt) > MaxPromptLength {
		return fmt.Errorf("master_prompt must be at most %d bytes", MaxPromptLength)
	}
	if !strings.Contains(prompt, "edit_prompt") {
		return fmt.Errorf("master_prompt must ask for the edit_prompt field")
	}
	return nil
}

func MustMarshal(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Errorf("json marshal: %w", err))
	}
	return b
}
