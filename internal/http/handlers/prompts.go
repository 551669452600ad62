package handlers

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"vtokiosk/internal/domain/jsoncfg"
)

type promptConfigResponse struct {
	Grooming  jsoncfg.ConsultJSON `json:"grooming"`
	Glam      jsoncfg.ConsultJSON `json:"glam"`
	Source    string              `json:"source"`
	UpdatedAt string              `json:"updated_at,omitempty"`
}

func (a *App) GetPromptConfig(w http.ResponseWriter, r *http.Request) {
	cfg := a.Prompts.Resolve(r.Context())
	a.json(w, http.StatusOK, promptConfigResponse{
		Grooming:  cfg.Grooming,
		Glam:      cfg.Glam,
		Source:    cfg.Source,
		UpdatedAt: cfg.UpdatedAt,
	})
}

type setPromptRequest struct {
	Prompt string `json:"prompt"`
}

// SetPrompt stores the operator's grooming prompt override.
func (a *App) SetPrompt(w http.ResponseWriter, r *http.Request) {
	var req setPromptRequest
	if !a.decode(w, r, &req) {
		return
	}
	stored, err := a.Prompts.Set(r.Context(), req.Prompt)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.log().Info().Int("bytes", len(stored.Prompt)).Msg("grooming prompt override saved")
	a.json(w, http.StatusOK, stored)
}

func (a *App) ResetPrompt(w http.ResponseWriter, r *http.Request) {
	if err := a.Prompts.Reset(r.Context()); err != nil {
		a.fail(w, r, err)
		return
	}
	a.log().Info().Msg("grooming prompt override removed")
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) ExportPrompt(w http.ResponseWriter, r *http.Request) {
	doc := a.Prompts.Export(r.Context())
	name := fmt.Sprintf("barber-prompt-%s.json", time.Now().UTC().Format("2006-01-02"))
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	a.json(w, http.StatusOK, doc)
}

// ImportPrompt accepts a previously exported document as the raw body.
func (a *App) ImportPrompt(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, jsoncfg.MaxPromptLength*2))
	if err != nil {
		a.error(w, http.StatusRequestEntityTooLarge, "too_large", "prompt file too large")
		return
	}
	doc, err := a.Prompts.Import(r.Context(), raw)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, doc)
}
