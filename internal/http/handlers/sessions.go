package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"

	"vtokiosk/internal/capture"
	"vtokiosk/internal/domain"
	"vtokiosk/internal/middleware"
	"vtokiosk/internal/sse"
	"vtokiosk/internal/wizard"
)

type startSessionRequest struct {
	Flow   string `json:"flow"`
	Locale string `json:"locale"`
}

func (a *App) StartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if !a.decode(w, r, &req) {
		return
	}
	flow, err := domain.ParseFlow(req.Flow)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	locale := req.Locale
	if locale == "" {
		locale = middleware.LocaleFromContext(r.Context())
	}
	snap, err := a.Wizard.Start(flow, locale)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusCreated, snap)
}

func (a *App) GetSession(w http.ResponseWriter, r *http.Request) {
	snap, err := a.Wizard.Get(chi.URLParam(r, "id"))
	a.reply(w, r, snap, err)
}

func (a *App) ExitSession(w http.ResponseWriter, r *http.Request) {
	if err := a.Wizard.Exit(chi.URLParam(r, "id")); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SessionEvents streams the session's events, starting with its current
// state.
func (a *App) SessionEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	snap, err := a.Wizard.Get(id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	data, err := json.Marshal(wizard.Event{Type: wizard.EventState, Session: snap.Lightweight()})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.Events.Stream(w, r, id, &sse.Message{Event: wizard.EventState, Data: data})
}

type garmentRequest struct {
	Garment string `json:"garment"`
}

func (a *App) SelectGarment(w http.ResponseWriter, r *http.Request) {
	var req garmentRequest
	if !a.decode(w, r, &req) {
		return
	}
	snap, err := a.Wizard.SelectGarment(chi.URLParam(r, "id"), req.Garment)
	a.reply(w, r, snap, err)
}

func (a *App) EnterDesign(w http.ResponseWriter, r *http.Request) {
	snap, err := a.Wizard.EnterDesign(chi.URLParam(r, "id"))
	a.reply(w, r, snap, err)
}

func (a *App) FinalizeDesign(w http.ResponseWriter, r *http.Request) {
	snap, err := a.Wizard.FinalizeDesign(chi.URLParam(r, "id"))
	a.reply(w, r, snap, err)
}

func (a *App) Back(w http.ResponseWriter, r *http.Request) {
	snap, err := a.Wizard.Back(chi.URLParam(r, "id"))
	a.reply(w, r, snap, err)
}

type countdownRequest struct {
	Seconds *int `json:"seconds"`
}

// defaultCountdown is the shutter delay when the client does not pick one.
const defaultCountdown = 3

func (a *App) StartCountdown(w http.ResponseWriter, r *http.Request) {
	var req countdownRequest
	if !a.decode(w, r, &req) {
		return
	}
	seconds := defaultCountdown
	if req.Seconds != nil {
		seconds = *req.Seconds
	}
	snap, err := a.Wizard.StartCountdown(chi.URLParam(r, "id"), seconds)
	a.reply(w, r, snap, err)
}

func (a *App) CancelCountdown(w http.ResponseWriter, r *http.Request) {
	snap, err := a.Wizard.CancelCountdown(chi.URLParam(r, "id"))
	a.reply(w, r, snap, err)
}

type captureRequest struct {
	Frame string       `json:"frame"`
	Crop  capture.Crop `json:"crop"`
}

// Capture accepts the still frame and answers 202 while the result is
// generated; progress arrives on the event stream.
func (a *App) Capture(w http.ResponseWriter, r *http.Request) {
	var req captureRequest
	if !a.decode(w, r, &req) {
		return
	}
	if req.Frame == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "frame is required")
		return
	}
	snap, err := a.Wizard.Capture(chi.URLParam(r, "id"), req.Frame, req.Crop)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusAccepted, snap)
}

func (a *App) Retry(w http.ResponseWriter, r *http.Request) {
	snap, err := a.Wizard.Retry(chi.URLParam(r, "id"))
	a.reply(w, r, snap, err)
}

func (a *App) Authorize(w http.ResponseWriter, r *http.Request) {
	snap, err := a.Wizard.Authorize(r.Context(), chi.URLParam(r, "id"))
	a.reply(w, r, snap, err)
}

func (a *App) ResetSession(w http.ResponseWriter, r *http.Request) {
	snap, err := a.Wizard.NewSession(chi.URLParam(r, "id"))
	a.reply(w, r, snap, err)
}

func (a *App) reply(w http.ResponseWriter, r *http.Request, snap wizard.Snapshot, err error) {
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, snap)
}
