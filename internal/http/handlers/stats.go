package handlers

import (
	"net/http"
	"strconv"
	"time"

	"vtokiosk/internal/analytics"
	"vtokiosk/internal/cost"
)

type usageResponse struct {
	Count    int                 `json:"count"`
	Estimate *cost.Estimate      `json:"estimate,omitempty"`
	Events   []analytics.Summary `json:"events,omitempty"`
}

// GetUsage reports the generation counter, its spend estimate and, when the
// event log is available, per-flow outcomes over ?hours (default 24).
func (a *App) GetUsage(w http.ResponseWriter, r *http.Request) {
	count, err := a.Usage.Get(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	resp := usageResponse{Count: count}
	if a.Cost != nil {
		est := a.Cost.Estimate(count)
		resp.Estimate = &est
	}
	if a.Recorder != nil {
		hours := 24
		if v, err := strconv.Atoi(r.URL.Query().Get("hours")); err == nil && v > 0 {
			hours = v
		}
		summary, err := a.Recorder.Summarize(r.Context(), time.Now().Add(-time.Duration(hours)*time.Hour))
		if err != nil {
			a.log().Warn().Err(err).Msg("generation summary unavailable")
		} else {
			resp.Events = summary
		}
	}
	a.json(w, http.StatusOK, resp)
}

func (a *App) ResetUsage(w http.ResponseWriter, r *http.Request) {
	if err := a.Usage.Reset(r.Context()); err != nil {
		a.fail(w, r, err)
		return
	}
	a.log().Info().Msg("usage counter reset by operator")
	w.WriteHeader(http.StatusNoContent)
}
