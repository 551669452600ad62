package handlers

import (
	"context"
	"net/http"
	"time"
)

// Health reports liveness and whether the local store answers.
func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	status, code := "ok", http.StatusOK
	storeStatus := "ok"
	if _, err := a.Usage.Get(ctx); err != nil {
		a.log().Warn().Err(err).Msg("health: store unavailable")
		status, code, storeStatus = "degraded", http.StatusServiceUnavailable, "unavailable"
	}
	a.json(w, code, map[string]any{
		"status":   status,
		"store":    storeStatus,
		"sessions": a.Wizard.Sessions(),
	})
}
