package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// GetCatalog returns the garments, stickers and canvas geometry. Image refs are
// served under /assets.
func (a *App) GetCatalog(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "public, max-age=300")
	a.json(w, http.StatusOK, a.Catalog)
}

// backupIndex is implemented by uploaders that can tell whether an id exists.
type backupIndex interface {
	Exists(id string) bool
}

// Share returns the link set behind a share QR code.
func (a *App) Share(w http.ResponseWriter, r *http.Request) {
	if a.Backup == nil {
		a.error(w, http.StatusNotFound, "not_found", "sharing is disabled")
		return
	}
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" || strings.ContainsAny(id, "/\\?#") {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid share id")
		return
	}
	if idx, ok := a.Backup.(backupIndex); ok && !idx.Exists(id) {
		a.error(w, http.StatusNotFound, "not_found", "share link not found")
		return
	}
	a.json(w, http.StatusOK, a.Backup.Links(id))
}
