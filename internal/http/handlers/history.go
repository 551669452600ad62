package handlers

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"vtokiosk/internal/store"
	"vtokiosk/pkg/zip"
)

type historyItem struct {
	ID        int64  `json:"id"`
	Timestamp string `json:"timestamp"`
	Image     string `json:"image,omitempty"`
}

// ListHistory returns the stored results, newest first. ?images=false drops
// the image payloads.
func (a *App) ListHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := a.History.All(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	withImages := true
	if v := r.URL.Query().Get("images"); v != "" {
		withImages, _ = strconv.ParseBool(v)
	}
	items := make([]historyItem, 0, len(entries))
	for _, e := range entries {
		item := historyItem{ID: e.ID, Timestamp: e.Timestamp}
		if withImages {
			item.Image = e.Image
		}
		items = append(items, item)
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

func (a *App) ClearHistory(w http.ResponseWriter, r *http.Request) {
	if err := a.History.Clear(r.Context()); err != nil {
		a.fail(w, r, err)
		return
	}
	a.log().Info().Msg("history cleared by operator")
	w.WriteHeader(http.StatusNoContent)
}

// ExportHistory downloads every stored result as a zip archive.
func (a *App) ExportHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := a.History.All(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	assets, skipped := store.ExportAssets(entries)
	if len(skipped) > 0 {
		a.log().Warn().Ints64("entries", skipped).Msg("skipping unreadable history entries")
	}
	var buf bytes.Buffer
	if err := zip.Write(&buf, assets); err != nil {
		a.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, store.ExportName(time.Now())))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
