package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"vtokiosk/internal/design"
)

type placeStickerRequest struct {
	Sticker string `json:"sticker"`
}

func (a *App) PlaceSticker(w http.ResponseWriter, r *http.Request) {
	var req placeStickerRequest
	if !a.decode(w, r, &req) {
		return
	}
	el, err := a.Wizard.PlaceSticker(chi.URLParam(r, "id"), req.Sticker)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusCreated, el)
}

type moveStickerRequest struct {
	X *float64 `json:"x"`
	Y *float64 `json:"y"`
}

type moveStickerResponse struct {
	Element design.Element `json:"element"`
	Guides  design.Guides  `json:"guides"`
}

func (a *App) MoveSticker(w http.ResponseWriter, r *http.Request) {
	var req moveStickerRequest
	if !a.decode(w, r, &req) {
		return
	}
	if req.X == nil || req.Y == nil {
		a.error(w, http.StatusBadRequest, "bad_request", "x and y are required")
		return
	}
	el, guides, err := a.Wizard.MoveSticker(chi.URLParam(r, "id"), chi.URLParam(r, "element"), *req.X, *req.Y)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, moveStickerResponse{Element: el, Guides: guides})
}

func (a *App) DeleteSticker(w http.ResponseWriter, r *http.Request) {
	snap, err := a.Wizard.DeleteSticker(chi.URLParam(r, "id"), chi.URLParam(r, "element"))
	a.reply(w, r, snap, err)
}

func (a *App) ClearDesign(w http.ResponseWriter, r *http.Request) {
	snap, err := a.Wizard.ClearDesign(chi.URLParam(r, "id"))
	a.reply(w, r, snap, err)
}
