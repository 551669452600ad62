// Package design implements the sticker composition surface: a fixed canvas
// with a locked garment background and movable, fixed-size stickers.
package design

import (
	"fmt"
	"image"
	"math"

	"vtokiosk/internal/catalog"
	"vtokiosk/internal/domain"
)

// DocumentVersion tags serialized design documents.
const DocumentVersion = "1"

// Element is a placed sticker. Position is the sticker center in canvas
// coordinates; size is fixed at placement.
type Element struct {
	ID      string  `json:"id"`
	Sticker string  `json:"sticker"`
	Image   string  `json:"image"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Width   float64 `json:"width"`
	Height  float64 `json:"height"`
}

// Document is the portable form of a design: every non-background element in
// stacking order, bottom first.
type Document struct {
	Version string    `json:"version"`
	Objects []Element `json:"objects"`
}

// Empty reports whether the document has no elements.
func (d *Document) Empty() bool {
	return d == nil || len(d.Objects) == 0
}

// Layout holds the canvas geometry.
type Layout struct {
	Width               int
	Height              int
	GarmentWidth        float64
	StickerPxPerCM      float64
	StickerDefaultWidth float64
	SnapRange           float64
}

// LayoutFromCatalog derives the canvas geometry from the catalog.
func LayoutFromCatalog(c *catalog.Catalog) Layout {
	return Layout{
		Width:               c.Canvas.Width,
		Height:              c.Canvas.Height,
		GarmentWidth:        c.GarmentWidthPx(),
		StickerPxPerCM:      c.Canvas.StickerPxPerCM,
		StickerDefaultWidth: c.Canvas.StickerDefaultWidth,
		SnapRange:           c.Canvas.SnapRange,
	}
}

func (l Layout) center() (float64, float64) {
	return float64(l.Width) / 2, float64(l.Height) / 2
}

// Guides reports which center guides are active after a move.
type Guides struct {
	Vertical   bool `json:"vertical"`
	Horizontal bool `json:"horizontal"`
}

// Surface is the live design canvas for one session. It is not safe for
// concurrent use.
type Surface struct {
	layout   Layout
	garment  string
	elements []Element
	nextID   int
}

// NewSurface opens a surface on the garment image ref, restoring the elements
// of doc when it is non-nil.
func NewSurface(layout Layout, garment string, doc *Document) *Surface {
	s := &Surface{layout: layout, garment: garment}
	if doc != nil {
		for _, el := range doc.Objects {
			s.elements = append(s.elements, el)
			var n int
			if _, err := fmt.Sscanf(el.ID, "el-%d", &n); err == nil && n > s.nextID {
				s.nextID = n
			}
		}
	}
	return s
}

func (s *Surface) Garment() string {
	return s.garment
}

func (s *Surface) Layout() Layout {
	return s.layout
}

// Place adds a sticker at the canvas center. Stickers with physical
// dimensions are sized from them; others are scaled to the default width
// keeping the intrinsic aspect ratio.
func (s *Surface) Place(st catalog.Sticker, intrinsic image.Rectangle) (Element, error) {
	var w, h float64
	switch {
	case st.HasDimensions():
		w = st.WidthCM * s.layout.StickerPxPerCM
		h = st.HeightCM * s.layout.StickerPxPerCM
	case intrinsic.Dx() > 0 && intrinsic.Dy() > 0:
		w = s.layout.StickerDefaultWidth
		h = w * float64(intrinsic.Dy()) / float64(intrinsic.Dx())
	default:
		return Element{}, fmt.Errorf("%w: sticker %q has no size", domain.ErrInvalidInput, st.ID)
	}

	s.nextID++
	cx, cy := s.layout.center()
	el := Element{
		ID:      fmt.Sprintf("el-%d", s.nextID),
		Sticker: st.ID,
		Image:   st.Image,
		X:       cx,
		Y:       cy,
		Width:   w,
		Height:  h,
	}
	s.elements = append(s.elements, el)
	return el, nil
}

// Move repositions an element, snapping each axis to the canvas center when
// within the snap range.
func (s *Surface) Move(id string, x, y float64) (Element, Guides, error) {
	i := s.index(id)
	if i < 0 {
		return Element{}, Guides{}, fmt.Errorf("%w: element %q", domain.ErrNotFound, id)
	}
	cx, cy := s.layout.center()
	var g Guides
	if math.Abs(x-cx) < s.layout.SnapRange {
		x = cx
		g.Vertical = true
	}
	if math.Abs(y-cy) < s.layout.SnapRange {
		y = cy
		g.Horizontal = true
	}
	s.elements[i].X = x
	s.elements[i].Y = y
	return s.elements[i], g, nil
}

// Delete removes one element.
func (s *Surface) Delete(id string) error {
	i := s.index(id)
	if i < 0 {
		return fmt.Errorf("%w: element %q", domain.ErrNotFound, id)
	}
	s.elements = append(s.elements[:i], s.elements[i+1:]...)
	return nil
}

// Clear removes every sticker; the garment background stays.
func (s *Surface) Clear() {
	s.elements = nil
}

// Elements returns a copy of the placed elements.
func (s *Surface) Elements() []Element {
	out := make([]Element, len(s.elements))
	copy(out, s.elements)
	return out
}

// Document serializes the non-background elements.
func (s *Surface) Document() *Document {
	return &Document{Version: DocumentVersion, Objects: s.Elements()}
}

func (s *Surface) index(id string) int {
	for i, el := range s.elements {
		if el.ID == id {
			return i
		}
	}
	return -1
}
