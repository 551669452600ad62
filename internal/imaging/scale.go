package imaging

import (
	"image"
	"math"

	"golang.org/x/image/draw"
)

// NewCanvas returns a transparent RGBA canvas of the given size.
func NewCanvas(w, h int) *image.RGBA {
	return image.NewRGBA(image.Rect(0, 0, w, h))
}

// DrawScaled composites src over dst, scaled into r.
func DrawScaled(dst draw.Image, r image.Rectangle, src image.Image) {
	if r.Empty() {
		return
	}
	draw.CatmullRom.Scale(dst, r, src, src.Bounds(), draw.Over, nil)
}

// DrawScaledRegion composites the sr region of src over dst, scaled into r.
func DrawScaledRegion(dst draw.Image, r image.Rectangle, src image.Image, sr image.Rectangle) {
	if r.Empty() || sr.Empty() {
		return
	}
	draw.CatmullRom.Scale(dst, r, src, sr, draw.Over, nil)
}

// CenteredRect returns a w x h rectangle centered on (cx, cy), rounding to
// whole pixels.
func CenteredRect(cx, cy, w, h float64) image.Rectangle {
	x0 := int(math.Round(cx - w/2))
	y0 := int(math.Round(cy - h/2))
	return image.Rect(x0, y0, x0+int(math.Round(w)), y0+int(math.Round(h)))
}

// FitWidth returns the size of src scaled to width w, keeping aspect.
func FitWidth(src image.Rectangle, w float64) (float64, float64) {
	if src.Dx() == 0 {
		return 0, 0
	}
	return w, w * float64(src.Dy()) / float64(src.Dx())
}

// Bound returns (w, h) scaled down so neither side exceeds max.
func Bound(w, h, max float64) (float64, float64) {
	if max <= 0 {
		return w, h
	}
	if w > h {
		if w > max {
			h *= max / w
			w = max
		}
		return w, h
	}
	if h > max {
		w *= max / h
		h = max
	}
	return w, h
}
