package imaging

import (
	"fmt"
	"math"
)

// Compress decodes a data URI, scales it down to maxWidth (keeping aspect,
// never upscaling) and re-encodes it as JPEG at the given quality.
func Compress(dataURI string, maxWidth, quality int) (string, error) {
	src, err := Decode(dataURI)
	if err != nil {
		return "", err
	}
	b := src.Bounds()
	w, h := float64(b.Dx()), float64(b.Dy())
	if maxWidth > 0 && w > float64(maxWidth) {
		h = float64(maxWidth) / w * h
		w = float64(maxWidth)
	}
	dst := NewCanvas(int(math.Round(w)), int(math.Round(h)))
	DrawScaled(dst, dst.Bounds(), src)
	out, err := JPEGDataURI(dst, quality)
	if err != nil {
		return "", fmt.Errorf("imaging: compress: %w", err)
	}
	return out, nil
}
