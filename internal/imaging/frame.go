package imaging

import (
	"image"
)

// ApplyFrame composes result under frame. The output takes the frame's size.
// A content scale of 1 or more stretches result over the whole frame; smaller
// factors shrink result by that factor and center it.
func ApplyFrame(result, frame image.Image, contentScale float64) *image.RGBA {
	fb := frame.Bounds()
	dst := NewCanvas(fb.Dx(), fb.Dy())

	target := dst.Bounds()
	if contentScale > 0 && contentScale < 1 {
		w := float64(fb.Dx()) * contentScale
		h := float64(fb.Dy()) * contentScale
		target = CenteredRect(float64(fb.Dx())/2, float64(fb.Dy())/2, w, h)
	}
	DrawScaled(dst, target, result)
	DrawScaled(dst, dst.Bounds(), frame)
	return dst
}

// FrameDataURI applies the frame to a result data URI and returns a PNG data URI.
func FrameDataURI(result string, frame image.Image, contentScale float64) (string, error) {
	img, err := Decode(result)
	if err != nil {
		return "", err
	}
	return PNGDataURI(ApplyFrame(img, frame, contentScale))
}
