// Package capture turns a raw camera frame into the still photo sent to the
// gateway, and runs the shutter countdown.
package capture

import (
	"fmt"
	"image"
	"math"

	"vtokiosk/internal/domain"
	"vtokiosk/internal/imaging"
)

const (
	DefaultMaxDim = 1024
	JPEGQuality   = 80
	defaultZoom   = 1.0
)

// Crop describes how the preview was presented: the container the video was
// shown in (object-fit: cover), the zoom factor and the output bound.
// Zoom below 1 crops tighter around the center.
type Crop struct {
	ContainerW int     `json:"container_w"`
	ContainerH int     `json:"container_h"`
	Zoom       float64 `json:"zoom"`
	MaxDim     int     `json:"max_dim"`
}

func (c Crop) normalized(frame image.Rectangle) Crop {
	if c.ContainerW <= 0 || c.ContainerH <= 0 {
		c.ContainerW, c.ContainerH = frame.Dx(), frame.Dy()
	}
	if c.Zoom <= 0 || c.Zoom > 1 {
		c.Zoom = defaultZoom
	}
	if c.MaxDim <= 0 {
		c.MaxDim = DefaultMaxDim
	}
	return c
}

// SourceRect returns the region of the frame that ends up in the still and
// the output size.
func SourceRect(frame image.Rectangle, c Crop) (image.Rectangle, int, int) {
	c = c.normalized(frame)
	vw, vh := float64(frame.Dx()), float64(frame.Dy())
	containerAR := float64(c.ContainerW) / float64(c.ContainerH)

	var sx, sy, sw, sh float64
	if containerAR > vw/vh {
		sw = vw
		sh = vw / containerAR
		sy = (vh - sh) / 2
	} else {
		sh = vh
		sw = vh * containerAR
		sx = (vw - sw) / 2
	}

	tw, th := imaging.Bound(sw, sh, float64(c.MaxDim))

	zw, zh := sw*c.Zoom, sh*c.Zoom
	zx := sx + (sw-zw)/2
	zy := sy + (sh-zh)/2

	r := image.Rect(
		frame.Min.X+int(math.Round(zx)),
		frame.Min.Y+int(math.Round(zy)),
		frame.Min.X+int(math.Round(zx+zw)),
		frame.Min.Y+int(math.Round(zy+zh)),
	).Intersect(frame)
	return r, int(math.Round(tw)), int(math.Round(th))
}

// StillImage crops and downscales frame.
func StillImage(frame image.Image, c Crop) (image.Image, error) {
	b := frame.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("%w: empty frame", domain.ErrInvalidInput)
	}
	sr, w, h := SourceRect(b, c)
	if sr.Empty() || w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: crop leaves nothing of the frame", domain.ErrInvalidInput)
	}
	dst := imaging.NewCanvas(w, h)
	imaging.DrawScaledRegion(dst, dst.Bounds(), frame, sr)
	return dst, nil
}

// Still decodes a frame data URI and returns the processed photo as a JPEG
// data URI.
func Still(frame string, c Crop) (string, error) {
	img, err := imaging.Decode(frame)
	if err != nil {
		return "", fmt.Errorf("capture: %w", err)
	}
	out, err := StillImage(img, c)
	if err != nil {
		return "", err
	}
	return imaging.JPEGDataURI(out, JPEGQuality)
}
