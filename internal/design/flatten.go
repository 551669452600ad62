package design

import (
	"fmt"
	"image"

	"vtokiosk/internal/imaging"
)

// ImageSource resolves asset refs to decoded images.
type ImageSource interface {
	Image(ref string) (image.Image, error)
}

// Flatten renders the full canvas at the given multiplier: the base garment
// scaled to the garment width and centered, then each element centered on its
// position at its fixed size. Positions are canvas coordinates, so the same
// document lands on the same canvas spots whatever base is used.
func Flatten(layout Layout, doc *Document, base image.Image, src ImageSource, multiplier int) (*image.RGBA, error) {
	if multiplier <= 0 {
		multiplier = 1
	}
	m := float64(multiplier)
	dst := imaging.NewCanvas(layout.Width*multiplier, layout.Height*multiplier)

	cx, cy := layout.center()
	bw, bh := imaging.FitWidth(base.Bounds(), layout.GarmentWidth)
	imaging.DrawScaled(dst, imaging.CenteredRect(cx*m, cy*m, bw*m, bh*m), base)

	if doc == nil {
		return dst, nil
	}
	for _, el := range doc.Objects {
		img, err := src.Image(el.Image)
		if err != nil {
			return nil, fmt.Errorf("design: sticker %s: %w", el.ID, err)
		}
		imaging.DrawScaled(dst, imaging.CenteredRect(el.X*m, el.Y*m, el.Width*m, el.Height*m), img)
	}
	return dst, nil
}

// Render flattens doc onto the base garment ref and returns a PNG data URI.
func Render(layout Layout, doc *Document, baseRef string, src ImageSource, multiplier int) (string, error) {
	base, err := src.Image(baseRef)
	if err != nil {
		return "", fmt.Errorf("design: base %s: %w", baseRef, err)
	}
	img, err := Flatten(layout, doc, base, src, multiplier)
	if err != nil {
		return "", err
	}
	return imaging.PNGDataURI(img)
}
