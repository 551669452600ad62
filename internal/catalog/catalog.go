// Package catalog describes the static kiosk assets: base garments, stickers,
// alternate bases used after attire analysis, and the result frame.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"vtokiosk/internal/domain"
)

//go:embed catalog.yaml
var defaultCatalog []byte

type Canvas struct {
	Width               int     `yaml:"width" json:"width"`
	Height              int     `yaml:"height" json:"height"`
	GarmentWidthCM      float64 `yaml:"garment_width_cm" json:"garment_width_cm"`
	GarmentPxPerCM      float64 `yaml:"garment_px_per_cm" json:"garment_px_per_cm"`
	StickerPxPerCM      float64 `yaml:"sticker_px_per_cm" json:"sticker_px_per_cm"`
	StickerDefaultWidth float64 `yaml:"sticker_default_width" json:"sticker_default_width"`
	SnapRange           float64 `yaml:"snap_range" json:"snap_range"`
	ExportMultiplier    int     `yaml:"export_multiplier" json:"export_multiplier"`
}

type Garment struct {
	ID    string `yaml:"id" json:"id"`
	Name  string `yaml:"name" json:"name"`
	Image string `yaml:"image" json:"image"`
}

type Sticker struct {
	ID       string  `yaml:"id" json:"id"`
	Image    string  `yaml:"image" json:"image"`
	WidthCM  float64 `yaml:"width_cm,omitempty" json:"width_cm,omitempty"`
	HeightCM float64 `yaml:"height_cm,omitempty" json:"height_cm,omitempty"`
}

// HasDimensions reports whether the sticker has a fixed physical size.
func (s Sticker) HasDimensions() bool {
	return s.WidthCM > 0 && s.HeightCM > 0
}

type Alternates struct {
	LongSleeve string `yaml:"long_sleeve" json:"long_sleeve"`
	Standard   string `yaml:"standard" json:"standard"`
}

type Frame struct {
	Image string `yaml:"image" json:"image"`
}

type Catalog struct {
	Canvas     Canvas     `yaml:"canvas" json:"canvas"`
	Garments   []Garment  `yaml:"garments" json:"garments"`
	Stickers   []Sticker  `yaml:"stickers" json:"stickers"`
	Alternates Alternates `yaml:"alternates" json:"alternates"`
	Frame      Frame      `yaml:"frame" json:"frame"`
}

// Load reads the catalog at path, or the embedded default when path is empty.
func Load(path string) (*Catalog, error) {
	raw := defaultCatalog
	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("catalog: read %s: %w", path, err)
		}
		raw = data
	}
	return Parse(raw)
}

// Parse decodes and validates a YAML catalog.
func Parse(raw []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("catalog: decode: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) Validate() error {
	if c.Canvas.Width <= 0 || c.Canvas.Height <= 0 {
		return errors.New("catalog: canvas size must be positive")
	}
	if c.Canvas.GarmentWidthCM <= 0 || c.Canvas.GarmentPxPerCM <= 0 {
		return errors.New("catalog: garment width must be positive")
	}
	if c.Canvas.StickerPxPerCM <= 0 || c.Canvas.StickerDefaultWidth <= 0 {
		return errors.New("catalog: sticker sizing must be positive")
	}
	if c.Canvas.ExportMultiplier <= 0 {
		c.Canvas.ExportMultiplier = 1
	}
	if len(c.Garments) == 0 {
		return errors.New("catalog: at least one garment is required")
	}
	seen := make(map[string]struct{})
	for _, g := range c.Garments {
		if g.ID == "" || g.Image == "" {
			return errors.New("catalog: garment id and image are required")
		}
		if _, ok := seen[g.ID]; ok {
			return fmt.Errorf("catalog: duplicate garment %q", g.ID)
		}
		seen[g.ID] = struct{}{}
	}
	seen = make(map[string]struct{})
	for _, s := range c.Stickers {
		if s.ID == "" || s.Image == "" {
			return errors.New("catalog: sticker id and image are required")
		}
		if _, ok := seen[s.ID]; ok {
			return fmt.Errorf("catalog: duplicate sticker %q", s.ID)
		}
		seen[s.ID] = struct{}{}
	}
	return nil
}

// DefaultGarment is the garment preselected in a new wardrobe session.
func (c *Catalog) DefaultGarment() Garment {
	return c.Garments[0]
}

func (c *Catalog) Garment(id string) (Garment, error) {
	for _, g := range c.Garments {
		if g.ID == id {
			return g, nil
		}
	}
	return Garment{}, fmt.Errorf("%w: garment %q", domain.ErrNotFound, id)
}

func (c *Catalog) Sticker(id string) (Sticker, error) {
	for _, s := range c.Stickers {
		if s.ID == id {
			return s, nil
		}
	}
	return Sticker{}, fmt.Errorf("%w: sticker %q", domain.ErrNotFound, id)
}

// GarmentWidthPx is the on-canvas width every base garment is scaled to.
func (c *Catalog) GarmentWidthPx() float64 {
	return c.Canvas.GarmentWidthCM * c.Canvas.GarmentPxPerCM
}
