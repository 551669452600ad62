// Package imaging holds the raster helpers shared by the design surface, the
// capture surface, the frame overlay and backup compression.
package imaging

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"strings"

	// Registered for image.Decode of garment and sticker assets.
	_ "image/gif"

	_ "golang.org/x/image/webp"
)

// ErrInvalidDataURI is returned when a payload is neither a data URI nor bare base64.
var ErrInvalidDataURI = errors.New("imaging: invalid data uri")

// ErrTooLarge is returned for images whose header declares more than
// MaxDimension pixels on a side.
var ErrTooLarge = errors.New("imaging: image too large")

// MaxDimension bounds the width and height Decode accepts. Camera frames and
// provider results stay well below it.
const MaxDimension = 8192

const defaultMIME = "image/png"

// DataURI is a decoded data URI payload.
type DataURI struct {
	MIME string
	Data []byte
}

// String renders the payload back into data URI form.
func (d DataURI) String() string {
	return FormatDataURI(d.MIME, d.Data)
}

// IsDataURI reports whether s carries an inline data URI prefix.
func IsDataURI(s string) bool {
	return strings.HasPrefix(strings.TrimSpace(s), "data:")
}

// StripPrefix returns the base64 payload of s, dropping any data URI prefix.
func StripPrefix(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, ','); i >= 0 {
		return s[i+1:]
	}
	return s
}

// MIMEOf returns the media type named in a data URI prefix, or image/png.
func MIMEOf(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "data:") {
		return defaultMIME
	}
	head := s[len("data:"):]
	if i := strings.IndexAny(head, ";,"); i > 0 {
		return head[:i]
	}
	return defaultMIME
}

// WrapBase64 attaches a data URI prefix to a bare base64 payload.
func WrapBase64(mime, b64 string) string {
	if mime == "" {
		mime = defaultMIME
	}
	return "data:" + mime + ";base64," + b64
}

// FormatDataURI encodes raw bytes as a base64 data URI.
func FormatDataURI(mime string, data []byte) string {
	return WrapBase64(mime, base64.StdEncoding.EncodeToString(data))
}

// ParseDataURI decodes a data URI. Bare base64 is accepted and treated as PNG.
func ParseDataURI(s string) (DataURI, error) {
	payload := StripPrefix(s)
	if payload == "" {
		return DataURI{}, ErrInvalidDataURI
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return DataURI{}, fmt.Errorf("%w: %v", ErrInvalidDataURI, err)
	}
	return DataURI{MIME: MIMEOf(s), Data: data}, nil
}

// Decode decodes the image carried by a data URI. The header is checked
// against MaxDimension before any pixels are allocated.
func Decode(s string) (image.Image, error) {
	uri, err := ParseDataURI(s)
	if err != nil {
		return nil, err
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(uri.Data))
	if err != nil {
		return nil, fmt.Errorf("imaging: decode: %w", err)
	}
	if cfg.Width > MaxDimension || cfg.Height > MaxDimension {
		return nil, fmt.Errorf("%w: %dx%d", ErrTooLarge, cfg.Width, cfg.Height)
	}
	img, _, err := image.Decode(bytes.NewReader(uri.Data))
	if err != nil {
		return nil, fmt.Errorf("imaging: decode: %w", err)
	}
	return img, nil
}

// PNGDataURI encodes img as a PNG data URI.
func PNGDataURI(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("imaging: encode png: %w", err)
	}
	return FormatDataURI("image/png", buf.Bytes()), nil
}

// JPEGDataURI encodes img as a JPEG data URI at the given quality (1-100).
func JPEGDataURI(img image.Image, quality int) (string, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return "", fmt.Errorf("imaging: encode jpeg: %w", err)
	}
	return FormatDataURI("image/jpeg", buf.Bytes()), nil
}
