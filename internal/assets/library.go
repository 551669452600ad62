// Package assets loads and caches the static kiosk images (garments,
// stickers, frames) referenced by the catalog.
package assets

import (
	"errors"
	"fmt"
	"image"
	"io/fs"
	"os"
	"path"
	"strings"
	"sync"

	"vtokiosk/internal/domain"
	"vtokiosk/internal/imaging"
)

// Library decodes images from a filesystem once and serves them from memory.
type Library struct {
	fsys  fs.FS
	mu    sync.RWMutex
	cache map[string]image.Image
}

// NewLibrary returns a library rooted at fsys.
func NewLibrary(fsys fs.FS) *Library {
	return &Library{fsys: fsys, cache: make(map[string]image.Image)}
}

// NewDirLibrary returns a library rooted at a directory on disk.
func NewDirLibrary(dir string) *Library {
	return NewLibrary(os.DirFS(dir))
}

// Image returns the decoded image at ref. Refs are slash separated and may
// carry a leading slash or an "assets/" prefix as the front end sends them.
func (l *Library) Image(ref string) (image.Image, error) {
	key, err := normalize(ref)
	if err != nil {
		return nil, err
	}

	l.mu.RLock()
	img, ok := l.cache[key]
	l.mu.RUnlock()
	if ok {
		return img, nil
	}

	f, err := l.fsys.Open(key)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: asset %q", domain.ErrNotFound, ref)
		}
		return nil, fmt.Errorf("assets: open %s: %w", key, err)
	}
	defer f.Close()

	img, _, err = image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("assets: decode %s: %w", key, err)
	}

	l.mu.Lock()
	l.cache[key] = img
	l.mu.Unlock()
	return img, nil
}

// DataURI returns the asset re-encoded as a PNG data URI.
func (l *Library) DataURI(ref string) (string, error) {
	img, err := l.Image(ref)
	if err != nil {
		return "", err
	}
	return imaging.PNGDataURI(img)
}

func normalize(ref string) (string, error) {
	ref = strings.TrimSpace(strings.ReplaceAll(ref, "\\", "/"))
	ref = strings.TrimLeft(ref, "/")
	ref = strings.TrimPrefix(ref, "assets/")
	if ref == "" {
		return "", fmt.Errorf("%w: empty asset ref", domain.ErrInvalidInput)
	}
	cleaned := path.Clean(ref)
	if !fs.ValidPath(cleaned) {
		return "", fmt.Errorf("%w: asset ref %q", domain.ErrInvalidInput, ref)
	}
	return cleaned, nil
}
