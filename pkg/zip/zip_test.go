package zip

import (
	"archive/zip"
	"bytes"
	"io"
	"testing"
	"time"
)

func TestArchiveAssets(t *testing.T) {
	when := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	raw := ArchiveAssets([]Asset{
		{Filename: "a.png", MIME: "image/png", Data: []byte("png-bytes"), Modified: when},
		{Filename: "b.jpg", MIME: "image/jpeg", Data: []byte("jpeg-bytes")},
	})
	if raw == nil {
		t.Fatal("ArchiveAssets returned nil")
	}
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	if len(zr.File) != 2 {
		t.Fatalf("files = %d, want 2", len(zr.File))
	}
	f, err := zr.File[0].Open()
	if err != nil {
		t.Fatalf("open a.png: %v", err)
	}
	defer f.Close()
	body, _ := io.ReadAll(f)
	if string(body) != "png-bytes" || zr.File[0].Name != "a.png" {
		t.Fatalf("unexpected first entry %q %q", zr.File[0].Name, body)
	}
	if !zr.File[0].Modified.Equal(when) {
		t.Fatalf("modified = %s, want %s", zr.File[0].Modified, when)
	}
}

func TestExtension(t *testing.T) {
	cases := map[string]string{
		"image/png":                ".png",
		"image/jpeg":               ".jpg",
		"application/x-unknown-xx": ".bin",
	}
	for in, want := range cases {
		if got := Extension(in); got != want {
			t.Errorf("Extension(%q) = %q, want %q", in, got, want)
		}
	}
}
