// Package backup uploads result images for sharing. Every failure is
// reported as a nil upload; callers treat that as "no share link".
package backup

import (
	"context"
	"net/url"
	"strconv"
	"strings"
)

// Compression applied before upload.
const (
	MaxWidth = 1280
	Quality  = 70
)

// Upload is a stored result image.
type Upload struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Links are the public URLs for one uploaded image.
type Links struct {
	ID       string `json:"id"`
	View     string `json:"view_url"`
	Image    string `json:"image_url"`
	Download string `json:"download_url"`
	QR       string `json:"qr_url"`
}

// Uploader stores a result image and describes how to reach it again.
type Uploader interface {
	Upload(ctx context.Context, dataURI, filename string) *Upload
	Links(id string) Links
}

// QRSize is the edge length of share QR codes in pixels.
const QRSize = 250

// QRImageURL renders data as a QR code through the public QR endpoint.
func QRImageURL(data string, size int) string {
	if size <= 0 {
		size = QRSize
	}
	return "https://api.qrserver.com/v1/create-qr-code/?size=" + strconv.Itoa(size) + "x" + strconv.Itoa(size) +
		"&data=" + url.QueryEscape(data)
}

// DriveLinks builds the Drive viewer, image and download URLs for id.
func DriveLinks(id string) Links {
	id = url.PathEscape(strings.TrimSpace(id))
	view := "https://drive.google.com/file/d/" + id + "/view"
	return Links{
		ID:       id,
		View:     view,
		Image:    "https://lh3.googleusercontent.com/d/" + id,
		Download: "https://drive.google.com/uc?export=download&id=" + id,
		QR:       QRImageURL(view, QRSize),
	}
}

// jpegName swaps a .png suffix for .jpg since uploads are recompressed.
func jpegName(filename string) string {
	filename = strings.TrimSpace(filename)
	if filename == "" {
		return "vto-result.jpg"
	}
	return strings.Replace(filename, ".png", ".jpg", 1)
}
