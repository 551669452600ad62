package store

import (
	"fmt"
	"time"

	"vtokiosk/internal/imaging"
	"vtokiosk/pkg/zip"
)

// ExportAssets converts history entries into archive members named
// vto-result-<id>. Entries whose image is not a data URI are returned in
// skipped.
func ExportAssets(entries []Entry) (assets []zip.Asset, skipped []int64) {
	assets = make([]zip.Asset, 0, len(entries))
	for _, e := range entries {
		uri, err := imaging.ParseDataURI(e.Image)
		if err != nil {
			skipped = append(skipped, e.ID)
			continue
		}
		assets = append(assets, zip.Asset{
			Filename: fmt.Sprintf("vto-result-%d%s", e.ID, zip.Extension(uri.MIME)),
			MIME:     uri.MIME,
			Data:     uri.Data,
			Modified: time.UnixMilli(e.ID).UTC(),
		})
	}
	return assets, skipped
}

// ExportName is the archive filename for an export taken at t.
func ExportName(t time.Time) string {
	return fmt.Sprintf("kiosk-history-%s.zip", t.UTC().Format("20060102-150405"))
}
