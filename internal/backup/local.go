package backup

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"vtokiosk/internal/imaging"
	"vtokiosk/internal/infra"
	"vtokiosk/internal/storage"
)

const localPrefix = "backups/"

// LocalUploader keeps compressed results on disk; the HTTP layer serves them
// under the storage base URL.
type LocalUploader struct {
	files   *storage.FileStore
	baseURL string
	logger  *infra.Logger
}

func NewLocalUploader(files *storage.FileStore, baseURL string, logger *infra.Logger) *LocalUploader {
	if logger == nil {
		logger = infra.NopLogger()
	}
	return &LocalUploader{files: files, baseURL: strings.TrimRight(baseURL, "/"), logger: logger}
}

func (l *LocalUploader) Upload(ctx context.Context, src, filename string) *Upload {
	if l.files == nil || !imaging.IsDataURI(src) {
		return nil
	}
	compressed, err := imaging.Compress(src, MaxWidth, Quality)
	if err != nil {
		l.logger.Warn().Err(err).Msg("backup compress failed")
		return nil
	}
	parsed, err := imaging.ParseDataURI(compressed)
	if err != nil {
		return nil
	}
	id := uuid.NewString()
	if _, err := l.files.Write(ctx, localPrefix+id+".jpg", parsed.Data); err != nil {
		l.logger.Warn().Err(err).Str("filename", jpegName(filename)).Msg("backup write failed")
		return nil
	}
	links := l.Links(id)
	return &Upload{ID: id, URL: links.View}
}

// Exists reports whether id names a stored backup.
func (l *LocalUploader) Exists(id string) bool {
	if _, err := uuid.Parse(id); err != nil {
		return false
	}
	return l.files.Exists(localPrefix + id + ".jpg")
}

func (l *LocalUploader) Links(id string) Links {
	img := l.baseURL + "/" + localPrefix + id + ".jpg"
	return Links{
		ID:       id,
		View:     img,
		Image:    img,
		Download: img,
		QR:       QRImageURL(img, QRSize),
	}
}

// Sweep deletes local backups older than retention. A zero retention keeps
// everything.
func (l *LocalUploader) Sweep(ctx context.Context, retention time.Duration, now time.Time) (int, error) {
	if retention <= 0 || l.files == nil {
		return 0, nil
	}
	return l.files.Prune(ctx, localPrefix, now.Add(-retention))
}

// RunSweeper calls Sweep every interval until ctx ends.
func (l *LocalUploader) RunSweeper(ctx context.Context, retention, interval time.Duration) {
	if retention <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		n, err := l.Sweep(ctx, retention, time.Now())
		switch {
		case err != nil && ctx.Err() == nil:
			l.logger.Warn().Err(err).Msg("backup sweep failed")
		case n > 0:
			l.logger.Info().Int("removed", n).Dur("retention", retention).Msg("expired backups removed")
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}
