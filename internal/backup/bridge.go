package backup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"vtokiosk/internal/imaging"
	"vtokiosk/internal/infra"
)

// Response size limits for the bridge reply and for fetched remote results.
const (
	maxBridgeReply  = 1 << 20
	maxRemoteResult = 32 << 20
)

// errTooLarge is returned when a response exceeds its limit.
var errTooLarge = errors.New("response too large")

// readLimited reads at most limit bytes from r and fails when more remain.
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: over %d bytes", errTooLarge, limit)
	}
	return data, nil
}

// URLLookup resolves the bridge URL at call time.
type URLLookup func(ctx context.Context) string

type BridgeOptions struct {
	URL        string
	URLLookup  URLLookup
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// BridgeUploader posts compressed images to the Apps Script bridge, which
// stores them in Drive.
type BridgeUploader struct {
	url        string
	lookup     URLLookup
	timeout    time.Duration
	httpClient *http.Client
	logger     *infra.Logger
}

func NewBridgeUploader(opts BridgeOptions) *BridgeUploader {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	logger := opts.Logger
	if logger == nil {
		logger = infra.NopLogger()
	}
	return &BridgeUploader{
		url:        strings.TrimSpace(opts.URL),
		lookup:     opts.URLLookup,
		timeout:    opts.Timeout,
		httpClient: client,
		logger:     logger,
	}
}

type uploadRequest struct {
	Action   string `json:"action"`
	Base64   string `json:"base64"`
	Filename string `json:"filename"`
}

type uploadResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id"`
	URL     string `json:"url"`
	Error   string `json:"error"`
}

func (b *BridgeUploader) endpoint(ctx context.Context) string {
	if b.url != "" || b.lookup == nil {
		return b.url
	}
	return strings.TrimSpace(b.lookup(ctx))
}

// Upload returns nil when no bridge is configured or anything goes wrong.
func (b *BridgeUploader) Upload(ctx context.Context, src, filename string) *Upload {
	endpoint := b.endpoint(ctx)
	if endpoint == "" {
		return nil
	}
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}
	up, err := b.upload(ctx, endpoint, src, jpegName(filename))
	if err != nil {
		b.logger.Warn().Err(err).Str("filename", filename).Msg("backup upload failed")
		return nil
	}
	b.logger.Info().Str("id", up.ID).Msg("backup uploaded")
	return up
}

func (b *BridgeUploader) upload(ctx context.Context, endpoint, src, filename string) (*Upload, error) {
	if !imaging.IsDataURI(src) {
		fetched, err := b.fetch(ctx, src)
		if err != nil {
			return nil, err
		}
		src = fetched
	}
	compressed, err := imaging.Compress(src, MaxWidth, Quality)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(uploadRequest{Action: "upload", Base64: compressed, Filename: filename})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "text/plain;charset=utf-8")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	raw, err := readLimited(resp.Body, maxBridgeReply)
	if err != nil {
		return nil, err
	}
	var out uploadResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("bridge status %d: non-JSON response", resp.StatusCode)
	}
	if !out.Success || out.ID == "" {
		if out.Error != "" {
			return nil, fmt.Errorf("bridge: %s", out.Error)
		}
		return nil, fmt.Errorf("bridge status %d: upload rejected", resp.StatusCode)
	}
	return &Upload{ID: out.ID, URL: out.URL}, nil
}

// fetch downloads a remote result so it can be recompressed like an inline one.
func (b *BridgeUploader) fetch(ctx context.Context, src string) (string, error) {
	if !strings.HasPrefix(src, "http://") && !strings.HasPrefix(src, "https://") {
		return "", imaging.ErrInvalidDataURI
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return "", err
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("fetch result: status %d", resp.StatusCode)
	}
	data, err := readLimited(resp.Body, maxRemoteResult)
	if err != nil {
		return "", err
	}
	mime := resp.Header.Get("Content-Type")
	if mime == "" {
		mime = http.DetectContentType(data)
	}
	return imaging.FormatDataURI(mime, data), nil
}

func (b *BridgeUploader) Links(id string) Links {
	return DriveLinks(id)
}
