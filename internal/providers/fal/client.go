// Package fal runs models on the fal.ai queue: submit, poll status, fetch
// the result.
package fal

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

	"vtokiosk/internal/infra"
)

// ErrMissingKey is returned when no fal key is configured.
var ErrMissingKey = errors.New("FAL_API_KEY_MISSING")

// Queue states reported by the status endpoint.
const (
	StatusInQueue    = "IN_QUEUE"
	StatusInProgress = "IN_PROGRESS"
	StatusCompleted  = "COMPLETED"
)

// APIError is a non-2xx answer from the queue.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("fal status %d", e.Status)
	}
	return fmt.Sprintf("fal status %d: %s", e.Status, e.Detail)
}

// KeyLookup resolves the key at call time when no static key is configured.
type KeyLookup func(ctx context.Context) string

type Options struct {
	Key          string
	KeyLookup    KeyLookup
	BaseURL      string
	PollInterval time.Duration
	HTTPClient   *http.Client
	Logger       *infra.Logger
}

type Client struct {
	key          string
	lookup       KeyLookup
	baseURL      string
	pollInterval time.Duration
	httpClient   *http.Client
	logger       *infra.Logger
}

func NewClient(opts Options) *Client {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		base = "https://queue.fal.run"
	}
	poll := opts.PollInterval
	if poll <= 0 {
		poll = time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = infra.NopLogger()
	}
	return &Client{
		key:          strings.TrimSpace(opts.Key),
		lookup:       opts.KeyLookup,
		baseURL:      base,
		pollInterval: poll,
		httpClient:   client,
		logger:       logger,
	}
}

func (c *Client) resolveKey(ctx context.Context) string {
	if c.key != "" {
		return c.key
	}
	if c.lookup != nil {
		return strings.TrimSpace(c.lookup(ctx))
	}
	return ""
}

// Ready returns ErrMissingKey when no key can be resolved.
func (c *Client) Ready(ctx context.Context) error {
	if c.resolveKey(ctx) == "" {
		return ErrMissingKey
	}
	return nil
}

type queueTicket struct {
	RequestID   string `json:"request_id"`
	StatusURL   string `json:"status_url"`
	ResponseURL string `json:"response_url"`
}

type LogLine struct {
	Message string `json:"message"`
}

type queueStatus struct {
	Status string    `json:"status"`
	Logs   []LogLine `json:"logs"`
}

// Subscribe submits input to app, waits for completion and decodes the
// result into out. It blocks until the job completes or ctx ends.
func (c *Client) Subscribe(ctx context.Context, app string, input any, out any) error {
	key := c.resolveKey(ctx)
	if key == "" {
		return ErrMissingKey
	}
	app = strings.Trim(app, "/")

	var ticket queueTicket
	if err := c.do(ctx, key, http.MethodPost, c.baseURL+"/"+app, input, &ticket); err != nil {
		return fmt.Errorf("fal submit: %w", err)
	}
	if ticket.RequestID == "" {
		return errors.New("fal submit: no request id")
	}
	statusURL := ticket.StatusURL
	if statusURL == "" {
		statusURL = fmt.Sprintf("%s/%s/requests/%s/status", c.baseURL, app, ticket.RequestID)
	}
	responseURL := ticket.ResponseURL
	if responseURL == "" {
		responseURL = fmt.Sprintf("%s/%s/requests/%s", c.baseURL, app, ticket.RequestID)
	}

	seen := 0
	for {
		var st queueStatus
		if err := c.do(ctx, key, http.MethodGet, statusURL+"?logs=1", nil, &st); err != nil {
			return fmt.Errorf("fal status: %w", err)
		}
		for ; seen < len(st.Logs); seen++ {
			c.logger.Debug().Str("request_id", ticket.RequestID).Msg("fal: " + st.Logs[seen].Message)
		}
		switch st.Status {
		case StatusCompleted:
			if err := c.do(ctx, key, http.MethodGet, responseURL, nil, out); err != nil {
				return fmt.Errorf("fal result: %w", err)
			}
			return nil
		case StatusInQueue, StatusInProgress:
		default:
			return fmt.Errorf("fal: unexpected status %q", st.Status)
		}

		timer := time.NewTimer(c.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (c *Client) do(ctx context.Context, key, method, endpoint string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Key "+key)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return &APIError{Status: resp.StatusCode, Detail: detail(raw)}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func detail(raw []byte) string {
	var env struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(raw, &env); err == nil && len(env.Detail) > 0 {
		var s string
		if err := json.Unmarshal(env.Detail, &s); err == nil {
			return s
		}
		return string(env.Detail)
	}
	s := strings.TrimSpace(string(raw))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
