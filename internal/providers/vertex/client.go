// Package vertex calls Vertex AI generateContent and predict endpoints, either
// directly with a bearer token or through the Apps Script bridge.
package vertex

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"vtokiosk/internal/auth"
	"vtokiosk/internal/infra"
)

var (
	// ErrUnauthenticated means no usable access token or a 401 from Vertex.
	ErrUnauthenticated = errors.New("UNAUTHENTICATED")
	// ErrBridgeParse means the bridge answered with something that is not JSON.
	ErrBridgeParse = errors.New("BRIDGE_PARSE_FAILED")
	// ErrMissingProject means direct mode was requested without a project id.
	ErrMissingProject = errors.New("vertex: project id is required without a bridge")
)

// APIError carries the message of a Vertex error envelope. Error returns the
// message unchanged.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// Options controls how the client is configured.
type Options struct {
	Project string
	// BaseURL overrides https://{region}-aiplatform.googleapis.com.
	BaseURL    string
	BridgeURL  string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

type Client struct {
	project    string
	baseURL    string
	bridgeURL  string
	httpClient *http.Client
	logger     *infra.Logger
}

// NewClient constructs a client. A nil HTTP client gets a default with a
// generous timeout; callers bound individual calls through the context.
func NewClient(opts Options) (*Client, error) {
	bridge := strings.TrimSpace(opts.BridgeURL)
	project := strings.TrimSpace(opts.Project)
	if bridge == "" && project == "" {
		return nil, ErrMissingProject
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Minute}
	}
	logger := opts.Logger
	if logger == nil {
		logger = infra.NopLogger()
	}
	return &Client{
		project:    project,
		baseURL:    strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
		bridgeURL:  bridge,
		httpClient: client,
		logger:     logger,
	}, nil
}

// Bridged reports whether calls go through the bridge.
func (c *Client) Bridged() bool {
	return c.bridgeURL != ""
}

// Endpoint returns the direct REST URL for model:method in region.
func (c *Client) Endpoint(region, model, method string) string {
	base := c.baseURL
	if base == "" {
		base = fmt.Sprintf("https://%s-aiplatform.googleapis.com", region)
	}
	return fmt.Sprintf("%s/v1/projects/%s/locations/%s/publishers/google/models/%s:%s",
		base, url.PathEscape(c.project), url.PathEscape(region), url.PathEscape(model), method)
}

// GenerateContent calls a Gemini model. Through the bridge it is sent as the
// "gemini" action.
func (c *Client) GenerateContent(ctx context.Context, region, model string, req GenerateContentRequest) (*GenerateContentResponse, error) {
	var out GenerateContentResponse
	if err := c.call(ctx, "gemini", c.Endpoint(region, model, "generateContent"), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Predict calls a prediction model. Through the bridge it is sent as the
// "vto" action.
func (c *Client) Predict(ctx context.Context, region, model string, req PredictRequest) (*PredictResponse, error) {
	var out PredictResponse
	if err := c.call(ctx, "vto", c.Endpoint(region, model, "predict"), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type bridgeRequest struct {
	Action  string `json:"action"`
	Payload any    `json:"payload"`
}

type errorEnvelope struct {
	Error json.RawMessage `json:"error"`
}

type errorBody struct {
	Code    int    `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	Status  string `json:"status,omitempty"`
}

func (c *Client) call(ctx context.Context, action, endpoint string, payload any, out any) error {
	started := time.Now()
	var (
		body []byte
		err  error
	)
	if c.Bridged() {
		body, err = c.invokeBridge(ctx, action, payload)
	} else {
		body, err = c.invokeDirect(ctx, endpoint, payload)
	}
	log := c.logger.Debug()
	if err != nil {
		log = c.logger.Warn().Err(err)
	}
	log.Str("action", action).Bool("bridge", c.Bridged()).Dur("latency", time.Since(started)).Msg("vertex call")
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode vertex response: %w", err)
	}
	return nil
}

func (c *Client) invokeDirect(ctx context.Context, endpoint string, payload any) ([]byte, error) {
	session, _ := auth.FromContext(ctx)
	token := session.AccessToken()
	if token == "" {
		return nil, ErrUnauthenticated
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("invoke vertex: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read vertex response: %w", err)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrUnauthenticated
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, apiError(resp.StatusCode, raw)
	}
	return raw, nil
}

func (c *Client) invokeBridge(ctx context.Context, action string, payload any) ([]byte, error) {
	data, err := json.Marshal(bridgeRequest{Action: action, Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("marshal bridge request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.bridgeURL, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create bridge request: %w", err)
	}
	// A simple content type keeps the bridge free of preflight handling.
	req.Header.Set("Content-Type", "text/plain;charset=utf-8")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("invoke bridge: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read bridge response: %w", err)
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("%w: %s", ErrBridgeParse, snippet(raw))
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrUnauthenticated
	}
	if resp.StatusCode >= http.StatusBadRequest || hasError(raw) {
		return nil, apiError(resp.StatusCode, raw)
	}
	return raw, nil
}

// apiError builds an APIError from a response body, preferring the message of
// a {"error": {...}} or {"error": "..."} envelope.
func apiError(status int, raw []byte) error {
	var env errorEnvelope
	if err := json.Unmarshal(raw, &env); err == nil && len(env.Error) > 0 && string(env.Error) != "null" {
		var body errorBody
		if err := json.Unmarshal(env.Error, &body); err == nil && body.Message != "" {
			if body.Code == http.StatusUnauthorized || body.Status == "UNAUTHENTICATED" {
				return ErrUnauthenticated
			}
			return &APIError{Status: status, Message: body.Message}
		}
		var msg string
		if err := json.Unmarshal(env.Error, &msg); err == nil && msg != "" {
			return &APIError{Status: status, Message: msg}
		}
	}
	if text := strings.TrimSpace(string(raw)); text != "" {
		return &APIError{Status: status, Message: fmt.Sprintf("status %d: %s", status, snippet(raw))}
	}
	return &APIError{Status: status, Message: fmt.Sprintf("status %d", status)}
}

func hasError(raw []byte) bool {
	var env errorEnvelope
	return json.Unmarshal(raw, &env) == nil && len(env.Error) > 0 && string(env.Error) != "null"
}

func snippet(raw []byte) string {
	s := strings.TrimSpace(string(raw))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
