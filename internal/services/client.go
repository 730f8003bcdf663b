// HTTP client for the separation backend REST API
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/desertthunder/stemx/internal/models"
	"github.com/desertthunder/stemx/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

// audioExtensions lists the upload types the backend accepts. Checked
// client-side so an unsupported file never leaves the machine.
var audioExtensions = map[string]bool{
	".mp3":  true,
	".wav":  true,
	".flac": true,
	".m4a":  true,
	".ogg":  true,
}

// Client implements [Separator] against the separation backend.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	tokens       oauth2.TokenSource
	limiter      *rate.Limiter
	chunkSize    int64
	maxFileBytes int64
}

// ClientOpts contains configuration options for creating a Client.
type ClientOpts struct {
	BaseURL      string
	HTTPClient   *http.Client
	Tokens       oauth2.TokenSource // nil for anonymous access
	ChunkSize    int64              // desired chunk size for chunked uploads
	RateLimit    float64            // chunk requests per second
	MaxFileBytes int64              // reject larger files before upload
}

// NewClient creates a new separation API client.
func NewClient(opts ClientOpts) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = "http://localhost:8080"
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 20 * 1024 * 1024
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 4.0
	}

	return &Client{
		baseURL:      strings.TrimRight(opts.BaseURL, "/"),
		httpClient:   opts.HTTPClient,
		tokens:       opts.Tokens,
		limiter:      rate.NewLimiter(rate.Limit(opts.RateLimit), 1),
		chunkSize:    opts.ChunkSize,
		maxFileBytes: opts.MaxFileBytes,
	}
}

// authorize attaches the bearer token when a token source is configured.
func (c *Client) authorize(req *http.Request) error {
	if c.tokens == nil {
		return nil
	}
	token, err := c.tokens.Token()
	if err != nil {
		return fmt.Errorf("failed to obtain token: %w", err)
	}
	token.SetAuthHeader(req)
	return nil
}

// do executes a request and returns the response body and status code.
func (c *Client) do(req *http.Request) (int, []byte, error) {
	if err := c.authorize(req); err != nil {
		return 0, nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response: %w", err)
	}

	return resp.StatusCode, body, nil
}

// postJSON executes a JSON POST and decodes a 2xx response into out.
func (c *Client) postJSON(ctx context.Context, path string, payload, out any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	status, body, err := c.do(req)
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return decodeAPIError(status, body)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// decodeAPIError maps a structured backend error body to a sentinel error.
func decodeAPIError(status int, body []byte) error {
	var ae apiError
	if err := json.Unmarshal(body, &ae); err == nil && ae.Code != "" {
		switch ae.Code {
		case "FILE_TOO_LARGE":
			return fmt.Errorf("%w: %s", shared.ErrFileTooLarge, ae.Message)
		case "DECODE_FAILED":
			return fmt.Errorf("%w: %s", shared.ErrDecodeFailed, ae.Message)
		case "DURATION_TOO_SHORT":
			return fmt.Errorf("%w: %s", shared.ErrTooShort, ae.Message)
		case "UNSUPPORTED_TYPE":
			return fmt.Errorf("%w: %s", shared.ErrUnsupportedType, ae.Message)
		case "DAILY_LIMIT_REACHED":
			return fmt.Errorf("%w: %s", shared.ErrDailyLimit, ae.Message)
		case "EXPORT_REQUIRES_SUBSCRIPTION", "WAV_REQUIRES_SUBSCRIPTION":
			return fmt.Errorf("%w: %s", shared.ErrSubscriptionRequired, ae.Message)
		}
	}
	return fmt.Errorf("%w: status %d", shared.ErrAPIRequest, status)
}

// Quota reports the remaining daily submissions for this client.
func (c *Client) Quota(ctx context.Context) (*QuotaResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/quota", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	status, body, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, decodeAPIError(status, body)
	}

	var quota QuotaResponse
	if err := json.Unmarshal(body, &quota); err != nil {
		return nil, fmt.Errorf("failed to decode quota: %w", err)
	}
	return &quota, nil
}

// validateFile applies client-side checks before any bytes are sent.
func (c *Client) validateFile(path string) (os.FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrUploadFailed, err)
	}
	if c.maxFileBytes > 0 && info.Size() > c.maxFileBytes {
		return nil, fmt.Errorf("%w: %d bytes", shared.ErrFileTooLarge, info.Size())
	}
	ext := strings.ToLower(filepath.Ext(path))
	if !audioExtensions[ext] {
		return nil, fmt.Errorf("%w: %s", shared.ErrUnsupportedType, ext)
	}
	return info, nil
}

// Upload submits an audio file in a single multipart request.
func (c *Client) Upload(ctx context.Context, kind models.JobKind, path string) (*SubmitResponse, error) {
	if _, err := c.validateFile(path); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrUploadFailed, err)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("kind", kind.String()); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrUploadFailed, err)
	}
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrUploadFailed, err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrUploadFailed, err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrUploadFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload", &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	status, body, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, decodeAPIError(status, body)
	}

	var submit SubmitResponse
	if err := json.Unmarshal(body, &submit); err != nil {
		return nil, fmt.Errorf("failed to decode upload response: %w", err)
	}
	return &submit, nil
}

// Status queries the current state of a task.
func (c *Client) Status(ctx context.Context, taskID string) (*StatusResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/tasks/"+taskID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	status, body, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", shared.ErrTaskNotFound, taskID)
	}
	if status < 200 || status >= 300 {
		return nil, decodeAPIError(status, body)
	}

	var sr StatusResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return nil, fmt.Errorf("failed to decode status: %w", err)
	}
	return &sr, nil
}

// Export requests a server-side segment export.
func (c *Client) Export(ctx context.Context, taskID string, req *ExportRequest) (*ExportResponse, error) {
	var resp ExportResponse
	if err := c.postJSON(ctx, "/export/"+taskID, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Download fetches one rendered stem in the requested format.
func (c *Client) Download(ctx context.Context, taskID, track, format string) ([]byte, error) {
	url := fmt.Sprintf("%s/download/%s/%s?format=%s", c.baseURL, taskID, track, format)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	status, body, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, decodeAPIError(status, body)
	}
	return body, nil
}
