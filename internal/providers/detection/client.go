package detection

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"signscribe/internal/domain"
)

const (
	DefaultBaseURL = "http://127.0.0.1:8000"
	DefaultTimeout = 60 * time.Second

	maxResponseBytes = 8 << 20
	networkErrorText = "network error"
)

// Config controls the detection service client.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client implements ports.DetectionClient over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(cfg Config) *Client {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		http:    httpClient,
	}
}

// Detect posts one clip to /detect.
func (c *Client) Detect(ctx context.Context, blob domain.Blob, size domain.ModelSize) (domain.DetectionResult, error) {
	body, contentType, err := encodeFiles("file", []domain.Blob{blob}, func(int) string {
		return "video"
	})
	if err != nil {
		return domain.DetectionResult{}, err
	}

	status, payload, err := c.do(ctx, http.MethodPost, "/detect", modelQuery(size), body, contentType)
	if err != nil {
		return domain.DetectionResult{}, err
	}
	if !isSuccess(status) {
		return domain.DetectionResult{}, httpFailure(status, payload)
	}

	var wire wireResult
	if err := json.Unmarshal(payload, &wire); err != nil {
		return domain.DetectionResult{}, parseFailure("invalid detection response", err)
	}
	result, detErr := wire.toResult(status)
	if detErr != nil {
		return domain.DetectionResult{}, detErr
	}
	return result, nil
}

// DetectBatch posts several clips to /detect-batch. Per-item failures are
// reported in the items, not as an error.
func (c *Client) DetectBatch(ctx context.Context, blobs []domain.Blob, size domain.ModelSize) (domain.BatchResult, error) {
	if len(blobs) == 0 {
		return domain.BatchResult{}, errors.New("batch is empty")
	}
	body, contentType, err := encodeFiles("files", blobs, func(index int) string {
		return fmt.Sprintf("video_%d", index)
	})
	if err != nil {
		return domain.BatchResult{}, err
	}

	status, payload, err := c.do(ctx, http.MethodPost, "/detect-batch", modelQuery(size), body, contentType)
	if err != nil {
		return domain.BatchResult{}, err
	}
	if !isSuccess(status) {
		return domain.BatchResult{}, httpFailure(status, payload)
	}

	var wire wireBatch
	if err := json.Unmarshal(payload, &wire); err != nil {
		return domain.BatchResult{}, parseFailure("invalid batch response", err)
	}
	return wire.toBatch(status, len(blobs)), nil
}

// Health calls GET /health.
func (c *Client) Health(ctx context.Context) (domain.ServerHealth, error) {
	var health domain.ServerHealth
	err := c.getJSON(ctx, "/health", &health)
	return health, err
}

// ModelInfo calls GET /model-info.
func (c *Client) ModelInfo(ctx context.Context) (domain.ServerModelInfo, error) {
	var wire struct {
		ModelVenvAvailable       bool   `json:"model_venv_available"`
		InferenceScriptAvailable bool   `json:"inference_script_available"`
		ModelDirectory           string `json:"model_directory"`
		Status                   string `json:"status"`
		Error                    string `json:"error"`
	}
	if err := c.getJSON(ctx, "/model-info", &wire); err != nil {
		return domain.ServerModelInfo{}, err
	}
	if wire.Error != "" {
		return domain.ServerModelInfo{}, &domain.DetectionError{Kind: domain.KindHTTPFailure, Status: http.StatusOK, Message: wire.Error}
	}
	return domain.ServerModelInfo{
		ModelVenvAvailable:       wire.ModelVenvAvailable,
		InferenceScriptAvailable: wire.InferenceScriptAvailable,
		ModelDirectory:           wire.ModelDirectory,
		Status:                   wire.Status,
	}, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	status, payload, err := c.do(ctx, http.MethodGet, path, nil, nil, "")
	if err != nil {
		return err
	}
	if !isSuccess(status) {
		return httpFailure(status, payload)
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return parseFailure("invalid response from "+path, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method string, path string, query url.Values, body io.Reader, contentType string) (int, []byte, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, &domain.DetectionError{Kind: domain.KindNetworkFailure, Message: networkErrorText, Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, nil, &domain.DetectionError{Kind: domain.KindNetworkFailure, Message: networkErrorText, Err: err}
	}
	return resp.StatusCode, payload, nil
}

func encodeFiles(field string, blobs []domain.Blob, name func(index int) string) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	for index, blob := range blobs {
		mediaType := blob.MediaType
		if mediaType == "" {
			mediaType = domain.MediaTypeWebM
		}
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, name(index)+extensionFor(mediaType)))
		header.Set("Content-Type", mediaType)

		part, err := writer.CreatePart(header)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create multipart part: %w", err)
		}
		if _, err := part.Write(blob.Data); err != nil {
			return nil, "", fmt.Errorf("failed to write multipart part: %w", err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finalize multipart body: %w", err)
	}
	return body, writer.FormDataContentType(), nil
}

func extensionFor(mediaType string) string {
	if mediaType == domain.MediaTypeWebM {
		return ".webm"
	}
	if mime := mimetype.Lookup(mediaType); mime != nil && mime.Extension() != "" {
		return mime.Extension()
	}
	return ".webm"
}

func modelQuery(size domain.ModelSize) url.Values {
	if size == "" {
		size = domain.DefaultModelSize
	}
	return url.Values{"model_size": []string{string(size)}}
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

func httpFailure(status int, payload []byte) error {
	message := errorMessage(payload)
	if message == "" {
		message = fmt.Sprintf("HTTP %d: %s", status, http.StatusText(status))
	}
	return &domain.DetectionError{Kind: domain.KindHTTPFailure, Status: status, Message: message}
}

func parseFailure(message string, err error) error {
	return &domain.DetectionError{Kind: domain.KindParseFailure, Message: message, Err: err}
}

// errorMessage extracts "detail" (a string or a validation list) or "error"
// from an error body.
func errorMessage(payload []byte) string {
	var body struct {
		Detail json.RawMessage `json:"detail"`
		Error  string          `json:"error"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return ""
	}

	if len(body.Detail) > 0 {
		var text string
		if err := json.Unmarshal(body.Detail, &text); err == nil && strings.TrimSpace(text) != "" {
			return strings.TrimSpace(text)
		}
		var items []struct {
			Msg string `json:"msg"`
		}
		if err := json.Unmarshal(body.Detail, &items); err == nil && len(items) > 0 && items[0].Msg != "" {
			return items[0].Msg
		}
	}
	return strings.TrimSpace(body.Error)
}
