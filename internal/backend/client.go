// Package backend talks to the trash classification service: one call to
// upload a photo, one to ask what can be made from it.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"

	"github.com/kingrea/save-the-trash/internal/workflow"
)

const (
	DefaultUploadPath       = "/api/upload-file"
	DefaultAnalyzePath      = "/api/analyze"
	DefaultTimeout          = 30 * time.Second
	DefaultMaxResponseBytes = 4 << 20

	// FormField is the multipart field the service reads the image from.
	FormField = "file"

	opUpload  = "upload"
	opAnalyze = "analyze"
)

// Options configures the client.
type Options struct {
	BaseURL          string
	UploadPath       string
	AnalyzePath      string
	Timeout          time.Duration
	MaxResponseBytes int64
	UserAgent        string
	HTTPClient       *http.Client
	Logger           *zerolog.Logger
}

// Client implements workflow.Uploader and workflow.Analyzer over HTTP. It
// never retries; the user decides when to try again.
type Client struct {
	baseURL          string
	uploadPath       string
	analyzePath      string
	maxResponseBytes int64
	userAgent        string
	httpClient       *http.Client
	logger           *zerolog.Logger
}

var (
	_ workflow.Uploader = (*Client)(nil)
	_ workflow.Analyzer = (*Client)(nil)
)

// NewClient constructs a client with defaults filled in.
func NewClient(opts Options) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	u, err := url.Parse(baseURL)
	if err != nil || baseURL == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("backend: invalid base url %q", opts.BaseURL)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout, Transport: newTransport()}
	}
	maxBytes := opts.MaxResponseBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxResponseBytes
	}
	logger := opts.Logger
	if logger == nil {
		discard := zerolog.New(io.Discard)
		logger = &discard
	}
	userAgent := strings.TrimSpace(opts.UserAgent)
	if userAgent == "" {
		userAgent = "savethetrash-cli"
	}
	return &Client{
		baseURL:          baseURL,
		uploadPath:       pathOrDefault(opts.UploadPath, DefaultUploadPath),
		analyzePath:      pathOrDefault(opts.AnalyzePath, DefaultAnalyzePath),
		maxResponseBytes: maxBytes,
		userAgent:        userAgent,
		httpClient:       httpClient,
		logger:           logger,
	}, nil
}

func newTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
}

func pathOrDefault(p, fallback string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return fallback
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

// UploadImage posts the image as multipart form data.
func (c *Client) UploadImage(ctx context.Context, img workflow.LocalImage, token string) (workflow.UploadResult, error) {
	if strings.TrimSpace(token) == "" {
		return workflow.UploadResult{}, ErrMissingToken
	}
	body, contentType, err := encodeImage(img)
	if err != nil {
		return workflow.UploadResult{}, err
	}
	req, err := c.newRequest(ctx, c.uploadPath, body, token)
	if err != nil {
		return workflow.UploadResult{}, err
	}
	req.Header.Set("Content-Type", contentType)

	var res workflow.UploadResult
	if err := c.do(req, opUpload, &res); err != nil {
		return workflow.UploadResult{}, err
	}
	c.logger.Debug().
		Str("upload_id", res.ID).
		Int("bytes", img.Size()).
		Msg("backend: image uploaded")
	return res, nil
}

type analyzeRequest struct {
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data"`
}

// Analyze forwards the upload's server data and decodes the advice.
func (c *Client) Analyze(ctx context.Context, upload workflow.UploadResult, token string) (workflow.AnalysisResult, error) {
	if strings.TrimSpace(token) == "" {
		return workflow.AnalysisResult{}, ErrMissingToken
	}
	payload, err := json.Marshal(analyzeRequest{ID: upload.ID, Data: upload.Data})
	if err != nil {
		return workflow.AnalysisResult{}, fmt.Errorf("backend: encode analyze request: %w", err)
	}
	req, err := c.newRequest(ctx, c.analyzePath, bytes.NewReader(payload), token)
	if err != nil {
		return workflow.AnalysisResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	var res workflow.AnalysisResult
	if err := c.do(req, opAnalyze, &res); err != nil {
		return workflow.AnalysisResult{}, err
	}
	c.logger.Debug().
		Str("upload_id", upload.ID).
		Int("products", len(res.Products)).
		Int("locations", len(res.Locations)).
		Msg("backend: analysis received")
	return res, nil
}

func (c *Client) newRequest(ctx context.Context, path string, body io.Reader, token string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("backend: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(token))
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	return req, nil
}

func (c *Client) do(req *http.Request, op string, out any) error {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("backend: %s: %w", op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, c.maxResponseBytes+1))
	if err != nil {
		return fmt.Errorf("backend: %s: read response: %w", op, err)
	}
	c.logger.Debug().
		Str("op", op).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("backend: response")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Op: op, Code: resp.StatusCode, Body: summarize(raw)}
	}
	if int64(len(raw)) > c.maxResponseBytes {
		return &decodeError{op: op, err: fmt.Errorf("body exceeds %d bytes", c.maxResponseBytes)}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &decodeError{op: op, err: err}
	}
	return nil
}

func encodeImage(img workflow.LocalImage) (io.Reader, string, error) {
	if len(img.Data) == 0 {
		return nil, "", fmt.Errorf("backend: image has no data")
	}
	partType := strings.TrimSpace(img.ContentType)
	if partType == "" {
		partType = mimetype.Detect(img.Data).String()
	}
	name := strings.TrimSpace(img.Name)
	if name == "" {
		name = "upload" + mimetype.Detect(img.Data).Extension()
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, FormField, name))
	header.Set("Content-Type", partType)
	part, err := mw.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("backend: create form part: %w", err)
	}
	if _, err := part.Write(img.Data); err != nil {
		return nil, "", fmt.Errorf("backend: write form part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("backend: close form: %w", err)
	}
	return &buf, mw.FormDataContentType(), nil
}

// maxSummaryBytes caps how much of an error body ends up in StatusError.
const maxSummaryBytes = 200

func summarize(raw []byte) string {
	text := strings.TrimSpace(string(raw))
	var detail struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &detail); err == nil {
		if detail.Message != "" {
			text = detail.Message
		} else if detail.Error != "" {
			text = detail.Error
		}
	}
	if len(text) > maxSummaryBytes {
		cut := maxSummaryBytes
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut] + "..."
	}
	return text
}
