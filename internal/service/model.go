package service

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/timmy/annotate/internal/domain"
	"github.com/timmy/annotate/internal/logger"
	_ "golang.org/x/image/webp"
)

const (
	defaultModelTimeout = 30 * time.Minute
	generatePath        = "/api/generate"
)

var (
	// ErrModelUnavailable marks failures of the model endpoint itself. The run
	// cannot continue until the operator fixes the endpoint.
	ErrModelUnavailable = errors.New("model endpoint unavailable")

	// ErrImageFetch marks failures to download the image handed to the model.
	ErrImageFetch = errors.New("image fetch failed")
)

// ModelClient generates annotations with an Ollama-compatible vision model.
type ModelClient struct {
	client   *resty.Client
	model    string
	endpoint string

	// The last fetched image is kept so every kind of one item shares a
	// single download.
	mu        sync.Mutex
	lastURL   string
	lastImage []byte
}

// ModelConfig holds configuration for the model client.
type ModelConfig struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

// NewModelClient creates a model client.
// TLS verification is disabled: the endpoint and the asset host are local
// services that commonly run with self-signed certificates.
// Parameters:
//   - cfg: model base URL, model name and request ceiling.
//
// Returns:
//   - *ModelClient: initialized client.
func NewModelClient(cfg *ModelConfig) *ModelClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultModelTimeout
	}

	client := resty.New()
	client.SetTimeout(timeout)
	client.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	client.SetHeader("Accept", "application/json")

	return &ModelClient{
		client:   client,
		model:    cfg.Model,
		endpoint: generateEndpoint(cfg.BaseURL),
	}
}

// Endpoint returns the URL generate requests are posted to.
func (c *ModelClient) Endpoint() string {
	return c.endpoint
}

// Model returns the model name being used.
func (c *ModelClient) Model() string {
	return c.model
}

func generateEndpoint(baseURL string) string {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	// OLLAMA_HOST is often written as host:port
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}
	baseURL = strings.TrimSuffix(baseURL, "/")
	if strings.HasSuffix(baseURL, generatePath) {
		return baseURL
	}
	return baseURL + generatePath
}

type generateRequest struct {
	Model  string   `json:"model"`
	Prompt string   `json:"prompt"`
	Images []string `json:"images"`
	Stream bool     `json:"stream"`
}

type generateResponse struct {
	Response *string `json:"response"`
	Error    string  `json:"error,omitempty"`
}

// Describe runs prompt against the image at imageURL.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - imageURL: fetchable URL of the image bytes.
//   - prompt: prompt for one annotation kind.
//
// Returns:
//   - string: trimmed model response; empty for a disabled prompt or an empty answer.
//   - error: wraps ErrModelUnavailable or ErrImageFetch; both end the run.
func (c *ModelClient) Describe(ctx context.Context, imageURL string, prompt domain.Prompt) (string, error) {
	if !prompt.Enabled() {
		return "", nil
	}

	imageData, err := c.loadImage(ctx, imageURL)
	if err != nil {
		return "", err
	}

	req := generateRequest{
		Model:  c.model,
		Prompt: prompt.Text(),
		Images: []string{base64.StdEncoding.EncodeToString(imageData)},
		Stream: false,
	}

	start := time.Now()
	httpResp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(req).
		Post(c.endpoint)
	if err != nil {
		return "", fmt.Errorf("%w: request to %s failed: %w", ErrModelUnavailable, c.endpoint, err)
	}

	body := httpResp.Body()
	var resp generateResponse
	decodeErr := json.Unmarshal(body, &resp)

	if !httpResp.IsSuccess() {
		msg := strings.TrimSpace(string(body))
		if decodeErr == nil && resp.Error != "" {
			msg = resp.Error
		}
		return "", fmt.Errorf("%w: HTTP %d: %s", ErrModelUnavailable, httpResp.StatusCode(), msg)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return "", fmt.Errorf("%w: empty response body (status: %d)", ErrModelUnavailable, httpResp.StatusCode())
	}
	if decodeErr != nil {
		return "", fmt.Errorf("%w: undecodable response body: %w", ErrModelUnavailable, decodeErr)
	}
	if resp.Response == nil {
		msg := "no response field in body"
		if resp.Error != "" {
			msg += ": " + resp.Error
		}
		return "", fmt.Errorf("%w: %s", ErrModelUnavailable, msg)
	}

	logger.With(logger.Fields{
		logger.FieldDurationMs: time.Since(start).Milliseconds(),
	}).Debug(ctx, "Model responded (%d chars)", len(*resp.Response))

	return strings.TrimSpace(*resp.Response), nil
}

// loadImage returns the bytes at imageURL, reusing the previous download when the
// URL is unchanged.
func (c *ModelClient) loadImage(ctx context.Context, imageURL string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastImage != nil && c.lastURL == imageURL {
		return c.lastImage, nil
	}

	data, err := c.fetchImage(ctx, imageURL)
	if err != nil {
		return nil, err
	}
	c.lastURL, c.lastImage = imageURL, data
	return data, nil
}

func (c *ModelClient) fetchImage(ctx context.Context, imageURL string) ([]byte, error) {
	httpResp, err := c.client.R().SetContext(ctx).Get(imageURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrImageFetch, imageURL, err)
	}
	if !httpResp.IsSuccess() {
		return nil, fmt.Errorf("%w: %s: HTTP %d", ErrImageFetch, imageURL, httpResp.StatusCode())
	}

	data := httpResp.Body()
	fields := logger.Fields{logger.FieldSize: len(data)}
	if cfg, format, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		fields["width"] = cfg.Width
		fields["height"] = cfg.Height
		fields["format"] = format
	}
	logger.With(fields).Debug(ctx, "Fetched image %s", imageURL)

	return data, nil
}
