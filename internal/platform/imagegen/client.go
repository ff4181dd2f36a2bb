// Package imagegen is a client for OpenAI-compatible image generation APIs.
package imagegen

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/recaphq/recap-api/internal/config"
	"github.com/recaphq/recap-api/internal/generation"
	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	defaultModel     = "stabilityai/stable-diffusion-3-5-large"
	maxDownloadBytes = 20 << 20
)

// Client calls POST {api_url}/images/generations and downloads the result.
type Client struct {
	endpoint        string
	apiKey          string
	model           string
	attempts        int
	timeout         time.Duration
	downloadTimeout time.Duration
	retryBase       time.Duration
	http            *http.Client
	logger          *slog.Logger
}

var _ generation.ImageGenerator = (*Client)(nil)

// NewClient creates an image generation client. A nil httpClient gets an
// instrumented default without its own timeout; budgets come from cfg.
func NewClient(cfg config.ImageGenConfig, downloadTimeout time.Duration, httpClient *http.Client, logger *slog.Logger) (*Client, error) {
	if cfg.APIURL == "" || cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: image api url and key are required", generation.ErrInvalidConfig)
	}
	if httpClient == nil {
		httpClient = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	if logger == nil {
		logger = slog.Default()
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 3
	}
	timeout := cfg.Timeout()
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	if downloadTimeout <= 0 {
		downloadTimeout = 60 * time.Second
	}
	return &Client{
		endpoint:        strings.TrimRight(cfg.APIURL, "/") + "/images/generations",
		apiKey:          cfg.APIKey,
		model:           model,
		attempts:        attempts,
		timeout:         timeout,
		downloadTimeout: downloadTimeout,
		retryBase:       time.Second,
		http:            httpClient,
		logger:          logger.With(slog.String("component", "image_generator")),
	}, nil
}

type generationRequest struct {
	Model             string  `json:"model"`
	Prompt            string  `json:"prompt"`
	NegativePrompt    string  `json:"negative_prompt"`
	ImageSize         string  `json:"image_size"`
	BatchSize         int     `json:"batch_size"`
	Seed              uint32  `json:"seed"`
	InferenceSteps    int     `json:"num_inference_steps"`
	GuidanceScale     float64 `json:"guidance_scale"`
	PromptEnhancement bool    `json:"prompt_enhancement"`
}

type generationResponse struct {
	Images []struct {
		URL string `json:"url"`
	} `json:"images"`
}

// statusError is a non-2xx answer from the upstream.
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	if e.body == "" {
		return fmt.Sprintf("upstream returned %d", e.status)
	}
	return fmt.Sprintf("upstream returned %d: %s", e.status, e.body)
}

// seedFor derives the seed from the idempotency key so a retried request
// asks for the same picture.
func seedFor(req generation.ImageRequest) uint32 {
	return binary.BigEndian.Uint32(req.IdempotencyKey[:4]) & 0x7fffffff
}

// Generate implements generation.ImageGenerator. Network errors and non-2xx
// responses are retried with exponential backoff inside the overall timeout.
func (c *Client) Generate(ctx context.Context, req generation.ImageRequest) (string, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return "", fmt.Errorf("%w: prompt cannot be empty", generation.ErrGenerationFailed)
	}

	payload, err := json.Marshal(generationRequest{
		Model:          c.model,
		Prompt:         req.Prompt,
		NegativePrompt: req.NegativePrompt,
		ImageSize:      "1024x1024",
		BatchSize:      1,
		Seed:           seedFor(req),
		InferenceSteps: 20,
		GuidanceScale:  7.5,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode image request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var imageURL string
	attempt := 0
	err = retry.Do(ctx, c.backoff(), func(ctx context.Context) error {
		attempt++
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
		httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey.String())

		body, err := c.do(httpReq)
		if err != nil {
			c.logger.WarnContext(ctx, "image generation attempt failed",
				slog.Int("attempt", attempt),
				slog.String("idempotency_key", req.IdempotencyKey.String()),
				slog.String("error", err.Error()))
			return retry.RetryableError(err)
		}

		var resp generationResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return fmt.Errorf("%w: %v", generation.ErrInvalidResponse, err)
		}
		if len(resp.Images) == 0 || resp.Images[0].URL == "" {
			return fmt.Errorf("%w: missing image url", generation.ErrInvalidResponse)
		}
		imageURL = resp.Images[0].URL
		return nil
	})
	if err != nil {
		if errors.Is(err, generation.ErrInvalidResponse) {
			return "", err
		}
		return "", fmt.Errorf("%w: image generation failed after %d attempts: %v",
			generation.ErrGenerationFailed, attempt, err)
	}
	c.logger.InfoContext(ctx, "image generated",
		slog.Int("attempts", attempt),
		slog.String("idempotency_key", req.IdempotencyKey.String()))
	return imageURL, nil
}

// Download fetches an image, retrying like Generate under the download timeout.
func (c *Client) Download(ctx context.Context, rawURL string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.downloadTimeout)
	defer cancel()

	var data []byte
	err := retry.Do(ctx, c.backoff(), func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return err
		}
		body, err := c.do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		data = body
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	return data, nil
}

func (c *Client) backoff() retry.Backoff {
	b := retry.NewExponential(c.retryBase)
	b = retry.WithJitterPercent(10, b)
	return retry.WithMaxRetries(uint64(c.attempts-1), b)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := strings.TrimSpace(string(body))
		if len(snippet) > 256 {
			snippet = snippet[:256]
		}
		return nil, &statusError{status: resp.StatusCode, body: snippet}
	}
	return body, nil
}
