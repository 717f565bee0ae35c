package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/reelforge/server/internal/shared/errors"
)

// OpenAIImageAdapter implements the Adapter interface for OpenAI DALL-E.
type OpenAIImageAdapter struct {
	cfg    *Config
	client *http.Client
	logger *zap.Logger
}

// NewOpenAIImageAdapter creates a new OpenAI image adapter.
func NewOpenAIImageAdapter(cfg *Config, logger *zap.Logger) *OpenAIImageAdapter {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &OpenAIImageAdapter{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		logger: logger.With(zap.String("provider", cfg.Name)),
	}
}

// Name returns the provider name.
func (a *OpenAIImageAdapter) Name() string {
	return a.cfg.Name
}

// Capabilities returns the supported capabilities.
func (a *OpenAIImageAdapter) Capabilities() []Capability {
	return []Capability{CapabilityImage}
}

// openAIImageRequest represents an OpenAI image generation request.
type openAIImageRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	N              int    `json:"n,omitempty"`
	Size           string `json:"size,omitempty"`
	Quality        string `json:"quality,omitempty"`
	ResponseFormat string `json:"response_format,omitempty"`
}

// openAIImageResponse represents an OpenAI image generation response.
type openAIImageResponse struct {
	Created int64 `json:"created"`
	Data    []struct {
		URL           string `json:"url,omitempty"`
		RevisedPrompt string `json:"revised_prompt,omitempty"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error,omitempty"`
}

// GenerateImage generates images using OpenAI DALL-E. Transient failures are
// retried up to the configured retry budget before the error surfaces.
func (a *OpenAIImageAdapter) GenerateImage(ctx context.Context, req *ImageRequest) (*Result, error) {
	openAIReq := &openAIImageRequest{
		Model:          req.Model,
		Prompt:         req.Prompt,
		N:              req.Count,
		Size:           req.Resolution,
		Quality:        req.Quality,
		ResponseFormat: "url",
	}
	if openAIReq.N == 0 {
		openAIReq.N = 1
	}
	if openAIReq.Size == "" {
		openAIReq.Size = "1024x1024"
	}

	body, err := json.Marshal(openAIReq)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	started := time.Now()

	var lastErr error
	attempts := a.cfg.MaxRetries + 1
	if attempts < 1 {
		attempts = 1
	}
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			a.logger.Warn("retrying image generation",
				zap.Int("attempt", attempt),
				zap.Error(lastErr))
			select {
			case <-ctx.Done():
				return nil, apperrors.Timeout(a.cfg.Name, "image generation canceled during retry")
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}

		resp, err := a.generate(ctx, body)
		if err != nil {
			lastErr = err
			continue
		}

		result := &Result{
			Provider:         a.cfg.Name,
			ModelID:          req.Model,
			AssetURL:         resp.Data[0].URL,
			ProcessingTimeMs: time.Since(started).Milliseconds(),
			Metadata:         map[string]any{"created": resp.Created},
		}
		if resp.Data[0].RevisedPrompt != "" {
			result.Metadata["revised_prompt"] = resp.Data[0].RevisedPrompt
		}
		// Every generated image was paid for. The first URL becomes the
		// primary asset; the rest travel in metadata so callers can still
		// secure them.
		if len(resp.Data) > 1 {
			extra := make([]string, 0, len(resp.Data)-1)
			for _, d := range resp.Data[1:] {
				if d.URL != "" {
					extra = append(extra, d.URL)
				}
			}
			if len(extra) > 0 {
				result.Metadata["additional_asset_urls"] = extra
			}
		}
		return result, nil
	}

	return nil, apperrors.Provider(a.cfg.Name, lastErr)
}

func (a *OpenAIImageAdapter) generate(ctx context.Context, body []byte) (*openAIImageResponse, error) {
	url := a.cfg.BaseURL + "/v1/images/generations"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var openAIResp openAIImageResponse
	if err := json.Unmarshal(respBody, &openAIResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	if openAIResp.Error != nil {
		return nil, fmt.Errorf("openai error: %s", openAIResp.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	if len(openAIResp.Data) == 0 {
		return nil, fmt.Errorf("empty response data")
	}

	return &openAIResp, nil
}

// GenerateVideo is not supported by the OpenAI image adapter.
func (a *OpenAIImageAdapter) GenerateVideo(ctx context.Context, req *VideoRequest) (*Result, error) {
	return nil, apperrors.Configuration("video generation not supported by provider " + a.cfg.Name)
}

// HealthCheck performs a health check against the models endpoint.
func (a *OpenAIImageAdapter) HealthCheck(ctx context.Context) error {
	url := a.cfg.BaseURL + "/v1/models"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed: status %d", resp.StatusCode)
	}

	return nil
}
