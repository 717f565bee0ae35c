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

const (
	defaultVideoPollInterval = 5 * time.Second
	defaultVideoPollDeadline = 5 * time.Minute
)

// RunwayVideoAdapter implements the Adapter interface for Runway's async
// video generation API. Generation is submit-then-poll: the initial request
// returns a task ID and the adapter polls until the task reaches a terminal
// state or the deadline passes.
type RunwayVideoAdapter struct {
	cfg          *Config
	client       *http.Client
	logger       *zap.Logger
	pollInterval time.Duration
	pollDeadline time.Duration
}

// NewRunwayVideoAdapter creates a new Runway video adapter.
func NewRunwayVideoAdapter(cfg *Config, logger *zap.Logger) *RunwayVideoAdapter {
	return &RunwayVideoAdapter{
		cfg:          cfg,
		client:       &http.Client{Timeout: 30 * time.Second},
		logger:       logger.With(zap.String("provider", cfg.Name)),
		pollInterval: defaultVideoPollInterval,
		pollDeadline: defaultVideoPollDeadline,
	}
}

// Name returns the provider name.
func (a *RunwayVideoAdapter) Name() string {
	return a.cfg.Name
}

// Capabilities returns the supported capabilities.
func (a *RunwayVideoAdapter) Capabilities() []Capability {
	return []Capability{CapabilityVideo}
}

// runwaySubmitRequest represents a Runway task submission.
type runwaySubmitRequest struct {
	Model       string `json:"model"`
	PromptText  string `json:"promptText"`
	PromptImage string `json:"promptImage,omitempty"`
	Duration    int    `json:"duration,omitempty"`
	Ratio       string `json:"ratio,omitempty"`
}

// runwayTaskResponse represents a Runway task status response.
type runwayTaskResponse struct {
	ID       string   `json:"id"`
	Status   string   `json:"status"`
	Progress float64  `json:"progress"`
	Output   []string `json:"output,omitempty"`
	Failure  string   `json:"failure,omitempty"`
}

// Runway task states.
const (
	runwayStatePending   = "PENDING"
	runwayStateRunning   = "RUNNING"
	runwayStateSucceeded = "SUCCEEDED"
	runwayStateFailed    = "FAILED"
)

// GenerateImage is not supported by the Runway video adapter.
func (a *RunwayVideoAdapter) GenerateImage(ctx context.Context, req *ImageRequest) (*Result, error) {
	return nil, apperrors.Configuration("image generation not supported by provider " + a.cfg.Name)
}

// GenerateVideo submits a video generation task and polls until it completes.
func (a *RunwayVideoAdapter) GenerateVideo(ctx context.Context, req *VideoRequest) (*Result, error) {
	started := time.Now()

	taskID, err := a.submit(ctx, req)
	if err != nil {
		return nil, apperrors.Provider(a.cfg.Name, err)
	}

	a.logger.Info("video task submitted",
		zap.String("task_id", taskID),
		zap.String("model", req.Model))

	deadline := time.NewTimer(a.pollDeadline)
	defer deadline.Stop()
	ticker := time.NewTicker(a.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, apperrors.Timeout(a.cfg.Name, "video generation canceled")
		case <-deadline.C:
			return nil, apperrors.Timeout(a.cfg.Name, fmt.Sprintf("video task %s did not complete within %s", taskID, a.pollDeadline))
		case <-ticker.C:
		}

		status, err := a.getTask(ctx, taskID)
		if err != nil {
			// Transient poll failures are not terminal; keep polling until
			// the deadline decides.
			a.logger.Warn("video task poll failed", zap.String("task_id", taskID), zap.Error(err))
			continue
		}

		switch status.Status {
		case runwayStateSucceeded:
			if len(status.Output) == 0 {
				return nil, apperrors.Provider(a.cfg.Name, fmt.Errorf("task %s succeeded with no output", taskID))
			}
			return &Result{
				Provider:         a.cfg.Name,
				ModelID:          req.Model,
				AssetURL:         status.Output[0],
				DurationSeconds:  req.DurationSeconds,
				ProcessingTimeMs: time.Since(started).Milliseconds(),
				Metadata:         map[string]any{"task_id": taskID},
			}, nil
		case runwayStateFailed:
			return nil, apperrors.Provider(a.cfg.Name, fmt.Errorf("video task %s failed: %s", taskID, status.Failure))
		case runwayStatePending, runwayStateRunning:
			// keep polling
		default:
			a.logger.Warn("unknown video task state",
				zap.String("task_id", taskID),
				zap.String("state", status.Status))
		}
	}
}

func (a *RunwayVideoAdapter) submit(ctx context.Context, req *VideoRequest) (string, error) {
	submitReq := &runwaySubmitRequest{
		Model:       req.Model,
		PromptText:  req.Prompt,
		PromptImage: req.KeyframeRef,
		Duration:    req.DurationSeconds,
		Ratio:       req.Resolution,
	}

	body, err := json.Marshal(submitReq)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	resp, err := a.do(ctx, http.MethodPost, "/v1/image_to_video", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", fmt.Errorf("submit returned no task id")
	}
	return resp.ID, nil
}

func (a *RunwayVideoAdapter) getTask(ctx context.Context, taskID string) (*runwayTaskResponse, error) {
	return a.do(ctx, http.MethodGet, "/v1/tasks/"+taskID, nil)
}

func (a *RunwayVideoAdapter) do(ctx context.Context, method, path string, body io.Reader) (*runwayTaskResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, method, a.cfg.BaseURL+path, body)
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

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(respBody))
	}

	var taskResp runwayTaskResponse
	if err := json.Unmarshal(respBody, &taskResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return &taskResp, nil
}

// HealthCheck performs a health check against the organization endpoint.
func (a *RunwayVideoAdapter) HealthCheck(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.BaseURL+"/v1/organization", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed: status %d", resp.StatusCode)
	}

	return nil
}
