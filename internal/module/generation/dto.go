package generation

// Request is a cost-gated generation request.
type Request struct {
	ProjectID string `json:"project_id" binding:"required"`
	UserID    string `json:"user_id" binding:"required"`
	ModelID   string `json:"model_id" binding:"required"`
	Prompt    string `json:"prompt" binding:"required"`

	// Capability is "image" or "video".
	Capability string `json:"capability" binding:"required,oneof=image video"`

	Resolution      string `json:"resolution,omitempty"`
	Quality         string `json:"quality,omitempty"`
	DurationSeconds int    `json:"duration_seconds,omitempty"`
	KeyframeRef     string `json:"keyframe_ref,omitempty"`
	FPS             int    `json:"fps,omitempty"`
	Quantity        int    `json:"quantity,omitempty"`

	// Provider pins a specific provider; empty lets the registry pick.
	Provider string `json:"provider,omitempty"`

	// ForceApproved acknowledges a prior approval-required response for
	// this request's estimated cost.
	ForceApproved bool `json:"force_approved,omitempty"`
}

// Response is a completed generation. AssetURL is always a durable owned
// URL; ActualCost falls back to the estimate for providers that do not
// report actuals.
type Response struct {
	AssetURL         string         `json:"asset_url"`
	Provider         string         `json:"provider"`
	ModelID          string         `json:"model_id"`
	ActualCost       float64        `json:"actual_cost"`
	EstimatedCost    float64        `json:"estimated_cost"`
	Currency         string         `json:"currency"`
	ProcessingTimeMs int64          `json:"processing_time_ms"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}
