// Package provider defines the uniform contract over interchangeable paid
// generation backends and the registry that selects among them.
package provider

import (
	"context"
	"time"
)

// Capability represents a generation capability providers support
// independently.
type Capability string

const (
	CapabilityImage Capability = "image"
	CapabilityVideo Capability = "video"
)

// Config holds one provider configuration for a capability. Configs are
// mutated only at startup; the registry is immutable afterwards.
type Config struct {
	Name       string
	Capability Capability
	Enabled    bool
	Priority   int
	MaxRetries int
	Timeout    time.Duration
	BaseURL    string
	APIKey     string
}

// ImageRequest is a provider-agnostic image generation request.
type ImageRequest struct {
	Prompt     string
	Model      string
	Resolution string
	Quality    string
	Count      int
	Seed       *int64
}

// VideoRequest is a provider-agnostic video generation request.
type VideoRequest struct {
	Prompt          string
	Model           string
	KeyframeRef     string
	DurationSeconds int
	Resolution      string
	FPS             int
}

// Result is the uniform outcome of a generation call. AssetURL is a
// transient provider URL; the asset pipeline converts it into owned storage
// before it may reach any permanent-storage caller.
type Result struct {
	Provider         string
	ModelID          string
	AssetURL         string
	Width            int
	Height           int
	DurationSeconds  int
	ActualCost       float64
	ProcessingTimeMs int64
	Metadata         map[string]any
}

// Adapter is the uniform contract every generation backend implements.
// Adapters own their entire interaction with the provider, including any
// internal submit/poll loop, and present one blocking call outward. They
// never leak the provider's payload shape.
type Adapter interface {
	// Name returns the provider name this adapter serves.
	Name() string

	// Capabilities returns the capabilities this adapter supports.
	Capabilities() []Capability

	// GenerateImage generates images from a text prompt.
	GenerateImage(ctx context.Context, req *ImageRequest) (*Result, error)

	// GenerateVideo generates a video clip, polling asynchronous providers
	// to completion internally, bounded by the adapter's deadline.
	GenerateVideo(ctx context.Context, req *VideoRequest) (*Result, error)

	// HealthCheck probes the provider.
	HealthCheck(ctx context.Context) error
}

// Supports reports whether the adapter covers a capability.
func Supports(a Adapter, cap Capability) bool {
	for _, c := range a.Capabilities() {
		if c == cap {
			return true
		}
	}
	return false
}
