// Package export implements the durable export job queue and its worker.
package export

import (
	"time"

	"github.com/google/uuid"
)

// State is an export job lifecycle state. Transitions are forward-only:
// waiting -> active -> completed or failed. Terminal states never change.
type State string

const (
	StateWaiting   State = "waiting"
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// terminal reports whether a state accepts no further transitions.
func (s State) terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// CanTransition reports whether a job may move from s to next.
func (s State) CanTransition(next State) bool {
	if s.terminal() {
		return false
	}
	switch s {
	case StateWaiting:
		return next == StateActive || next == StateFailed
	case StateActive:
		return next == StateCompleted || next == StateFailed
	default:
		return false
	}
}

// Options are the render settings for an export.
type Options struct {
	Format           string `json:"format"`
	Codec            string `json:"codec,omitempty"`
	Quality          string `json:"quality,omitempty"`
	Preset           string `json:"preset,omitempty"`
	Resolution       string `json:"resolution,omitempty"`
	FrameRate        int    `json:"frame_rate,omitempty"`
	VideoBitrateKbps int    `json:"video_bitrate_kbps,omitempty"`
	AudioCodec       string `json:"audio_codec,omitempty"`
	AudioBitrateKbps int    `json:"audio_bitrate_kbps,omitempty"`
	AudioRef         string `json:"audio_ref,omitempty"`
}

// Job is one export job row. The database row is the source of truth for job
// state; the redis list only carries job IDs to wake workers.
type Job struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"job_id"`
	ProjectID string    `gorm:"index;not null" json:"project_id"`
	UserID    string    `gorm:"index;not null" json:"user_id"`

	// SourceKeys are the storage keys of the clips to assemble, in order.
	SourceKeys []string `gorm:"serializer:json;not null" json:"source_keys"`
	Options    Options  `gorm:"serializer:json" json:"options"`

	State         State  `gorm:"index;not null;default:'waiting'" json:"state"`
	Progress      int    `gorm:"not null;default:0" json:"progress"`
	OutputKey     string `json:"output_key,omitempty"`
	OutputURL     string `json:"output_url,omitempty"`
	FailureReason string `json:"failure_reason,omitempty"`

	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// TableName sets the export jobs table name.
func (Job) TableName() string {
	return "export_jobs"
}
