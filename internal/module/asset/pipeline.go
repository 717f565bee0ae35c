package asset

import (
	"context"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "github.com/reelforge/server/internal/shared/errors"
	"github.com/reelforge/server/internal/shared/storage"
)

// Pipeline copies provider-hosted assets into owned object storage. Provider
// URLs expire, so nothing downstream may reference one; the durable URL the
// pipeline returns is the only address a finished generation exposes.
type Pipeline struct {
	store  storage.ObjectStore
	client *http.Client
	logger *zap.Logger
}

// NewPipeline creates a new asset pipeline.
func NewPipeline(store storage.ObjectStore, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		store:  store,
		client: &http.Client{Timeout: 5 * time.Minute},
		logger: logger,
	}
}

// Secure downloads the asset at transientURL and stores it under destKey,
// returning the durable URL. If an object already exists at destKey the
// existing durable URL is returned without re-downloading, which makes the
// operation safe to retry.
func (p *Pipeline) Secure(ctx context.Context, transientURL, destKey string) (string, error) {
	if _, err := p.store.Head(ctx, destKey); err == nil {
		p.logger.Debug("asset already secured", zap.String("key", destKey))
		return p.store.PublicURL(destKey), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, transientURL, nil)
	if err != nil {
		return "", apperrors.Persistence("create download request", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return "", apperrors.Persistence("download asset", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", apperrors.Persistence("download asset", fmt.Errorf("status %d", resp.StatusCode))
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = guessContentType(destKey)
	}

	if err := p.store.Put(ctx, destKey, resp.Body, resp.ContentLength, contentType); err != nil {
		return "", apperrors.Persistence("store asset", err)
	}

	durable := p.store.PublicURL(destKey)
	p.logger.Info("asset secured",
		zap.String("key", destKey),
		zap.String("content_type", contentType))
	return durable, nil
}

// ObjectKey builds the storage key for a generated asset. The extension is
// taken from the transient URL path when recognizable.
func ObjectKey(projectID, capability, transientURL string) string {
	ext := strings.ToLower(path.Ext(stripQuery(transientURL)))
	switch ext {
	case ".png", ".jpg", ".jpeg", ".webp", ".gif", ".mp4", ".webm", ".mov":
	default:
		if capability == "video" {
			ext = ".mp4"
		} else {
			ext = ".png"
		}
	}
	return fmt.Sprintf("assets/%s/%s%s", projectID, uuid.New().String(), ext)
}

func stripQuery(rawURL string) string {
	if i := strings.IndexByte(rawURL, '?'); i >= 0 {
		return rawURL[:i]
	}
	return rawURL
}

func guessContentType(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	case ".gif":
		return "image/gif"
	case ".mp4":
		return "video/mp4"
	case ".webm":
		return "video/webm"
	case ".mov":
		return "video/quicktime"
	default:
		return "application/octet-stream"
	}
}
