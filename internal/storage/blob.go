// Package storage relocates externally produced result files into durable
// blob storage.
package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"mediajobs/pkg/backoff"
)

// BlobStore copies external result URLs into storage the service controls.
// External services recycle their result URLs; a completed job must not
// point at one.
type BlobStore interface {
	// CopyFromURL streams srcURL into the blob at key and returns the
	// durable URL of the stored copy.
	CopyFromURL(ctx context.Context, key, srcURL string) (string, error)
}

// Config for the HTTP blob store.
type Config struct {
	// UploadBaseURL receives PUT <base>/<key> with the blob body.
	UploadBaseURL string
	// PublicBaseURL is the prefix of the returned durable URLs. Defaults
	// to UploadBaseURL.
	PublicBaseURL string
	MaxRetries    int
	Timeout       time.Duration
}

// HTTPBlobStore copies blobs between HTTP endpoints: GET the source, PUT
// the destination. Transient failures are retried with exponential backoff;
// 4xx responses from the destination are permanent.
type HTTPBlobStore struct {
	cfg    Config
	client *http.Client
	policy backoff.Policy
	logger *slog.Logger
}

func NewHTTPBlobStore(cfg Config, logger *slog.Logger) *HTTPBlobStore {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if cfg.PublicBaseURL == "" {
		cfg.PublicBaseURL = cfg.UploadBaseURL
	}
	return &HTTPBlobStore{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		policy: backoff.Default,
		logger: logger,
	}
}

func (s *HTTPBlobStore) CopyFromURL(ctx context.Context, key, srcURL string) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= s.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := s.policy.Duration(attempt)
			s.logger.Debug("retrying blob copy", "attempt", attempt, "backoff", wait, "key", key)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(wait):
			}
		}

		lastErr = s.copy(ctx, key, srcURL)
		if lastErr == nil {
			return s.blobURL(key), nil
		}
		if isPermanent(lastErr) {
			return "", lastErr
		}
		s.logger.Warn("blob copy failed", "attempt", attempt, "key", key, "error", lastErr)
	}
	return "", fmt.Errorf("blob copy failed after %d retries: %w", s.cfg.MaxRetries, lastErr)
}

// copy streams the source into the destination. The source is re-fetched on
// every attempt because the body cannot be rewound.
func (s *HTTPBlobStore) copy(ctx context.Context, key, srcURL string) error {
	getReq, err := http.NewRequestWithContext(ctx, http.MethodGet, srcURL, http.NoBody)
	if err != nil {
		return fmt.Errorf("create source request: %w", err)
	}
	src, err := s.client.Do(getReq)
	if err != nil {
		return fmt.Errorf("fetch source: %w", err)
	}
	defer src.Body.Close()
	if src.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, src.Body)
		return &copyError{statusCode: src.StatusCode, stage: "source"}
	}

	putReq, err := http.NewRequestWithContext(ctx, http.MethodPut, s.uploadURL(key), src.Body)
	if err != nil {
		return fmt.Errorf("create upload request: %w", err)
	}
	putReq.ContentLength = src.ContentLength
	putReq.Header.Set("Content-Type", "application/octet-stream")

	dst, err := s.client.Do(putReq)
	if err != nil {
		return fmt.Errorf("upload blob: %w", err)
	}
	defer dst.Body.Close()
	_, _ = io.Copy(io.Discard, dst.Body)

	if dst.StatusCode < 200 || dst.StatusCode >= 300 {
		return &copyError{statusCode: dst.StatusCode, stage: "upload"}
	}
	return nil
}

func (s *HTTPBlobStore) uploadURL(key string) string {
	return strings.TrimSuffix(s.cfg.UploadBaseURL, "/") + "/" + key
}

func (s *HTTPBlobStore) blobURL(key string) string {
	return strings.TrimSuffix(s.cfg.PublicBaseURL, "/") + "/" + key
}

type copyError struct {
	statusCode int
	stage      string
}

func (e *copyError) Error() string {
	return fmt.Sprintf("%s returned status %d", e.stage, e.statusCode)
}

// isPermanent reports whether retrying cannot help. A 4xx from either side
// means the request itself is wrong; a missing source will not reappear.
func isPermanent(err error) bool {
	if ce, ok := err.(*copyError); ok {
		return ce.statusCode >= 400 && ce.statusCode < 500
	}
	return false
}
