// Package download adapts the external media-fetch service to the job
// engine's Adapter contract.
package download

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"mediajobs/internal/job"
	"mediajobs/internal/storage"
)

// AssetMaterializer creates the media asset row for a finished download.
// Download jobs are the only path that creates media assets; a failed
// download leaves no resource behind.
type AssetMaterializer interface {
	MaterializeMediaAsset(ctx context.Context, assetID, sourceURL, fileURL string, now time.Time) error
}

// Adapter drives the remote media-fetch service.
type Adapter struct {
	cfg    Config
	client *http.Client
	blobs  storage.BlobStore
	assets AssetMaterializer
	logger *slog.Logger
	now    func() time.Time
}

func New(cfg Config, blobs storage.BlobStore, assets AssetMaterializer, logger *slog.Logger) *Adapter {
	return &Adapter{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		blobs:  blobs,
		assets: assets,
		logger: logger.With("component", "download-adapter"),
		now:    time.Now,
	}
}

func (a *Adapter) Lane() string { return job.LaneDownload }

type submitRequest struct {
	URL string `json:"url"`
}

type submitResponse struct {
	FetchID string `json:"fetchId"`
}

// remote status vocabulary: pending | downloading | done | error
type statusResponse struct {
	State   string `json:"state"`
	Percent int    `json:"percent"`
	FileURL string `json:"fileUrl"`
	Message string `json:"message"`
}

func (a *Adapter) Submit(ctx context.Context, j *job.Job) (string, error) {
	body, err := json.Marshal(submitRequest{URL: j.SourceURL})
	if err != nil {
		return "", fmt.Errorf("encode submit request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/v1/fetches", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return "", job.Transient(fmt.Errorf("submit fetch: %w", err))
	}
	defer resp.Body.Close()

	if err := classify(resp, "submit"); err != nil {
		return "", err
	}

	var out submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode submit response: %w", err)
	}
	if out.FetchID == "" {
		return "", fmt.Errorf("submit response carried no fetch id")
	}
	return out.FetchID, nil
}

func (a *Adapter) CheckStatus(ctx context.Context, externalRef string) (*job.RemoteStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.BaseURL+"/v1/fetches/"+externalRef, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create status request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, job.Transient(fmt.Errorf("check fetch status: %w", err))
	}
	defer resp.Body.Close()

	if err := classify(resp, "status"); err != nil {
		return nil, err
	}

	var st statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return nil, fmt.Errorf("decode status response: %w", err)
	}

	switch st.State {
	case "pending", "downloading":
		return &job.RemoteStatus{State: job.RemoteInProgress, Progress: st.Percent, Raw: st.State}, nil
	case "done":
		return &job.RemoteStatus{
			State:     job.RemoteCompleted,
			Progress:  100,
			Raw:       st.State,
			Artifacts: map[string]string{"file": st.FileURL},
		}, nil
	case "error":
		msg := st.Message
		if msg == "" {
			msg = "fetch service reported failure"
		}
		return &job.RemoteStatus{State: job.RemoteFailed, Raw: st.State, Message: msg}, nil
	default:
		return nil, fmt.Errorf("unexpected fetch state %q", st.State)
	}
}

// Finalize relocates the fetched file into our storage and materializes the
// media asset row. Assets exist only after a successful download, which is
// what lets the sweeper treat failed download jobs as abandoned.
func (a *Adapter) Finalize(ctx context.Context, j *job.Job, status *job.RemoteStatus) (map[string]string, error) {
	src := status.Artifacts["file"]
	if src == "" {
		return nil, fmt.Errorf("completed fetch carried no file URL")
	}

	fileURL, err := a.blobs.CopyFromURL(ctx, "media/"+j.ResourceID, src)
	if err != nil {
		return nil, fmt.Errorf("relocate file: %w", err)
	}

	if err := a.assets.MaterializeMediaAsset(ctx, j.ResourceID, j.SourceURL, fileURL, a.now().UTC()); err != nil {
		return nil, fmt.Errorf("materialize asset: %w", err)
	}

	a.logger.Info("media asset materialized", "assetId", j.ResourceID, "jobId", j.ID)
	return map[string]string{"file": fileURL}, nil
}

func classify(resp *http.Response, op string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	err := fmt.Errorf("%s returned status %d: %s", op, resp.StatusCode, bytes.TrimSpace(body))
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return job.Transient(err)
	}
	return err
}
