// Package separation adapts the external stem-separation API to the job
// engine's Adapter contract.
package separation

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

// TrackBinder attaches finished stem URLs to the owning audio track.
type TrackBinder interface {
	BindStems(ctx context.Context, trackID, vocalsURL, instrumentalURL string, now time.Time) error
}

// Adapter drives the remote separation service. One request per call, no
// internal retries: the Poller owns retry policy through its transient
// classification.
type Adapter struct {
	cfg    Config
	client *http.Client
	blobs  storage.BlobStore
	binder TrackBinder
	logger *slog.Logger
	now    func() time.Time
}

func New(cfg Config, blobs storage.BlobStore, binder TrackBinder, logger *slog.Logger) *Adapter {
	return &Adapter{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		blobs:  blobs,
		binder: binder,
		logger: logger.With("component", "separation-adapter"),
		now:    time.Now,
	}
}

func (a *Adapter) Lane() string { return job.LaneSeparation }

type submitRequest struct {
	AudioURL string `json:"audioUrl"`
}

type submitResponse struct {
	ID string `json:"id"`
}

// remote status vocabulary: queued | processing | succeeded | failed
type statusResponse struct {
	Status          string `json:"status"`
	Progress        int    `json:"progress"`
	VocalsURL       string `json:"vocalsUrl"`
	InstrumentalURL string `json:"instrumentalUrl"`
	Error           string `json:"error"`
}

func (a *Adapter) Submit(ctx context.Context, j *job.Job) (string, error) {
	body, err := json.Marshal(submitRequest{AudioURL: j.SourceURL})
	if err != nil {
		return "", fmt.Errorf("encode submit request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/v1/separations", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return "", job.Transient(fmt.Errorf("submit separation: %w", err))
	}
	defer resp.Body.Close()

	if err := classify(resp, "submit"); err != nil {
		return "", err
	}

	var out submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode submit response: %w", err)
	}
	if out.ID == "" {
		return "", fmt.Errorf("submit response carried no job id")
	}
	return out.ID, nil
}

func (a *Adapter) CheckStatus(ctx context.Context, externalRef string) (*job.RemoteStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.BaseURL+"/v1/separations/"+externalRef, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create status request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, job.Transient(fmt.Errorf("check separation status: %w", err))
	}
	defer resp.Body.Close()

	if err := classify(resp, "status"); err != nil {
		return nil, err
	}

	var st statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return nil, fmt.Errorf("decode status response: %w", err)
	}

	switch st.Status {
	case "queued", "processing":
		return &job.RemoteStatus{State: job.RemoteInProgress, Progress: st.Progress, Raw: st.Status}, nil
	case "succeeded":
		return &job.RemoteStatus{
			State:    job.RemoteCompleted,
			Progress: 100,
			Raw:      st.Status,
			Artifacts: map[string]string{
				"vocals":       st.VocalsURL,
				"instrumental": st.InstrumentalURL,
			},
		}, nil
	case "failed":
		msg := st.Error
		if msg == "" {
			msg = "separation service reported failure"
		}
		return &job.RemoteStatus{State: job.RemoteFailed, Raw: st.Status, Message: msg}, nil
	default:
		return nil, fmt.Errorf("unexpected separation status %q", st.Status)
	}
}

// Finalize copies both stems into our own storage and binds them to the
// track. The remote result URLs expire, so this must finish before the job
// is marked completed.
func (a *Adapter) Finalize(ctx context.Context, j *job.Job, status *job.RemoteStatus) (map[string]string, error) {
	vocalsSrc := status.Artifacts["vocals"]
	instrumentalSrc := status.Artifacts["instrumental"]
	if vocalsSrc == "" || instrumentalSrc == "" {
		return nil, fmt.Errorf("completed separation carried incomplete artifacts")
	}

	vocalsURL, err := a.blobs.CopyFromURL(ctx, "stems/"+j.ResourceID+"/vocals.mp3", vocalsSrc)
	if err != nil {
		return nil, fmt.Errorf("relocate vocals: %w", err)
	}
	instrumentalURL, err := a.blobs.CopyFromURL(ctx, "stems/"+j.ResourceID+"/instrumental.mp3", instrumentalSrc)
	if err != nil {
		return nil, fmt.Errorf("relocate instrumental: %w", err)
	}

	if err := a.binder.BindStems(ctx, j.ResourceID, vocalsURL, instrumentalURL, a.now().UTC()); err != nil {
		return nil, fmt.Errorf("bind stems: %w", err)
	}

	a.logger.Info("stems bound", "trackId", j.ResourceID, "jobId", j.ID)
	return map[string]string{"vocals": vocalsURL, "instrumental": instrumentalURL}, nil
}

// classify maps an HTTP response to the engine's error taxonomy: 5xx and
// 429 are transient, any other non-2xx is permanent.
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
