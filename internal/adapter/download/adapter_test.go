package download

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"mediajobs/internal/job"
)

type fakeBlobs struct {
	copied map[string]string
	err    error
}

func (f *fakeBlobs) CopyFromURL(_ context.Context, key, srcURL string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if f.copied == nil {
		f.copied = map[string]string{}
	}
	f.copied[key] = srcURL
	return "https://blobs.local/" + key, nil
}

type fakeAssets struct {
	assetID   string
	sourceURL string
	fileURL   string
	err       error
}

func (f *fakeAssets) MaterializeMediaAsset(_ context.Context, assetID, sourceURL, fileURL string, _ time.Time) error {
	if f.err != nil {
		return f.err
	}
	f.assetID = assetID
	f.sourceURL = sourceURL
	f.fileURL = fileURL
	return nil
}

func newTestAdapter(t *testing.T, baseURL string) (*Adapter, *fakeBlobs, *fakeAssets) {
	t.Helper()
	blobs := &fakeBlobs{}
	assets := &fakeAssets{}
	a := New(Config{BaseURL: baseURL, APIKey: "sk-test", Timeout: 5 * time.Second},
		blobs, assets, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return a, blobs, assets
}

func TestSubmit(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/fetches" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var req submitRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.URL != "https://videos.example/v/99" {
			t.Errorf("url = %q", req.URL)
		}
		_ = json.NewEncoder(w).Encode(submitResponse{FetchID: "f-9"})
	}))
	defer srv.Close()

	a, _, _ := newTestAdapter(t, srv.URL)
	ref, err := a.Submit(context.Background(), &job.Job{ID: "j1", SourceURL: "https://videos.example/v/99"})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if ref != "f-9" {
		t.Errorf("Submit() = %q, want f-9", ref)
	}
}

func TestCheckStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		response  statusResponse
		wantState job.RemoteState
		wantProg  int
	}{
		{"pending maps to in-progress", statusResponse{State: "pending"}, job.RemoteInProgress, 0},
		{"downloading keeps percent", statusResponse{State: "downloading", Percent: 73}, job.RemoteInProgress, 73},
		{"done maps to completed", statusResponse{State: "done", FileURL: "http://r/f.mp4"}, job.RemoteCompleted, 100},
		{"error maps to failed", statusResponse{State: "error", Message: "geo blocked"}, job.RemoteFailed, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewEncoder(w).Encode(tt.response)
			}))
			defer srv.Close()

			a, _, _ := newTestAdapter(t, srv.URL)
			st, err := a.CheckStatus(context.Background(), "f-9")
			if err != nil {
				t.Fatalf("CheckStatus() error = %v", err)
			}
			if st.State != tt.wantState || st.Progress != tt.wantProg {
				t.Errorf("got %v/%d, want %v/%d", st.State, st.Progress, tt.wantState, tt.wantProg)
			}
		})
	}
}

func TestCheckStatusTransientOn5xx(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	a, _, _ := newTestAdapter(t, srv.URL)
	_, err := a.CheckStatus(context.Background(), "f-9")
	if !job.IsTransient(err) {
		t.Errorf("CheckStatus() error = %v, want transient", err)
	}
}

func TestFinalize(t *testing.T) {
	t.Parallel()

	a, blobs, assets := newTestAdapter(t, "http://unused")
	j := &job.Job{ID: "j1", ResourceID: "asset-7", SourceURL: "https://videos.example/v/99"}
	st := &job.RemoteStatus{State: job.RemoteCompleted, Artifacts: map[string]string{"file": "http://remote/tmp.mp4"}}

	artifacts, err := a.Finalize(context.Background(), j, st)
	if err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	if got := blobs.copied["media/asset-7"]; got != "http://remote/tmp.mp4" {
		t.Errorf("copied from %q", got)
	}
	if assets.assetID != "asset-7" || assets.fileURL != "https://blobs.local/media/asset-7" {
		t.Errorf("materialized %q with file %q", assets.assetID, assets.fileURL)
	}
	if assets.sourceURL != "https://videos.example/v/99" {
		t.Errorf("materialized sourceURL = %q", assets.sourceURL)
	}
	if artifacts["file"] != assets.fileURL {
		t.Errorf("returned artifacts = %v, want the materialized file URL", artifacts)
	}
}

func TestFinalizeFailures(t *testing.T) {
	t.Parallel()

	t.Run("no file URL", func(t *testing.T) {
		t.Parallel()
		a, _, _ := newTestAdapter(t, "http://unused")
		_, err := a.Finalize(context.Background(), &job.Job{ResourceID: "a"}, &job.RemoteStatus{})
		if err == nil {
			t.Error("Finalize() error = nil, want missing-file failure")
		}
	})

	t.Run("relocation failure", func(t *testing.T) {
		t.Parallel()
		a, blobs, _ := newTestAdapter(t, "http://unused")
		blobs.err = fmt.Errorf("storage unreachable")
		_, err := a.Finalize(context.Background(), &job.Job{ResourceID: "a"},
			&job.RemoteStatus{Artifacts: map[string]string{"file": "http://r/f"}})
		if err == nil || !strings.Contains(err.Error(), "relocate file") {
			t.Errorf("Finalize() error = %v, want relocation failure", err)
		}
	})
}
