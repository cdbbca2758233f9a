package separation

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
	copied map[string]string // key -> source URL
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

type fakeBinder struct {
	trackID         string
	vocalsURL       string
	instrumentalURL string
	err             error
}

func (f *fakeBinder) BindStems(_ context.Context, trackID, vocalsURL, instrumentalURL string, _ time.Time) error {
	if f.err != nil {
		return f.err
	}
	f.trackID = trackID
	f.vocalsURL = vocalsURL
	f.instrumentalURL = instrumentalURL
	return nil
}

func newTestAdapter(t *testing.T, baseURL string) (*Adapter, *fakeBlobs, *fakeBinder) {
	t.Helper()
	blobs := &fakeBlobs{}
	binder := &fakeBinder{}
	a := New(Config{BaseURL: baseURL, APIKey: "sk-test", Timeout: 5 * time.Second},
		blobs, binder, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return a, blobs, binder
}

func TestSubmit(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/separations" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization = %q", got)
		}
		var req submitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if req.AudioURL != "https://cdn.example/track.mp3" {
			t.Errorf("audioUrl = %q", req.AudioURL)
		}
		_ = json.NewEncoder(w).Encode(submitResponse{ID: "sep-1"})
	}))
	defer srv.Close()

	a, _, _ := newTestAdapter(t, srv.URL)
	ref, err := a.Submit(context.Background(), &job.Job{ID: "j1", SourceURL: "https://cdn.example/track.mp3"})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if ref != "sep-1" {
		t.Errorf("Submit() = %q, want sep-1", ref)
	}
}

func TestSubmitErrorClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		status        int
		wantTransient bool
	}{
		{"server error is transient", http.StatusBadGateway, true},
		{"rate limit is transient", http.StatusTooManyRequests, true},
		{"rejected payload is permanent", http.StatusUnprocessableEntity, false},
		{"auth failure is permanent", http.StatusUnauthorized, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			a, _, _ := newTestAdapter(t, srv.URL)
			_, err := a.Submit(context.Background(), &job.Job{ID: "j1", SourceURL: "https://x/a.mp3"})
			if err == nil {
				t.Fatal("Submit() error = nil")
			}
			if got := job.IsTransient(err); got != tt.wantTransient {
				t.Errorf("IsTransient(%v) = %v, want %v", err, got, tt.wantTransient)
			}
		})
	}
}

func TestSubmitNetworkErrorIsTransient(t *testing.T) {
	t.Parallel()

	a, _, _ := newTestAdapter(t, "http://127.0.0.1:1")
	_, err := a.Submit(context.Background(), &job.Job{ID: "j1", SourceURL: "https://x/a.mp3"})
	if !job.IsTransient(err) {
		t.Errorf("Submit() error = %v, want transient", err)
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
		{"queued maps to in-progress", statusResponse{Status: "queued"}, job.RemoteInProgress, 0},
		{"processing keeps progress", statusResponse{Status: "processing", Progress: 40}, job.RemoteInProgress, 40},
		{"succeeded maps to completed", statusResponse{Status: "succeeded", VocalsURL: "http://r/v", InstrumentalURL: "http://r/i"}, job.RemoteCompleted, 100},
		{"failed maps to failed", statusResponse{Status: "failed", Error: "corrupt input"}, job.RemoteFailed, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if !strings.HasPrefix(r.URL.Path, "/v1/separations/") {
					t.Errorf("unexpected path %s", r.URL.Path)
				}
				_ = json.NewEncoder(w).Encode(tt.response)
			}))
			defer srv.Close()

			a, _, _ := newTestAdapter(t, srv.URL)
			st, err := a.CheckStatus(context.Background(), "sep-1")
			if err != nil {
				t.Fatalf("CheckStatus() error = %v", err)
			}
			if st.State != tt.wantState {
				t.Errorf("State = %v, want %v", st.State, tt.wantState)
			}
			if st.Progress != tt.wantProg {
				t.Errorf("Progress = %d, want %d", st.Progress, tt.wantProg)
			}
			if tt.wantState == job.RemoteFailed && st.Message == "" {
				t.Error("failed status carried no message")
			}
		})
	}
}

func TestCheckStatusUnknownVocabulary(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(statusResponse{Status: "hibernating"})
	}))
	defer srv.Close()

	a, _, _ := newTestAdapter(t, srv.URL)
	_, err := a.CheckStatus(context.Background(), "sep-1")
	if err == nil || job.IsTransient(err) {
		t.Errorf("CheckStatus() error = %v, want permanent error", err)
	}
}

func TestFinalize(t *testing.T) {
	t.Parallel()

	a, blobs, binder := newTestAdapter(t, "http://unused")
	j := &job.Job{ID: "j1", ResourceID: "track-42"}
	st := &job.RemoteStatus{
		State: job.RemoteCompleted,
		Artifacts: map[string]string{
			"vocals":       "http://remote/v.mp3",
			"instrumental": "http://remote/i.mp3",
		},
	}

	artifacts, err := a.Finalize(context.Background(), j, st)
	if err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	if got := blobs.copied["stems/track-42/vocals.mp3"]; got != "http://remote/v.mp3" {
		t.Errorf("vocals copied from %q", got)
	}
	if binder.trackID != "track-42" {
		t.Errorf("bound track = %q, want track-42", binder.trackID)
	}
	if binder.vocalsURL != "https://blobs.local/stems/track-42/vocals.mp3" {
		t.Errorf("bound vocals URL = %q", binder.vocalsURL)
	}
	if artifacts["vocals"] != binder.vocalsURL || artifacts["instrumental"] != binder.instrumentalURL {
		t.Errorf("returned artifacts = %v, want the bound stem URLs", artifacts)
	}
}

func TestFinalizeFailures(t *testing.T) {
	t.Parallel()

	full := map[string]string{"vocals": "http://r/v", "instrumental": "http://r/i"}

	t.Run("missing artifact", func(t *testing.T) {
		t.Parallel()
		a, _, _ := newTestAdapter(t, "http://unused")
		st := &job.RemoteStatus{Artifacts: map[string]string{"vocals": "http://r/v"}}
		if _, err := a.Finalize(context.Background(), &job.Job{ResourceID: "t"}, st); err == nil {
			t.Error("Finalize() error = nil, want incomplete-artifacts failure")
		}
	})

	t.Run("relocation failure", func(t *testing.T) {
		t.Parallel()
		a, blobs, _ := newTestAdapter(t, "http://unused")
		blobs.err = fmt.Errorf("storage unreachable")
		_, err := a.Finalize(context.Background(), &job.Job{ResourceID: "t"}, &job.RemoteStatus{Artifacts: full})
		if err == nil || !strings.Contains(err.Error(), "relocate vocals") {
			t.Errorf("Finalize() error = %v, want relocation failure", err)
		}
	})

	t.Run("binding failure", func(t *testing.T) {
		t.Parallel()
		a, _, binder := newTestAdapter(t, "http://unused")
		binder.err = fmt.Errorf("track gone")
		_, err := a.Finalize(context.Background(), &job.Job{ResourceID: "t"}, &job.RemoteStatus{Artifacts: full})
		if err == nil || !strings.Contains(err.Error(), "bind stems") {
			t.Errorf("Finalize() error = %v, want binding failure", err)
		}
	})
}
