package api

import (
	"net/http"

	"mediajobs/internal/health"
	"mediajobs/internal/job"
	"mediajobs/internal/observability"
	"mediajobs/internal/reminder"
)

// RouterConfig holds dependencies for the router.
type RouterConfig struct {
	JobService    *job.Service
	Poller        *job.Poller
	Sweeper       *job.Sweeper
	Reminders     *reminder.Service
	Metrics       *observability.Metrics
	HealthChecker *health.Checker
	APIKey        string // client token for job CRUD
	TriggerToken  string // scheduler token for tick/cleanup
}

// NewRouter creates the HTTP router with all routes configured.
func NewRouter(cfg RouterConfig) http.Handler {
	handler := NewHandler(cfg.JobService, cfg.Poller, cfg.Sweeper, cfg.Reminders, cfg.HealthChecker)

	mux := http.NewServeMux()

	// Health check endpoints - no auth required
	mux.HandleFunc("GET /livez", handler.Livez)
	mux.HandleFunc("GET /readyz", handler.Readyz)

	// Scheduler endpoints - trigger token
	triggerAuth := AuthMiddleware(cfg.TriggerToken)
	mux.Handle("POST /v1/lanes/{lane}/tick", triggerAuth(http.HandlerFunc(handler.Tick)))
	mux.Handle("POST /v1/cleanup", triggerAuth(http.HandlerFunc(handler.Cleanup)))

	// Job endpoints - client token
	clientAuth := AuthMiddleware(cfg.APIKey)
	mux.Handle("POST /v1/lanes/{lane}/jobs", clientAuth(http.HandlerFunc(handler.CreateJob)))
	mux.Handle("GET /v1/lanes/{lane}/jobs/{jobId}", clientAuth(http.HandlerFunc(handler.GetJob)))
	mux.Handle("POST /v1/lanes/{lane}/jobs/{jobId}/reprocess", clientAuth(http.HandlerFunc(handler.Reprocess)))

	// Confirmation callback - no auth, sender is out of band
	mux.HandleFunc("POST /v1/reminders/{deliveryId}/confirm", handler.ConfirmReminder)

	// Apply middleware chain (order matters: outermost first)
	var h http.Handler = mux
	h = ContentTypeMiddleware()(h)
	h = CORSMiddleware()(h)
	if cfg.Metrics != nil {
		h = MetricsMiddleware(cfg.Metrics)(h)
	}
	h = LoggingMiddleware()(h)
	h = RecoveryMiddleware()(h)

	return h
}
