package httpadapter

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kirillkom/care-records/internal/config"
	"github.com/kirillkom/care-records/internal/core/domain"
	"github.com/kirillkom/care-records/internal/core/ports"
)

const serviceName = "api"

// CallerProcessor runs owner-triggered processing.
type CallerProcessor interface {
	ProcessForCaller(ctx context.Context, caller domain.Caller, id string, audience domain.AudienceMode) (domain.FileRecord, error)
}

// Metrics is the slice of the metrics registry the API reports to.
type Metrics interface {
	Middleware(service string, next http.Handler) http.Handler
	Handler() http.Handler
	RecordUpload(service, category string, size int64)
	RecordDelete(service string, err error)
	RecordProcessRequest(service, audience string, err error)
}

type Router struct {
	uploader  ports.FileUploader
	files     ports.FileReader
	processor CallerProcessor

	auth           *bearerAuth
	rateLimitRPS   int
	rateLimitBurst int
	uploadMaxBytes int64

	metrics Metrics
	logger  *slog.Logger
}

type RouterOption func(*Router)

func WithMetrics(m Metrics) RouterOption {
	return func(rt *Router) { rt.metrics = m }
}

func WithLogger(logger *slog.Logger) RouterOption {
	return func(rt *Router) {
		if logger != nil {
			rt.logger = logger
		}
	}
}

func NewRouter(
	cfg config.Config,
	uploader ports.FileUploader,
	files ports.FileReader,
	processor CallerProcessor,
	opts ...RouterOption,
) *Router {
	rt := &Router{
		uploader:       uploader,
		files:          files,
		processor:      processor,
		auth:           newBearerAuth(cfg.JWTSecret, cfg.JWTIssuer),
		rateLimitRPS:   cfg.RateLimitRPS,
		rateLimitBurst: cfg.RateLimitBurst,
		uploadMaxBytes: cfg.UploadMaxBytes,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(accessLogMiddleware(rt.logger))
	if rt.metrics != nil {
		r.Use(func(next http.Handler) http.Handler { return rt.metrics.Middleware(serviceName, next) })
		r.Method(http.MethodGet, "/metrics", rt.metrics.Handler())
	}
	r.Get("/healthz", rt.healthz)

	r.Route("/v1/files", func(r chi.Router) {
		r.Use(rateLimitMiddleware(rt.rateLimitRPS, rt.rateLimitBurst))
		r.Use(rt.auth.middleware)

		r.Post("/", rt.uploadFile)
		r.Get("/", rt.listFiles)
		r.Get("/{id}", rt.getFile)
		r.Get("/{id}/download", rt.downloadFile)
		r.Delete("/{id}", rt.deleteFile)
		r.Post("/{id}/process", rt.processFile)
	})
	return r
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
