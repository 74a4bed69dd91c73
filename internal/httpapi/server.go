// Package httpapi exposes the media services over HTTP.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v2"
	"github.com/go-chi/render"
	metricsprom "github.com/slok/go-http-metrics/metrics/prometheus"
	httpmetrics "github.com/slok/go-http-metrics/middleware"
	"github.com/slok/go-http-metrics/middleware/std"

	"github.com/tendant/simple-media/internal/apierr"
	"github.com/tendant/simple-media/internal/auth"
	"github.com/tendant/simple-media/internal/media"
	"github.com/tendant/simple-media/internal/metrics"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type Options struct {
	Service  *media.Service
	Resolver *auth.Resolver
	Health   Pinger
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

type Server struct {
	svc      *media.Service
	resolver *auth.Resolver
	health   Pinger
	metrics  *metrics.Metrics
	logger   *slog.Logger
	mdlw     httpmetrics.Middleware
}

// route is one entry of the static route table. Authenticated routes get the
// caller identity resolved before the handler runs.
type route struct {
	name          string
	method        string
	pattern       string
	authenticated bool
	handler       http.HandlerFunc
}

func (s *Server) routes() []route {
	return []route{
		{"upload", http.MethodPost, "/api/v1/upload", true, s.upload},
		{"cdn", http.MethodGet, "/cdn/{file}", false, s.cdn},
		{"derive", http.MethodPost, "/api/v1/resize-and-convert", true, s.derive},
		{"list", http.MethodGet, "/api/v1/images", true, s.list},
		{"delete", http.MethodDelete, "/api/v1/images", true, s.deleteImage},
		{"key_create", http.MethodPost, "/api/v1/keys", true, s.createKey},
		{"key_rotate", http.MethodPatch, "/api/v1/keys", true, s.rotateKey},
		{"key_revoke", http.MethodDelete, "/api/v1/keys", true, s.revokeKey},
		{"health", http.MethodGet, "/healthz", false, s.healthz},
	}
}

// NewRouter builds the HTTP handler of the service.
func NewRouter(opts Options) http.Handler {
	s := &Server{
		svc:      opts.Service,
		resolver: opts.Resolver,
		health:   opts.Health,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
	}
	if s.metrics == nil {
		s.metrics = metrics.New()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.mdlw = httpmetrics.New(httpmetrics.Config{
		Recorder: metricsprom.NewRecorder(metricsprom.Config{Registry: s.metrics.Registry}),
	})

	requestLogger := &httplog.Logger{
		Logger: s.logger,
		Options: httplog.Options{
			LogLevel:        slog.LevelInfo,
			Concise:         true,
			QuietDownRoutes: []string{"/healthz", "/metrics"},
			QuietDownPeriod: time.Minute,
		},
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.GetHead)
	r.Use(httplog.RequestLogger(requestLogger))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "If-None-Match"},
		ExposedHeaders: []string{"ETag", "Location"},
		MaxAge:         300,
	}))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, apierr.NewNotFound("Route not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, apierr.NewMethodNotAllowed())
	})

	for _, rt := range s.routes() {
		var h http.Handler = rt.handler
		if rt.authenticated {
			h = s.identify(h)
		}
		r.Method(rt.method, rt.pattern, std.Handler(rt.name, s.mdlw, h))
	}
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	return r
}

// identify resolves the Authorization header into the request identity.
func (s *Server) identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := s.resolver.Resolve(r.Context(), r.Header.Get("Authorization"))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
	})
}

// writeError renders err as the JSON error envelope.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	e := apierr.From(err)
	if e.Status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	render.Status(r, e.Status)
	render.JSON(w, r, e.Envelope())
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health.Ping(r.Context()); err != nil {
			s.logger.Warn("health check failed", "error", err)
			render.Status(r, http.StatusServiceUnavailable)
			render.JSON(w, r, map[string]string{"status": "unhealthy"})
			return
		}
	}
	render.JSON(w, r, map[string]string{"status": "healthy"})
}
