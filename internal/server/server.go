// Package server exposes the comparison, curve generation and sample check
// operations over HTTP. Requests are independent; nothing is kept between
// them.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/KaramelBytes/twincheck-cli/internal/analysis"
	"github.com/KaramelBytes/twincheck-cli/internal/curve"
	"github.com/KaramelBytes/twincheck-cli/internal/ingest"
	"github.com/KaramelBytes/twincheck-cli/internal/samplecheck"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// Config holds server settings and the defaults applied to form fields the
// client leaves out.
type Config struct {
	Addr           string
	RequestTimeout time.Duration
	MaxUploadBytes int64
	CORSOrigins    []string

	Analysis     analysis.Options
	ResultsSheet string
	SkipRows     int
	Curve        curve.Options
}

// DefaultConfig mirrors the configuration defaults.
func DefaultConfig() Config {
	return Config{
		Addr:           ":8000",
		RequestTimeout: 120 * time.Second,
		MaxUploadBytes: 32 << 20,
		CORSOrigins:    []string{"*"},
		Analysis:       analysis.DefaultOptions(),
		ResultsSheet:   ingest.DefaultSheet,
		SkipRows:       samplecheck.DefaultSkipRows,
		Curve: curve.Options{
			Samples:      curve.DefaultSamples,
			Points:       curve.DefaultPoints,
			FiberRange:   curve.DefaultFiberRange,
			PolymerRange: curve.DefaultPolymerRange,
		},
	}
}

// Server serves the HTTP API.
type Server struct {
	cfg Config
	log *zap.Logger
	// NewModel builds a fresh curve model per request.
	NewModel func() curve.Model
}

// New returns a server. A nil logger discards logs.
func New(cfg Config, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultConfig().MaxUploadBytes
	}
	return &Server{
		cfg:      cfg,
		log:      log,
		NewModel: func() curve.Model { return curve.NewResidualModel() },
	}
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	if s.cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(s.cfg.RequestTimeout))
	}
	origins := s.cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		ExposedHeaders: []string{"Content-Disposition"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Post("/classic-analysis/", s.classicAnalysis)
	r.Post("/neural-analysis/", s.neuralAnalysis)
	r.Post("/excel-sample-analysis/", s.sampleAnalysis)
	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server listening", zap.String("addr", s.cfg.Addr))
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.log.Info("server shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Info("request",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)))
	})
}
