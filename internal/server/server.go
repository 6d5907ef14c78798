// Package server exposes the stored countries over HTTP.
package server

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/yuin/goldmark"

	"github.com/TobiSchelling/CountrySync/internal/database"
	"github.com/TobiSchelling/CountrySync/internal/pipeline"
	"github.com/TobiSchelling/CountrySync/internal/report"
)

//go:embed templates/*.html
var templateFS embed.FS

var md = goldmark.New()

const (
	pageCacheSize = 16
	pageCacheTTL  = 10 * time.Minute
)

// Refresher runs a refresh.
type Refresher interface {
	Refresh(ctx context.Context) (*pipeline.Result, error)
}

// Reports reads the current summary and locates the rendered image.
type Reports interface {
	Summarize(ctx context.Context, ts time.Time) (*report.Summary, error)
	ImagePath() string
}

// Server is the HTTP API for countries.
type Server struct {
	store     database.Store
	refresher Refresher
	reports   Reports
	logger    *logrus.Logger
	pages     *pageCache
	index     *template.Template
	router    chi.Router
}

// New creates a new Server.
func New(store database.Store, refresher Refresher, reports Reports, logger *logrus.Logger) (*Server, error) {
	index, err := template.ParseFS(templateFS, "templates/index.html")
	if err != nil {
		return nil, fmt.Errorf("parsing index template: %w", err)
	}

	s := &Server{
		store:     store,
		refresher: refresher,
		reports:   reports,
		logger:    logger,
		pages:     newPageCache(pageCacheSize, pageCacheTTL),
		index:     index,
		router:    chi.NewRouter(),
	}
	s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(metricsMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/", s.handleIndex)
	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/countries", func(r chi.Router) {
		r.Get("/", s.handleList)
		r.Post("/refresh", s.handleRefresh)
		r.Get("/status", s.handleStatus)
		r.Get("/image", s.handleImage)
		r.Get("/{name}", s.handleGet)
		r.Delete("/{name}", s.handleDelete)
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	summary, err := s.reports.Summarize(r.Context(), time.Now())
	if err != nil {
		s.internalError(w, r, err)
		return
	}

	body, err := s.pages.Render(report.Markdown(summary))
	if err != nil {
		s.internalError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err = s.index.Execute(w, map[string]any{
		"Body":     body,
		"HasImage": summary.Total > 0,
	})
	if err != nil {
		s.logger.WithField("error", err).Error("rendering index")
	}
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
func Serve(ctx context.Context, srv *Server, addr string, logger *logrus.Logger) error {
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", addr).Infof("server listening on http://%s", addr)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}
