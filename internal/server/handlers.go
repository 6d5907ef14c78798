package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"

	"github.com/TobiSchelling/CountrySync/internal/database"
	"github.com/TobiSchelling/CountrySync/internal/merge"
	"github.com/TobiSchelling/CountrySync/internal/source"
)

type errorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

type refreshResponse struct {
	Message         string    `json:"message"`
	Total           int       `json:"total"`
	LastRefreshedAt time.Time `json:"last_refreshed_at"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	render.Status(r, status)
	render.JSON(w, r, v)
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.WithFields(logrus.Fields{
		"path":  r.URL.Path,
		"error": err,
	}).Error("internal error")
	writeJSON(w, r, http.StatusInternalServerError, errorResponse{Error: "Internal server error"})
}

// handleRefresh runs the refresh detached from the request so that a client
// disconnect cannot cut the upserts short.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	res, err := s.refresher.Refresh(context.WithoutCancel(r.Context()))
	if err != nil {
		if errors.Is(err, source.ErrSourceUnavailable) {
			writeJSON(w, r, http.StatusServiceUnavailable, errorResponse{
				Error:   "External data source unavailable",
				Details: "Could not fetch data from " + source.SourceName(err),
			})
			return
		}
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, refreshResponse{
		Message:         res.Message,
		Total:           res.Total,
		LastRefreshedAt: res.LastRefreshedAt,
	})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var f database.Filter
	if region := merge.NormalizeRegion(q.Get("region")); region != "" {
		f.Region = &region
	}
	if currency := merge.NormalizeCurrency(q.Get("currency")); currency != "" {
		f.Currency = &currency
	}
	switch sort := strings.ToLower(q.Get("sort")); sort {
	case "":
	case "gdp_desc":
		f.SortGDPDesc = true
	default:
		writeJSON(w, r, http.StatusBadRequest, errorResponse{
			Error:   "Validation failed",
			Details: map[string]string{"sort": "must be gdp_desc"},
		})
		return
	}

	countries, err := s.store.ListCountries(r.Context(), f)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, countries)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	c, err := s.store.GetCountryByName(r.Context(), name)
	if errors.Is(err, database.ErrNotFound) {
		writeJSON(w, r, http.StatusNotFound, errorResponse{Error: "Country not found"})
		return
	}
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, c)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	c, err := s.store.DeleteCountryByName(r.Context(), name)
	if errors.Is(err, database.ErrNotFound) {
		writeJSON(w, r, http.StatusNotFound, errorResponse{Error: "Country not found"})
		return
	}
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, c)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.store.GetStatus(r.Context())
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, st)
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	f, err := os.Open(s.reports.ImagePath())
	if errors.Is(err, os.ErrNotExist) {
		writeJSON(w, r, http.StatusNotFound, errorResponse{Error: "Summary image not found"})
		return
	}
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if _, err := s.store.GetStatus(r.Context()); err != nil {
		s.logger.WithField("error", err).Warn("health check failed")
		writeJSON(w, r, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}
