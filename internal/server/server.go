// Package server exposes the read-only query API over the holiday store.
package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/daybreak-data/holiday-registry/internal/config"
	"github.com/daybreak-data/holiday-registry/internal/model"
	"github.com/daybreak-data/holiday-registry/internal/store"
)

// Server serves canonical holidays, revision history, and run summaries.
// All endpoints are read-only; writes happen only through pipeline runs.
type Server struct {
	store store.Store
}

// New builds the HTTP handler for the query API.
func New(st store.Store, cfg config.ServerConfig) http.Handler {
	s := &Server{store: st}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/holidays", s.handleListHolidays)
		r.Get("/holidays/{id}", s.handleGetHoliday)
		r.Get("/holidays/{id}/revisions", s.handleListRevisions)
		r.Get("/runs", s.handleListRuns)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListHolidays(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	country := q.Get("country")
	if country == "" {
		writeError(w, http.StatusBadRequest, "country is required")
		return
	}

	filter := store.HolidayFilter{
		CountryCode:      country,
		IncludeRetracted: q.Get("include_retracted") == "true",
	}
	var err error
	if filter.From, err = parseDate(q.Get("from")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid from date, want YYYY-MM-DD")
		return
	}
	if filter.To, err = parseDate(q.Get("to")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid to date, want YYYY-MM-DD")
		return
	}
	if filter.Limit, err = parseIntParam(q.Get("limit")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	if filter.Offset, err = parseIntParam(q.Get("offset")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid offset")
		return
	}

	holidays, err := s.store.QueryHolidays(r.Context(), filter)
	if err != nil {
		zap.L().Error("query holidays failed", zap.String("country", country), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if holidays == nil {
		holidays = []model.CanonicalHoliday{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"holidays": holidays,
		"count":    len(holidays),
	})
}

func (s *Server) handleGetHoliday(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h, err := s.store.GetHoliday(r.Context(), id)
	if err != nil {
		zap.L().Error("get holiday failed", zap.String("id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	if h == nil {
		writeError(w, http.StatusNotFound, "holiday not found")
		return
	}
	writeJSON(w, http.StatusOK, h)
}

func (s *Server) handleListRevisions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h, err := s.store.GetHoliday(r.Context(), id)
	if err != nil {
		zap.L().Error("get holiday failed", zap.String("id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	if h == nil {
		writeError(w, http.StatusNotFound, "holiday not found")
		return
	}
	revs, err := s.store.ListRevisions(r.Context(), id)
	if err != nil {
		zap.L().Error("list revisions failed", zap.String("id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	if revs == nil {
		revs = []model.HolidayRevision{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"holiday_id": id,
		"revisions":  revs,
		"count":      len(revs),
	})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := store.RunFilter{
		CountryCode: q.Get("country"),
		Status:      model.RunStatus(q.Get("status")),
	}
	var err error
	if filter.Limit, err = parseIntParam(q.Get("limit")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	if filter.Offset, err = parseIntParam(q.Get("offset")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid offset")
		return
	}

	runs, err := s.store.ListRuns(r.Context(), filter)
	if err != nil {
		zap.L().Error("list runs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if runs == nil {
		runs = []model.RunSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"runs":  runs,
		"count": len(runs),
	})
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(model.DateLayout, s)
}

func parseIntParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, strconv.ErrSyntax
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
