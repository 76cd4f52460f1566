// Package api provides the REST API for browsing a completed profiling run.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/loadgen/profiler/internal/storage"
	"github.com/loadgen/profiler/pkg/models"
)

// Server serves recipes, span recipes and QA reports from one output
// directory.
type Server struct {
	library *storage.Library
	router  *chi.Mux
	server  *http.Server
}

// PaginationParams contains pagination parameters from the query string.
type PaginationParams struct {
	Limit  int
	Offset int
}

// PaginatedResponse wraps a paginated response with metadata.
type PaginatedResponse struct {
	Data    interface{} `json:"data"`
	Total   int         `json:"total"`
	Limit   int         `json:"limit"`
	Offset  int         `json:"offset"`
	HasMore bool        `json:"has_more"`
}

// parsePaginationParams extracts pagination parameters from request.
// Defaults: limit=100, offset=0, max_limit=1000
func parsePaginationParams(r *http.Request) PaginationParams {
	const (
		defaultLimit = 100
		maxLimit     = 1000
	)

	limit := defaultLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
			if limit > maxLimit {
				limit = maxLimit
			}
		}
	}

	offset := 0
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if parsed, err := strconv.Atoi(offsetStr); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	return PaginationParams{
		Limit:  limit,
		Offset: offset,
	}
}

// paginateSlice applies pagination to a slice.
func paginateSlice[T any](items []T, params PaginationParams) PaginatedResponse {
	total := len(items)
	start := params.Offset
	end := start + params.Limit

	if start >= total {
		return PaginatedResponse{
			Data:    []T{},
			Total:   total,
			Limit:   params.Limit,
			Offset:  params.Offset,
			HasMore: false,
		}
	}
	if end > total {
		end = total
	}

	return PaginatedResponse{
		Data:    items[start:end],
		Total:   total,
		Limit:   params.Limit,
		Offset:  params.Offset,
		HasMore: end < total,
	}
}

// NewServer creates an API server over a completed output directory.
func NewServer(addr string, library *storage.Library) *Server {
	s := &Server{
		library: library,
		router:  chi.NewRouter(),
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.HandleHealth)

		r.Get("/recipes", s.listRecipes)
		r.Get("/recipes/{id}", s.getRecipe)

		r.Get("/spans", s.listSpanRecipes)
		r.Get("/spans/{id}", s.getSpanRecipe)

		r.Get("/summary", s.getSummary)
	})

	s.router.Get("/report", s.getReport)
	s.router.Handle("/metrics", promhttp.Handler())

	s.server = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}

	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the API server.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// recipeListing is the list-view projection of one recipe.
type recipeListing struct {
	FamilyID    string `json:"family_id"`
	MetricName  string `json:"metric_name"`
	SampleCount int64  `json:"sample_count"`
}

func (s *Server) listing(load func(string) (*models.Recipe, error), ids []string) ([]recipeListing, error) {
	listings := make([]recipeListing, 0, len(ids))
	for _, id := range ids {
		r, err := load(id)
		if err != nil {
			return nil, err
		}
		l := recipeListing{FamilyID: r.FamilyID, MetricName: r.MetricName}
		if r.Statistics != nil {
			l.SampleCount = r.Statistics.SampleCount
		}
		listings = append(listings, l)
	}
	return listings, nil
}

// listRecipes returns all family recipes.
// Supports pagination via ?limit=N&offset=M query parameters.
// Only the requested page of documents is loaded from disk.
func (s *Server) listRecipes(w http.ResponseWriter, r *http.Request) {
	params := parsePaginationParams(r)

	ids, err := s.library.ListRecipes()
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	page := paginateSlice(ids, params)
	listings, err := s.listing(s.library.GetRecipe, page.Data.([]string))
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	page.Data = listings

	s.respondJSON(w, http.StatusOK, page)
}

// getRecipe returns one family recipe by family id.
func (s *Server) getRecipe(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	recipe, err := s.library.GetRecipe(id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "recipe not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, recipe)
}

// listSpanRecipes returns all span recipes. Only the requested page of
// documents is loaded from disk.
func (s *Server) listSpanRecipes(w http.ResponseWriter, r *http.Request) {
	params := parsePaginationParams(r)

	ids, err := s.library.ListSpanRecipes()
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	page := paginateSlice(ids, params)
	listings, err := s.listing(s.library.GetSpanRecipe, page.Data.([]string))
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	page.Data = listings

	s.respondJSON(w, http.StatusOK, page)
}

// getSpanRecipe returns one span recipe by id.
func (s *Server) getSpanRecipe(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	recipe, err := s.library.GetSpanRecipe(id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "span recipe not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, recipe)
}

// getSummary returns the raw QA summary document.
func (s *Server) getSummary(w http.ResponseWriter, r *http.Request) {
	data, err := s.library.Summary()
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "summary not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// getReport returns the rendered HTML QA report.
func (s *Server) getReport(w http.ResponseWriter, r *http.Request) {
	data, err := s.library.Report()
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "report not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// respondJSON writes a JSON response.
func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError writes an error response.
func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{
		"error": message,
	})
}
