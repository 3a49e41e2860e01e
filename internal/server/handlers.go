package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/filmdex/internal/backend"
	"github.com/hyperjump/filmdex/internal/indexer"
	"github.com/hyperjump/filmdex/internal/models"
	"github.com/hyperjump/filmdex/internal/storage"
)

const maxBodyBytes = 1 << 20

// response is the envelope of every single-record and list response.
type response struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// paginatedResponse flattens the page metadata next to the envelope fields.
type paginatedResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	*models.PaginatedResult
}

type backendHealth struct {
	Name      string `json:"name"`
	SizeBytes *int64 `json:"size_bytes,omitempty"`
}

type healthResponse struct {
	Status   string          `json:"status"`
	Backends []backendHealth `json:"backends,omitempty"`
}

func (s *Server) handleCreateMovie(w http.ResponseWriter, r *http.Request) {
	var input models.MovieInput
	if err := s.decodeBody(w, r, &input); err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.logger.Debug("create movie request", zap.String("title", input.Title))
	movie, err := s.catalog.CreateRecord(r.Context(), &input)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, response{Success: true, Message: "Movie Added", Data: movie})
}

func (s *Server) handleSearchMovies(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	result, err := s.catalog.SearchRecords(r.Context(), filter)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, paginatedResponse{Success: true, Message: "Success", PaginatedResult: result})
}

func (s *Server) handleGetMovie(w http.ResponseWriter, r *http.Request) {
	id, err := movieID(r)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	movie, err := s.catalog.GetRecord(r.Context(), id)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, response{Success: true, Message: "Success", Data: movie})
}

func (s *Server) handleUpdateMovie(w http.ResponseWriter, r *http.Request) {
	id, err := movieID(r)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	var patch models.MoviePatch
	if err := s.decodeBody(w, r, &patch); err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.logger.Debug("update movie request", zap.String("id", id))
	movie, err := s.catalog.UpdateRecord(r.Context(), id, &patch)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, response{Success: true, Message: "Success", Data: movie})
}

func (s *Server) handleDeleteMovie(w http.ResponseWriter, r *http.Request) {
	id, err := movieID(r)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.logger.Debug("delete movie request", zap.String("id", id))
	if err := s.catalog.DeleteRecord(r.Context(), id); err != nil {
		s.respondErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListDirectors(w http.ResponseWriter, r *http.Request) {
	directors, err := s.catalog.ListDirectors(r.Context())
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	if directors == nil {
		directors = []string{}
	}
	s.respondJSON(w, http.StatusOK, response{Success: true, Message: "Success", Data: directors})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	names := make([]string, 0, len(s.dataPaths))
	for name := range s.dataPaths {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		h := backendHealth{Name: name}
		if size, err := storage.SizeOnDisk(s.dataPaths[name]); err == nil {
			h.SizeBytes = &size
		} else {
			s.logger.Debug("health: size on disk unavailable", zap.String("backend", name), zap.Error(err))
		}
		resp.Backends = append(resp.Backends, h)
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// movieID returns the canonical form of the {id} URL parameter.
func movieID(r *http.Request) (string, error) {
	raw := chi.URLParam(r, "id")
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: id %q is not a valid UUID", models.ErrInvalid, raw)
	}
	return id.String(), nil
}

// parseFilter reads the search query parameters. Blank values are treated as absent.
func parseFilter(r *http.Request) (*models.Filter, error) {
	q := r.URL.Query()
	f := &models.Filter{}
	intParam := func(name string) (*int, error) {
		raw := q.Get(name)
		if raw == "" {
			return nil, nil
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s must be an integer", models.ErrInvalid, name)
		}
		return &v, nil
	}
	page, err := intParam("page")
	if err != nil {
		return nil, err
	}
	if page != nil {
		if *page < 1 {
			return nil, fmt.Errorf("%w: page must be >= 1", models.ErrInvalid)
		}
		f.Page = *page
	}
	limit, err := intParam("limit")
	if err != nil {
		return nil, err
	}
	if limit != nil {
		if *limit < 1 {
			return nil, fmt.Errorf("%w: limit must be >= 1", models.ErrInvalid)
		}
		f.Limit = *limit
	}
	if f.ReleaseYear, err = intParam("release_year"); err != nil {
		return nil, err
	}
	if f.Rating, err = intParam("rating"); err != nil {
		return nil, err
	}
	if v := q.Get("director"); v != "" {
		f.Director = &v
	}
	if v := q.Get("search"); v != "" {
		f.Search = &v
	}
	return f, nil
}

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%w: read body: %v", models.ErrInvalid, err)
	}
	return models.DecodeStrict(data, v)
}

// statusFor maps a core error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, backend.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, backend.ErrBackendUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, backend.ErrConfiguration),
		errors.Is(err, backend.ErrWriteRejected),
		errors.Is(err, models.ErrInvalid):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondErr(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	fields := []zap.Field{
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Int("status", status),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", fields...)
	} else {
		s.logger.Debug("request rejected", fields...)
	}
	s.respondJSON(w, status, response{Success: false, Message: errorMessage(err)})
}

// errorMessage hides per-backend causes of a failed write.
func errorMessage(err error) string {
	var werr *indexer.WriteError
	if errors.As(err, &werr) {
		return fmt.Sprintf("%s failed: %v", werr.Op, werr.Kind)
	}
	return err.Error()
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
