package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/haunt-core/internal/history"
)

// handleListRuns returns a page of activation history.
//
// Query parameters: sequence, status, source, limit, offset.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeUnavailable(w, "run history is disabled")
		return
	}

	q := r.URL.Query()
	filter := history.Filter{
		Sequence: q.Get("sequence"),
		Status:   q.Get("status"),
		Source:   q.Get("source"),
	}

	var err error
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		writeBadRequest(w, "limit must be a non-negative integer")
		return
	}
	if filter.Offset, err = intParam(q.Get("offset")); err != nil {
		writeBadRequest(w, "offset must be a non-negative integer")
		return
	}

	result, err := s.history.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list runs", "error", err)
		writeInternalError(w, "failed to list runs")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleGetRun returns one run by ID.
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeUnavailable(w, "run history is disabled")
		return
	}

	id := chi.URLParam(r, "id")
	run, err := s.history.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, history.ErrNotFound) {
			writeNotFound(w, "run not found")
			return
		}
		s.logger.Error("failed to get run", "id", id, "error", err)
		writeInternalError(w, "failed to get run")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, strconv.ErrRange
	}
	return n, nil
}
