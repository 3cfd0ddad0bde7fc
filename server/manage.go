package server

import (
	"net/http"
	"regexp"
)

var (
	viewRegex  = regexp.MustCompile(`^[a-z][a-zA-Z0-9_-]{0,31}$`)
	queryRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9]{0,31}(:[A-Za-z0-9._-]{1,64})?$`)
	idRegex    = regexp.MustCompile(`^[0-9a-f-]{36}$`)
)

// handleOpenView clears the badge of a view the user just opened.
func (s *Server) handleOpenView(w http.ResponseWriter, r *http.Request) {
	view := r.PathValue("view")
	if !viewRegex.MatchString(view) {
		http.Error(w, "Invalid view", http.StatusBadRequest)
		return
	}

	s.presenter.ClearBadge(view)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDismiss(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !idRegex.MatchString(id) {
		http.Error(w, "Invalid notification id", http.StatusBadRequest)
		return
	}

	if !s.presenter.Dismiss(id) {
		http.Error(w, "Notification not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleQuery serves a cached query, refetching it first when a real-time
// event marked it stale.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if !queryRegex.MatchString(name) {
		http.Error(w, "Invalid query name", http.StatusBadRequest)
		return
	}

	data, err := s.queries.Get(r.Context(), name)
	switch {
	case err == nil:
	case s.isUnknownQuery(err):
		http.Error(w, "Unknown query", http.StatusNotFound)
		return
	case s.isNotFound(err):
		http.Error(w, "Not found", http.StatusNotFound)
		return
	case s.isUnauthorized(err):
		http.Error(w, "Session expired", http.StatusUnauthorized)
		return
	default:
		s.logger.Error("Query fetch failed", "query", name, "error", err)
		http.Error(w, "Upstream request failed", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		s.logger.Warn("Failed to write response", "error", err)
	}
}
