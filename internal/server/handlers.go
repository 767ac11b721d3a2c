package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/fsmcheck/internal/apperr"
	"github.com/hyperjump/fsmcheck/internal/models"
)

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var query models.SearchQuery
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := query.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Debug("search request", zap.String("query", query.Query), zap.Int("limit", query.Limit))
	response, err := s.searcher.Check(r.Context(), &query)
	if err != nil {
		if errors.Is(err, apperr.ErrIndexUnavailable) {
			s.respondError(w, http.StatusServiceUnavailable, "index not yet available")
			return
		}
		s.logger.Error("search failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, response)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	// Detached so a client disconnect does not abort the parse and build.
	res, err := s.refresher.Refresh(context.WithoutCancel(r.Context()))
	if err != nil {
		s.respondJSON(w, refreshStatus(err), res)
		return
	}
	s.respondJSON(w, http.StatusOK, res)
}

// refreshStatus maps a refresh failure to an HTTP status.
func refreshStatus(err error) int {
	switch {
	case errors.Is(err, apperr.ErrIndexIntegrityFailure):
		return http.StatusInternalServerError
	case errors.Is(err, apperr.ErrSourceUnreadable):
		return http.StatusBadGateway
	case errors.Is(err, apperr.ErrMalformedSource), errors.Is(err, apperr.ErrSuspiciousEmptyResult):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	st, err := s.settings.Load()
	if err != nil {
		s.logger.Error("settings: load failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, st)
}

func (s *Server) handleSetSource(w http.ResponseWriter, r *http.Request) {
	var src models.SourceConfig
	if err := json.NewDecoder(r.Body).Decode(&src); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if src.Kind == models.SourceRemoteDelimited && src.Location == "" {
		src.Location = s.config.Source.RemoteURL
	}
	if err := src.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.settings.SetSource(src); err != nil {
		s.logger.Error("settings: set source failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if s.watch != nil {
		file := ""
		if src.Kind.Local() {
			file = src.Location
		}
		if err := s.watch.SetFile(file); err != nil {
			s.logger.Warn("failed to watch new source", zap.String("path", file), zap.Error(err))
		}
	}
	st, err := s.settings.Load()
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, st)
}

type lastRefresh struct {
	At     time.Time             `json:"at"`
	Result *models.RefreshResult `json:"result"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resp := map[string]interface{}{
		"index": s.index.Verify(ctx),
	}
	if gen := s.index.Generation(); gen != nil {
		resp["generation"] = map[string]interface{}{"id": gen.ID, "records": gen.RecordCount}
	}
	if st, err := s.settings.Load(); err == nil {
		resp["source"] = st.Source
		resp["fingerprint"] = st.Fingerprint
	} else {
		s.logger.Error("status: load settings failed", zap.Error(err))
	}
	if last, at := s.refresher.Last(); last != nil {
		resp["last_refresh"] = lastRefresh{At: at, Result: last}
	}
	if usage, err := s.index.DiskUsage(); err == nil {
		resp["disk_usage_bytes"] = usage.TotalBytes
	}
	resp["config"] = map[string]interface{}{
		"database_path": s.config.Storage.DatabasePath,
		"index_dir":     s.config.Storage.IndexDir,
		"settings_path": s.config.Storage.SettingsPath,
		"watch_enabled": s.watch != nil,
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
