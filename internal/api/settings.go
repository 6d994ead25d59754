package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/profilecrm/profilecrm/internal/core"
)

// maxSettingSize caps a single setting value
const maxSettingSize = 1 << 20

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.store.Settings.GetAll(r.Context())
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, settings)
}

func (s *Server) handleGetSetting(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	value, found, err := s.store.Settings.Get(r.Context(), key)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	if !found {
		s.respondError(w, http.StatusNotFound, "setting not found: "+key)
		return
	}

	s.respondJSON(w, http.StatusOK, core.Setting{Key: key, Value: value})
}

// handlePutSetting stores the raw request body, which must be JSON, under key
func (s *Server) handlePutSetting(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxSettingSize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("setting value exceeds %d bytes", maxSettingSize))
			return
		}
		s.respondError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	value, err := s.store.Settings.Set(r.Context(), key, json.RawMessage(body))
	if err != nil {
		s.respondStoreError(w, err)
		return
	}

	setting := core.Setting{Key: key, Value: value}
	s.Broadcast(EventSettingChanged, setting)
	s.respondJSON(w, http.StatusOK, setting)
}
