package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/profilecrm/profilecrm/internal/core"
)

type logInteractionRequest struct {
	ContactUsername string                 `json:"contactUsername"`
	Type            core.InteractionType   `json:"type"`
	Content         string                 `json:"content"`
	Metadata        map[string]interface{} `json:"metadata"`
}

func (s *Server) handleLogInteraction(w http.ResponseWriter, r *http.Request) {
	var req logInteractionRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	interaction, err := s.store.Interactions.Log(r.Context(), req.ContactUsername, req.Type, req.Content, req.Metadata)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}

	s.Broadcast(EventInteractionLogged, interaction)
	s.respondJSON(w, http.StatusCreated, interaction)
}

func (s *Server) handleGetInteraction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	interaction, err := s.store.Interactions.Get(r.Context(), id)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	if interaction == nil {
		s.respondStoreError(w, notFound(core.ErrInteractionNotFound, id))
		return
	}
	s.respondJSON(w, http.StatusOK, interaction)
}

func (s *Server) handleDeleteInteraction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.store.Interactions.Delete(r.Context(), id); err != nil {
		s.respondStoreError(w, err)
		return
	}

	s.Broadcast(EventInteractionDeleted, map[string]string{"id": id})
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
