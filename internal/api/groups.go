package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/profilecrm/profilecrm/internal/core"
)

// groupRequest is the body for creating a list or tag
type groupRequest struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

// --- Lists ---

func (s *Server) handleGetLists(w http.ResponseWriter, r *http.Request) {
	lists, err := s.store.Lists.GetAll(r.Context())
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, lists)
}

func (s *Server) handleCreateList(w http.ResponseWriter, r *http.Request) {
	var req groupRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	list, err := s.store.Lists.Create(r.Context(), req.Name, req.Color)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}

	s.Broadcast(EventListCreated, list)
	s.respondJSON(w, http.StatusCreated, list)
}

func (s *Server) handleGetList(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	list, err := s.store.Lists.Get(r.Context(), id)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	if list == nil {
		s.respondStoreError(w, notFound(core.ErrListNotFound, id))
		return
	}
	s.respondJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetListContacts(w http.ResponseWriter, r *http.Request) {
	contacts, err := s.store.Contacts.GetByList(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, contacts)
}

func (s *Server) handleDeleteList(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.store.Lists.Delete(r.Context(), id); err != nil {
		s.respondStoreError(w, err)
		return
	}

	s.Broadcast(EventListDeleted, map[string]string{"id": id})
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// --- Tags ---

func (s *Server) handleGetTags(w http.ResponseWriter, r *http.Request) {
	tags, err := s.store.Tags.GetAll(r.Context())
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, tags)
}

func (s *Server) handleCreateTag(w http.ResponseWriter, r *http.Request) {
	var req groupRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	tag, err := s.store.Tags.Create(r.Context(), req.Name, req.Color)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}

	s.Broadcast(EventTagCreated, tag)
	s.respondJSON(w, http.StatusCreated, tag)
}

func (s *Server) handleGetTag(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	tag, err := s.store.Tags.Get(r.Context(), id)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	if tag == nil {
		s.respondStoreError(w, notFound(core.ErrTagNotFound, id))
		return
	}
	s.respondJSON(w, http.StatusOK, tag)
}

func (s *Server) handleDeleteTag(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.store.Tags.Delete(r.Context(), id); err != nil {
		s.respondStoreError(w, err)
		return
	}

	s.Broadcast(EventTagDeleted, map[string]string{"id": id})
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
