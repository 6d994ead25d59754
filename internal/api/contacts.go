package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/profilecrm/profilecrm/internal/core"
)

// handleGetContacts lists contacts. q runs a search; list and stage filter
// by index. Search wins when both are given.
func (s *Server) handleGetContacts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	var (
		contacts []*core.Contact
		err      error
	)

	list, stage := query.Get("list"), query.Get("stage")
	switch {
	case query.Has("q"):
		contacts, err = s.store.Contacts.Search(ctx, query.Get("q"))
	case list != "":
		contacts, err = s.store.Contacts.GetByList(ctx, list)
	case stage != "":
		contacts, err = s.store.Contacts.GetByPipelineStage(ctx, stage)
	default:
		contacts, err = s.store.Contacts.GetAll(ctx)
	}
	if err != nil {
		s.respondStoreError(w, err)
		return
	}

	// list and stage together narrow the list lookup by stage
	if !query.Has("q") && list != "" && stage != "" {
		filtered := contacts[:0]
		for _, c := range contacts {
			if c.PipelineStage == stage {
				filtered = append(filtered, c)
			}
		}
		contacts = filtered
	}

	s.respondJSON(w, http.StatusOK, contacts)
}

func (s *Server) handleGetContact(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	contact, err := s.store.Contacts.Get(r.Context(), username)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	if contact == nil {
		s.respondStoreError(w, notFound(core.ErrContactNotFound, username))
		return
	}

	s.respondJSON(w, http.StatusOK, contact)
}

// handleSaveContact upserts a whole contact. On the keyed route the path
// username wins over an empty body username and must match a non-empty one.
func (s *Server) handleSaveContact(w http.ResponseWriter, r *http.Request) {
	var contact core.Contact
	if !s.decodeJSON(w, r, &contact) {
		return
	}

	if username := chi.URLParam(r, "username"); username != "" {
		if contact.Username != "" && contact.Username != username {
			s.respondError(w, http.StatusBadRequest, "username in body does not match path")
			return
		}
		contact.Username = username
	}

	saved, err := s.store.Contacts.Save(r.Context(), &contact)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}

	s.Broadcast(EventContactSaved, saved)
	s.respondJSON(w, http.StatusOK, saved)
}

func (s *Server) handleUpdateContact(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	var patch core.ContactPatch
	if !s.decodeJSON(w, r, &patch) {
		return
	}

	updated, err := s.store.Contacts.Update(r.Context(), username, patch)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}

	s.Broadcast(EventContactSaved, updated)
	s.respondJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteContact(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	if err := s.store.Contacts.Delete(r.Context(), username); err != nil {
		s.respondStoreError(w, err)
		return
	}

	s.Broadcast(EventContactDeleted, map[string]string{"username": username})
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleGetContactInteractions(w http.ResponseWriter, r *http.Request) {
	interactions, err := s.store.Interactions.GetForContact(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, interactions)
}

// handleGetFollowUps returns contacts due for follow-up at or before the
// before parameter (RFC 3339), defaulting to now
func (s *Server) handleGetFollowUps(w http.ResponseWriter, r *http.Request) {
	before := time.Now().UTC()
	if v := r.URL.Query().Get("before"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "before must be an RFC 3339 timestamp")
			return
		}
		before = t
	}

	contacts, err := s.store.Contacts.DueFollowUps(r.Context(), before)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, contacts)
}
