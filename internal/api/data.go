package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/profilecrm/profilecrm/internal/storage"
)

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, stats)
}

// handleExport streams the export bundle as a download
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	bundle, err := s.store.Export(r.Context())
	if err != nil {
		s.respondStoreError(w, err)
		return
	}

	filename := fmt.Sprintf("profilecrm-export-%s.json", time.UnixMilli(bundle.ExportedAt).UTC().Format("2006-01-02"))
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	if err := storage.WriteBundle(w, bundle); err != nil {
		s.log.WithError(err).Warn("failed to write export")
	}
}

// handleImport applies a bundle. A failure part way reports the partial
// summary alongside the error.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	bundle, err := storage.ReadBundle(r.Body)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}

	summary, err := s.store.Import(r.Context(), bundle)
	if err != nil {
		body := map[string]interface{}{"error": err.Error()}
		if summary != nil {
			body["summary"] = summary
		}
		s.respondJSON(w, statusFor(err), body)
		return
	}

	s.Broadcast(EventImportCompleted, summary)
	s.respondJSON(w, http.StatusOK, summary)
}

func (s *Server) handleCheckIntegrity(w http.ResponseWriter, r *http.Request) {
	report, err := s.store.CheckReferences(r.Context())
	if err != nil {
		s.respondStoreError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"clean":  report.Clean(),
		"report": report,
	})
}
