package api

import (
	"context"
	"net/http"

	"github.com/nexamediaserver/server/internal/scan"
)

// handleGetItem implements the item detail query (§6).
func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	id, err := urlUUID(r, "itemUUID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid item id")
		return
	}
	item, err := s.deps.Metadata.GetByUUID(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, item)
}

type refreshMetadataRequest struct {
	OverrideFields []string `json:"overrideFields,omitempty"`
}

// handleRefreshMetadata implements items.refreshMetadata (§4.4, §6): runs
// the agent fan-out synchronously so the caller sees the merged result.
func (s *Server) handleRefreshMetadata(w http.ResponseWriter, r *http.Request) {
	id, err := urlUUID(r, "itemUUID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid item id")
		return
	}
	var req refreshMetadataRequest
	_ = readJSON(r, &req)

	item, err := s.deps.Metadata.GetByUUID(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
		return
	}
	if err := s.deps.Orchestrator.RefreshWithOverrides(r.Context(), item, req.OverrideFields, scan.RefreshOptions{}); err != nil {
		writeError(w, http.StatusInternalServerError, "REFRESH_FAILED", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// handleAnalyzeItem implements items.analyze (§6): re-runs file analysis for
// every part of every media item backing this metadata item.
func (s *Server) handleAnalyzeItem(w http.ResponseWriter, r *http.Request) {
	id, err := urlUUID(r, "itemUUID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid item id")
		return
	}
	item, err := s.deps.Metadata.GetByUUID(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
		return
	}
	mediaItems, err := s.deps.Media.ListByMetadataItem(item.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "LIST_FAILED", err.Error())
		return
	}
	for _, mi := range mediaItems {
		for _, part := range mi.Parts {
			_ = s.enqueueFileAnalysis(context.Background(), mi.ID, part.PartIndex, part.AbsolutePath)
		}
	}
	w.WriteHeader(http.StatusAccepted)
}

// handlePromoteItem implements items.promote (§6).
func (s *Server) handlePromoteItem(w http.ResponseWriter, r *http.Request) {
	s.setPromoted(w, r, true)
}

// handleUnpromoteItem implements items.unpromote (§6).
func (s *Server) handleUnpromoteItem(w http.ResponseWriter, r *http.Request) {
	s.setPromoted(w, r, false)
}

func (s *Server) setPromoted(w http.ResponseWriter, r *http.Request, promoted bool) {
	id, err := urlUUID(r, "itemUUID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid item id")
		return
	}
	item, err := s.deps.Metadata.GetByUUID(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
		return
	}
	if err := s.deps.Metadata.SetPromoted(item.ID, promoted); err != nil {
		writeError(w, http.StatusInternalServerError, "UPDATE_FAILED", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
