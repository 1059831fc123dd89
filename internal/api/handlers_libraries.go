package api

import (
	"net/http"

	"github.com/nexamediaserver/server/internal/models"
)

type addLibraryRequest struct {
	Name      string                       `json:"name"`
	Type      models.LibrarySectionType    `json:"type"`
	Settings  models.LibrarySectionSettings `json:"settings"`
	RootPaths []string                     `json:"rootPaths"`
}

func (s *Server) handleListLibraries(w http.ResponseWriter, r *http.Request) {
	sections, err := s.deps.Sections.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "LIST_FAILED", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sections)
}

// handleAddLibrary implements libraries.add (§6): creates the section and
// its root locations.
func (s *Server) handleAddLibrary(w http.ResponseWriter, r *http.Request) {
	var req addLibraryRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	section := &models.LibrarySection{
		Name:     req.Name,
		Type:     req.Type,
		Settings: req.Settings,
	}
	if err := s.deps.Sections.Create(section); err != nil {
		writeError(w, http.StatusInternalServerError, "CREATE_FAILED", err.Error())
		return
	}
	for _, root := range req.RootPaths {
		if _, err := s.deps.Sections.AddLocation(section.ID, root); err != nil {
			writeError(w, http.StatusInternalServerError, "ADD_LOCATION_FAILED", err.Error())
			return
		}
	}
	writeJSON(w, http.StatusCreated, section)
}

// handleRemoveLibrary implements libraries.remove (§6).
func (s *Server) handleRemoveLibrary(w http.ResponseWriter, r *http.Request) {
	id, err := urlUUID(r, "sectionID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid section id")
		return
	}
	if err := s.deps.Sections.Remove(id); err != nil {
		writeError(w, http.StatusInternalServerError, "REMOVE_FAILED", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleLibraryChildren implements the library children query (§6):
// paginated, ordered, letter-indexed, type-filtered listing of the top-level
// items under a section.
func (s *Server) handleLibraryChildren(w http.ResponseWriter, r *http.Request) {
	idParam, err := urlInt64(r, "sectionID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid section id")
		return
	}
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)
	mType := models.MetadataType(r.URL.Query().Get("type"))

	items, err := s.deps.Metadata.ListBySection(idParam, mType, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "LIST_FAILED", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, items)
}
