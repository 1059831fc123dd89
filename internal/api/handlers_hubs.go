package api

import (
	"net/http"

	"github.com/nexamediaserver/server/internal/auth"
	"github.com/nexamediaserver/server/internal/models"
)

// handleGetHubs implements the hub-set query (§6): returns the ordered set of
// content rails for a context (home, library discover, or item detail).
func (s *Server) handleGetHubs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	hubCtx := models.HubContext(q.Get("context"))
	if hubCtx == "" {
		hubCtx = models.HubContextHome
	}

	var sectionID *int64
	if v, err := urlQueryInt64(q, "sectionId"); err == nil {
		sectionID = &v
	}
	var mType *models.MetadataType
	if v := q.Get("type"); v != "" {
		t := models.MetadataType(v)
		mType = &t
	}
	limit := queryInt(r, "limit", 0)

	var userID string
	if u := auth.UserFromContext(r.Context()); u != nil {
		userID = u.UserID
	}

	hubs, err := s.deps.HubSvc.GetHubSet(hubCtx, sectionID, mType, userID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "HUBS_FAILED", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, hubs)
}

// handleSaveHubConfig implements hubs.saveConfiguration (§6): persists which
// hub types are enabled/disabled/hidden for a given context.
func (s *Server) handleSaveHubConfig(w http.ResponseWriter, r *http.Request) {
	var cfg models.HubConfiguration
	if err := readJSON(r, &cfg); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	if err := s.deps.HubSvc.SaveHubConfiguration(&cfg); err != nil {
		writeError(w, http.StatusInternalServerError, "SAVE_FAILED", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// handleGetDetailFields implements the detail-field layout query (§6): which
// fields and groups render on an item detail page for this type/section.
func (s *Server) handleGetDetailFields(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mType := models.MetadataType(q.Get("type"))
	var sectionID *int64
	if v, err := urlQueryInt64(q, "sectionId"); err == nil {
		sectionID = &v
	}

	fields, err := s.deps.HubSvc.GetDetailFields(mType, sectionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "DETAIL_FIELDS_FAILED", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, fields)
}
