package api

import "net/http"

// handleGetSettings implements settings.getAll (§6): the full current
// key/value snapshot, serialized exactly as stored (callers decode typed
// values with config.Get).
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Settings.GetAll())
}

type updateSettingsRequest struct {
	Values map[string]any `json:"values"`
}

type updateSettingsResponse struct {
	RestartRequired bool `json:"restartRequired"`
}

// handleUpdateSettings implements settings.update (§6): applies each
// key/value pair, reporting whether any of them require a process restart to
// take effect.
func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req updateSettingsRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	var resp updateSettingsResponse
	for key, value := range req.Values {
		result, err := s.deps.Settings.Set(key, value)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "SET_FAILED", err.Error())
			return
		}
		if result.RestartRequired {
			resp.RestartRequired = true
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
