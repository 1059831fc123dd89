package api

import (
	"net/http"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"
)

type directoryEntry struct {
	Name  string `json:"name"`
	Path  string `json:"path"`
	IsDir bool   `json:"isDir"`
}

// handleBrowseDirectory implements the filesystem browse query (§6): used by
// the library-add flow to let an operator pick a root path from the server's
// own filesystem.
func (s *Server) handleBrowseDirectory(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		path = "/"
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		writeError(w, http.StatusBadRequest, "BROWSE_FAILED", err.Error())
		return
	}

	out := make([]directoryEntry, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		out = append(out, directoryEntry{Name: e.Name(), Path: filepath.Join(path, e.Name()), IsDir: true})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	writeJSON(w, http.StatusOK, out)
}

// handleListJobNotifications implements the job-notification listing query
// (§4.6, §6): a snapshot of every tracked background job stream.
func (s *Server) handleListJobNotifications(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Fabric.List())
}

// handleListTranscodes implements the transcode listing query (§4.9, §6):
// every transcode job for a session, or every running job if no session is
// given.
func (s *Server) handleListTranscodes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("sessionUuid")
	if q != "" {
		sessionID, err := uuid.Parse(q)
		if err != nil {
			writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid session id")
			return
		}
		jobs, err := s.deps.Transcodes.ListBySession(sessionID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "LIST_FAILED", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, jobs)
		return
	}
	jobs, err := s.deps.Transcodes.ListRunning()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "LIST_FAILED", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}
