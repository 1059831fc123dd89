package api

import (
	"net/http"

	"github.com/nexamediaserver/server/internal/jobs"
	"github.com/nexamediaserver/server/internal/models"
)

type startScanRequest struct {
	SectionID int64  `json:"sectionId"`
	RootPath  string `json:"rootPath"`
}

// handleStartScan implements scans.start (§4.4, §6): creates a LibraryScan
// record in Running state and enqueues the pipeline run as a background
// job rather than blocking the request.
func (s *Server) handleStartScan(w http.ResponseWriter, r *http.Request) {
	var req startScanRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	scan := &models.LibraryScan{LibrarySectionID: req.SectionID, State: models.ScanRunning}
	if err := s.deps.Scans.Create(scan); err != nil {
		writeError(w, http.StatusInternalServerError, "CREATE_FAILED", err.Error())
		return
	}

	_, err := s.deps.Jobs.EnqueueUnique(jobs.TaskScanLibrary, jobs.ScanLibraryPayload{
		ScanUUID:  scan.UUID,
		SectionID: req.SectionID,
		RootPath:  req.RootPath,
	}, "scan:"+scan.UUID.String())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "ENQUEUE_FAILED", err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, scan)
}

// handleCancelScan implements scans.cancel (§6): marks the scan cancelled
// in the database. It does not cancel the context of a pipeline run already
// in progress; that run goes on until it finishes or its own context ends.
func (s *Server) handleCancelScan(w http.ResponseWriter, r *http.Request) {
	id, err := urlUUID(r, "scanUUID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid scan id")
		return
	}
	scan, err := s.deps.Scans.GetByUUID(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
		return
	}
	if err := s.deps.Scans.SetState(scan.ID, models.ScanCancelled); err != nil {
		writeError(w, http.StatusInternalServerError, "CANCEL_FAILED", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleResumeScan implements scans.resume (§4.4 "Checkpointing / resume",
// §6): re-enqueues a crashed Running+checkpointed scan from where it left
// off.
func (s *Server) handleResumeScan(w http.ResponseWriter, r *http.Request) {
	id, err := urlUUID(r, "scanUUID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid scan id")
		return
	}
	scan, err := s.deps.Scans.GetByUUID(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
		return
	}
	if !scan.Resumable() {
		writeError(w, http.StatusConflict, "NOT_RESUMABLE", "scan is not in a resumable state")
		return
	}
	section, err := s.deps.Sections.GetByID(scan.LibrarySectionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "LOAD_SECTION_FAILED", err.Error())
		return
	}
	var root string
	if len(section.Locations) > 0 {
		root = section.Locations[0].RootPath
	}

	_, err = s.deps.Jobs.EnqueueUnique(jobs.TaskScanLibrary, jobs.ScanLibraryPayload{
		ScanUUID:  scan.UUID,
		SectionID: scan.LibrarySectionID,
		RootPath:  root,
	}, "scan:"+scan.UUID.String())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "ENQUEUE_FAILED", err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, scan)
}
