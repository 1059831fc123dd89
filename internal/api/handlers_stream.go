package api

import (
	"errors"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nexamediaserver/server/internal/models"
	"github.com/nexamediaserver/server/internal/repository"
	"github.com/nexamediaserver/server/internal/transcode"
)

// handleDirectPlay implements stream.direct (§4.8, §6): serves the source
// file byte-for-byte, relying on net/http's Range support for seeking.
func (s *Server) handleDirectPlay(w http.ResponseWriter, r *http.Request) {
	partID, err := urlInt64(r, "mediaPartID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid media part id")
		return
	}
	part, err := s.deps.Media.GetPartByID(partID)
	if err != nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
		return
	}
	http.ServeFile(w, r, part.AbsolutePath)
}

// handleDirectStream implements stream.remux (§4.8, §6): remuxes the source
// container into fragmented MP4 without re-encoding, streamed as it's
// produced.
func (s *Server) handleDirectStream(w http.ResponseWriter, r *http.Request) {
	partID, err := urlInt64(r, "mediaPartID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid media part id")
		return
	}
	part, err := s.deps.Media.GetPartByID(partID)
	if err != nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
		return
	}

	args := []string{
		"-i", part.AbsolutePath,
		"-c", "copy",
		"-movflags", "frag_keyframe+empty_moov+default_base_moof",
		"-f", "mp4", "pipe:1",
	}
	cmd := exec.CommandContext(r.Context(), s.deps.Config.FFmpegPath, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "REMUX_FAILED", err.Error())
		return
	}
	if err := cmd.Start(); err != nil {
		writeError(w, http.StatusInternalServerError, "REMUX_FAILED", err.Error())
		return
	}
	defer cmd.Wait()

	w.Header().Set("Content-Type", "video/mp4")
	w.WriteHeader(http.StatusOK)
	io.Copy(w, stdout)
}

// handleTranscodeManifest implements stream.transcodeManifest (§4.9, §6):
// creates and starts the job on first request, then serves the current DASH
// manifest. Subsequent requests before the manifest is written get a 202,
// telling the client to retry.
func (s *Server) handleTranscodeManifest(w http.ResponseWriter, r *http.Request) {
	jobUUID, err := urlUUID(r, "jobUUID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid job id")
		return
	}

	job, err := s.deps.Transcodes.GetByUUID(jobUUID)
	if errors.Is(err, repository.ErrNotFound) {
		job, err = s.startTranscodeJob(r, jobUUID)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "TRANSCODE_START_FAILED", err.Error())
			return
		}
	} else if err != nil {
		writeError(w, http.StatusInternalServerError, "LOOKUP_FAILED", err.Error())
		return
	}

	manifestPath := s.deps.Paths.TranscodeManifestPath(job.UUID)
	if _, statErr := os.Stat(manifestPath); statErr != nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	w.Header().Set("Content-Type", "application/dash+xml")
	http.ServeFile(w, r, manifestPath)
}

// handleTranscodeSegment implements stream.transcodeSegment (§4.9, §6):
// serves one already-written segment file and pings the job to reset its
// idle timer.
func (s *Server) handleTranscodeSegment(w http.ResponseWriter, r *http.Request) {
	jobUUID, err := urlUUID(r, "jobUUID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid job id")
		return
	}
	segment := chi.URLParam(r, "segment")

	if err := s.deps.TranscodeMg.Ping(jobUUID); err != nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
		return
	}

	segmentPath := filepath.Join(s.deps.Paths.TranscodeDir(jobUUID), segment)
	http.ServeFile(w, r, segmentPath)
}

// startTranscodeJob lazily creates and starts a transcode job for a
// manifest/segment request the job store hasn't seen yet. The session and
// media part are supplied by the client from the StreamPlan it already
// holds, since the manifest URL alone only encodes the job id (§4.8
// decidePlan).
func (s *Server) startTranscodeJob(r *http.Request, jobUUID uuid.UUID) (*models.TranscodeJob, error) {
	q := r.URL.Query()
	sessionUUID, err := uuid.Parse(q.Get("sessionUuid"))
	if err != nil {
		return nil, err
	}
	partID, err := urlQueryInt64(q, "mediaPartId")
	if err != nil {
		return nil, err
	}
	part, err := s.deps.Media.GetPartByID(partID)
	if err != nil {
		return nil, err
	}

	ok, err := s.deps.TranscodeMg.CanStartNewJob()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.New("transcode: max concurrent jobs reached")
	}

	outputDir := s.deps.Paths.TranscodeDir(jobUUID)
	opts := transcode.Options{
		SegmentLengthS:   4,
		SegmentPrefix:    "chunk-stream",
		SegmentExtension: ".m4s",
		FFmpegArgs: []string{
			"-i", part.AbsolutePath,
			"-map", "0:v:0", "-map", "0:a:0?",
			"-c:v", "libx264", "-c:a", "aac",
			"-f", "dash",
			"-seg_duration", "4",
			"-use_template", "1", "-use_timeline", "1",
			"-init_seg_name", "init-$RepresentationID$.m4s",
			"-media_seg_name", "chunk-stream-$RepresentationID$-$Number%05d$.m4s",
			s.deps.Paths.TranscodeManifestPath(jobUUID),
		},
	}
	// The job's UUID must match the one already embedded in the manifest
	// URL the client was handed at decide time, so it's set explicitly
	// rather than through transcode.Manager.Create (which would mint its
	// own random one).
	job := &models.TranscodeJob{
		UUID:              jobUUID,
		PlaybackSessionID: sessionUUID,
		MediaPartID:       partID,
		Protocol:          models.ProtocolDASH,
		OutputPath:        s.deps.Paths.TranscodeManifestPath(jobUUID),
		State:             models.TranscodeQueued,
		SegmentLengthS:    opts.SegmentLengthS,
		SegmentPrefix:     opts.SegmentPrefix,
		SegmentExtension:  opts.SegmentExtension,
	}
	if err := s.deps.Transcodes.Create(job); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, err
	}
	if err := s.deps.TranscodeMg.Start(r.Context(), s.deps.Config.FFmpegPath, job, opts); err != nil {
		return nil, err
	}
	return job, nil
}
