package api

import (
	"bytes"
	"fmt"
	"net/http"
	"os"
	"os/exec"

	"github.com/nexamediaserver/server/internal/models"
	"github.com/nexamediaserver/server/internal/subtitle"
)

// handleGetSubtitle implements the subtitle-track query (§4.12, §6): converts
// a sidecar or embedded subtitle stream to the format the client requests,
// optionally windowed to [startTicks, endTicks].
func (s *Server) handleGetSubtitle(w http.ResponseWriter, r *http.Request) {
	partID, err := urlInt64(r, "mediaPartID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid media part id")
		return
	}
	streamIndex, err := urlInt64(r, "streamIndex")
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid stream index")
		return
	}
	part, err := s.deps.Media.GetPartByID(partID)
	if err != nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
		return
	}
	mediaItem, err := s.deps.Media.GetByID(part.MediaItemID)
	if err != nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
		return
	}

	stream := findSubtitleStream(mediaItem, int(streamIndex))
	if stream == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "subtitle stream not found")
		return
	}

	outputFmt := subtitle.Format(r.URL.Query().Get("format"))
	if outputFmt == "" {
		outputFmt = subtitle.FormatVTT
	}
	var startTicks, endTicks *int64
	if v, err := urlQueryInt64(r.URL.Query(), "startTicks"); err == nil {
		startTicks = &v
	}
	if v, err := urlQueryInt64(r.URL.Query(), "endTicks"); err == nil {
		endTicks = &v
	}

	inputFmt := subtitle.Format(stream.Format)
	var src *os.File
	if stream.Source == models.SubtitleSidecar {
		src, err = os.Open(stream.FilePath)
		if err != nil {
			writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
			return
		}
		defer src.Close()
	}

	w.Header().Set("Content-Type", subtitle.GetMimeType(outputFmt))

	if stream.Source == models.SubtitleEmbedded {
		idx := 0
		if stream.StreamIndex != nil {
			idx = *stream.StreamIndex
		}
		raw, err := extractEmbeddedSubtitle(s.deps.Config.FFmpegPath, part.AbsolutePath, idx, inputFmt)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "EXTRACT_FAILED", err.Error())
			return
		}
		if err := subtitle.Convert(s.deps.Config.FFmpegPath, bytes.NewReader(raw), part.AbsolutePath, idx, inputFmt, outputFmt, startTicks, endTicks, w); err != nil {
			writeError(w, http.StatusInternalServerError, "CONVERT_FAILED", err.Error())
		}
		return
	}

	idx := 0
	if stream.StreamIndex != nil {
		idx = *stream.StreamIndex
	}
	if err := subtitle.Convert(s.deps.Config.FFmpegPath, src, part.AbsolutePath, idx, inputFmt, outputFmt, startTicks, endTicks, w); err != nil {
		writeError(w, http.StatusInternalServerError, "CONVERT_FAILED", err.Error())
	}
}

func findSubtitleStream(item *models.MediaItem, streamIndex int) *models.SubtitleStream {
	for i := range item.SubtitleStreams {
		st := &item.SubtitleStreams[i]
		if st.StreamIndex != nil && *st.StreamIndex == streamIndex {
			return st
		}
	}
	return nil
}

// extractEmbeddedSubtitle pulls a text-based subtitle stream out of its
// container, copying rather than re-encoding since the container's codec
// already matches inputFmt; image-based formats are extracted directly by
// subtitle.Convert instead.
func extractEmbeddedSubtitle(ffmpegPath, mediaPath string, streamIndex int, inputFmt subtitle.Format) ([]byte, error) {
	muxer := textMuxerFor(inputFmt)
	cmd := exec.Command(ffmpegPath,
		"-i", mediaPath,
		"-map", fmt.Sprintf("0:%d", streamIndex),
		"-c:s", "copy",
		"-f", muxer, "pipe:1")
	return cmd.Output()
}

func textMuxerFor(f subtitle.Format) string {
	switch f {
	case subtitle.FormatVTT:
		return "webvtt"
	case subtitle.FormatASS:
		return "ass"
	default:
		return "srt"
	}
}
