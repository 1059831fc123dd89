package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nexamediaserver/server/internal/httputil"
	"github.com/nexamediaserver/server/internal/jobs"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	httputil.WriteJSON(w, status, data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	httputil.WriteError(w, status, code, message)
}

func readJSON(r *http.Request, dst interface{}) error {
	return httputil.ReadJSON(r, dst)
}

func urlUUID(r *http.Request, name string) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, name))
}

func urlInt64(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}

func urlQueryInt64(q url.Values, name string) (int64, error) {
	v := q.Get(name)
	if v == "" {
		return 0, strconv.ErrSyntax
	}
	return strconv.ParseInt(v, 10, 64)
}

func queryInt(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// enqueueFileAnalysis schedules a FileAnalysis job directly through the job
// queue, for callers that don't have a scan.JobScheduler handy.
func (s *Server) enqueueFileAnalysis(ctx context.Context, mediaItemID int64, partIndex int, path string) error {
	id := fmt.Sprintf("analyze:%d:%d", mediaItemID, partIndex)
	_, err := s.deps.Jobs.EnqueueUnique(jobs.TaskFileAnalysis, jobs.FileAnalysisPayload{
		MediaItemID: mediaItemID, PartIndex: partIndex, Path: path,
	}, id)
	return err
}
