package api

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/nexamediaserver/server/internal/models"
)

type createPlaylistRequest struct {
	PlaybackSessionUUID string                  `json:"playbackSessionUuid"`
	SeedType             models.PlaylistSeedType `json:"seedType"`
	OriginatorID         int64                   `json:"originatorId,omitempty"`
	ExplicitIDs          []int64                 `json:"explicitIds,omitempty"`
}

// handleCreatePlaylist implements playlists.create (§4.11, §6).
func (s *Server) handleCreatePlaylist(w http.ResponseWriter, r *http.Request) {
	var req createPlaylistRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	sessionUUID, err := uuid.Parse(req.PlaybackSessionUUID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid playback session id")
		return
	}
	seed := models.PlaylistSeed{Type: req.SeedType, OriginatorID: req.OriginatorID, ExplicitIDs: req.ExplicitIDs}
	gen, err := s.deps.PlaylistSvc.Create(sessionUUID, seed)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "CREATE_FAILED", err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, gen)
}

// handleGetPlaylistChunk implements playlists.getChunk (§4.11, §6).
func (s *Server) handleGetPlaylistChunk(w http.ResponseWriter, r *http.Request) {
	id, err := urlUUID(r, "playlistUUID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid playlist id")
		return
	}
	start := queryInt(r, "start", 0)
	limit := queryInt(r, "limit", 0)
	chunk, err := s.deps.PlaylistSvc.GetChunk(id, start, limit)
	if err != nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, chunk)
}

// handlePlaylistNext implements playlists.next (§4.11, §6).
func (s *Server) handlePlaylistNext(w http.ResponseWriter, r *http.Request) {
	id, err := urlUUID(r, "playlistUUID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid playlist id")
		return
	}
	item, err := s.deps.PlaylistSvc.Next(id)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "NAVIGATE_FAILED", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// handlePlaylistPrevious implements playlists.previous (§4.11, §6).
func (s *Server) handlePlaylistPrevious(w http.ResponseWriter, r *http.Request) {
	id, err := urlUUID(r, "playlistUUID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid playlist id")
		return
	}
	item, err := s.deps.PlaylistSvc.Previous(id)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "NAVIGATE_FAILED", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, item)
}

type playlistJumpRequest struct {
	Index int `json:"index"`
}

// handlePlaylistJump implements playlists.jump (§4.11, §6).
func (s *Server) handlePlaylistJump(w http.ResponseWriter, r *http.Request) {
	id, err := urlUUID(r, "playlistUUID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid playlist id")
		return
	}
	var req playlistJumpRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	item, err := s.deps.PlaylistSvc.JumpTo(id, req.Index)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "NAVIGATE_FAILED", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, item)
}

type playlistToggleRequest struct {
	Enabled bool `json:"enabled"`
}

// handlePlaylistShuffle implements playlists.setShuffle (§4.11, §6, §8
// round-trip law).
func (s *Server) handlePlaylistShuffle(w http.ResponseWriter, r *http.Request) {
	id, err := urlUUID(r, "playlistUUID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid playlist id")
		return
	}
	var req playlistToggleRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	gen, err := s.deps.PlaylistSvc.SetShuffle(id, req.Enabled)
	if err != nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, gen)
}

// handlePlaylistRepeat implements playlists.setRepeat (§4.11, §6).
func (s *Server) handlePlaylistRepeat(w http.ResponseWriter, r *http.Request) {
	id, err := urlUUID(r, "playlistUUID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid playlist id")
		return
	}
	var req playlistToggleRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	gen, err := s.deps.PlaylistSvc.SetRepeat(id, req.Enabled)
	if err != nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, gen)
}
