package api

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/nexamediaserver/server/internal/auth"
	"github.com/nexamediaserver/server/internal/models"
	"github.com/nexamediaserver/server/internal/playback"
)

// handleUpsertCapability implements playback.upsertCapability (§4.8, §6).
func (s *Server) handleUpsertCapability(w http.ResponseWriter, r *http.Request) {
	var profile models.CapabilityProfile
	if err := readJSON(r, &profile); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	user := auth.UserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing session")
		return
	}
	userID, err := uuid.Parse(user.UserID)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid session user")
		return
	}
	profile.UserID = userID
	version, err := s.deps.Playback.UpsertCapabilityProfile(&profile)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "UPSERT_FAILED", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"version": version})
}

type startPlaybackRequest struct {
	ItemUUID                 uuid.UUID               `json:"itemUuid"`
	PlaylistSeedType         models.PlaylistSeedType `json:"playlistSeedType,omitempty"`
	OriginatorUUID           uuid.UUID               `json:"originatorUuid,omitempty"`
	ExplicitUUIDs            []uuid.UUID             `json:"explicitUuids,omitempty"`
	Shuffle                  bool                    `json:"shuffle,omitempty"`
	Repeat                   bool                    `json:"repeat,omitempty"`
	CapabilityProfileVersion int64                   `json:"capabilityProfileVersion"`
}

// handleStartPlayback implements playback.start (§4.8, §6).
func (s *Server) handleStartPlayback(w http.ResponseWriter, r *http.Request) {
	var req startPlaybackRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	user := auth.UserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing session")
		return
	}
	userID, err := uuid.Parse(user.UserID)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid session user")
		return
	}

	item, err := s.deps.Metadata.GetByUUID(req.ItemUUID)
	if err != nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
		return
	}

	in := playback.StartInput{
		UserID:                   userID,
		ItemID:                   item.ID,
		PlaylistSeedType:         req.PlaylistSeedType,
		Shuffle:                  req.Shuffle,
		Repeat:                   req.Repeat,
		CapabilityProfileVersion: req.CapabilityProfileVersion,
	}
	if req.PlaylistSeedType != "" && req.PlaylistSeedType != models.SeedSingle && req.PlaylistSeedType != models.SeedExplicit {
		originator, err := s.deps.Metadata.GetByUUID(req.OriginatorUUID)
		if err != nil {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "originator item not found")
			return
		}
		in.OriginatorID = originator.ID
	}
	if req.PlaylistSeedType == models.SeedExplicit {
		ids := make([]int64, 0, len(req.ExplicitUUIDs))
		for _, u := range req.ExplicitUUIDs {
			explicitItem, err := s.deps.Metadata.GetByUUID(u)
			if err != nil {
				writeError(w, http.StatusNotFound, "NOT_FOUND", "explicit item not found")
				return
			}
			ids = append(ids, explicitItem.ID)
		}
		in.ExplicitIDs = ids
	}

	resp, err := s.deps.Playback.StartPlayback(in)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "PLAYBACK_FAILED", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type heartbeatRequest struct {
	PlayheadMs        int64 `json:"playheadMs"`
	CapabilityVersion int64 `json:"capabilityVersion"`
}

// handleHeartbeat implements playback.heartbeat (§4.8, §6).
func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	id, err := urlUUID(r, "sessionUUID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid session id")
		return
	}
	var req heartbeatRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	result, err := s.deps.Playback.Heartbeat(id, req.PlayheadMs, req.CapabilityVersion)
	if err != nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type decideRequest struct {
	Direction playback.Direction `json:"direction"`
	JumpIndex int                `json:"jumpIndex,omitempty"`
}

// handleDecide implements playback.decide (§4.8, §6).
func (s *Server) handleDecide(w http.ResponseWriter, r *http.Request) {
	id, err := urlUUID(r, "sessionUUID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid session id")
		return
	}
	var req decideRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	result, err := s.deps.Playback.Decide(playback.DecideInput{SessionID: id, Direction: req.Direction, JumpIndex: req.JumpIndex})
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "DECIDE_FAILED", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type seekRequest struct {
	MediaPartID int64 `json:"mediaPartId"`
	PartIndex   int   `json:"partIndex"`
	TargetMs    int64 `json:"targetMs"`
}

// handleSeek implements playback.seek (§4.8, §6, §8 GoP-aware seek).
func (s *Server) handleSeek(w http.ResponseWriter, r *http.Request) {
	sessionID, err := urlUUID(r, "sessionUUID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid session id")
		return
	}
	var req seekRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	session, err := s.deps.PlaybackRepo.GetByUUID(sessionID)
	if err != nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
		return
	}
	item, err := s.deps.Metadata.GetByID(session.MetadataItemID)
	if err != nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
		return
	}
	result, err := s.deps.Playback.Seek(item.UUID, req.PartIndex, playback.SeekInput{
		SessionID: sessionID, MediaPartID: req.MediaPartID, TargetMs: req.TargetMs,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "SEEK_FAILED", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleResumePlayback implements playback.resume (§4.8, §6).
func (s *Server) handleResumePlayback(w http.ResponseWriter, r *http.Request) {
	id, err := urlUUID(r, "sessionUUID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid session id")
		return
	}
	session, err := s.deps.Playback.Resume(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
		return
	}
	if session == nil {
		writeError(w, http.StatusGone, "SESSION_EXPIRED", "playback session has expired")
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// handleStopPlayback implements playback.stop (§4.8, §6).
func (s *Server) handleStopPlayback(w http.ResponseWriter, r *http.Request) {
	id, err := urlUUID(r, "sessionUUID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid session id")
		return
	}
	if err := s.deps.Playback.Stop(id); err != nil {
		writeError(w, http.StatusInternalServerError, "STOP_FAILED", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
