package repository

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/nexamediaserver/server/internal/models"
)

type PlaybackRepository struct {
	db *sql.DB
}

func NewPlaybackRepository(db *sql.DB) *PlaybackRepository {
	return &PlaybackRepository{db: db}
}

func (r *PlaybackRepository) Create(s *models.PlaybackSession) error {
	if s.UUID == uuid.Nil {
		s.UUID = uuid.New()
	}
	planJSON, err := json.Marshal(s.StreamPlan)
	if err != nil {
		return fmt.Errorf("playback: marshal plan: %w", err)
	}
	row := r.db.QueryRow(`
		INSERT INTO playback_sessions
			(uuid, user_id, metadata_item_id, capability_profile_version, stream_plan,
			 playlist_generator_id, playhead_ms, state)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING id, created_at, last_heartbeat_at`,
		s.UUID, s.UserID, s.MetadataItemID, s.CapabilityProfileVersion, planJSON,
		s.PlaylistGeneratorID, s.PlayheadMs, s.State)
	if err := row.Scan(&s.ID, &s.CreatedAt, &s.LastHeartbeatAt); err != nil {
		return fmt.Errorf("playback: create: %w", err)
	}
	return nil
}

const playbackSelectCols = `
	id, uuid, user_id, metadata_item_id, capability_profile_version, stream_plan,
	created_at, last_heartbeat_at, playlist_generator_id, playhead_ms, state`

func (r *PlaybackRepository) scanRow(row *sql.Row) (*models.PlaybackSession, error) {
	var s models.PlaybackSession
	var planJSON []byte
	if err := row.Scan(&s.ID, &s.UUID, &s.UserID, &s.MetadataItemID, &s.CapabilityProfileVersion,
		&planJSON, &s.CreatedAt, &s.LastHeartbeatAt, &s.PlaylistGeneratorID, &s.PlayheadMs, &s.State); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("playback: scan: %w", err)
	}
	_ = json.Unmarshal(planJSON, &s.StreamPlan)
	return &s, nil
}

func (r *PlaybackRepository) GetByUUID(id uuid.UUID) (*models.PlaybackSession, error) {
	row := r.db.QueryRow(`SELECT `+playbackSelectCols+` FROM playback_sessions WHERE uuid = $1`, id)
	return r.scanRow(row)
}

func (r *PlaybackRepository) Heartbeat(id uuid.UUID, playheadMs int64) error {
	res, err := r.db.Exec(`
		UPDATE playback_sessions SET playhead_ms=$2, last_heartbeat_at=NOW() WHERE uuid=$1`, id, playheadMs)
	if err != nil {
		return fmt.Errorf("playback: heartbeat: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PlaybackRepository) UpdatePlan(id uuid.UUID, itemID int64, plan models.StreamPlan, state models.PlaybackState) error {
	planJSON, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("playback: marshal plan: %w", err)
	}
	_, err = r.db.Exec(`
		UPDATE playback_sessions SET metadata_item_id=$2, stream_plan=$3, state=$4, last_heartbeat_at=NOW()
		WHERE uuid=$1`, id, itemID, planJSON, state)
	if err != nil {
		return fmt.Errorf("playback: update plan: %w", err)
	}
	return nil
}

func (r *PlaybackRepository) SetState(id uuid.UUID, state models.PlaybackState) error {
	_, err := r.db.Exec(`UPDATE playback_sessions SET state=$2 WHERE uuid=$1`, id, state)
	if err != nil {
		return fmt.Errorf("playback: set state: %w", err)
	}
	return nil
}

// ListExpired returns sessions whose last heartbeat predates the TTL, for the
// reaper loop to stop and free transcodes for.
func (r *PlaybackRepository) ListExpired(ttlSeconds int) ([]models.PlaybackSession, error) {
	rows, err := r.db.Query(`
		SELECT `+playbackSelectCols+`
		FROM playback_sessions
		WHERE state NOT IN ('completed','stopped') AND last_heartbeat_at < NOW() - ($1 || ' seconds')::interval`,
		ttlSeconds)
	if err != nil {
		return nil, fmt.Errorf("playback: list expired: %w", err)
	}
	defer rows.Close()

	var out []models.PlaybackSession
	for rows.Next() {
		var s models.PlaybackSession
		var planJSON []byte
		if err := rows.Scan(&s.ID, &s.UUID, &s.UserID, &s.MetadataItemID, &s.CapabilityProfileVersion,
			&planJSON, &s.CreatedAt, &s.LastHeartbeatAt, &s.PlaylistGeneratorID, &s.PlayheadMs, &s.State); err != nil {
			return nil, fmt.Errorf("playback: scan expired: %w", err)
		}
		_ = json.Unmarshal(planJSON, &s.StreamPlan)
		out = append(out, s)
	}
	return out, nil
}

// AppendWatchHistory records one playback observation in the append-only
// history table backing MetadataItem.view_offset/view_count.
func (r *PlaybackRepository) AppendWatchHistory(metadataItemID int64, userID uuid.UUID, viewOffsetMs int64, completed bool) error {
	_, err := r.db.Exec(`
		INSERT INTO watch_history (metadata_item_id, user_id, view_offset_ms, completed)
		VALUES ($1,$2,$3,$4)`, metadataItemID, userID, viewOffsetMs, completed)
	if err != nil {
		return fmt.Errorf("playback: append watch history: %w", err)
	}
	return nil
}

// --- Capability profiles ---

func (r *PlaybackRepository) UpsertCapabilityProfile(p *models.CapabilityProfile) error {
	b, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("playback: marshal capability: %w", err)
	}
	row := r.db.QueryRow(`
		INSERT INTO capability_profiles (user_id, version, profile)
		VALUES ($1, 1, $2)
		ON CONFLICT (user_id) DO UPDATE SET version = capability_profiles.version + 1, profile = $2
		RETURNING version`, p.UserID, b)
	if err := row.Scan(&p.Version); err != nil {
		return fmt.Errorf("playback: upsert capability: %w", err)
	}
	return nil
}

func (r *PlaybackRepository) GetCapabilityProfile(userID uuid.UUID) (*models.CapabilityProfile, error) {
	var profileJSON []byte
	var version int64
	row := r.db.QueryRow(`SELECT version, profile FROM capability_profiles WHERE user_id = $1`, userID)
	if err := row.Scan(&version, &profileJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("playback: get capability: %w", err)
	}
	var p models.CapabilityProfile
	if err := json.Unmarshal(profileJSON, &p); err != nil {
		return nil, fmt.Errorf("playback: unmarshal capability: %w", err)
	}
	p.UserID = userID
	p.Version = version
	return &p, nil
}
