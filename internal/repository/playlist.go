package repository

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/nexamediaserver/server/internal/models"
)

type PlaylistRepository struct {
	db *sql.DB
}

func NewPlaylistRepository(db *sql.DB) *PlaylistRepository {
	return &PlaylistRepository{db: db}
}

func (r *PlaylistRepository) Create(g *models.PlaylistGenerator) error {
	if g.UUID == uuid.Nil {
		g.UUID = uuid.New()
	}
	seedJSON, err := json.Marshal(g.Seed)
	if err != nil {
		return fmt.Errorf("playlist: marshal seed: %w", err)
	}
	orderJSON, _ := json.Marshal(g.ShuffleOrder)
	_, err = r.db.Exec(`
		INSERT INTO playlist_generators
			(uuid, playback_session_id, seed, cursor_index, total_count, shuffle, repeat, shuffle_order, active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		g.UUID, g.PlaybackSessionID, seedJSON, g.CursorIndex, g.TotalCount, g.Shuffle, g.Repeat, orderJSON, g.Active)
	if err != nil {
		return fmt.Errorf("playlist: create: %w", err)
	}
	return nil
}

func (r *PlaylistRepository) GetByUUID(id uuid.UUID) (*models.PlaylistGenerator, error) {
	var g models.PlaylistGenerator
	var seedJSON, orderJSON []byte
	row := r.db.QueryRow(`
		SELECT uuid, playback_session_id, seed, cursor_index, total_count, shuffle, repeat, shuffle_order, active
		FROM playlist_generators WHERE uuid = $1`, id)
	if err := row.Scan(&g.UUID, &g.PlaybackSessionID, &seedJSON, &g.CursorIndex, &g.TotalCount,
		&g.Shuffle, &g.Repeat, &orderJSON, &g.Active); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("playlist: get: %w", err)
	}
	_ = json.Unmarshal(seedJSON, &g.Seed)
	_ = json.Unmarshal(orderJSON, &g.ShuffleOrder)
	return &g, nil
}

// SaveCursor persists the mutable navigation state: cursor, flags, shuffle
// order, total count. Called under the playlist service's per-generator lock
// so cursor mutations are serialized per §5.
func (r *PlaylistRepository) SaveCursor(g *models.PlaylistGenerator) error {
	orderJSON, err := json.Marshal(g.ShuffleOrder)
	if err != nil {
		return fmt.Errorf("playlist: marshal shuffle order: %w", err)
	}
	_, err = r.db.Exec(`
		UPDATE playlist_generators
		SET cursor_index=$2, total_count=$3, shuffle=$4, repeat=$5, shuffle_order=$6
		WHERE uuid=$1`, g.UUID, g.CursorIndex, g.TotalCount, g.Shuffle, g.Repeat, orderJSON)
	if err != nil {
		return fmt.Errorf("playlist: save cursor: %w", err)
	}
	return nil
}

func (r *PlaylistRepository) SetActive(id uuid.UUID, active bool) error {
	_, err := r.db.Exec(`UPDATE playlist_generators SET active=$2 WHERE uuid=$1`, id, active)
	if err != nil {
		return fmt.Errorf("playlist: set active: %w", err)
	}
	return nil
}
