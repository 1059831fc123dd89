package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nexamediaserver/server/internal/models"
)

// MediaRepository owns MediaItem (the playable technical record) and its
// MediaParts, mirroring the teacher's media_repository.go RETURNING/Scan
// idiom for every write.
type MediaRepository struct {
	db *sql.DB
}

func NewMediaRepository(db *sql.DB) *MediaRepository {
	return &MediaRepository{db: db}
}

func (r *MediaRepository) Create(m *models.MediaItem) error {
	if m.UUID == uuid.Nil {
		m.UUID = uuid.New()
	}
	row := r.db.QueryRow(`
		INSERT INTO media_items
			(uuid, metadata_item_id, container, duration_ms, bitrate, width, height,
			 video_codec, audio_codec, hdr_format, rotation, group_key, extra_type)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		RETURNING id, created_at, updated_at`,
		m.UUID, m.MetadataItemID, m.Container, m.DurationMs, m.Bitrate, m.Width, m.Height,
		m.VideoCodec, m.AudioCodec, m.HDRFormat, m.Rotation, m.GroupKey, string(m.ExtraType))
	if err := row.Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return fmt.Errorf("media: create: %w", err)
	}
	return nil
}

// GetByGroupKey finds the MediaItem that owns the multi-part set groupKey
// belongs to within metadataItemID, if one was already created by an
// earlier part of the same scan (§3: multi-part file sets share one
// MediaItem with 1..N MediaParts).
func (r *MediaRepository) GetByGroupKey(metadataItemID int64, groupKey string) (*models.MediaItem, error) {
	if groupKey == "" {
		return nil, ErrNotFound
	}
	var id int64
	row := r.db.QueryRow(`
		SELECT id FROM media_items WHERE metadata_item_id = $1 AND group_key = $2
		ORDER BY id LIMIT 1`, metadataItemID, groupKey)
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("media: get by group key: %w", err)
	}
	return r.GetByID(id)
}

// UpdateProbe overwrites the FFprobe-derived fields, respecting no locks
// (technical characteristics are never user-editable per §3).
func (r *MediaRepository) UpdateProbe(m *models.MediaItem) error {
	_, err := r.db.Exec(`
		UPDATE media_items SET
			container=$2, duration_ms=$3, bitrate=$4, width=$5, height=$6,
			video_codec=$7, audio_codec=$8, hdr_format=$9, rotation=$10, updated_at=NOW()
		WHERE id=$1`,
		m.ID, m.Container, m.DurationMs, m.Bitrate, m.Width, m.Height,
		m.VideoCodec, m.AudioCodec, m.HDRFormat, m.Rotation)
	if err != nil {
		return fmt.Errorf("media: update probe: %w", err)
	}
	return nil
}

func (r *MediaRepository) GetByID(id int64) (*models.MediaItem, error) {
	var m models.MediaItem
	row := r.db.QueryRow(`
		SELECT id, uuid, metadata_item_id, container, duration_ms, bitrate, width, height,
		       video_codec, audio_codec, hdr_format, rotation, group_key, extra_type, created_at, updated_at
		FROM media_items WHERE id = $1`, id)
	if err := row.Scan(&m.ID, &m.UUID, &m.MetadataItemID, &m.Container, &m.DurationMs, &m.Bitrate,
		&m.Width, &m.Height, &m.VideoCodec, &m.AudioCodec, &m.HDRFormat, &m.Rotation, &m.GroupKey,
		&m.ExtraType, &m.CreatedAt, &m.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("media: get: %w", err)
	}
	parts, err := r.ListParts(m.ID)
	if err != nil {
		return nil, err
	}
	m.Parts = parts
	return &m, nil
}

func (r *MediaRepository) ListByMetadataItem(metadataItemID int64) ([]models.MediaItem, error) {
	rows, err := r.db.Query(`
		SELECT id FROM media_items WHERE metadata_item_id = $1 ORDER BY id`, metadataItemID)
	if err != nil {
		return nil, fmt.Errorf("media: list by metadata item: %w", err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()

	out := make([]models.MediaItem, 0, len(ids))
	for _, id := range ids {
		m, err := r.GetByID(id)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, nil
}

func (r *MediaRepository) CreatePart(p *models.MediaPart) error {
	row := r.db.QueryRow(`
		INSERT INTO media_parts
			(media_item_id, library_section_id, part_index, absolute_path, size, mtime_seen, missing_since)
		VALUES ($1,$2,$3,$4,$5,$6,NULL)
		RETURNING id`,
		p.MediaItemID, p.SectionID, p.PartIndex, p.AbsolutePath, p.Size, p.MtimeSeen)
	if err := row.Scan(&p.ID); err != nil {
		return fmt.Errorf("media: create part: %w", err)
	}
	return nil
}

func (r *MediaRepository) GetPartByPath(sectionID int64, path string) (*models.MediaPart, error) {
	var p models.MediaPart
	row := r.db.QueryRow(`
		SELECT id, media_item_id, library_section_id, part_index, absolute_path, size, mtime_seen, missing_since
		FROM media_parts WHERE library_section_id = $1 AND absolute_path = $2`, sectionID, path)
	if err := row.Scan(&p.ID, &p.MediaItemID, &p.SectionID, &p.PartIndex, &p.AbsolutePath,
		&p.Size, &p.MtimeSeen, &p.MissingSince); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("media: get part: %w", err)
	}
	return &p, nil
}

func (r *MediaRepository) GetPartByID(id int64) (*models.MediaPart, error) {
	var p models.MediaPart
	row := r.db.QueryRow(`
		SELECT id, media_item_id, library_section_id, part_index, absolute_path, size, mtime_seen, missing_since
		FROM media_parts WHERE id = $1`, id)
	if err := row.Scan(&p.ID, &p.MediaItemID, &p.SectionID, &p.PartIndex, &p.AbsolutePath,
		&p.Size, &p.MtimeSeen, &p.MissingSince); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("media: get part by id: %w", err)
	}
	return &p, nil
}

func (r *MediaRepository) ListParts(mediaItemID int64) ([]models.MediaPart, error) {
	rows, err := r.db.Query(`
		SELECT id, media_item_id, library_section_id, part_index, absolute_path, size, mtime_seen, missing_since
		FROM media_parts WHERE media_item_id = $1 ORDER BY part_index`, mediaItemID)
	if err != nil {
		return nil, fmt.Errorf("media: list parts: %w", err)
	}
	defer rows.Close()

	var out []models.MediaPart
	for rows.Next() {
		var p models.MediaPart
		if err := rows.Scan(&p.ID, &p.MediaItemID, &p.SectionID, &p.PartIndex, &p.AbsolutePath,
			&p.Size, &p.MtimeSeen, &p.MissingSince); err != nil {
			return nil, fmt.Errorf("media: scan part: %w", err)
		}
		out = append(out, p)
	}
	return out, nil
}

func (r *MediaRepository) TouchPart(id int64, size int64, mtime time.Time) error {
	_, err := r.db.Exec(`
		UPDATE media_parts SET mtime_seen = $2, size = $3, missing_since = NULL WHERE id = $1`,
		id, mtime, size)
	if err != nil {
		return fmt.Errorf("media: touch part: %w", err)
	}
	return nil
}

// MarkPartsMissing flags parts in a section not touched since cutoff, so the
// scan pipeline's invariant 2 (missing_since null iff last visit saw it) holds.
func (r *MediaRepository) MarkPartsMissing(sectionID int64, cutoff time.Time) (int64, error) {
	res, err := r.db.Exec(`
		UPDATE media_parts SET missing_since = NOW()
		WHERE library_section_id = $1 AND mtime_seen < $2 AND missing_since IS NULL`,
		sectionID, cutoff)
	if err != nil {
		return 0, fmt.Errorf("media: mark parts missing: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
