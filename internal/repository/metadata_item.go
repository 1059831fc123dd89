package repository

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/nexamediaserver/server/internal/models"
)

type MetadataRepository struct {
	db *sql.DB
}

func NewMetadataRepository(db *sql.DB) *MetadataRepository {
	return &MetadataRepository{db: db}
}

func (r *MetadataRepository) Create(m *models.MetadataItem) error {
	if m.UUID == uuid.Nil {
		m.UUID = uuid.New()
	}
	if m.ExternalIDs == nil {
		m.ExternalIDs = map[string]string{}
	}
	if m.LockedFields == nil {
		m.LockedFields = map[string]bool{}
	}
	extJSON, _ := json.Marshal(m.ExternalIDs)
	lockJSON, _ := json.Marshal(m.LockedFields)

	row := r.db.QueryRow(`
		INSERT INTO metadata_items
			(uuid, library_section_id, parent_id, type, title, original_title, sort_title,
			 year, release_date, summary, tagline, studio, content_rating, duration_ms,
			 thumb_uri, thumb_hash, is_promoted, external_ids, locked_fields)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
		RETURNING id, created_at, updated_at`,
		m.UUID, m.LibrarySectionID, m.ParentID, m.Type, m.Title, m.OriginalTitle, m.SortTitle,
		m.Year, m.ReleaseDate, m.Summary, m.Tagline, m.Studio, m.ContentRating, m.DurationMs,
		m.ThumbURI, m.ThumbHash, m.IsPromoted, extJSON, lockJSON)
	if err := row.Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return fmt.Errorf("metadata: create: %w", err)
	}
	return nil
}

func (r *MetadataRepository) scanOne(row *sql.Row) (*models.MetadataItem, error) {
	var m models.MetadataItem
	var extJSON, lockJSON []byte
	if err := row.Scan(&m.ID, &m.UUID, &m.LibrarySectionID, &m.ParentID, &m.Type, &m.Title,
		&m.OriginalTitle, &m.SortTitle, &m.Year, &m.ReleaseDate, &m.Summary, &m.Tagline,
		&m.Studio, &m.ContentRating, &m.DurationMs, &m.ViewCount, &m.ViewOffsetMs,
		&m.ThumbURI, &m.ThumbHash, &m.IsPromoted, &extJSON, &lockJSON, &m.CreatedAt, &m.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("metadata: scan: %w", err)
	}
	_ = json.Unmarshal(extJSON, &m.ExternalIDs)
	_ = json.Unmarshal(lockJSON, &m.LockedFields)
	return &m, nil
}

const metadataSelectCols = `
	id, uuid, library_section_id, parent_id, type, title, original_title, sort_title,
	year, release_date, summary, tagline, studio, content_rating, duration_ms,
	view_count, view_offset_ms, thumb_uri, thumb_hash, is_promoted, external_ids, locked_fields,
	created_at, updated_at`

func (r *MetadataRepository) GetByID(id int64) (*models.MetadataItem, error) {
	row := r.db.QueryRow(`SELECT `+metadataSelectCols+` FROM metadata_items WHERE id = $1`, id)
	return r.scanOne(row)
}

func (r *MetadataRepository) GetByUUID(id uuid.UUID) (*models.MetadataItem, error) {
	row := r.db.QueryRow(`SELECT `+metadataSelectCols+` FROM metadata_items WHERE uuid = $1`, id)
	return r.scanOne(row)
}

// FindByExternalID looks up an item by (type, library section, provider,
// external id) used by the dedup service. Ties are broken by earliest row id.
func (r *MetadataRepository) FindByExternalID(librarySectionID int64, mType models.MetadataType, provider, externalID string) (*models.MetadataItem, error) {
	row := r.db.QueryRow(`
		SELECT `+metadataSelectCols+`
		FROM metadata_items
		WHERE library_section_id = $1 AND type = $2 AND external_ids->>$3 = $4
		ORDER BY id ASC LIMIT 1`,
		librarySectionID, mType, provider, externalID)
	return r.scanOne(row)
}

// FindByNameAndYear is the credit service's fallback lookup for agents that
// don't supply an external id: it matches on case-insensitive sort_title and
// year within the same section/type, used to dedup person/group records
// across refreshes that only have a bare name to go on.
func (r *MetadataRepository) FindByNameAndYear(librarySectionID int64, mType models.MetadataType, name string, year int) (*models.MetadataItem, error) {
	row := r.db.QueryRow(`
		SELECT `+metadataSelectCols+`
		FROM metadata_items
		WHERE library_section_id = $1 AND type = $2 AND lower(sort_title) = lower($3) AND year = $4
		ORDER BY id ASC LIMIT 1`,
		librarySectionID, mType, name, year)
	return r.scanOne(row)
}

func (r *MetadataRepository) ListChildren(parentID int64) ([]models.MetadataItem, error) {
	rows, err := r.db.Query(`SELECT `+metadataSelectCols+` FROM metadata_items WHERE parent_id = $1 ORDER BY sort_title, title`, parentID)
	if err != nil {
		return nil, fmt.Errorf("metadata: list children: %w", err)
	}
	defer rows.Close()
	return scanMetadataRows(rows)
}

func (r *MetadataRepository) ListBySection(sectionID int64, mType models.MetadataType, limit, offset int) ([]models.MetadataItem, error) {
	rows, err := r.db.Query(`
		SELECT `+metadataSelectCols+`
		FROM metadata_items WHERE library_section_id = $1 AND type = $2 AND parent_id IS NULL
		ORDER BY sort_title, title LIMIT $3 OFFSET $4`, sectionID, mType, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("metadata: list by section: %w", err)
	}
	defer rows.Close()
	return scanMetadataRows(rows)
}

// CountChildren returns the number of direct children of parentID, used by
// the playlist service to size album/season/show seeds (§4.11).
func (r *MetadataRepository) CountChildren(parentID int64) (int, error) {
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM metadata_items WHERE parent_id = $1`, parentID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("metadata: count children: %w", err)
	}
	return n, nil
}

// ListTopLevel and CountTopLevel list/count every top-level item in a
// section regardless of type, used by the playlist service's library seed
// (§4.11 "for library seeds, totalCount is the library's total filtered
// count").
func (r *MetadataRepository) ListTopLevel(sectionID int64, limit, offset int) ([]models.MetadataItem, error) {
	rows, err := r.db.Query(`
		SELECT `+metadataSelectCols+`
		FROM metadata_items WHERE library_section_id = $1 AND parent_id IS NULL
		ORDER BY sort_title, title LIMIT $2 OFFSET $3`, sectionID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("metadata: list top level: %w", err)
	}
	defer rows.Close()
	return scanMetadataRows(rows)
}

func (r *MetadataRepository) CountTopLevel(sectionID int64) (int, error) {
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM metadata_items WHERE library_section_id = $1 AND parent_id IS NULL`, sectionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("metadata: count top level: %w", err)
	}
	return n, nil
}

// Search performs an ILIKE title search, grounded on the teacher's
// media_repository.go Search method.
func (r *MetadataRepository) Search(sectionID int64, query string, limit int) ([]models.MetadataItem, error) {
	rows, err := r.db.Query(`
		SELECT `+metadataSelectCols+`
		FROM metadata_items WHERE library_section_id = $1 AND title ILIKE $2
		ORDER BY title LIMIT $3`, sectionID, "%"+query+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("metadata: search: %w", err)
	}
	defer rows.Close()
	return scanMetadataRows(rows)
}

func scanMetadataRows(rows *sql.Rows) ([]models.MetadataItem, error) {
	var out []models.MetadataItem
	for rows.Next() {
		var m models.MetadataItem
		var extJSON, lockJSON []byte
		if err := rows.Scan(&m.ID, &m.UUID, &m.LibrarySectionID, &m.ParentID, &m.Type, &m.Title,
			&m.OriginalTitle, &m.SortTitle, &m.Year, &m.ReleaseDate, &m.Summary, &m.Tagline,
			&m.Studio, &m.ContentRating, &m.DurationMs, &m.ViewCount, &m.ViewOffsetMs,
			&m.ThumbURI, &m.ThumbHash, &m.IsPromoted, &extJSON, &lockJSON, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("metadata: scan row: %w", err)
		}
		_ = json.Unmarshal(extJSON, &m.ExternalIDs)
		_ = json.Unmarshal(lockJSON, &m.LockedFields)
		out = append(out, m)
	}
	return out, nil
}

// Update persists every field shown; callers are responsible for having
// already skipped locked fields (MetadataItem.IsLocked).
func (r *MetadataRepository) Update(m *models.MetadataItem) error {
	extJSON, _ := json.Marshal(m.ExternalIDs)
	lockJSON, _ := json.Marshal(m.LockedFields)
	_, err := r.db.Exec(`
		UPDATE metadata_items SET
			title=$2, original_title=$3, sort_title=$4, year=$5, release_date=$6,
			summary=$7, tagline=$8, studio=$9, content_rating=$10, duration_ms=$11,
			view_count=$12, view_offset_ms=$13, thumb_uri=$14, thumb_hash=$15,
			is_promoted=$16, external_ids=$17, locked_fields=$18, updated_at=NOW()
		WHERE id=$1`,
		m.ID, m.Title, m.OriginalTitle, m.SortTitle, m.Year, m.ReleaseDate,
		m.Summary, m.Tagline, m.Studio, m.ContentRating, m.DurationMs,
		m.ViewCount, m.ViewOffsetMs, m.ThumbURI, m.ThumbHash,
		m.IsPromoted, extJSON, lockJSON)
	if err != nil {
		return fmt.Errorf("metadata: update: %w", err)
	}
	return nil
}

// UpdateViewState writes only view_count/view_offset, used by the playback
// heartbeat path so an in-flight refresh never clobbers playhead progress.
func (r *MetadataRepository) UpdateViewState(id int64, viewCount int, viewOffsetMs int64) error {
	_, err := r.db.Exec(`
		UPDATE metadata_items SET view_count=$2, view_offset_ms=$3, updated_at=NOW() WHERE id=$1`,
		id, viewCount, viewOffsetMs)
	if err != nil {
		return fmt.Errorf("metadata: update view state: %w", err)
	}
	return nil
}

func (r *MetadataRepository) SetPromoted(id int64, promoted bool) error {
	_, err := r.db.Exec(`UPDATE metadata_items SET is_promoted=$2, updated_at=NOW() WHERE id=$1`, id, promoted)
	if err != nil {
		return fmt.Errorf("metadata: set promoted: %w", err)
	}
	return nil
}

// --- Relations ---

func (r *MetadataRepository) AddRelation(rel *models.MetadataRelation) error {
	row := r.db.QueryRow(`
		INSERT INTO metadata_relations (from_item_id, to_item_id, type, sort_order, role)
		VALUES ($1,$2,$3,$4,$5) RETURNING id`,
		rel.FromItemID, rel.ToItemID, rel.Type, rel.Order, rel.Role)
	return row.Scan(&rel.ID)
}

func (r *MetadataRepository) ListRelations(fromItemID int64, relType models.RelationType) ([]models.MetadataRelation, error) {
	rows, err := r.db.Query(`
		SELECT id, from_item_id, to_item_id, type, sort_order, role
		FROM metadata_relations WHERE from_item_id = $1 AND type = $2 ORDER BY sort_order`,
		fromItemID, relType)
	if err != nil {
		return nil, fmt.Errorf("metadata: list relations: %w", err)
	}
	defer rows.Close()

	var out []models.MetadataRelation
	for rows.Next() {
		var rel models.MetadataRelation
		if err := rows.Scan(&rel.ID, &rel.FromItemID, &rel.ToItemID, &rel.Type, &rel.Order, &rel.Role); err != nil {
			return nil, fmt.Errorf("metadata: scan relation: %w", err)
		}
		out = append(out, rel)
	}
	return out, nil
}

// ClearRelationsByType deletes every relation of a type on an item before a
// refresh rewrites them, keeping ordering consistent with the latest merge.
func (r *MetadataRepository) ClearRelationsByType(fromItemID int64, relType models.RelationType) error {
	_, err := r.db.Exec(`DELETE FROM metadata_relations WHERE from_item_id = $1 AND type = $2`, fromItemID, relType)
	if err != nil {
		return fmt.Errorf("metadata: clear relations: %w", err)
	}
	return nil
}
