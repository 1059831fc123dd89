package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nexamediaserver/server/internal/models"
)

type DirectoryRepository struct {
	db *sql.DB
}

func NewDirectoryRepository(db *sql.DB) *DirectoryRepository {
	return &DirectoryRepository{db: db}
}

// Upsert inserts a directory the first time a scan sees it, or refreshes its
// mtime_seen and clears missing_since if it had been marked missing.
func (r *DirectoryRepository) Upsert(d *models.Directory) error {
	row := r.db.QueryRow(`
		INSERT INTO directories (library_section_id, path, parent_id, mtime_seen, missing_since)
		VALUES ($1, $2, $3, $4, NULL)
		ON CONFLICT (library_section_id, path) DO UPDATE
		SET mtime_seen = $4, missing_since = NULL
		RETURNING id`,
		d.SectionID, d.Path, d.ParentID, d.MtimeSeen)
	return row.Scan(&d.ID)
}

func (r *DirectoryRepository) GetByPath(sectionID int64, path string) (*models.Directory, error) {
	var d models.Directory
	row := r.db.QueryRow(`
		SELECT id, library_section_id, path, parent_id, mtime_seen, missing_since
		FROM directories WHERE library_section_id = $1 AND path = $2`, sectionID, path)
	if err := row.Scan(&d.ID, &d.SectionID, &d.Path, &d.ParentID, &d.MtimeSeen, &d.MissingSince); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("directory: get: %w", err)
	}
	return &d, nil
}

// MarkMissing flags directories in a section not touched since cutoff as
// missing, for a scan pass that has just finished walking the tree.
func (r *DirectoryRepository) MarkMissing(sectionID int64, cutoff time.Time) (int64, error) {
	res, err := r.db.Exec(`
		UPDATE directories SET missing_since = NOW()
		WHERE library_section_id = $1 AND mtime_seen < $2 AND missing_since IS NULL`,
		sectionID, cutoff)
	if err != nil {
		return 0, fmt.Errorf("directory: mark missing: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
