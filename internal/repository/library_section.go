package repository

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/nexamediaserver/server/internal/models"
)

type LibrarySectionRepository struct {
	db *sql.DB
}

func NewLibrarySectionRepository(db *sql.DB) *LibrarySectionRepository {
	return &LibrarySectionRepository{db: db}
}

func (r *LibrarySectionRepository) Create(s *models.LibrarySection) error {
	settingsJSON, err := json.Marshal(s.Settings)
	if err != nil {
		return fmt.Errorf("library_section: marshal settings: %w", err)
	}
	if s.UUID == uuid.Nil {
		s.UUID = uuid.New()
	}
	row := r.db.QueryRow(`
		INSERT INTO library_sections (uuid, name, type, settings)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`,
		s.UUID, s.Name, s.Type, settingsJSON)
	if err := row.Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return fmt.Errorf("library_section: insert: %w", err)
	}
	return nil
}

func (r *LibrarySectionRepository) GetByUUID(id uuid.UUID) (*models.LibrarySection, error) {
	var s models.LibrarySection
	var settingsJSON []byte
	row := r.db.QueryRow(`
		SELECT id, uuid, name, type, settings, created_at, updated_at
		FROM library_sections WHERE uuid = $1`, id)
	if err := row.Scan(&s.ID, &s.UUID, &s.Name, &s.Type, &settingsJSON, &s.CreatedAt, &s.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("library_section: get: %w", err)
	}
	if err := json.Unmarshal(settingsJSON, &s.Settings); err != nil {
		return nil, fmt.Errorf("library_section: unmarshal settings: %w", err)
	}
	locations, err := r.ListLocations(s.ID)
	if err != nil {
		return nil, err
	}
	s.Locations = locations
	return &s, nil
}

func (r *LibrarySectionRepository) GetByID(id int64) (*models.LibrarySection, error) {
	var s models.LibrarySection
	var settingsJSON []byte
	row := r.db.QueryRow(`
		SELECT id, uuid, name, type, settings, created_at, updated_at
		FROM library_sections WHERE id = $1`, id)
	if err := row.Scan(&s.ID, &s.UUID, &s.Name, &s.Type, &settingsJSON, &s.CreatedAt, &s.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("library_section: get: %w", err)
	}
	if err := json.Unmarshal(settingsJSON, &s.Settings); err != nil {
		return nil, fmt.Errorf("library_section: unmarshal settings: %w", err)
	}
	locations, err := r.ListLocations(s.ID)
	if err != nil {
		return nil, err
	}
	s.Locations = locations
	return &s, nil
}

func (r *LibrarySectionRepository) List() ([]models.LibrarySection, error) {
	rows, err := r.db.Query(`SELECT id, uuid, name, type, settings, created_at, updated_at FROM library_sections ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("library_section: list: %w", err)
	}
	defer rows.Close()

	var out []models.LibrarySection
	for rows.Next() {
		var s models.LibrarySection
		var settingsJSON []byte
		if err := rows.Scan(&s.ID, &s.UUID, &s.Name, &s.Type, &settingsJSON, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("library_section: scan: %w", err)
		}
		_ = json.Unmarshal(settingsJSON, &s.Settings)
		out = append(out, s)
	}
	return out, nil
}

// Remove cascades to the full metadata tree via FK ON DELETE CASCADE.
func (r *LibrarySectionRepository) Remove(id uuid.UUID) error {
	res, err := r.db.Exec(`DELETE FROM library_sections WHERE uuid = $1`, id)
	if err != nil {
		return fmt.Errorf("library_section: remove: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *LibrarySectionRepository) AddLocation(sectionID int64, rootPath string) (*models.SectionLocation, error) {
	loc := &models.SectionLocation{UUID: uuid.New(), SectionID: sectionID, RootPath: rootPath}
	row := r.db.QueryRow(`
		INSERT INTO section_locations (uuid, library_section_id, root_path)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`, loc.UUID, loc.SectionID, loc.RootPath)
	if err := row.Scan(&loc.ID, &loc.CreatedAt); err != nil {
		return nil, fmt.Errorf("library_section: add location: %w", err)
	}
	return loc, nil
}

func (r *LibrarySectionRepository) ListLocations(sectionID int64) ([]models.SectionLocation, error) {
	rows, err := r.db.Query(`
		SELECT id, uuid, library_section_id, root_path, created_at
		FROM section_locations WHERE library_section_id = $1 ORDER BY id`, sectionID)
	if err != nil {
		return nil, fmt.Errorf("library_section: list locations: %w", err)
	}
	defer rows.Close()

	var out []models.SectionLocation
	for rows.Next() {
		var l models.SectionLocation
		if err := rows.Scan(&l.ID, &l.UUID, &l.SectionID, &l.RootPath, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("library_section: scan location: %w", err)
		}
		out = append(out, l)
	}
	return out, nil
}
