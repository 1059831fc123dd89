package repository

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/nexamediaserver/server/internal/models"
)

type ScanRepository struct {
	db *sql.DB
}

func NewScanRepository(db *sql.DB) *ScanRepository {
	return &ScanRepository{db: db}
}

func (r *ScanRepository) Create(s *models.LibraryScan) error {
	if s.UUID == uuid.Nil {
		s.UUID = uuid.New()
	}
	row := r.db.QueryRow(`
		INSERT INTO library_scans (uuid, library_section_id, state, total_files)
		VALUES ($1,$2,$3,$4) RETURNING id, started_at`,
		s.UUID, s.LibrarySectionID, s.State, s.TotalFiles)
	if err := row.Scan(&s.ID, &s.StartedAt); err != nil {
		return fmt.Errorf("scan: create: %w", err)
	}
	return nil
}

func (r *ScanRepository) scanRow(row *sql.Row) (*models.LibraryScan, error) {
	var s models.LibraryScan
	var checkpointJSON, errorsJSON []byte
	if err := row.Scan(&s.ID, &s.UUID, &s.LibrarySectionID, &s.StartedAt, &s.FinishedAt,
		&s.State, &checkpointJSON, &s.TotalFiles, &errorsJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan: scan row: %w", err)
	}
	if len(checkpointJSON) > 0 {
		var cp models.ScanCheckpoint
		if err := json.Unmarshal(checkpointJSON, &cp); err == nil {
			s.Checkpoint = &cp
		}
	}
	_ = json.Unmarshal(errorsJSON, &s.Errors)
	return &s, nil
}

const scanSelectCols = `id, uuid, library_section_id, started_at, finished_at, state, checkpoint, total_files, errors`

func (r *ScanRepository) GetByUUID(id uuid.UUID) (*models.LibraryScan, error) {
	row := r.db.QueryRow(`SELECT `+scanSelectCols+` FROM library_scans WHERE uuid = $1`, id)
	return r.scanRow(row)
}

// ListResumable returns scans left Running with a checkpoint by a crashed
// process, per §4.4 "Checkpointing / resume".
func (r *ScanRepository) ListResumable() ([]models.LibraryScan, error) {
	rows, err := r.db.Query(`SELECT ` + scanSelectCols + ` FROM library_scans WHERE state = 'running' AND checkpoint IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("scan: list resumable: %w", err)
	}
	defer rows.Close()

	var out []models.LibraryScan
	for rows.Next() {
		var s models.LibraryScan
		var checkpointJSON, errorsJSON []byte
		if err := rows.Scan(&s.ID, &s.UUID, &s.LibrarySectionID, &s.StartedAt, &s.FinishedAt,
			&s.State, &checkpointJSON, &s.TotalFiles, &errorsJSON); err != nil {
			return nil, fmt.Errorf("scan: scan resumable row: %w", err)
		}
		if len(checkpointJSON) > 0 {
			var cp models.ScanCheckpoint
			if err := json.Unmarshal(checkpointJSON, &cp); err == nil {
				s.Checkpoint = &cp
			}
		}
		_ = json.Unmarshal(errorsJSON, &s.Errors)
		out = append(out, s)
	}
	return out, nil
}

func (r *ScanRepository) SaveCheckpoint(id int64, cp *models.ScanCheckpoint) error {
	b, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("scan: marshal checkpoint: %w", err)
	}
	_, err = r.db.Exec(`UPDATE library_scans SET checkpoint = $2 WHERE id = $1`, id, b)
	if err != nil {
		return fmt.Errorf("scan: save checkpoint: %w", err)
	}
	return nil
}

func (r *ScanRepository) SetState(id int64, state models.ScanState) error {
	var err error
	if state == models.ScanCompleted || state == models.ScanFailed || state == models.ScanCancelled {
		_, err = r.db.Exec(`UPDATE library_scans SET state=$2, finished_at=NOW() WHERE id=$1`, id, state)
	} else {
		_, err = r.db.Exec(`UPDATE library_scans SET state=$2 WHERE id=$1`, id, state)
	}
	if err != nil {
		return fmt.Errorf("scan: set state: %w", err)
	}
	return nil
}

func (r *ScanRepository) AppendError(id int64, msg string) error {
	_, err := r.db.Exec(`UPDATE library_scans SET errors = errors || to_jsonb($2::text) WHERE id = $1`, id, msg)
	if err != nil {
		return fmt.Errorf("scan: append error: %w", err)
	}
	return nil
}
