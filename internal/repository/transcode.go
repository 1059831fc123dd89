package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nexamediaserver/server/internal/models"
)

type TranscodeRepository struct {
	db *sql.DB
}

func NewTranscodeRepository(db *sql.DB) *TranscodeRepository {
	return &TranscodeRepository{db: db}
}

func (r *TranscodeRepository) Create(j *models.TranscodeJob) error {
	if j.UUID == uuid.Nil {
		j.UUID = uuid.New()
	}
	row := r.db.QueryRow(`
		INSERT INTO transcode_jobs
			(uuid, playback_session_id, media_part_id, protocol, output_path, state,
			 segment_length_s, start_time_ms, segment_prefix, segment_extension, last_segment_index)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING id, last_ping_at`,
		j.UUID, j.PlaybackSessionID, j.MediaPartID, j.Protocol, j.OutputPath, j.State,
		j.SegmentLengthS, j.StartTimeMs, j.SegmentPrefix, j.SegmentExtension, j.LastSegmentIndex)
	if err := row.Scan(&j.ID, &j.LastPingAt); err != nil {
		return fmt.Errorf("transcode: create: %w", err)
	}
	return nil
}

const transcodeSelectCols = `
	id, uuid, playback_session_id, media_part_id, protocol, output_path, pid, state, progress,
	segment_length_s, start_time_ms, segment_prefix, segment_extension, last_ping_at, last_segment_index`

func (r *TranscodeRepository) scanRow(row *sql.Row) (*models.TranscodeJob, error) {
	var j models.TranscodeJob
	if err := row.Scan(&j.ID, &j.UUID, &j.PlaybackSessionID, &j.MediaPartID, &j.Protocol, &j.OutputPath,
		&j.PID, &j.State, &j.Progress, &j.SegmentLengthS, &j.StartTimeMs, &j.SegmentPrefix,
		&j.SegmentExtension, &j.LastPingAt, &j.LastSegmentIndex); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("transcode: scan: %w", err)
	}
	return &j, nil
}

func (r *TranscodeRepository) GetByUUID(id uuid.UUID) (*models.TranscodeJob, error) {
	row := r.db.QueryRow(`SELECT `+transcodeSelectCols+` FROM transcode_jobs WHERE uuid = $1`, id)
	return r.scanRow(row)
}

func (r *TranscodeRepository) ListBySession(sessionID uuid.UUID) ([]models.TranscodeJob, error) {
	rows, err := r.db.Query(`SELECT `+transcodeSelectCols+` FROM transcode_jobs WHERE playback_session_id = $1`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("transcode: list by session: %w", err)
	}
	defer rows.Close()

	var out []models.TranscodeJob
	for rows.Next() {
		var j models.TranscodeJob
		if err := rows.Scan(&j.ID, &j.UUID, &j.PlaybackSessionID, &j.MediaPartID, &j.Protocol, &j.OutputPath,
			&j.PID, &j.State, &j.Progress, &j.SegmentLengthS, &j.StartTimeMs, &j.SegmentPrefix,
			&j.SegmentExtension, &j.LastPingAt, &j.LastSegmentIndex); err != nil {
			return nil, fmt.Errorf("transcode: scan by session: %w", err)
		}
		out = append(out, j)
	}
	return out, nil
}

func (r *TranscodeRepository) CountRunning() (int, error) {
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM transcode_jobs WHERE state IN ('starting','running')`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("transcode: count running: %w", err)
	}
	return n, nil
}

func (r *TranscodeRepository) ListRunning() ([]models.TranscodeJob, error) {
	rows, err := r.db.Query(`SELECT ` + transcodeSelectCols + ` FROM transcode_jobs WHERE state IN ('starting','running')`)
	if err != nil {
		return nil, fmt.Errorf("transcode: list running: %w", err)
	}
	defer rows.Close()

	var out []models.TranscodeJob
	for rows.Next() {
		var j models.TranscodeJob
		if err := rows.Scan(&j.ID, &j.UUID, &j.PlaybackSessionID, &j.MediaPartID, &j.Protocol, &j.OutputPath,
			&j.PID, &j.State, &j.Progress, &j.SegmentLengthS, &j.StartTimeMs, &j.SegmentPrefix,
			&j.SegmentExtension, &j.LastPingAt, &j.LastSegmentIndex); err != nil {
			return nil, fmt.Errorf("transcode: scan running: %w", err)
		}
		out = append(out, j)
	}
	return out, nil
}

func (r *TranscodeRepository) SetStarted(id uuid.UUID, pid int) error {
	_, err := r.db.Exec(`UPDATE transcode_jobs SET pid=$2, state='running', last_ping_at=NOW() WHERE uuid=$1`, id, pid)
	if err != nil {
		return fmt.Errorf("transcode: set started: %w", err)
	}
	return nil
}

func (r *TranscodeRepository) Ping(id uuid.UUID) error {
	_, err := r.db.Exec(`UPDATE transcode_jobs SET last_ping_at=NOW() WHERE uuid=$1`, id)
	if err != nil {
		return fmt.Errorf("transcode: ping: %w", err)
	}
	return nil
}

func (r *TranscodeRepository) ReportProgress(id uuid.UUID, progress float64, lastSegmentIndex int) error {
	_, err := r.db.Exec(`
		UPDATE transcode_jobs SET progress = GREATEST(progress, $2), last_segment_index = GREATEST(last_segment_index, $3)
		WHERE uuid = $1`, id, progress, lastSegmentIndex)
	if err != nil {
		return fmt.Errorf("transcode: report progress: %w", err)
	}
	return nil
}

// SetTerminal transitions a job into a terminal state. It is a no-op if the
// job is already terminal, honoring invariant 7 (no further transitions).
func (r *TranscodeRepository) SetTerminal(id uuid.UUID, state models.TranscodeState) error {
	if !state.Terminal() {
		return fmt.Errorf("transcode: %s is not a terminal state", state)
	}
	_, err := r.db.Exec(`
		UPDATE transcode_jobs SET state=$2
		WHERE uuid=$1 AND state NOT IN ('completed','cancelled','failed')`, id, state)
	if err != nil {
		return fmt.Errorf("transcode: set terminal: %w", err)
	}
	return nil
}

// ListIdleSince returns running jobs whose last ping predates cutoff, for the
// idle-timeout reaper.
func (r *TranscodeRepository) ListIdleSince(cutoff time.Time) ([]models.TranscodeJob, error) {
	rows, err := r.db.Query(`
		SELECT `+transcodeSelectCols+`
		FROM transcode_jobs WHERE state IN ('starting','running') AND last_ping_at < $1`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("transcode: list idle: %w", err)
	}
	defer rows.Close()

	var out []models.TranscodeJob
	for rows.Next() {
		var j models.TranscodeJob
		if err := rows.Scan(&j.ID, &j.UUID, &j.PlaybackSessionID, &j.MediaPartID, &j.Protocol, &j.OutputPath,
			&j.PID, &j.State, &j.Progress, &j.SegmentLengthS, &j.StartTimeMs, &j.SegmentPrefix,
			&j.SegmentExtension, &j.LastPingAt, &j.LastSegmentIndex); err != nil {
			return nil, fmt.Errorf("transcode: scan idle: %w", err)
		}
		out = append(out, j)
	}
	return out, nil
}
