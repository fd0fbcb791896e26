package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/noncmra/internal/models"
	"github.com/desertthunder/noncmra/internal/shared"
)

const runColumns = `
	id, sequence, status, stop_reason, catalog_total, duplicates, verified, cmra,
	reported, rejected, failed, skipped, credentials_total, credentials_exhausted,
	report_path, started_at, completed_at, created_at, updated_at, deleted_at`

// RunRepository implements models.Repository[*models.RunRecord] for run history.
//
// Handles run CRUD operations with soft delete support and status-based queries.
type RunRepository struct {
	db *sql.DB
}

// NewRunRepository creates a new RunRepository with the given database connection
func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

// Create inserts a new run with generated ID and sequence
func (r *RunRepository) Create(run *models.RunRecord) error {
	sequence, err := NextSequence(r.db, "runs")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	id := shared.GenerateID()
	run.SetID(id)
	run.SetSequence(sequence)

	if err := run.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	c := run.Counts()
	query := `
		INSERT INTO runs (
			id, sequence, status, stop_reason, catalog_total, duplicates, verified, cmra,
			reported, rejected, failed, skipped, credentials_total, credentials_exhausted,
			report_path, started_at, completed_at, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.Exec(query,
		id,
		sequence,
		run.Status(),
		run.StopReason(),
		c.CatalogTotal,
		c.Duplicates,
		c.Verified,
		c.CMRA,
		c.Reported,
		c.Rejected,
		c.Failed,
		c.Skipped,
		c.CredentialsTotal,
		c.CredentialsExhausted,
		run.ReportPath(),
		run.StartedAt(),
		run.CompletedAt(),
		run.CreatedAt(),
		run.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	return nil
}

// Get retrieves a run by ID, excluding soft-deleted runs
func (r *RunRepository) Get(id string) (*models.RunRecord, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE id = ? AND deleted_at IS NULL`
	return r.scan(r.db.QueryRow(query, id))
}

// GetBySequence retrieves a run by its sequence number
func (r *RunRepository) GetBySequence(sequence int) (*models.RunRecord, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE sequence = ? AND deleted_at IS NULL`
	return r.scan(r.db.QueryRow(query, sequence))
}

// Update writes the status, counts and completion time of a run
func (r *RunRepository) Update(run *models.RunRecord) error {
	if err := run.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now()
	run.SetUpdatedAt(now)

	c := run.Counts()
	query := `
		UPDATE runs
		SET status = ?, stop_reason = ?, catalog_total = ?, duplicates = ?, verified = ?,
			cmra = ?, reported = ?, rejected = ?, failed = ?, skipped = ?,
			credentials_total = ?, credentials_exhausted = ?, report_path = ?,
			completed_at = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := r.db.Exec(query,
		run.Status(),
		run.StopReason(),
		c.CatalogTotal,
		c.Duplicates,
		c.Verified,
		c.CMRA,
		c.Reported,
		c.Rejected,
		c.Failed,
		c.Skipped,
		c.CredentialsTotal,
		c.CredentialsExhausted,
		run.ReportPath(),
		run.CompletedAt(),
		now,
		run.ID(),
	)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}

	return expectRow(result, run.ID())
}

// Delete soft-deletes a run by ID
func (r *RunRepository) Delete(id string) error {
	query := `
		UPDATE runs
		SET deleted_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := r.db.Exec(query, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}

	return expectRow(result, id)
}

// List retrieves runs newest first. Supported criteria: "status" (string) and "limit" (int).
func (r *RunRepository) List(criteria map[string]any) ([]*models.RunRecord, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE deleted_at IS NULL`
	args := []any{}

	if status, ok := criteria["status"].(string); ok && status != "" {
		query += " AND status = ?"
		args = append(args, status)
	}

	query += " ORDER BY sequence DESC"

	if limit, ok := criteria["limit"].(int); ok && limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.RunRecord
	for rows.Next() {
		run, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return runs, nil
}

// scan reads one run from a [sql.Row] or the current row of [sql.Rows]
func (r *RunRepository) scan(row scanner) (*models.RunRecord, error) {
	var (
		id          string
		sequence    int
		status      string
		stopReason  string
		c           models.RunCounts
		reportPath  string
		startedAt   time.Time
		completedAt sql.NullTime
		createdAt   time.Time
		updatedAt   time.Time
		deletedAt   sql.NullTime
	)

	err := row.Scan(
		&id, &sequence, &status, &stopReason, &c.CatalogTotal, &c.Duplicates, &c.Verified, &c.CMRA,
		&c.Reported, &c.Rejected, &c.Failed, &c.Skipped, &c.CredentialsTotal, &c.CredentialsExhausted,
		&reportPath, &startedAt, &completedAt, &createdAt, &updatedAt, &deletedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	run := models.NewRunRecord(sequence)
	run.SetID(id)
	run.SetStatus(status)
	run.SetStopReason(stopReason)
	run.SetCounts(c)
	run.SetReportPath(reportPath)
	run.SetStartedAt(startedAt)
	run.SetCreatedAt(createdAt)
	run.SetUpdatedAt(updatedAt)
	if completedAt.Valid {
		run.SetCompletedAt(&completedAt.Time)
	}
	if deletedAt.Valid {
		run.SetDeletedAt(&deletedAt.Time)
	}

	return run, nil
}
