package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/noncmra/internal/models"
)

// OutcomeRepository stores the terminal outcome of every address in a run.
//
// Rows are written once when a run finishes and are only read for history display.
type OutcomeRepository struct {
	db *sql.DB
}

// NewOutcomeRepository creates a new OutcomeRepository with the given database connection
func NewOutcomeRepository(db *sql.DB) *OutcomeRepository {
	return &OutcomeRepository{db: db}
}

// SaveAll inserts outcomes for runID in a single transaction.
func (r *OutcomeRepository) SaveAll(runID string, outcomes []models.Outcome) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO run_outcomes (
			run_id, catalog_index, name, street, city, state, zip, zip4, price, link,
			address_key, kind, cause, reason, is_cmra, is_residential, rdi, attempts, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	for _, o := range outcomes {
		var (
			cmra, residential bool
			rdi               string
		)
		if v := o.Verification; v != nil {
			cmra, residential, rdi = v.CMRA, v.Residential, v.RDI
		}

		m := o.Mailbox
		_, err := stmt.Exec(
			runID, m.Index, m.Name, m.Address.Line1, m.Address.City, m.Address.State, m.Address.Zip,
			m.Address.Zip4, m.Price, m.Link, o.Key(), o.Kind.String(), o.Cause.String(), o.Reason,
			cmra, residential, rdi, o.Attempts, now,
		)
		if err != nil {
			return fmt.Errorf("failed to insert outcome for %s: %w", m.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit outcomes: %w", err)
	}

	return nil
}

// ListByRun returns the outcomes of runID in catalog order. An empty kind returns every outcome.
func (r *OutcomeRepository) ListByRun(runID string, kind string) ([]models.Outcome, error) {
	query := `
		SELECT catalog_index, name, street, city, state, zip, zip4, price, link,
			kind, cause, reason, is_cmra, is_residential, rdi, attempts
		FROM run_outcomes
		WHERE run_id = ?
	`
	args := []any{runID}

	if kind != "" {
		query += " AND kind = ?"
		args = append(args, kind)
	}
	query += " ORDER BY catalog_index ASC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []models.Outcome
	for rows.Next() {
		o, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		outcomes = append(outcomes, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return outcomes, nil
}

// CountByKind tallies the outcomes of runID by kind name.
func (r *OutcomeRepository) CountByKind(runID string) (map[string]int, error) {
	rows, err := r.db.Query(`SELECT kind, COUNT(*) FROM run_outcomes WHERE run_id = ? GROUP BY kind`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to count outcomes: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			kind string
			n    int
		)
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[kind] = n
	}

	return counts, rows.Err()
}

func (r *OutcomeRepository) scan(row scanner) (models.Outcome, error) {
	var (
		o                 models.Outcome
		kind, cause, rdi  string
		cmra, residential bool
	)
	m := &o.Mailbox

	err := row.Scan(
		&m.Index, &m.Name, &m.Address.Line1, &m.Address.City, &m.Address.State, &m.Address.Zip,
		&m.Address.Zip4, &m.Price, &m.Link, &kind, &cause, &o.Reason, &cmra, &residential, &rdi, &o.Attempts,
	)
	if err != nil {
		return o, fmt.Errorf("failed to scan outcome: %w", err)
	}

	if o.Kind, err = models.ParseOutcomeKind(kind); err != nil {
		return o, err
	}
	if o.Cause, err = models.ParseFailureCause(cause); err != nil {
		return o, err
	}
	if o.Kind == models.OutcomeVerified {
		o.Verification = &models.Verification{CMRA: cmra, Residential: residential, RDI: rdi}
	}

	return o, nil
}
