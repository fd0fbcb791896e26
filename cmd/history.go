package main

import (
	"database/sql"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/noncmra/internal/classifier"
	"github.com/desertthunder/noncmra/internal/models"
	"github.com/desertthunder/noncmra/internal/repositories"
	"github.com/desertthunder/noncmra/internal/shared"
	"github.com/desertthunder/noncmra/internal/tasks"
)

// runHistory records one verify invocation. A nil *runHistory is a no-op so --no-history needs no branching.
type runHistory struct {
	db       *sql.DB
	runs     *repositories.RunRepository
	outcomes *repositories.OutcomeRepository
	record   *models.RunRecord
	logger   *log.Logger
}

func (r *Runner) startHistory(config *shared.Config) (*runHistory, error) {
	db, err := r.openDatabase(config)
	if err != nil {
		return nil, err
	}

	h := &runHistory{
		db:       db,
		runs:     repositories.NewRunRepository(db),
		outcomes: repositories.NewOutcomeRepository(db),
		record:   models.NewRunRecord(0),
		logger:   r.logger,
	}
	if err := h.runs.Create(h.record); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to record run: %w", err)
	}
	r.logger.Debug("recording run", "id", h.record.ID(), "sequence", h.record.Sequence())
	return h, nil
}

// ID returns the run ID, empty when history is disabled.
func (h *runHistory) ID() string {
	if h == nil {
		return ""
	}
	return h.record.ID()
}

// Sequence returns the run's sequence number, 0 when history is disabled.
func (h *runHistory) Sequence() int {
	if h == nil {
		return 0
	}
	return h.record.Sequence()
}

// finish stores the outcomes and final counts.
func (h *runHistory) finish(result *tasks.RunResult, report *classifier.Report, reportPath string) error {
	if h == nil {
		return nil
	}

	if err := h.outcomes.SaveAll(h.record.ID(), result.Outcomes); err != nil {
		return err
	}

	d := report.Diagnostics
	h.record.SetCounts(models.RunCounts{
		CatalogTotal:         result.CatalogTotal,
		Duplicates:           result.Duplicates + d.Duplicates,
		Verified:             d.Verified,
		CMRA:                 d.CMRA,
		Reported:             d.Reported,
		Rejected:             d.Rejected,
		Failed:               d.Failed(),
		Skipped:              d.Skipped,
		CredentialsTotal:     len(result.Credentials),
		CredentialsExhausted: result.ExhaustedCredentials,
	})
	h.record.SetReportPath(reportPath)

	status := models.RunStatusCompleted
	if result.Partial {
		status = models.RunStatusPartial
	}
	h.record.Complete(status, result.StopReason)
	return h.runs.Update(h.record)
}

// fail marks the run failed with cause as the stop reason.
func (h *runHistory) fail(cause string) {
	if h == nil {
		return
	}
	h.record.Complete(models.RunStatusFailed, cause)
	if err := h.runs.Update(h.record); err != nil {
		h.logger.Warn("failed to record run failure", "id", h.record.ID(), "error", err)
	}
}

// Close releases the database.
func (h *runHistory) Close() error {
	if h == nil {
		return nil
	}
	return h.db.Close()
}
