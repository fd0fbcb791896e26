package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/desertthunder/noncmra/internal/classifier"
	"github.com/desertthunder/noncmra/internal/models"
	"github.com/desertthunder/noncmra/internal/repositories"
	"github.com/desertthunder/noncmra/internal/shared"
	"github.com/urfave/cli/v3"
)

// runView is the JSON shape of a recorded run.
type runView struct {
	ID          string           `json:"id"`
	Sequence    int              `json:"sequence"`
	Status      string           `json:"status"`
	StopReason  string           `json:"stop_reason,omitempty"`
	Counts      models.RunCounts `json:"counts"`
	ReportPath  string           `json:"report_path,omitempty"`
	StartedAt   time.Time        `json:"started_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}

type runDetail struct {
	runView
	Outcomes []models.Outcome `json:"outcomes"`
}

func newRunView(run *models.RunRecord) runView {
	return runView{
		ID:          run.ID(),
		Sequence:    run.Sequence(),
		Status:      run.Status(),
		StopReason:  run.StopReason(),
		Counts:      run.Counts(),
		ReportPath:  run.ReportPath(),
		StartedAt:   run.StartedAt(),
		CompletedAt: run.CompletedAt(),
	}
}

// RunsList prints recorded runs, newest first.
func (r *Runner) RunsList(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}

	db, err := r.openDatabase(config)
	if err != nil {
		return err
	}
	defer db.Close()

	runs, err := repositories.NewRunRepository(db).List(map[string]any{
		"status": cmd.String("status"),
		"limit":  cmd.Int("limit"),
	})
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	if cmd.Bool("json") {
		views := make([]runView, len(runs))
		for i, run := range runs {
			views[i] = newRunView(run)
		}
		return r.writeJSON(views, true)
	}

	if len(runs) == 0 {
		r.writePlain("No runs recorded. Run 'noncmra verify' first.\n")
		return nil
	}

	r.writePlainHeader(fmt.Sprintf("Runs (%d)", len(runs)))
	for _, run := range runs {
		c := run.Counts()
		r.writePlain("#%-4d %-10s %s  reported %d/%d  skipped %d\n",
			run.Sequence(), run.Status(), run.StartedAt().Local().Format(time.DateTime), c.Reported, c.CatalogTotal, c.Skipped)
	}
	return nil
}

// RunsShow prints one run and its outcomes. The argument is a run ID or sequence number.
func (r *Runner) RunsShow(ctx context.Context, cmd *cli.Command) error {
	arg := cmd.StringArg("id")
	if arg == "" {
		return fmt.Errorf("%w: run ID or sequence", shared.ErrMissingArgument)
	}

	kind := cmd.String("kind")
	if kind != "" {
		k, err := models.ParseOutcomeKind(kind)
		if err != nil {
			return fmt.Errorf("%w: --kind %q", shared.ErrInvalidFlag, kind)
		}
		kind = k.String()
	}

	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}

	db, err := r.openDatabase(config)
	if err != nil {
		return err
	}
	defer db.Close()

	runs := repositories.NewRunRepository(db)
	var run *models.RunRecord
	if seq, convErr := strconv.Atoi(arg); convErr == nil {
		run, err = runs.GetBySequence(seq)
	} else {
		run, err = runs.Get(arg)
	}
	if err != nil {
		return err
	}

	outcomes, err := repositories.NewOutcomeRepository(db).ListByRun(run.ID(), kind)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(runDetail{runView: newRunView(run), Outcomes: outcomes}, true)
	}

	c := run.Counts()
	r.writePlainHeader(fmt.Sprintf("Run #%d (%s)", run.Sequence(), run.Status()))
	r.writePlain("ID:           %s\n", run.ID())
	r.writePlain("Started:      %s\n", run.StartedAt().Local().Format(time.DateTime))
	if completed := run.CompletedAt(); completed != nil {
		r.writePlain("Duration:     %s\n", completed.Sub(run.StartedAt()).Round(time.Millisecond))
	}
	if run.StopReason() != "" {
		r.writePlain("Stop reason:  %s\n", run.StopReason())
	}
	r.writePlain("Catalog:      %d mailboxes (%d duplicates)\n", c.CatalogTotal, c.Duplicates)
	r.writePlain("Reported:     %d non-CMRA\n", c.Reported)
	r.writePlain("CMRA:         %d\n", c.CMRA)
	r.writePlain("Rejected:     %d\n", c.Rejected)
	r.writePlain("Failed:       %d\n", c.Failed)
	r.writePlain("Unprocessed:  %d\n", c.Skipped)
	r.writePlain("Credentials:  %d of %d exhausted\n", c.CredentialsExhausted, c.CredentialsTotal)
	if run.ReportPath() != "" {
		r.writePlain("Report:       %s\n", run.ReportPath())
	}

	if kind != "" {
		r.writePlainln("Outcomes (%s): %d", kind, len(outcomes))
		for _, o := range outcomes {
			r.writePlain("  %4d. %s  %s", o.Mailbox.Index+1, o.Mailbox.Name, o.Mailbox.Address)
			if o.Reason != "" {
				r.writePlain("  (%s)", o.Reason)
			}
			r.writePlain("\n")
		}
		return nil
	}

	report := classifier.Rank(outcomes)
	r.writePlainln("Non-CMRA mailboxes: %d (%d residential)", len(report.Entries), report.Residential())
	for _, e := range report.Entries {
		r.writePlain("  %4d. %s  %s  [%s]\n", e.Rank, e.Mailbox.Name, e.Mailbox.Address, e.Verification.RDI)
	}
	return nil
}
