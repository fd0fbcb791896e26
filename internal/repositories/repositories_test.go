package repositories

import (
	"database/sql"
	"errors"
	"testing"

	"github.com/desertthunder/noncmra/internal/models"
	"github.com/desertthunder/noncmra/internal/shared"
	tu "github.com/desertthunder/noncmra/internal/testing"
)

// setupTestDB creates an in-memory SQLite database with migrations applied
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		t.Fatalf("failed to enable foreign keys: %v", err)
	}

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

func createRun(t *testing.T, repo *RunRepository) *models.RunRecord {
	t.Helper()
	run := models.NewRunRecord(0)
	if err := repo.Create(run); err != nil {
		t.Fatalf("failed to create run: %v", err)
	}
	return run
}

func TestNextSequence(t *testing.T) {
	db := setupTestDB(t)

	for want := 1; want <= 3; want++ {
		got, err := NextSequence(db, "runs")
		if err != nil {
			t.Fatalf("NextSequence() error = %v", err)
		}
		if got != want {
			t.Errorf("NextSequence() = %d, want %d", got, want)
		}
	}

	if _, err := NextSequence(db, "nope"); err == nil {
		t.Error("expected error for table without sequence")
	}
}

func TestRunRepository(t *testing.T) {
	t.Run("Create", func(t *testing.T) {
		repo := NewRunRepository(setupTestDB(t))

		first := createRun(t, repo)
		second := createRun(t, repo)

		if first.ID() == "" {
			t.Error("run ID should be set after creation")
		}
		if first.Sequence() != 1 || second.Sequence() != 2 {
			t.Errorf("expected sequences 1 and 2, got %d and %d", first.Sequence(), second.Sequence())
		}
	})

	t.Run("Create invalid status", func(t *testing.T) {
		repo := NewRunRepository(setupTestDB(t))
		run := models.NewRunRecord(0)
		run.SetStatus("paused")

		if err := repo.Create(run); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("Get", func(t *testing.T) {
		repo := NewRunRepository(setupTestDB(t))
		run := createRun(t, repo)

		retrieved, err := repo.Get(run.ID())
		if err != nil {
			t.Fatalf("failed to get run: %v", err)
		}

		if retrieved.Status() != models.RunStatusRunning {
			t.Errorf("expected status %s, got %s", models.RunStatusRunning, retrieved.Status())
		}
		if retrieved.CompletedAt() != nil {
			t.Error("running run should have no completion time")
		}

		bySeq, err := repo.GetBySequence(run.Sequence())
		if err != nil {
			t.Fatalf("failed to get run by sequence: %v", err)
		}
		if bySeq.ID() != run.ID() {
			t.Errorf("expected ID %s, got %s", run.ID(), bySeq.ID())
		}
	})

	t.Run("Get not found", func(t *testing.T) {
		repo := NewRunRepository(setupTestDB(t))

		if _, err := repo.Get("missing"); !errors.Is(err, shared.ErrRunNotFound) {
			t.Errorf("expected ErrRunNotFound, got %v", err)
		}
		if _, err := repo.GetBySequence(99); !errors.Is(err, shared.ErrRunNotFound) {
			t.Errorf("expected ErrRunNotFound, got %v", err)
		}
	})

	t.Run("Update", func(t *testing.T) {
		repo := NewRunRepository(setupTestDB(t))
		run := createRun(t, repo)

		counts := models.RunCounts{CatalogTotal: 12, Duplicates: 2, Verified: 8, CMRA: 3, Reported: 5, Failed: 1, Skipped: 1, CredentialsTotal: 2, CredentialsExhausted: 2}
		run.SetCounts(counts)
		run.SetReportPath("result/mailboxes.csv")
		run.Complete(models.RunStatusPartial, "credentials exhausted")

		if err := repo.Update(run); err != nil {
			t.Fatalf("failed to update run: %v", err)
		}

		retrieved, err := repo.Get(run.ID())
		if err != nil {
			t.Fatalf("failed to get run: %v", err)
		}
		if retrieved.Counts() != counts {
			t.Errorf("counts = %+v, want %+v", retrieved.Counts(), counts)
		}
		if retrieved.Status() != models.RunStatusPartial || retrieved.StopReason() != "credentials exhausted" {
			t.Errorf("unexpected status %s (%s)", retrieved.Status(), retrieved.StopReason())
		}
		if retrieved.CompletedAt() == nil {
			t.Error("completed run should have a completion time")
		}
		if retrieved.ReportPath() != "result/mailboxes.csv" {
			t.Errorf("unexpected report path %s", retrieved.ReportPath())
		}
	})

	t.Run("Update not found", func(t *testing.T) {
		repo := NewRunRepository(setupTestDB(t))
		run := models.NewRunRecord(1)
		run.SetID("missing")

		if err := repo.Update(run); !errors.Is(err, shared.ErrRunNotFound) {
			t.Errorf("expected ErrRunNotFound, got %v", err)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		repo := NewRunRepository(setupTestDB(t))
		run := createRun(t, repo)

		if err := repo.Delete(run.ID()); err != nil {
			t.Fatalf("failed to delete run: %v", err)
		}
		if _, err := repo.Get(run.ID()); err == nil {
			t.Error("expected error when getting deleted run")
		}
		if err := repo.Delete(run.ID()); err == nil {
			t.Error("expected error when deleting twice")
		}
	})

	t.Run("List", func(t *testing.T) {
		repo := NewRunRepository(setupTestDB(t))

		for range 3 {
			createRun(t, repo)
		}
		done := createRun(t, repo)
		done.Complete(models.RunStatusCompleted, "")
		if err := repo.Update(done); err != nil {
			t.Fatalf("failed to update run: %v", err)
		}

		all, err := repo.List(nil)
		if err != nil {
			t.Fatalf("failed to list runs: %v", err)
		}
		if len(all) != 4 {
			t.Fatalf("expected 4 runs, got %d", len(all))
		}
		if all[0].Sequence() != 4 {
			t.Errorf("expected newest run first, got sequence %d", all[0].Sequence())
		}

		completed, err := repo.List(map[string]any{"status": models.RunStatusCompleted})
		if err != nil {
			t.Fatalf("failed to list runs: %v", err)
		}
		if len(completed) != 1 || completed[0].ID() != done.ID() {
			t.Errorf("expected only the completed run, got %d", len(completed))
		}

		limited, err := repo.List(map[string]any{"limit": 2})
		if err != nil {
			t.Fatalf("failed to list runs: %v", err)
		}
		if len(limited) != 2 {
			t.Errorf("expected 2 runs, got %d", len(limited))
		}
	})
}

func TestOutcomeRepository(t *testing.T) {
	outcomes := []models.Outcome{
		{Mailbox: tu.Mailbox(0, "A"), Kind: models.OutcomeVerified, Verification: tu.Verified(false, true), Attempts: 1},
		{Mailbox: tu.Mailbox(1, "B"), Kind: models.OutcomeVerified, Verification: tu.Verified(true, false), Attempts: 2},
		{Mailbox: tu.Mailbox(2, "C"), Kind: models.OutcomeRejected, Reason: "no match", Attempts: 1},
		{Mailbox: tu.Mailbox(3, "D"), Kind: models.OutcomeFailed, Cause: models.CauseProtocolError, Reason: "bad json", Attempts: 3},
		{Mailbox: tu.Mailbox(4, "E"), Kind: models.OutcomeSkipped, Reason: "cancelled"},
	}
	outcomes[0].Mailbox.Address.Zip4 = "0001"

	t.Run("SaveAll and ListByRun", func(t *testing.T) {
		db := setupTestDB(t)
		run := createRun(t, NewRunRepository(db))
		repo := NewOutcomeRepository(db)

		if err := repo.SaveAll(run.ID(), outcomes); err != nil {
			t.Fatalf("SaveAll() error = %v", err)
		}

		got, err := repo.ListByRun(run.ID(), "")
		if err != nil {
			t.Fatalf("ListByRun() error = %v", err)
		}
		if len(got) != len(outcomes) {
			t.Fatalf("expected %d outcomes, got %d", len(outcomes), len(got))
		}

		if got[0].Mailbox != outcomes[0].Mailbox {
			t.Errorf("mailbox = %+v, want %+v", got[0].Mailbox, outcomes[0].Mailbox)
		}
		if got[0].Verification == nil || !got[0].Verification.Residential || got[0].Verification.RDI != models.RDIResidential {
			t.Errorf("unexpected verification %+v", got[0].Verification)
		}
		if got[3].Cause != models.CauseProtocolError || got[3].Attempts != 3 {
			t.Errorf("unexpected failed outcome %+v", got[3])
		}
		if got[4].Verification != nil {
			t.Error("skipped outcome should have no verification")
		}

		failed, err := repo.ListByRun(run.ID(), models.OutcomeFailed.String())
		if err != nil {
			t.Fatalf("ListByRun() error = %v", err)
		}
		if len(failed) != 1 || failed[0].Mailbox.Name != "Mailbox D" {
			t.Errorf("expected only D, got %+v", failed)
		}
	})

	t.Run("CountByKind", func(t *testing.T) {
		db := setupTestDB(t)
		run := createRun(t, NewRunRepository(db))
		repo := NewOutcomeRepository(db)

		if err := repo.SaveAll(run.ID(), outcomes); err != nil {
			t.Fatalf("SaveAll() error = %v", err)
		}

		counts, err := repo.CountByKind(run.ID())
		if err != nil {
			t.Fatalf("CountByKind() error = %v", err)
		}
		want := map[string]int{"verified": 2, "rejected": 1, "failed": 1, "skipped": 1}
		for k, n := range want {
			if counts[k] != n {
				t.Errorf("counts[%s] = %d, want %d", k, counts[k], n)
			}
		}
	})

	t.Run("duplicate address rolls back", func(t *testing.T) {
		db := setupTestDB(t)
		run := createRun(t, NewRunRepository(db))
		repo := NewOutcomeRepository(db)

		dup := []models.Outcome{outcomes[0], outcomes[0]}
		if err := repo.SaveAll(run.ID(), dup); err == nil {
			t.Fatal("expected error for duplicate address key")
		}

		got, err := repo.ListByRun(run.ID(), "")
		if err != nil {
			t.Fatalf("ListByRun() error = %v", err)
		}
		if len(got) != 0 {
			t.Errorf("expected rollback, found %d outcomes", len(got))
		}
	})

	t.Run("unknown run", func(t *testing.T) {
		repo := NewOutcomeRepository(setupTestDB(t))

		if err := repo.SaveAll("missing", outcomes[:1]); err == nil {
			t.Error("expected foreign key error for unknown run")
		}
	})
}
