package ui

import (
	"context"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/noncmra/internal/credentials"
	"github.com/desertthunder/noncmra/internal/models"
	"github.com/desertthunder/noncmra/internal/tasks"
	tu "github.com/desertthunder/noncmra/internal/testing"
)

func newTestModel(t *testing.T, limit int) *Model {
	t.Helper()
	pool := credentials.NewPool([]credentials.Credential{{ID: "id", Secret: "secret", Limit: limit}})
	validator := &tu.MockValidator{
		Fn: func(ctx context.Context, addr models.Address, cred credentials.Credential) (*models.Verification, error) {
			return tu.Verified(addr.Line1 == "C", addr.Line1 == "B"), nil
		},
	}
	engine := tasks.NewVerifyEngine(validator, pool, nil, nil)
	mailboxes := []models.Mailbox{tu.Mailbox(0, "A"), tu.Mailbox(1, "B"), tu.Mailbox(2, "C")}
	opts := tasks.DispatchOpts{Workers: 1, RateLimit: 1000}

	return NewModel(context.Background(), engine, mailboxes, opts, RunInfo{
		Provider:    "mock",
		Source:      "file",
		Credentials: 1,
		Available:   pool.Available(),
	})
}

func keyPress(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// drive executes cmd and feeds run messages back into the model until the result view is reached.
func drive(t *testing.T, m *Model, cmd tea.Cmd) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for m.view != ResultView {
		select {
		case <-deadline:
			t.Fatal("run did not complete")
		default:
		}
		if cmd == nil {
			t.Fatal("expected a command while the run is in flight")
		}

		msg := cmd()
		if batch, ok := msg.(tea.BatchMsg); ok {
			cmd = nil
			for _, c := range batch {
				if c == nil {
					continue
				}
				if inner, ok := c().(Msg); ok {
					_, cmd = m.Update(inner)
				}
			}
			continue
		}
		_, cmd = m.Update(msg)
	}
}

func TestModel(t *testing.T) {
	t.Run("confirm view shows the plan", func(t *testing.T) {
		m := newTestModel(t, 2)

		view := m.View()
		if !strings.Contains(view, "3 mailboxes (file)") {
			t.Errorf("confirm view missing catalog size, got: %s", view)
		}
		if !strings.Contains(view, "will stop early") {
			t.Error("confirm view should warn when quota is short")
		}
	})

	t.Run("declining aborts", func(t *testing.T) {
		m := newTestModel(t, 10)

		_, cmd := m.Update(keyPress("n"))
		if !m.Aborted() {
			t.Error("expected model to be aborted")
		}
		if cmd == nil {
			t.Error("expected quit command")
		}
		if result, report, _ := m.Result(); result != nil || report != nil {
			t.Error("aborted model should have no result")
		}
	})

	t.Run("run to result", func(t *testing.T) {
		m := newTestModel(t, 10)

		_, cmd := m.Update(keyPress("y"))
		if m.view != RunView {
			t.Fatalf("expected run view, got %d", m.view)
		}
		drive(t, m, cmd)

		result, report, err := m.Result()
		if err != nil {
			t.Fatalf("unexpected error %v", err)
		}
		if result == nil || report == nil {
			t.Fatal("expected a result and report")
		}
		if len(report.Entries) != 2 || report.Entries[0].Mailbox.Address.Line1 != "B" {
			t.Errorf("expected residential B first, got %+v", report.Entries)
		}
		if !strings.Contains(m.View(), "Run Complete") {
			t.Errorf("result view missing title, got: %s", m.View())
		}

		m.Update(keyPress("f"))
		if !m.showFailed {
			t.Error("f should toggle the failed list")
		}
	})
}
