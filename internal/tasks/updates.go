package tasks

import (
	"fmt"

	"github.com/desertthunder/noncmra/internal/models"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	Prepare Phase = iota
	Verify
	Retry
	Stopping
	Complete
)

func (p Phase) String() string {
	switch p {
	case Prepare:
		return "prepare"
	case Verify:
		return "verify"
	case Retry:
		return "retry"
	case Stopping:
		return "stopping"
	case Complete:
		return "complete"
	default:
		return ""
	}
}

func prepareUpdate(unique, duplicates int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Prepare,
		Step:    0,
		Total:   unique,
		Message: fmt.Sprintf("Dispatching %d addresses (%d duplicates collapsed)...", unique, duplicates),
	}
}

func outcomeUpdate(step, total int, o models.Outcome) ProgressUpdate {
	var msg string
	switch o.Kind {
	case models.OutcomeVerified:
		label := "non-CMRA"
		if o.Verification.CMRA {
			label = "CMRA"
		}
		rdi := o.Verification.RDI
		if rdi == "" {
			rdi = "Unknown"
		}
		msg = fmt.Sprintf("[%d/%d] ✓ %s (%s, %s)", step, total, o.Mailbox.Name, label, rdi)
	case models.OutcomeRejected:
		msg = fmt.Sprintf("[%d/%d] ✗ %s: rejected: %s", step, total, o.Mailbox.Name, o.Reason)
	default:
		msg = fmt.Sprintf("[%d/%d] ✗ %s: %s: %s", step, total, o.Mailbox.Name, o.Cause, o.Reason)
	}
	return ProgressUpdate{
		Phase:   Verify,
		Step:    step,
		Total:   total,
		Message: msg,
		Data:    o,
	}
}

func retryUpdate(step, total int, name string, err error) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Retry,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ↻ %s: %v", step, total, name, err),
	}
}

func stoppingUpdate(step, total int, reason string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Stopping,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Stopping dispatch: %s", reason),
	}
}

func completeUpdate(result *RunResult) ProgressUpdate {
	done := len(result.Outcomes) - result.Unprocessed
	return ProgressUpdate{
		Phase:   Complete,
		Step:    done,
		Total:   len(result.Outcomes),
		Message: fmt.Sprintf("Processed %d of %d addresses", done, len(result.Outcomes)),
		Data:    result,
	}
}
