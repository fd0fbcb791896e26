// package tasks implements the verification run over a mailbox catalog.
//
// The core abstraction is VerifyEngine, which dispatches lookups across credentials and workers.
// Operations emit progress updates via channels for non-blocking status reporting to CLI/UI layers.
package tasks

import (
	"context"
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/noncmra/internal/credentials"
	"github.com/desertthunder/noncmra/internal/metrics"
	"github.com/desertthunder/noncmra/internal/models"
	"github.com/desertthunder/noncmra/internal/services"
)

// Stop reasons reported by [RunResult.StopReason].
const (
	StopCredentialsExhausted = "credentials exhausted"
	StopErrorBudget          = "error budget exceeded"
	StopCancelled            = "cancelled"
)

// RunResult contains every outcome of a verification run and its diagnostics.
type RunResult struct {
	Outcomes             []models.Outcome    // One terminal outcome per unique address, in catalog order
	CatalogTotal         int                 // Mailboxes received, duplicates included
	Duplicates           int                 // Mailboxes collapsed into an earlier entry with the same address key
	Partial              bool                // Run stopped before every address reached a verdict
	Unprocessed          int                 // Addresses skipped because of an early stop
	StopReason           string              // Why dispatch stopped early, empty when it ran to completion
	TransientErrors      int                 // Protocol and network failures across all calls
	Calls                int                 // Provider calls made
	Credentials          []credentials.Usage // Pool usage when the run ended
	ExhaustedCredentials int                 // Credentials disabled or at their limit when the run ended
	StartedAt            time.Time
	CompletedAt          time.Time
}

// Duration returns how long the run took.
func (r *RunResult) Duration() time.Duration {
	return r.CompletedAt.Sub(r.StartedAt)
}

// Count returns the number of outcomes of kind k.
func (r *RunResult) Count(k models.OutcomeKind) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Kind == k {
			n++
		}
	}
	return n
}

// Engine defines the verification run.
type Engine interface {
	// Run verifies every mailbox and returns exactly one outcome per unique address.
	Run(ctx context.Context, progress chan<- ProgressUpdate, mailboxes []models.Mailbox, opts DispatchOpts) (*RunResult, error)
}

// VerifyEngine implements Engine on top of a credential pool and a validator.
type VerifyEngine struct {
	validator services.Validator
	pool      *credentials.Pool
	logger    *log.Logger
	metrics   *metrics.Metrics
}

// NewVerifyEngine creates a new VerifyEngine. logger and m may be nil.
func NewVerifyEngine(v services.Validator, pool *credentials.Pool, logger *log.Logger, m *metrics.Metrics) *VerifyEngine {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &VerifyEngine{
		validator: v,
		pool:      pool,
		logger:    logger,
		metrics:   m,
	}
}

// sendProgress sends a progress update through the channel without blocking.
// Uses select with default to ensure progress reporting never blocks execution.
func (e *VerifyEngine) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
		// Sent successfully
	default:
		// Channel full, skip this update
	}
}
