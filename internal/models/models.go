// package models defines the data model for the mailbox verification pipeline
package models

import (
	"fmt"
	"time"

	"github.com/desertthunder/noncmra/internal/shared"
)

// Model defines the base interface for all persistent models.
// Implementations include RunRecord.
type Model interface {
	ID() string           // ID returns the unique identifier for this model
	CreatedAt() time.Time // CreatedAt returns when this model was created
	UpdatedAt() time.Time // UpdatedAt returns when this model was last updated
	Validate() error      // Validate checks if the model's data is valid and returns an error if not
}

// Repository defines the interface for data access operations.
// Implementations handle database interactions for specific model types.
type Repository[T Model] interface {
	Create(model T) error                      // Create inserts a new model into the database
	Get(id string) (T, error)                  // Get retrieves a model by its ID
	Update(model T) error                      // Update modifies an existing model in the database
	Delete(id string) error                    // Delete removes a model from the database by its ID
	List(criteria map[string]any) ([]T, error) // List retrieves all models matching the given criteria
}

// Address is a US street address as published in the mailbox catalog.
type Address struct {
	Line1 string `json:"street"`
	City  string `json:"city"`
	State string `json:"state"`
	Zip   string `json:"zip"`
	Zip4  string `json:"zip4,omitempty"`
}

// Key returns the normalized identity used for deduplication.
//
// Two addresses with the same key are the same physical location for the purposes of a run.
func (a Address) Key() string {
	return shared.NormalizeAddressKey(a.Line1, a.City, a.State, a.Zip)
}

// FullZip returns the ZIP code with the +4 extension when known.
func (a Address) FullZip() string {
	if a.Zip4 == "" {
		return a.Zip
	}
	return a.Zip + "-" + a.Zip4
}

// String renders the address on one line.
func (a Address) String() string {
	return a.Line1 + ", " + a.City + ", " + a.State + " " + a.FullZip()
}

// Mailbox is one catalog entry. Index is its position in the catalog and is carried through every stage.
type Mailbox struct {
	Index   int     `json:"index"`
	Name    string  `json:"name"`
	Address Address `json:"address"`
	Link    string  `json:"link,omitempty"`
	Price   string  `json:"price,omitempty"`
}

// RDI values reported by the provider.
const (
	RDIResidential = "Residential"
	RDICommercial  = "Commercial"
)

// Verification is the provider's verdict on a deliverable address.
type Verification struct {
	CMRA         bool    `json:"cmra"`
	Residential  bool    `json:"is_residential"`
	RDI          string  `json:"rdi"`
	DPVMatchCode string  `json:"dpv_match_code,omitempty"`
	Normalized   Address `json:"normalized"`
}

// OutcomeKind tags the terminal state of one address.
type OutcomeKind int

const (
	OutcomeVerified OutcomeKind = iota
	OutcomeRejected
	OutcomeFailed
	OutcomeSkipped
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeVerified:
		return "verified"
	case OutcomeRejected:
		return "rejected"
	case OutcomeFailed:
		return "failed"
	case OutcomeSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

func (k OutcomeKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// ParseOutcomeKind is the inverse of [OutcomeKind.String].
func ParseOutcomeKind(s string) (OutcomeKind, error) {
	for _, k := range []OutcomeKind{OutcomeVerified, OutcomeRejected, OutcomeFailed, OutcomeSkipped} {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown outcome kind %q", shared.ErrInvalidInput, s)
}

// FailureCause explains a Failed outcome.
type FailureCause int

const (
	CauseNone FailureCause = iota
	CauseQuotaExceeded
	CauseProtocolError
	CauseNetworkError
)

func (c FailureCause) String() string {
	switch c {
	case CauseQuotaExceeded:
		return "quota_exceeded"
	case CauseProtocolError:
		return "protocol_error"
	case CauseNetworkError:
		return "network_error"
	default:
		return ""
	}
}

func (c FailureCause) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

// ParseFailureCause is the inverse of [FailureCause.String]. The empty string is [CauseNone].
func ParseFailureCause(s string) (FailureCause, error) {
	for _, c := range []FailureCause{CauseNone, CauseQuotaExceeded, CauseProtocolError, CauseNetworkError} {
		if c.String() == s {
			return c, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown failure cause %q", shared.ErrInvalidInput, s)
}

// Outcome is the single terminal result of one unique catalog address in a run.
//
// Verification is set only for [OutcomeVerified]; Cause only for [OutcomeFailed].
// Reason carries the provider's rejection text, the last failure message or the skip reason.
type Outcome struct {
	Mailbox      Mailbox       `json:"mailbox"`
	Kind         OutcomeKind   `json:"kind"`
	Verification *Verification `json:"verification,omitempty"`
	Cause        FailureCause  `json:"cause,omitempty"`
	Reason       string        `json:"reason,omitempty"`
	Attempts     int           `json:"attempts"`
}

// Key returns the mailbox address key.
func (o Outcome) Key() string {
	return o.Mailbox.Address.Key()
}

// Run statuses stored with a [RunRecord].
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusPartial   = "partial"
	RunStatusFailed    = "failed"
)

// RunCounts are the per-run tallies persisted with a [RunRecord].
type RunCounts struct {
	CatalogTotal         int `json:"catalog_total"`
	Duplicates           int `json:"duplicates"`
	Verified             int `json:"verified"`
	CMRA                 int `json:"cmra"`
	Reported             int `json:"reported"`
	Rejected             int `json:"rejected"`
	Failed               int `json:"failed"`
	Skipped              int `json:"skipped"`
	CredentialsTotal     int `json:"credentials_total"`
	CredentialsExhausted int `json:"credentials_exhausted"`
}

// RunRecord is the persisted history of one verification run.
type RunRecord struct {
	id          string
	sequence    int
	status      string
	stopReason  string
	counts      RunCounts
	reportPath  string
	startedAt   time.Time
	completedAt *time.Time
	createdAt   time.Time
	updatedAt   time.Time
	deletedAt   *time.Time
}

// NewRunRecord creates a running RunRecord starting now.
func NewRunRecord(sequence int) *RunRecord {
	now := time.Now()
	return &RunRecord{
		sequence:  sequence,
		status:    RunStatusRunning,
		startedAt: now,
		createdAt: now,
		updatedAt: now,
	}
}

func (r *RunRecord) ID() string { return r.id }
func (r *RunRecord) Sequence() int { return r.sequence }
func (r *RunRecord) Status() string { return r.status }
func (r *RunRecord) StopReason() string { return r.stopReason }
func (r *RunRecord) Counts() RunCounts { return r.counts }
func (r *RunRecord) ReportPath() string { return r.reportPath }
func (r *RunRecord) StartedAt() time.Time { return r.startedAt }
func (r *RunRecord) CompletedAt() *time.Time { return r.completedAt }
func (r *RunRecord) CreatedAt() time.Time { return r.createdAt }
func (r *RunRecord) UpdatedAt() time.Time { return r.updatedAt }
func (r *RunRecord) DeletedAt() *time.Time { return r.deletedAt }

func (r *RunRecord) SetID(id string) { r.id = id }
func (r *RunRecord) SetSequence(seq int) { r.sequence = seq }
func (r *RunRecord) SetStatus(status string) { r.status = status }
func (r *RunRecord) SetStopReason(reason string) { r.stopReason = reason }
func (r *RunRecord) SetCounts(c RunCounts) { r.counts = c }
func (r *RunRecord) SetReportPath(path string) { r.reportPath = path }
func (r *RunRecord) SetStartedAt(t time.Time) { r.startedAt = t }
func (r *RunRecord) SetCompletedAt(t *time.Time) { r.completedAt = t }
func (r *RunRecord) SetCreatedAt(t time.Time) { r.createdAt = t }
func (r *RunRecord) SetUpdatedAt(t time.Time) { r.updatedAt = t }
func (r *RunRecord) SetDeletedAt(t *time.Time) { r.deletedAt = t }

// Complete marks the run finished with the given status.
func (r *RunRecord) Complete(status, stopReason string) {
	now := time.Now()
	r.status = status
	r.stopReason = stopReason
	r.completedAt = &now
	r.updatedAt = now
}

// Validate checks the status value and sequence.
func (r *RunRecord) Validate() error {
	switch r.status {
	case RunStatusRunning, RunStatusCompleted, RunStatusPartial, RunStatusFailed:
	default:
		return shared.ErrInvalidInput
	}
	if r.sequence < 0 {
		return shared.ErrInvalidInput
	}
	return nil
}
