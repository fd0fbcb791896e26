// Package classifier filters verification outcomes down to non-CMRA addresses and ranks them.
package classifier

import (
	"cmp"
	"slices"

	"github.com/desertthunder/noncmra/internal/models"
)

// Entry is one reportable mailbox.
type Entry struct {
	Rank         int                 `json:"rank"`
	Mailbox      models.Mailbox      `json:"mailbox"`
	Verification models.Verification `json:"verification"`
}

// Diagnostics counts outcomes by terminal state.
//
// Reported + CMRA + Rejected + Failed() + Skipped == Total.
type Diagnostics struct {
	Total          int `json:"total"`
	Duplicates     int `json:"duplicates"`
	Verified       int `json:"verified"`
	Reported       int `json:"reported"`
	CMRA           int `json:"cmra"`
	Rejected       int `json:"rejected"`
	FailedQuota    int `json:"failed_quota_exceeded"`
	FailedProtocol int `json:"failed_protocol_error"`
	FailedNetwork  int `json:"failed_network_error"`
	Skipped        int `json:"skipped"`
}

// Failed sums failures across causes.
func (d Diagnostics) Failed() int {
	return d.FailedQuota + d.FailedProtocol + d.FailedNetwork
}

// Report is the ranked result set of a run.
type Report struct {
	Entries     []Entry          `json:"entries"`
	Failed      []models.Outcome `json:"failed"`
	Skipped     []models.Outcome `json:"skipped"`
	Diagnostics Diagnostics      `json:"diagnostics"`
}

// Residential returns how many entries are residential.
func (r *Report) Residential() int {
	n := 0
	for _, e := range r.Entries {
		if e.Verification.Residential {
			n++
		}
	}
	return n
}

// Rank keeps verified non-CMRA outcomes and orders them residential first, then by catalog index.
//
// Outcomes sharing an address key are collapsed onto the one with the lowest catalog index and
// counted in Diagnostics.Duplicates. Failed and skipped outcomes are listed, never dropped.
// Ranking the same outcomes in any input order yields the same report.
func Rank(outcomes []models.Outcome) *Report {
	ordered := slices.Clone(outcomes)
	slices.SortStableFunc(ordered, func(a, b models.Outcome) int {
		return cmp.Compare(a.Mailbox.Index, b.Mailbox.Index)
	})

	report := &Report{Entries: []Entry{}, Failed: []models.Outcome{}, Skipped: []models.Outcome{}}
	d := &report.Diagnostics
	seen := make(map[string]bool, len(ordered))

	for _, o := range ordered {
		key := o.Key()
		if seen[key] {
			d.Duplicates++
			continue
		}
		seen[key] = true
		d.Total++

		switch o.Kind {
		case models.OutcomeVerified:
			d.Verified++
			// A verdict without details cannot prove the address is not a CMRA.
			if o.Verification == nil || o.Verification.CMRA {
				d.CMRA++
				continue
			}
			d.Reported++
			report.Entries = append(report.Entries, Entry{Mailbox: o.Mailbox, Verification: *o.Verification})
		case models.OutcomeRejected:
			d.Rejected++
		case models.OutcomeFailed:
			switch o.Cause {
			case models.CauseQuotaExceeded:
				d.FailedQuota++
			case models.CauseProtocolError:
				d.FailedProtocol++
			default:
				d.FailedNetwork++
			}
			report.Failed = append(report.Failed, o)
		case models.OutcomeSkipped:
			d.Skipped++
			report.Skipped = append(report.Skipped, o)
		}
	}

	slices.SortStableFunc(report.Entries, compareEntries)
	for i := range report.Entries {
		report.Entries[i].Rank = i + 1
	}
	return report
}

func compareEntries(a, b Entry) int {
	if a.Verification.Residential != b.Verification.Residential {
		if a.Verification.Residential {
			return -1
		}
		return 1
	}
	return cmp.Compare(a.Mailbox.Index, b.Mailbox.Index)
}
