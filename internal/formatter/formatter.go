// package formatter exports ranked mailbox reports to various formats (CSV, JSON, Markdown, plain text)
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/noncmra/internal/classifier"
	"github.com/desertthunder/noncmra/internal/credentials"
	"github.com/desertthunder/noncmra/internal/shared"
	"github.com/desertthunder/noncmra/internal/tasks"
)

// Report formats accepted by [Export].
const (
	FormatCSV      = "csv"
	FormatJSON     = "json"
	FormatMarkdown = "markdown"
	FormatText     = "txt"
)

// Formats lists the accepted format names.
var Formats = []string{FormatCSV, FormatJSON, FormatMarkdown, FormatText}

// CSVHeader is the column contract of the tabular report.
var CSVHeader = []string{"name", "street", "city", "state", "zip", "price", "link", "rdi", "is_residential", "cmra"}

// ParseFormat normalizes a format name. "md" and "text" are accepted as aliases.
func ParseFormat(s string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatJSON:
		return FormatJSON, nil
	case FormatMarkdown, "md":
		return FormatMarkdown, nil
	case FormatText, "text":
		return FormatText, nil
	default:
		return "", fmt.Errorf("%w: unknown format %q (want one of %s)", shared.ErrInvalidArgument, s, strings.Join(Formats, ", "))
	}
}

// ExportToCSV converts a Report to CSV with columns: name, street, city, state, zip, price, link, rdi, is_residential, cmra
func ExportToCSV(report *classifier.Report) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write(CSVHeader); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, e := range report.Entries {
		addr := e.Mailbox.Address
		record := []string{
			e.Mailbox.Name,
			addr.Line1,
			addr.City,
			addr.State,
			addr.FullZip(),
			e.Mailbox.Price,
			e.Mailbox.Link,
			e.Verification.RDI,
			strconv.FormatBool(e.Verification.Residential),
			strconv.FormatBool(e.Verification.CMRA),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToJSON converts a Report to indented JSON, failures and diagnostics included.
func ExportToJSON(report *classifier.Report) ([]byte, error) {
	return shared.MarshalJSON(report, true)
}

// ExportToMarkdown converts a Report to a Markdown document with a ranked table
func ExportToMarkdown(report *classifier.Report) ([]byte, error) {
	var buf bytes.Buffer
	d := report.Diagnostics

	buf.WriteString("# Non-CMRA Mailboxes\n\n")
	buf.WriteString(fmt.Sprintf("**Mailboxes**: %d (%d residential)\n", len(report.Entries), report.Residential()))
	buf.WriteString(fmt.Sprintf("**Checked**: %d addresses, %d CMRA, %d rejected, %d failed, %d skipped\n\n",
		d.Total, d.CMRA, d.Rejected, d.Failed(), d.Skipped))

	buf.WriteString("## Mailboxes\n\n")
	buf.WriteString("| # | Name | Address | Price | RDI |\n")
	buf.WriteString("|---|------|---------|-------|-----|\n")
	for _, e := range report.Entries {
		name := escapeCell(e.Mailbox.Name)
		if e.Mailbox.Link != "" {
			name = fmt.Sprintf("[%s](%s)", name, e.Mailbox.Link)
		}
		buf.WriteString(fmt.Sprintf("| %d | %s | %s | %s | %s |\n",
			e.Rank, name, escapeCell(e.Mailbox.Address.String()), escapeCell(e.Mailbox.Price), rdiLabel(e.Verification.RDI)))
	}

	if len(report.Failed) > 0 {
		buf.WriteString("\n## Failed\n\n")
		for _, o := range report.Failed {
			buf.WriteString(fmt.Sprintf("- %s (%s): %s\n", o.Mailbox.Name, o.Cause, o.Reason))
		}
	}

	return buf.Bytes(), nil
}

// ExportToText converts a Report to plain text format
func ExportToText(report *classifier.Report) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("Mailboxes: %d (%d residential)\n\n", len(report.Entries), report.Residential()))

	for _, e := range report.Entries {
		buf.WriteString(fmt.Sprintf("%d. %s - %s [%s]\n", e.Rank, e.Mailbox.Name, e.Mailbox.Address, rdiLabel(e.Verification.RDI)))
	}

	return buf.Bytes(), nil
}

// Export renders report in format.
func Export(report *classifier.Report, format string) ([]byte, error) {
	format, err := ParseFormat(format)
	if err != nil {
		return nil, err
	}

	switch format {
	case FormatJSON:
		return ExportToJSON(report)
	case FormatMarkdown:
		return ExportToMarkdown(report)
	case FormatText:
		return ExportToText(report)
	default:
		return ExportToCSV(report)
	}
}

// WriteReport exports report to path, creating parent directories.
//
// Defaults to result/mailboxes.{ext} when path is empty.
func WriteReport(report *classifier.Report, path, format string) (string, error) {
	format, err := ParseFormat(format)
	if err != nil {
		return "", err
	}
	if path == "" {
		path = filepath.Join("result", "mailboxes."+extension(format))
	}

	data, err := Export(report, format)
	if err != nil {
		return "", fmt.Errorf("failed to generate %s: %w", format, err)
	}

	if err := writeFile(path, data); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}

	return path, nil
}

// CredentialSummary is one credential's usage with its identifier masked.
type CredentialSummary struct {
	ID        string `json:"id"`
	Limit     int    `json:"limit"`
	Used      int    `json:"used"`
	Remaining int    `json:"remaining"`
	Disabled  bool   `json:"disabled"`
}

// Summary is the machine-readable diagnostic record written next to a report.
type Summary struct {
	RunID                string                 `json:"run_id,omitempty"`
	StartedAt            time.Time              `json:"started_at"`
	CompletedAt          time.Time              `json:"completed_at"`
	Duration             string                 `json:"duration"`
	Partial              bool                   `json:"partial"`
	StopReason           string                 `json:"stop_reason,omitempty"`
	CatalogTotal         int                    `json:"catalog_total"`
	Calls                int                    `json:"calls"`
	TransientErrors      int                    `json:"transient_errors"`
	ExhaustedCredentials int                    `json:"exhausted_credentials"`
	Diagnostics          classifier.Diagnostics `json:"diagnostics"`
	Credentials          []CredentialSummary    `json:"credentials"`
	ReportPath           string                 `json:"report_path,omitempty"`
}

// NewSummary combines a run result and its ranked report.
func NewSummary(runID string, result *tasks.RunResult, report *classifier.Report, reportPath string) *Summary {
	s := &Summary{
		RunID:                runID,
		StartedAt:            result.StartedAt,
		CompletedAt:          result.CompletedAt,
		Duration:             result.Duration().Round(time.Millisecond).String(),
		Partial:              result.Partial,
		StopReason:           result.StopReason,
		CatalogTotal:         result.CatalogTotal,
		Calls:                result.Calls,
		TransientErrors:      result.TransientErrors,
		ExhaustedCredentials: result.ExhaustedCredentials,
		Diagnostics:          report.Diagnostics,
		Credentials:          summarizeCredentials(result.Credentials),
		ReportPath:           reportPath,
	}
	s.Diagnostics.Duplicates += result.Duplicates
	return s
}

func summarizeCredentials(usage []credentials.Usage) []CredentialSummary {
	out := make([]CredentialSummary, len(usage))
	for i, u := range usage {
		out[i] = CredentialSummary{
			ID:        shared.MaskSecret(u.ID),
			Limit:     u.Limit,
			Used:      u.Used,
			Remaining: max(u.Limit-u.Used, 0),
			Disabled:  u.Disabled,
		}
	}
	return out
}

// SummaryPath derives {base}_summary.json from a report path.
func SummaryPath(reportPath string) string {
	return strings.TrimSuffix(reportPath, filepath.Ext(reportPath)) + "_summary.json"
}

// WriteSummary writes the summary as indented JSON.
func WriteSummary(summary *Summary, path string) error {
	data, err := shared.MarshalJSON(summary, true)
	if err != nil {
		return fmt.Errorf("failed to generate summary JSON: %w", err)
	}
	if err := writeFile(path, data); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}
	return nil
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	return os.WriteFile(path, data, 0644)
}

func extension(format string) string {
	if format == FormatMarkdown {
		return "md"
	}
	return format
}

func rdiLabel(rdi string) string {
	if rdi == "" {
		return "Unknown"
	}
	return rdi
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}
