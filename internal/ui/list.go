package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"

	"github.com/desertthunder/noncmra/internal/classifier"
	"github.com/desertthunder/noncmra/internal/models"
)

var (
	_ list.Item = entryItem{}
	_ list.Item = outcomeItem{}
)

// entryItem wraps [classifier.Entry] to implement [list.Item].
type entryItem struct {
	entry classifier.Entry
}

func (i entryItem) FilterValue() string { return i.entry.Mailbox.Name }
func (i entryItem) Title() string {
	return fmt.Sprintf("%d. %s", i.entry.Rank, i.entry.Mailbox.Name)
}
func (i entryItem) Description() string {
	desc := fmt.Sprintf("%s • %s", i.entry.Mailbox.Address, rdiLabel(i.entry.Verification.RDI))
	if i.entry.Mailbox.Price != "" {
		desc = fmt.Sprintf("%s • %s", desc, i.entry.Mailbox.Price)
	}
	return desc
}

// outcomeItem wraps a failed or skipped [models.Outcome] to implement [list.Item].
type outcomeItem struct {
	outcome models.Outcome
}

func (i outcomeItem) FilterValue() string { return i.outcome.Mailbox.Name }
func (i outcomeItem) Title() string       { return i.outcome.Mailbox.Name }
func (i outcomeItem) Description() string {
	label := i.outcome.Kind.String()
	if i.outcome.Cause != models.CauseNone {
		label = i.outcome.Cause.String()
	}
	if i.outcome.Reason == "" {
		return label
	}
	return fmt.Sprintf("%s • %s", label, i.outcome.Reason)
}

func entryItems(report *classifier.Report) []list.Item {
	items := make([]list.Item, len(report.Entries))
	for i, e := range report.Entries {
		items[i] = entryItem{entry: e}
	}
	return items
}

func outcomeItems(report *classifier.Report) []list.Item {
	items := make([]list.Item, 0, len(report.Failed)+len(report.Skipped))
	for _, o := range report.Failed {
		items = append(items, outcomeItem{outcome: o})
	}
	for _, o := range report.Skipped {
		items = append(items, outcomeItem{outcome: o})
	}
	return items
}

func rdiLabel(rdi string) string {
	if rdi == "" {
		return "Unknown"
	}
	return rdi
}
