package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/noncmra/internal/classifier"
	"github.com/desertthunder/noncmra/internal/models"
	"github.com/desertthunder/noncmra/internal/tasks"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	ConfirmView ViewState = iota
	RunView
	ResultView
)

const logLines = 6

// RunInfo is shown on the confirm view before anything is dispatched.
type RunInfo struct {
	Provider    string
	Source      string
	Credentials int
	Available   int
}

// Model represents the TUI application state.
type Model struct {
	ctx          context.Context
	cancel       context.CancelFunc
	view         ViewState
	engine       tasks.Engine
	mailboxes    []models.Mailbox
	opts         tasks.DispatchOpts
	info         RunInfo
	width        int
	height       int
	progressChan chan tasks.ProgressUpdate
	done         chan runComplete
	progress     tasks.ProgressUpdate
	bar          progress.Model
	log          []string
	stopping     bool
	aborted      bool
	result       *tasks.RunResult
	report       *classifier.Report
	entries      list.Model
	failed       list.Model
	showFailed   bool
	err          error
	help         help.Model
	keys         keyMap
}

// NewModel creates a new TUI model that verifies mailboxes with engine once confirmed.
func NewModel(ctx context.Context, engine tasks.Engine, mailboxes []models.Mailbox, opts tasks.DispatchOpts, info RunInfo) *Model {
	return &Model{
		ctx:       ctx,
		view:      ConfirmView,
		engine:    engine,
		mailboxes: mailboxes,
		opts:      opts,
		info:      info,
		bar:       progress.New(progress.WithGradient(styles.accent, styles.success)),
		help:      help.New(),
		keys:      newKeyMap(),
	}
}

// Result returns the finished run and its ranked report. Both are nil when the run was aborted.
func (m *Model) Result() (*tasks.RunResult, *classifier.Report, error) {
	return m.result, m.report, m.err
}

// Aborted reports whether the user declined to start the run.
func (m *Model) Aborted() bool {
	return m.aborted
}

// Init waits on the confirm view.
func (m *Model) Init() tea.Cmd {
	return nil
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.bar.Width = max(msg.Width-8, 20)
		if m.report != nil {
			m.entries.SetSize(msg.Width-4, msg.Height-12)
			m.failed.SetSize(msg.Width-4, msg.Height-12)
		}
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case ConfirmView:
			return m.handleConfirmKeys(msg)
		case RunView:
			return m.handleRunKeys(msg)
		case ResultView:
			return m.handleResultKeys(msg)
		}

	case progress.FrameMsg:
		bar, cmd := m.bar.Update(msg)
		m.bar = bar.(progress.Model)
		return m, cmd

	case Msg:
		switch msg.kind {
		case MsgProgressUpdate:
			return m, m.applyProgress(msg.data.(tasks.ProgressUpdate))
		case MsgRunComplete:
			m.finish(msg.data.(runComplete))
			return m, nil
		}
	}

	return m, nil
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	switch m.view {
	case ConfirmView:
		return m.renderConfirm()
	case RunView:
		return m.renderRun()
	case ResultView:
		return m.renderResult()
	default:
		return ""
	}
}

func (m *Model) handleConfirmKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.yes):
		m.view = RunView
		return m, m.startRun()
	case key.Matches(msg, m.keys.no), key.Matches(msg, m.keys.quit):
		m.aborted = true
		return m, tea.Quit
	}
	return m, nil
}

func (m *Model) handleRunKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.cancel) && !m.stopping {
		m.stopping = true
		m.cancel()
	}
	return m, nil
}

func (m *Model) handleResultKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.failed):
		if m.report != nil {
			m.showFailed = !m.showFailed
		}
		return m, nil
	}

	if m.report == nil {
		return m, nil
	}

	var cmd tea.Cmd
	if m.showFailed {
		m.failed, cmd = m.failed.Update(msg)
	} else {
		m.entries, cmd = m.entries.Update(msg)
	}
	return m, cmd
}

// startRun runs the engine in the background. The goroutine owns progressChan and closes it once
// the result is parked in done, so waitForProgress never races the result.
func (m *Model) startRun() tea.Cmd {
	runCtx, cancel := context.WithCancel(m.ctx)
	m.cancel = cancel
	m.progressChan = make(chan tasks.ProgressUpdate, 100)
	m.done = make(chan runComplete, 1)

	progressChan, done := m.progressChan, m.done
	go func() {
		result, err := m.engine.Run(runCtx, progressChan, m.mailboxes, m.opts)
		done <- runComplete{result: result, err: err}
		close(progressChan)
	}()

	return m.waitForProgress()
}

func (m *Model) waitForProgress() tea.Cmd {
	progressChan, done := m.progressChan, m.done
	return func() tea.Msg {
		update, ok := <-progressChan
		if !ok {
			rc := <-done
			return runCompleteMsg(rc.result, rc.err)
		}
		return progressUpdateMsg(update)
	}
}

func (m *Model) applyProgress(update tasks.ProgressUpdate) tea.Cmd {
	m.progress = update
	if update.Phase == tasks.Stopping {
		m.stopping = true
	}
	if update.Message != "" {
		m.log = append(m.log, update.Message)
		if len(m.log) > logLines {
			m.log = m.log[len(m.log)-logLines:]
		}
	}

	cmds := []tea.Cmd{m.waitForProgress()}
	if update.Total > 0 {
		cmds = append(cmds, m.bar.SetPercent(float64(update.Step)/float64(update.Total)))
	}
	return tea.Batch(cmds...)
}

func (m *Model) finish(rc runComplete) {
	if m.cancel != nil {
		m.cancel()
	}
	m.view = ResultView
	m.result = rc.result
	m.err = rc.err
	if rc.err != nil || rc.result == nil {
		return
	}

	m.report = classifier.Rank(rc.result.Outcomes)
	m.entries = list.New(entryItems(m.report), list.NewDefaultDelegate(), max(m.width-4, 20), max(m.height-12, 10))
	m.entries.Title = "Non-CMRA Mailboxes"
	m.failed = list.New(outcomeItems(m.report), list.NewDefaultDelegate(), max(m.width-4, 20), max(m.height-12, 10))
	m.failed.Title = "Failed and Skipped"
}

func (m *Model) renderConfirm() string {
	title := styles.title.Render("Verify mailbox catalog?")
	info := strings.Join([]string{
		styles.row("Catalog", fmt.Sprintf("%d mailboxes (%s)", len(m.mailboxes), m.info.Source)),
		styles.row("Provider", m.info.Provider),
		styles.row("Credentials", fmt.Sprintf("%d (%d lookups remaining)", m.info.Credentials, m.info.Available)),
		styles.row("Workers", fmt.Sprintf("%d at %.1f req/s", m.opts.Workers, m.opts.RateLimit)),
	}, "\n")

	var warn string
	if m.info.Available < len(m.mailboxes) {
		warn = "\n\n" + styles.warn.Render(fmt.Sprintf("Remaining quota covers %d of %d mailboxes; the run will stop early.", m.info.Available, len(m.mailboxes)))
	}

	helpView := m.help.ShortHelpView([]key.Binding{m.keys.yes, m.keys.no})
	return fmt.Sprintf("%s\n%s%s\n\n%s", title, styles.box.Render(info), warn, helpView)
}

func (m *Model) renderRun() string {
	title := styles.title.Render("Verifying Mailboxes")

	var phase string
	switch m.progress.Phase {
	case tasks.Prepare:
		phase = "Preparing..."
	case tasks.Verify, tasks.Retry:
		phase = fmt.Sprintf("Verified %d/%d", m.progress.Step, m.progress.Total)
	case tasks.Stopping:
		phase = styles.warn.Render(m.progress.Message)
	default:
		phase = "Processing..."
	}
	if m.stopping && m.progress.Phase != tasks.Stopping {
		phase += styles.warn.Render(" (stopping, waiting for in-flight lookups)")
	}

	helpView := m.help.ShortHelpView([]key.Binding{m.keys.cancel})
	return fmt.Sprintf("%s\n\n%s\n%s\n\n%s\n\n%s", title, m.bar.View(), phase, styles.help.Render(strings.Join(m.log, "\n")), helpView)
}

func (m *Model) renderResult() string {
	if m.err != nil {
		return styles.err.Render(fmt.Sprintf("Run failed: %v\n\nPress q to quit", m.err))
	}
	if m.report == nil {
		return styles.err.Render("No result available\n\nPress q to quit")
	}

	d := m.report.Diagnostics
	var title string
	if m.result.Partial {
		title = styles.warn.Bold(true).Render(fmt.Sprintf("! Run stopped early: %s", m.result.StopReason))
	} else {
		title = styles.ok.Render("✓ Run Complete!")
	}

	info := strings.Join([]string{
		styles.row("Reported", fmt.Sprintf("%d (%d residential)", d.Reported, m.report.Residential())),
		styles.row("CMRA", fmt.Sprint(d.CMRA)),
		styles.row("Rejected", fmt.Sprint(d.Rejected)),
		styles.row("Failed", fmt.Sprintf("%d (quota %d, protocol %d, network %d)", d.Failed(), d.FailedQuota, d.FailedProtocol, d.FailedNetwork)),
		styles.row("Unprocessed", fmt.Sprint(d.Skipped)),
		styles.row("Duration", m.result.Duration().Round(time.Millisecond).String()),
	}, "\n")

	body := m.entries.View()
	if m.showFailed {
		body = m.failed.View()
	}

	helpView := m.help.ShortHelpView([]key.Binding{m.keys.up, m.keys.down, m.keys.failed, m.keys.quit})
	return fmt.Sprintf("%s\n%s\n\n%s\n\n%s", title, styles.box.Render(info), body, helpView)
}
