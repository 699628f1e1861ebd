package monitor

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/rileyhilliard/gpufleet/internal/fleet"
	"github.com/rileyhilliard/gpufleet/internal/ui"
)

// CollectFunc polls the fleet once. progress is called as each target
// finishes, possibly from several goroutines.
type CollectFunc func(ctx context.Context, progress func(fleet.Outcome)) []fleet.Outcome

// Model is the Bubble Tea model for the interactive GPU view.
type Model struct {
	ctx     context.Context
	cancel  context.CancelFunc
	collect CollectFunc
	total   int

	report     fleet.Report
	hasReport  bool
	lastUpdate time.Time
	elapsed    time.Duration

	batch    *batch
	fetching bool
	done     int

	table    table.Model
	spinner  spinner.Model
	help     help.Model
	keys     keyMap
	width    int
	height   int
	showHelp bool
	quitting bool
}

// batch is one in-flight collection. progress is buffered for every
// target so the collector never blocks on the UI.
type batch struct {
	progress chan fleet.Outcome
	result   chan reportMsg
}

// progressMsg reports one finished target.
type progressMsg struct {
	batch   *batch
	outcome fleet.Outcome
}

// reportMsg carries a complete, ranked batch.
type reportMsg struct {
	batch   *batch
	report  fleet.Report
	elapsed time.Duration
	at      time.Time
}

// NewModel creates the view. total is the number of targets a batch polls.
func NewModel(ctx context.Context, collect CollectFunc, total int) Model {
	ctx, cancel := context.WithCancel(ctx)

	s := spinner.New()
	s.Spinner = spinner.MiniDot
	s.Style = SpinnerStyle

	t := ui.NewTable(ui.ReportColumns, nil)
	t.Focus()

	return Model{
		ctx:     ctx,
		cancel:  cancel,
		collect: collect,
		total:   total,
		table:   t,
		spinner: s,
		help:    help.New(),
		keys:    defaultKeyMap(),
	}
}

// Init starts the first batch.
func (m Model) Init() tea.Cmd {
	return func() tea.Msg { return refreshMsg{} }
}

// refreshMsg asks for a new batch.
type refreshMsg struct{}

// Update handles messages and updates the model state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if handled, cmd := m.HandleKeyMsg(msg); handled {
			return m, cmd
		}
		var cmd tea.Cmd
		m.table, cmd = m.table.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.resizeTable()

	case refreshMsg:
		return m.startFetch()

	case progressMsg:
		if msg.batch != m.batch {
			return m, nil
		}
		m.done++
		return m, waitForBatch(msg.batch)

	case reportMsg:
		if msg.batch != m.batch {
			return m, nil
		}
		m.fetching = false
		m.batch = nil
		m.report = msg.report
		m.hasReport = true
		m.elapsed = msg.elapsed
		m.lastUpdate = msg.at
		m.table.SetRows(ui.ReportRows(msg.report.Rows))
		m.resizeTable()
		return m, nil

	case spinner.TickMsg:
		if !m.fetching {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the current state.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.showHelp {
		return m.renderHelpOverlay()
	}
	return m.renderView()
}

// Fetching reports whether a batch is in flight.
func (m Model) Fetching() bool {
	return m.fetching
}

// Report returns the most recent complete report.
func (m Model) Report() fleet.Report {
	return m.report
}

// Close cancels any in-flight batch.
func (m Model) Close() {
	m.cancel()
}

func (m Model) startFetch() (tea.Model, tea.Cmd) {
	if m.fetching {
		return m, nil
	}

	b := &batch{
		progress: make(chan fleet.Outcome, m.total),
		result:   make(chan reportMsg, 1),
	}
	collect, ctx := m.collect, m.ctx
	go func() {
		start := time.Now()
		outcomes := collect(ctx, func(o fleet.Outcome) {
			select {
			case b.progress <- o:
			default:
			}
		})
		close(b.progress)
		b.result <- reportMsg{
			batch:   b,
			report:  fleet.Rank(outcomes),
			elapsed: time.Since(start),
			at:      time.Now(),
		}
	}()

	m.batch = b
	m.fetching = true
	m.done = 0
	return m, tea.Batch(m.spinner.Tick, waitForBatch(b))
}

// waitForBatch yields the next progress message, then the final report
// once the batch has joined.
func waitForBatch(b *batch) tea.Cmd {
	return func() tea.Msg {
		if o, ok := <-b.progress; ok {
			return progressMsg{batch: b, outcome: o}
		}
		return <-b.result
	}
}

func (m *Model) resizeTable() {
	rows := len(m.report.Rows)
	h := rows + 1
	if m.height > 0 {
		// header, summary, spacing and footer
		maxRows := m.height - 8 - len(m.report.Failures)
		if maxRows < 3 {
			maxRows = 3
		}
		if h > maxRows {
			h = maxRows
		}
	}
	m.table.SetHeight(h)
}
