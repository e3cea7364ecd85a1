package tui

import (
	"context"
	"io"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/agbru/policycalc/internal/calc"
	apperrors "github.com/agbru/policycalc/internal/errors"
	"github.com/agbru/policycalc/internal/metrics"
	"github.com/agbru/policycalc/internal/orchestration"
)

// Session describes what the dashboard runs. With Units set, the single
// request is fanned out over them.
type Session struct {
	Orchestrator *orchestration.Orchestrator
	Requests     []calc.Request
	Units        []string
	FanOut       []orchestration.FanOutOption
	Version      string
}

// ExecutionState holds the execution-related fields of a TUI session.
type ExecutionState struct {
	ctx        context.Context
	cancel     context.CancelFunc
	generation uint64
	done       bool
	exitCode   int
}

// LayoutManager holds terminal dimensions and provides layout calculations.
type LayoutManager struct {
	width  int
	height int
}

// Layout constants for the TUI dashboard.
const (
	headerHeight             = 1
	footerHeight             = 1
	minBodyHeight            = 6
	CalculationsWidthPercent = 60
	ResourcesPanelHeight     = 8
)

func (l LayoutManager) bodyHeight() int {
	return max(l.height-headerHeight-footerHeight, minBodyHeight)
}

func (l LayoutManager) leftWidth() int {
	return l.width * CalculationsWidthPercent / 100
}

func (l LayoutManager) rightWidth() int {
	return l.width - l.leftWidth()
}

func (l LayoutManager) resourcesHeight() int {
	return min(ResourcesPanelHeight, l.bodyHeight()/2)
}

func (l LayoutManager) detailHeight() int {
	return l.bodyHeight() - l.resourcesHeight()
}

// Model is the root bubbletea model for the TUI dashboard.
type Model struct {
	header       HeaderModel
	calculations CalculationsModel
	resources    ResourcesModel
	footer       FooterModel

	keymap KeyMap

	ExecutionState
	LayoutManager

	parentCtx context.Context
	session   Session
	ref       *programRef
	paused    bool
	lastErr   error
}

// NewModel creates a new TUI model.
func NewModel(parentCtx context.Context, session Session) Model {
	ctx, cancel := context.WithCancel(parentCtx)
	keymap := DefaultKeyMap()
	country := ""
	if len(session.Requests) > 0 {
		country = session.Requests[0].CountryID
	}
	header := NewHeaderModel(session.Version, country)
	header.SetCounts(0, len(session.Requests))

	return Model{
		header:       header,
		calculations: NewCalculationsModel(session.Requests),
		resources:    NewResourcesModel(),
		footer:       NewFooterModel(keymap),
		keymap:       keymap,
		ExecutionState: ExecutionState{
			ctx:      ctx,
			cancel:   cancel,
			exitCode: apperrors.ExitSuccess,
		},
		parentCtx: parentCtx,
		session:   session,
		ref:       &programRef{},
	}
}

// Init returns the initial commands.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		startRunCmd(m.ref, m.ctx, m.session, m.generation),
		watchContextCmd(m.ctx, m.generation),
	)
}

// Update handles all incoming messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layoutPanels()
		return m, nil

	case AggregateMsg:
		if m.paused {
			return m, nil
		}
		m.calculations.Apply(msg.Status.Statuses)
		m.header.SetCounts(msg.Status.Complete, msg.Status.Members)
		m.resources.UpdateProgress(msg.Status.Progress)
		return m, nil

	case ProgressDoneMsg:
		return m, nil

	case ResultsMsg:
		statuses := make([]calc.Status, len(msg.Results))
		for i, r := range msg.Results {
			statuses[i] = r.Status
		}
		m.calculations.Apply(statuses)
		return m, nil

	case ErrorMsg:
		m.lastErr = msg.Err
		m.footer.SetError(true)
		return m, nil

	case TickMsg:
		if m.done || m.paused {
			return m, tickCmd()
		}
		return m, tea.Batch(sampleRuntimeCmd(), sampleSystemCmd(m.ctx), tickCmd())

	case RuntimeMsg:
		m.resources.UpdateRuntime(metrics.RuntimeSnapshot(msg))
		return m, nil

	case SystemMsg:
		m.resources.UpdateSystem(metrics.SystemSnapshot(msg))
		return m, nil

	case RunCompleteMsg:
		if msg.Generation != m.generation {
			return m, nil
		}
		m.done = true
		m.exitCode = msg.ExitCode
		m.header.SetDone()
		m.footer.SetDone(true)
		return m, nil

	case ContextCancelledMsg:
		if msg.Generation != m.generation {
			return m, nil
		}
		m.done = true
		m.header.SetDone()
		m.footer.SetDone(true)
		return m, tea.Quit
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keymap.Quit):
		if !m.done {
			m.exitCode = apperrors.ExitErrorCanceled
		}
		m.cancel()
		return m, tea.Quit

	case key.Matches(msg, m.keymap.Pause):
		m.paused = !m.paused
		m.footer.SetPaused(m.paused)
		return m, nil

	case key.Matches(msg, m.keymap.Retry):
		return m.retry()

	case key.Matches(msg, m.keymap.Cancel):
		if r, ok := m.calculations.Selected(); ok && m.session.Orchestrator != nil {
			m.session.Orchestrator.Cleanup(r.req.CalcID)
		}
		return m, nil

	case key.Matches(msg, m.keymap.Up):
		m.calculations.MoveUp()
		return m, nil

	case key.Matches(msg, m.keymap.Down):
		m.calculations.MoveDown()
		return m, nil
	}
	return m, nil
}

// retry cancels the current run and starts it again. Complete calculations
// are answered from the store; failed ones re-enter pending.
func (m Model) retry() (tea.Model, tea.Cmd) {
	m.cancel()
	m.generation++
	m.ctx, m.cancel = context.WithCancel(m.parentCtx)

	m.header.Reset()
	m.calculations.Reset()
	m.resources = NewResourcesModel()
	m.resources.SetSize(m.rightWidth(), m.resourcesHeight())
	m.footer.SetDone(false)
	m.footer.SetError(false)
	m.footer.SetPaused(false)
	m.done = false
	m.paused = false
	m.lastErr = nil
	m.exitCode = apperrors.ExitSuccess

	return m, tea.Batch(
		tickCmd(),
		startRunCmd(m.ref, m.ctx, m.session, m.generation),
		watchContextCmd(m.ctx, m.generation),
	)
}

// View renders the entire dashboard.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}
	selected, ok := m.calculations.Selected()
	right := lipgloss.JoinVertical(lipgloss.Left,
		m.resources.View(),
		renderDetail(selected, ok, m.rightWidth(), m.detailHeight()),
	)
	body := lipgloss.JoinHorizontal(lipgloss.Top, m.calculations.View(), right)
	return lipgloss.JoinVertical(lipgloss.Left, m.header.View(), body, m.footer.View())
}

func (m *Model) layoutPanels() {
	m.header.SetWidth(m.width)
	m.footer.SetWidth(m.width)
	m.calculations.SetSize(m.leftWidth(), m.bodyHeight())
	m.resources.SetSize(m.rightWidth(), m.resourcesHeight())
}

// Run is the public entry point for the TUI mode.
// It creates the bubbletea program, runs it, and returns the exit code.
func Run(ctx context.Context, session Session) int {
	// Rebuild styles from the current ui theme (set by app.Run via InitTheme).
	initTUIStyles()

	model := NewModel(ctx, session)
	defer model.cancel()

	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	// Inject the program reference before running so bridge goroutines can Send.
	model.ref.SetProgram(p)

	finalModel, err := p.Run()
	switch {
	case ctx.Err() != nil:
		return apperrors.ExitErrorCanceled
	case err != nil:
		return apperrors.ExitErrorGeneric
	}
	if m, ok := finalModel.(Model); ok {
		m.cancel()
		return m.exitCode
	}
	return apperrors.ExitErrorCanceled
}

// startRunCmd returns a tea.Cmd that runs the session to completion.
func startRunCmd(ref *programRef, ctx context.Context, session Session, gen uint64) tea.Cmd {
	return func() tea.Msg {
		if session.Orchestrator == nil || len(session.Requests) == 0 {
			return RunCompleteMsg{ExitCode: apperrors.ExitSuccess, Generation: gen}
		}
		reporter := &TUIProgressReporter{ref: ref}
		presenter := &TUIResultPresenter{ref: ref}

		var results []orchestration.RunResult
		if len(session.Units) > 0 {
			results = []orchestration.RunResult{orchestration.ExecuteFanOut(ctx, session.Orchestrator,
				session.Requests[0], session.Units, reporter, io.Discard, session.FanOut...)}
		} else {
			results = orchestration.ExecuteCalculations(ctx, session.Orchestrator, session.Requests, reporter, io.Discard)
		}
		exitCode := orchestration.AnalyzeResults(results, false, presenter, presenter, io.Discard)
		return RunCompleteMsg{ExitCode: exitCode, Generation: gen}
	}
}

// tickCmd returns a command that sends a TickMsg after 500ms.
func tickCmd() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// sampleRuntimeCmd reads the Go runtime and returns a RuntimeMsg.
func sampleRuntimeCmd() tea.Cmd {
	return func() tea.Msg {
		return RuntimeMsg(metrics.ReadRuntime())
	}
}

// sampleSystemCmd reads host CPU and memory. A failed probe keeps the fields
// it could read and reports zero for the others.
func sampleSystemCmd(ctx context.Context) tea.Cmd {
	return func() tea.Msg {
		s, _ := metrics.ReadSystem(ctx)
		return SystemMsg(s)
	}
}

// watchContextCmd waits for context cancellation and sends a message.
func watchContextCmd(ctx context.Context, gen uint64) tea.Cmd {
	return func() tea.Msg {
		<-ctx.Done()
		return ContextCancelledMsg{Err: ctx.Err(), Generation: gen}
	}
}
