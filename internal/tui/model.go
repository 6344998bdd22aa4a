// Package tui renders the tutor transcript in the terminal and turns key
// presses into controller actions.
package tui

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/zhouzirui/linear-tutor/internal/model/chat"
	chatservice "github.com/zhouzirui/linear-tutor/internal/service/chat"
)

// MatrixTemplate is inserted into the input by ctrl+t.
const MatrixTemplate = `
$$
\begin{bmatrix}
 a & b \\
 c & d
\end{bmatrix}
$$
`

const inputHeight = 3

// changedMsg reports that the transcript or the busy flag changed.
type changedMsg struct{}

// turnDoneMsg is delivered when a submitted turn returns.
type turnDoneMsg struct {
	err error
}

// Model is the bubbletea model of the chat screen.
type Model struct {
	ctrl        *chatservice.Controller
	changes     chan struct{}
	unsubscribe func()

	viewport viewport.Model
	input    textarea.Model
	spinner  spinner.Model
	theme    theme

	messages []chat.Message
	busy     bool
	// pending covers the gap between Enter and the controller taking the turn.
	pending bool
	cancel  context.CancelFunc
	status  string

	width    int
	height   int
	quitting bool
}

// New creates the chat screen for ctrl. Call Close when the program exits.
func New(ctrl *chatservice.Controller) *Model {
	input := textarea.New()
	input.Placeholder = "Ask a Linear Algebra problem (Text Only)..."
	input.ShowLineNumbers = false
	input.CharLimit = 4000
	input.SetHeight(inputHeight)
	input.KeyMap.InsertNewline.SetKeys("alt+enter", "ctrl+j")
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Points
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#22d3ee"))

	m := &Model{
		ctrl:     ctrl,
		changes:  make(chan struct{}, 1),
		viewport: viewport.New(0, 0),
		input:    input,
		spinner:  sp,
		theme:    newTheme(),
		width:    80,
		height:   24,
	}

	// Listeners only signal; the UI goroutine reads the store itself, so a
	// burst of fragments collapses into one redraw.
	notify := func() {
		select {
		case m.changes <- struct{}{}:
		default:
		}
	}
	m.unsubscribe = ctrl.Transcript().Subscribe(func(chatservice.Snapshot) { notify() })
	ctrl.OnBusy(func(bool) { notify() })

	m.resize()
	m.sync()
	return m
}

// Close detaches the model from the transcript and cancels any turn in flight.
func (m *Model) Close() {
	if m.cancel != nil {
		m.cancel()
	}
	m.unsubscribe()
}

// PendingVisible reports whether the waiting indicator is shown: a turn is in
// flight and no assistant message has been created for it yet.
func PendingVisible(msgs []chat.Message, busy bool) bool {
	if !busy {
		return false
	}
	if len(msgs) == 0 {
		return true
	}
	return msgs[len(msgs)-1].Role != chat.RoleAssistant
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.spinner.Tick, m.waitForChange())
}

func (m *Model) waitForChange() tea.Cmd {
	changes := m.changes
	return func() tea.Msg {
		<-changes
		return changedMsg{}
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		m.refresh()
	case changedMsg:
		m.sync()
		cmds = append(cmds, m.waitForChange())
	case turnDoneMsg:
		m.pending = false
		m.cancel = nil
		if msg.err != nil {
			m.status = msg.err.Error()
		}
		m.sync()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
		if m.busy {
			m.refresh()
		}
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.quitting = true
		if m.cancel != nil {
			m.cancel()
		}
		return m, tea.Quit
	case "esc":
		if m.busy && m.cancel != nil {
			m.cancel()
			m.status = "Cancelling..."
		}
		return m, nil
	case "ctrl+l":
		if !m.busy && m.ctrl.Clear() {
			m.status = "Session cleared."
		} else {
			m.status = "Wait for the current answer before clearing."
		}
		m.sync()
		return m, nil
	case "tab":
		next := m.ctrl.Style().Next()
		if err := m.ctrl.SetStyle(next); err != nil {
			m.status = err.Error()
		} else {
			m.status = "Style: " + next.Label()
		}
		return m, nil
	case "ctrl+t":
		if !m.busy {
			m.input.InsertString(MatrixTemplate)
		}
		return m, nil
	case "enter":
		return m.submit()
	case "pgup", "pgdown", "ctrl+u", "ctrl+d":
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	if m.busy {
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) submit() (tea.Model, tea.Cmd) {
	if m.busy {
		return m, nil
	}
	text := m.input.Value()
	if strings.TrimSpace(text) == "" {
		return m, nil
	}

	m.input.Reset()
	m.status = ""
	m.pending = true
	m.setBusy(true)

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	ctrl := m.ctrl
	return m, func() tea.Msg {
		defer cancel()
		return turnDoneMsg{err: ctrl.Submit(ctx, text, nil)}
	}
}

// sync pulls the current transcript and busy flag from the controller.
func (m *Model) sync() {
	m.messages = m.ctrl.Transcript().Messages()
	m.setBusy(m.pending || m.ctrl.Busy())
	m.refresh()
}

func (m *Model) setBusy(busy bool) {
	m.busy = busy
	if busy {
		m.input.Blur()
	} else {
		m.input.Focus()
	}
}

func (m *Model) resize() {
	chrome := lipgloss.Height(m.headerView()) + inputHeight + 2 + lipgloss.Height(m.footerView()) + 1
	m.viewport.Width = m.width
	m.viewport.Height = max(m.height-chrome, 3)
	m.input.SetWidth(max(m.width-2, 10))
}

// refresh re-renders the transcript and keeps the newest message in view.
func (m *Model) refresh() {
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

func (m *Model) View() string {
	if m.quitting {
		return ""
	}

	pending := ""
	if PendingVisible(m.messages, m.busy) {
		pending = m.spinner.View() + m.theme.muted.Render(" Processing neural vectors...")
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.headerView(),
		m.viewport.View(),
		pending,
		m.theme.inputPanel.Render(m.input.View()),
		m.footerView(),
	)
}

// Run shows the chat screen until the user quits.
func Run(ctrl *chatservice.Controller) error {
	m := New(ctrl)
	defer m.Close()

	_, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion()).Run()
	return err
}
