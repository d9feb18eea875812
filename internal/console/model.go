// Package console is a terminal approval queue for a running waypoint
// server. It lists pending actions and lets an operator approve, decline
// or step the clock without leaving the terminal.
package console

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"waypoint/internal/clock"
	"waypoint/internal/models"
)

var (
	docStyle = lipgloss.NewStyle().Margin(1, 2)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(lipgloss.Color("#0a84ff")).
			Padding(0, 1)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(lipgloss.Color("#30d158")).
			Padding(0, 1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(lipgloss.Color("#ff453a")).
			Padding(0, 1)

	helpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type view int

const (
	viewPending view = iota
	viewHistory
)

const (
	historyLimit    = 50
	requestTimeout  = 10 * time.Second
	defaultInterval = 2 * time.Second
)

// Model is the console state
type Model struct {
	client   *Client
	table    table.Model
	spinner  spinner.Model
	view     view
	actions  []models.Action
	clock    clock.Status
	interval time.Duration
	loading  bool
	message  string
	err      string
}

type actionsMsg struct {
	view    view
	actions []models.Action
	clock   clock.Status
}

type decidedMsg struct {
	action *models.Action
}

type steppedMsg struct {
	clock clock.Status
}

type errorMsg struct {
	err error
}

type refreshMsg struct{}

// New builds the console model. A zero interval uses the default poll rate.
func New(client *Client, interval time.Duration) Model {
	if interval <= 0 {
		interval = defaultInterval
	}
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "Action", Width: 10},
			{Title: "Tick", Width: 6},
			{Title: "Agent", Width: 12},
			{Title: "Type", Width: 12},
			{Title: "Target", Width: 10},
			{Title: "Risk", Width: 7},
			{Title: "Status", Width: 17},
		}),
		table.WithFocused(true),
		table.WithHeight(12),
	)

	return Model{
		client:   client,
		table:    t,
		spinner:  s,
		interval: interval,
		loading:  true,
	}
}

// Run starts the console and blocks until the operator quits.
func Run(client *Client, interval time.Duration) error {
	_, err := tea.NewProgram(New(client, interval), tea.WithAltScreen()).Run()
	return err
}

// Init starts the spinner, the first load and the poll timer
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.load(), m.poll())
}

// Update handles UI updates
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "tab":
			if m.view == viewPending {
				m.view = viewHistory
			} else {
				m.view = viewPending
			}
			m.loading = true
			return m, m.load()
		case "r":
			m.loading = true
			return m, m.load()
		case "s":
			m.loading = true
			return m, m.step()
		case "a", "d":
			a, ok := m.selected()
			if !ok || m.view != viewPending {
				return m, nil
			}
			m.loading = true
			return m, m.decide(a.ActionID, msg.String() == "a")
		}
	case actionsMsg:
		m.loading = false
		m.err = ""
		m.clock = msg.clock
		if msg.view == m.view {
			m.actions = msg.actions
			m.table.SetRows(rows(msg.actions))
		}
		return m, nil
	case decidedMsg:
		m.message = fmt.Sprintf("%s %s", short(msg.action.ActionID), msg.action.Status)
		if msg.action.Error != "" {
			m.message += ": " + msg.action.Error
		}
		return m, m.load()
	case steppedMsg:
		m.clock = msg.clock
		m.message = fmt.Sprintf("tick %d", msg.clock.CurrentTick)
		if msg.clock.LastError != "" {
			m.message += ": " + msg.clock.LastError
		}
		return m, m.load()
	case errorMsg:
		m.loading = false
		m.err = msg.err.Error()
		return m, nil
	case refreshMsg:
		return m, tea.Batch(m.load(), m.poll())
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// View renders the UI
func (m Model) View() string {
	title := "Pending approval"
	if m.view == viewHistory {
		title = "History"
	}
	out := titleStyle.Render("waypoint · "+title) + "  " + infoStyle.Render(clockLine(m.clock))
	if m.loading {
		out += " " + m.spinner.View()
	}
	out += "\n\n"

	if len(m.actions) == 0 && m.view == viewPending {
		out += "Nothing waiting for approval.\n"
	} else {
		out += m.table.View() + "\n"
	}
	if a, ok := m.selected(); ok {
		out += "\n" + a.Payload.Rationale + "\n"
	}

	if m.message != "" {
		out += "\n" + successStyle.Render(m.message) + "\n"
	}
	if m.err != "" {
		out += "\n" + errorStyle.Render(m.err) + "\n"
	}
	out += helpStyle.Render("\na approve · d decline · s step · r refresh · tab pending/history · q quit")
	return docStyle.Render(out)
}

func (m Model) selected() (models.Action, bool) {
	i := m.table.Cursor()
	if i < 0 || i >= len(m.actions) {
		return models.Action{}, false
	}
	return m.actions[i], true
}

func (m Model) load() tea.Cmd {
	c, v := m.client, m.view
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		var (
			actions []models.Action
			err     error
		)
		if v == viewPending {
			actions, err = c.Pending(ctx)
		} else {
			actions, err = c.History(ctx, historyLimit)
		}
		if err != nil {
			return errorMsg{err: err}
		}
		st, err := c.ClockStatus(ctx)
		if err != nil {
			return errorMsg{err: err}
		}
		return actionsMsg{view: v, actions: actions, clock: st}
	}
}

func (m Model) decide(id string, approve bool) tea.Cmd {
	c := m.client
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		decide := c.Decline
		if approve {
			decide = c.Approve
		}
		a, err := decide(ctx, id)
		if err != nil {
			return errorMsg{err: err}
		}
		return decidedMsg{action: a}
	}
}

func (m Model) step() tea.Cmd {
	c := m.client
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		st, err := c.Step(ctx)
		if err != nil {
			return errorMsg{err: err}
		}
		return steppedMsg{clock: st}
	}
}

func (m Model) poll() tea.Cmd {
	return tea.Tick(m.interval, func(time.Time) tea.Msg { return refreshMsg{} })
}

func rows(actions []models.Action) []table.Row {
	out := make([]table.Row, len(actions))
	for i, a := range actions {
		out[i] = table.Row{
			short(a.ActionID),
			strconv.FormatInt(a.Tick, 10),
			a.AgentID,
			string(a.ActionType),
			a.Payload.Target(),
			string(a.Risk),
			string(a.Status),
		}
	}
	return out
}

func clockLine(st clock.Status) string {
	state := "stopped"
	if st.IsRunning {
		state = "running"
	}
	return fmt.Sprintf("tick %d · %s", st.CurrentTick, state)
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
