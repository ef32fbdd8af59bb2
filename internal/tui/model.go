// Package tui is the live loop view: a Bubble Tea program that steps a
// sim.Stream on a timer and lets the operator move the setpoint.
//
// # Key Bindings
//
//	↑/k    - raise setpoint
//	↓/j    - lower setpoint
//	Space  - pause/resume
//	+/-    - steps per frame
//	R      - restart from t=0
//	Q      - quit
package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/looptune/internal/dynamo"
	"github.com/san-kum/looptune/internal/sim"
	"github.com/san-kum/looptune/internal/viz"
)

type Options struct {
	Title string
	// SetpointStep is the change per ↑/↓ press, in engineering units.
	SetpointStep float64
	// Frame is the redraw interval.
	Frame time.Duration
	// History is how many points the trend keeps.
	History int
	Metrics []sim.Metric
}

func DefaultOptions() Options {
	return Options{SetpointStep: 1, Frame: 50 * time.Millisecond, History: 300}
}

type tickMsg time.Time

func tick(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Model is the bubbletea model. It owns the stream for the life of the
// program.
type Model struct {
	ctx    context.Context
	stream *sim.Stream
	opts   Options

	paused bool
	done   bool
	speed  int
	err    error

	history []dynamo.Point
	width   int
}

func New(ctx context.Context, stream *sim.Stream, opts Options) Model {
	def := DefaultOptions()
	if opts.SetpointStep <= 0 {
		opts.SetpointStep = def.SetpointStep
	}
	if opts.Frame <= 0 {
		opts.Frame = def.Frame
	}
	if opts.History <= 0 {
		opts.History = def.History
	}
	return Model{
		ctx:     ctx,
		stream:  stream,
		opts:    opts,
		speed:   1,
		history: make([]dynamo.Point, 0, opts.History),
		width:   80,
	}
}

func (m Model) Init() tea.Cmd { return tick(m.opts.Frame) }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	case tickMsg:
		if !m.paused && !m.done {
			m.advance()
		}
		return m, tick(m.opts.Frame)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		return m, tea.Quit
	case "up", "k":
		m.stream.SetSetpoint(m.stream.Setpoint() + m.opts.SetpointStep)
	case "down", "j":
		m.stream.SetSetpoint(m.stream.Setpoint() - m.opts.SetpointStep)
	case " ", "p":
		m.paused = !m.paused
	case "+", "=":
		m.speed = min(m.speed*2, 64)
	case "-", "_":
		m.speed = max(m.speed/2, 1)
	case "r":
		m.restart()
	}
	return m, nil
}

func (m *Model) advance() {
	for i := 0; i < m.speed; i++ {
		p, err := m.stream.Next(m.ctx)
		if err != nil {
			m.done = true
			if !errors.Is(err, io.EOF) {
				m.err = err
			}
			return
		}
		for _, mt := range m.opts.Metrics {
			mt.Observe(p)
		}
		if len(m.history) == m.opts.History {
			copy(m.history, m.history[1:])
			m.history = m.history[:len(m.history)-1]
		}
		m.history = append(m.history, p)
	}
}

func (m *Model) restart() {
	m.stream.Restart()
	m.stream.ClearSetpoint()
	for _, mt := range m.opts.Metrics {
		mt.Reset()
	}
	m.history = m.history[:0]
	m.done = false
	m.err = nil
}

// Err is the stream failure that stopped the loop, if any.
func (m Model) Err() error { return m.err }

// Last is the newest point, if any.
func (m Model) Last() (dynamo.Point, bool) {
	if len(m.history) == 0 {
		return dynamo.Point{}, false
	}
	return m.history[len(m.history)-1], true
}

func (m Model) View() string {
	var b strings.Builder
	status := runningText
	switch {
	case m.err != nil:
		status = errorStyle.Render("FAILED")
	case m.done:
		status = doneText
	case m.paused:
		status = pausedText
	}
	title := m.opts.Title
	if title == "" {
		title = "looptune live"
	}
	b.WriteString(titleStyle.Render(strings.ToUpper(title)) + "  " + status + "\n\n")

	chartWidth := max(m.width-44, 20)
	var chart string
	if len(m.history) > 1 {
		sp := make([]float64, len(m.history))
		pv := make([]float64, len(m.history))
		for i, p := range m.history {
			sp[i], pv[i] = p.Setpoint, p.PV
		}
		chart = asciigraph.PlotMany([][]float64{sp, pv},
			asciigraph.Height(12),
			asciigraph.Width(chartWidth),
			asciigraph.SeriesColors(asciigraph.Goldenrod, asciigraph.LimeGreen),
			asciigraph.Caption("SP / PV"),
		)
		op := make([]float64, len(m.history))
		for i, p := range m.history {
			op[i] = p.OP
		}
		chart += "\n\nOP " + sparkStyle.Render(viz.Sparkline(op, chartWidth))
	} else {
		chart = "waiting for data"
	}

	var s strings.Builder
	row := func(label, value string) {
		s.WriteString(labelStyle.Render(label) + valueStyle.Render(value) + "\n")
	}
	row("time", fmt.Sprintf("%.1fs", m.stream.Time()))
	row("speed", fmt.Sprintf("x%d", m.speed))
	row("SP", fmt.Sprintf("%.3f", m.stream.Setpoint()))
	if p, ok := m.Last(); ok {
		row("PV", fmt.Sprintf("%.3f", p.PV))
		row("OP", fmt.Sprintf("%.2f %%", p.OP))
		row("valve", fmt.Sprintf("%.2f %%", p.Valve))
		row("error", fmt.Sprintf("%+.3f", p.Setpoint-p.PV))
	}
	if len(m.opts.Metrics) > 0 {
		s.WriteString("\n")
		for _, mt := range m.opts.Metrics {
			row(mt.Name(), fmt.Sprintf("%.3f", mt.Value()))
		}
	}
	if m.err != nil {
		s.WriteString("\n" + errorStyle.Render(m.err.Error()) + "\n")
	}

	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, panelStyle.Render(chart), statsStyle.Render(s.String())))
	b.WriteString(helpStyle.Render("\n↑/↓ setpoint  space pause  +/- speed  r restart  q quit"))
	return b.String()
}

// Run blocks until the operator quits or ctx ends. It returns the stream
// failure, if one stopped the loop.
func Run(ctx context.Context, stream *sim.Stream, opts Options) error {
	final, err := tea.NewProgram(New(ctx, stream, opts), tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	if m, ok := final.(Model); ok {
		return m.Err()
	}
	return nil
}
