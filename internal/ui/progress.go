package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Fire colour palette 🔥
var (
	fireYellow  = lipgloss.Color("#FFD700") // Bright yellow
	fireOrange  = lipgloss.Color("#FF8C00") // Deep orange
	fireRed     = lipgloss.Color("#FF4500") // Orange-red
	fireCrimson = lipgloss.Color("#DC143C") // Deep crimson
	emberGlow   = lipgloss.Color("#8B0000") // Dark ember red

	// Period colours
	safeGreen    = lipgloss.Color("#4A9B4A")
	cautionAmber = lipgloss.Color("#FFA500")
	dangerRed    = lipgloss.Color("#DC143C")
)

// stageNames is the order stages appear in the checklist
var stageNames = []string{"Hashing", "Decoding", "Spectral flux", "Peak picking", "Stress"}

// AnalysisProgress reports the analyzer's current stage
type AnalysisProgress struct {
	Stage   string
	Done    int // Novelty values computed so far
	Total   int // Novelty values expected; 0 when not known
	Elapsed time.Duration
}

// AnalysisComplete carries the summary shown once analysis finishes
type AnalysisComplete struct {
	Source   string
	Duration time.Duration // Track length
	Onsets   int
	Mean     float64   // Global RMS
	Curve    []float64 // Stress envelope, for the sparkline
	Safe     time.Duration
	Caution  time.Duration
	Danger   time.Duration
	Periods  int
	Cached   bool
	Elapsed  time.Duration
}

// AnalysisFailed ends the UI early
type AnalysisFailed struct {
	Err error
}

// progressQuitMsg is sent when it's time to quit after showing completion
type progressQuitMsg struct{}

// Model is the Bubbletea model for a single analysis run
type Model struct {
	progressBar progress.Model
	summaryBar  progress.Model

	state    AnalysisProgress
	reached  map[string]bool
	complete *AnalysisComplete
	failed   error

	startTime       time.Time
	width           int
	completionDelay time.Duration
}

// NewModel creates the analysis progress model
func NewModel() *Model {
	// Fire gradient: deep red → orange → yellow
	p := progress.New(
		progress.WithGradient(string(fireCrimson), string(fireYellow)),
		progress.WithWidth(40),
		progress.WithoutPercentage(),
	)

	summaryBar := progress.New(
		progress.WithGradient(string(fireCrimson), string(fireYellow)),
		progress.WithWidth(30),
		progress.WithoutPercentage(),
	)

	return &Model{
		progressBar:     p,
		summaryBar:      summaryBar,
		reached:         make(map[string]bool),
		startTime:       time.Now(),
		completionDelay: 500 * time.Millisecond,
	}
}

// Init initializes the model
func (m *Model) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.progressBar.Width = max(10, min(msg.Width-30, 50))
		return m, nil

	case AnalysisProgress:
		// Worker reports can arrive out of order; never move the bar backwards
		if msg.Stage == m.state.Stage && msg.Done < m.state.Done {
			msg.Done = m.state.Done
		}
		m.state = msg
		m.reached[msg.Stage] = true
		return m, nil

	case AnalysisComplete:
		m.complete = &msg
		return m, tea.Tick(m.completionDelay, func(t time.Time) tea.Msg {
			return progressQuitMsg{}
		})

	case AnalysisFailed:
		m.failed = msg.Err
		return m, tea.Quit

	case progressQuitMsg:
		return m, tea.Quit

	case tea.KeyMsg:
		if m.complete != nil {
			return m, tea.Quit
		}
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	}

	return m, nil
}

// View renders the UI
func (m *Model) View() string {
	if m.failed != nil {
		return ""
	}
	if m.complete != nil {
		return m.renderComplete()
	}
	return m.renderProgress()
}

// CompletionSummary returns the final summary for printing after the
// program exits. Returns an empty string if analysis did not complete.
func (m *Model) CompletionSummary() string {
	if m.complete == nil {
		return ""
	}
	return m.renderComplete()
}

func (m *Model) renderProgress() string {
	var s strings.Builder

	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(fireYellow).
		Render("jiveonset 🔥")

	s.WriteString(title)
	s.WriteString("\n")
	s.WriteString(lipgloss.NewStyle().Foreground(fireOrange).Render("Analysing Audio"))
	s.WriteString("\n\n")

	if m.state.Total > 0 {
		percent := float64(m.state.Done) / float64(m.state.Total)
		s.WriteString("Progress: ")
		s.WriteString(m.progressBar.ViewAs(percent))
		s.WriteString(fmt.Sprintf("  %d%%", int(percent*100)))
		s.WriteString("\n\n")
	} else {
		s.WriteString(lipgloss.NewStyle().Faint(true).Render("Starting analysis..."))
		s.WriteString("\n\n")
	}

	m.renderStages(&s)

	elapsed := m.state.Elapsed
	if elapsed == 0 {
		elapsed = time.Since(m.startTime)
	}
	s.WriteString("\n")
	s.WriteString(lipgloss.NewStyle().Faint(true).Render(fmt.Sprintf("Elapsed: %s", formatDuration(elapsed))))

	return lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(fireRed).
		Padding(1, 2).
		Render(s.String())
}

func (m *Model) renderStages(s *strings.Builder) {
	doneStyle := lipgloss.NewStyle().Foreground(safeGreen)
	activeStyle := lipgloss.NewStyle().Foreground(fireOrange).Bold(true)
	pendingStyle := lipgloss.NewStyle().Faint(true)

	// Stages are reported in order, so the latest reached one is active
	current := -1
	for i, name := range stageNames {
		if m.reached[name] {
			current = i
		}
	}

	for i, name := range stageNames {
		switch {
		case i < current:
			s.WriteString(doneStyle.Render("  ✓ " + name))
		case i == current:
			s.WriteString(activeStyle.Render("  ▸ " + name))
		default:
			s.WriteString(pendingStyle.Render("    " + name))
		}
		s.WriteString("\n")
	}
}

func (m *Model) renderComplete() string {
	c := m.complete
	var s strings.Builder

	heading := "✓ Analysis Complete!"
	if c.Cached {
		heading = "✓ Loaded From Cache"
	}
	s.WriteString(lipgloss.NewStyle().Bold(true).Foreground(fireYellow).Render(heading))
	s.WriteString("\n\n")

	dimLabel := lipgloss.NewStyle().Faint(true)
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(fireOrange)
	highlightValueStyle := lipgloss.NewStyle().Foreground(fireOrange)

	s.WriteString(fmt.Sprintf("%s%s\n", dimLabel.Render("Source:   "), c.Source))
	s.WriteString(fmt.Sprintf("%s%.1fs\n", dimLabel.Render("Duration: "), c.Duration.Seconds()))
	s.WriteString(fmt.Sprintf("%s%d\n", dimLabel.Render("Onsets:   "), c.Onsets))
	s.WriteString(fmt.Sprintf("%s%.4f\n\n", dimLabel.Render("RMS mean: "), c.Mean))

	if len(c.Curve) > 0 {
		s.WriteString(headerStyle.Render("Stress"))
		s.WriteString("\n")
		curveWidth := 60
		if m.width > 10 {
			curveWidth = min(m.width-10, 60)
		}
		s.WriteString(renderCurve(c.Curve, c.Mean, curveWidth))
		s.WriteString("\n\n")
	}

	s.WriteString(headerStyle.Render(fmt.Sprintf("Periods (%d)", c.Periods)))
	s.WriteString("\n")

	total := c.Safe + c.Caution + c.Danger
	if total == 0 {
		total = 1
	}
	rows := []struct {
		label string
		d     time.Duration
		color lipgloss.Color
	}{
		{"Safe:", c.Safe, safeGreen},
		{"Caution:", c.Caution, cautionAmber},
		{"Danger:", c.Danger, dangerRed},
	}
	for _, r := range rows {
		ratio := float64(r.d) / float64(total)
		s.WriteString(fmt.Sprintf("  %s%s (~%2d%%)  %s\n",
			lipgloss.NewStyle().Foreground(r.color).Render(fmt.Sprintf("%-10s", r.label)),
			fmt.Sprintf("%-7s", formatDuration(r.d)),
			int(ratio*100),
			m.summaryBar.ViewAs(ratio)))
	}

	s.WriteString(fmt.Sprintf("\n  %s%s", dimLabel.Render(fmt.Sprintf("%-10s", "Time:")), highlightValueStyle.Render(formatDuration(c.Elapsed))))

	return lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(fireOrange).
		Padding(1, 1).
		Render(s.String()) + "\n"
}

// Helper functions

func formatDuration(d time.Duration) string {
	if d == 0 {
		return "0s"
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

// columns averages values down to at most width buckets
func columns(values []float64, width int) []float64 {
	if width <= 0 || len(values) == 0 {
		return nil
	}
	if len(values) <= width {
		return values
	}
	out := make([]float64, width)
	for i := range out {
		lo := i * len(values) / width
		hi := (i + 1) * len(values) / width
		var sum float64
		for _, v := range values[lo:hi] {
			sum += v
		}
		out[i] = sum / float64(hi-lo)
	}
	return out
}

// renderCurve draws a two-row block chart of the stress curve. Columns at
// or above mean are drawn in the hot end of the fire palette.
func renderCurve(values []float64, mean float64, width int) string {
	cols := columns(values, width)
	if len(cols) == 0 {
		return ""
	}

	blocks := []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}
	fireColors := []lipgloss.Color{emberGlow, fireCrimson, fireRed, fireOrange, fireYellow}

	maxHeight := 0.0
	for _, h := range cols {
		maxHeight = max(maxHeight, h)
	}
	if maxHeight == 0 {
		maxHeight = 1.0
	}

	colour := func(v, normalised float64) lipgloss.Color {
		if v >= mean && mean > 0 {
			return fireColors[len(fireColors)-1]
		}
		idx := int(normalised * float64(len(fireColors)-2))
		return fireColors[min(max(idx, 0), len(fireColors)-2)]
	}

	var top, bottom strings.Builder
	for _, v := range cols {
		normalised := v / maxHeight
		style := lipgloss.NewStyle().Foreground(colour(v, normalised))

		if normalised > 0.5 {
			idx := int((normalised - 0.5) * 2.0 * float64(len(blocks)-1))
			top.WriteString(style.Render(string(blocks[min(idx, len(blocks)-1)])))
			bottom.WriteString(style.Render(string(blocks[len(blocks)-1])))
		} else {
			top.WriteString(" ")
			idx := int(normalised * 2.0 * float64(len(blocks)-1))
			bottom.WriteString(style.Render(string(blocks[min(idx, len(blocks)-1)])))
		}
	}

	return top.String() + "\n" + bottom.String()
}
