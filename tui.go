package main

import (
	"fmt"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"klaxon/audio"
	"klaxon/monitor"
)

// TUI message types
type MonitorStartMsg struct{ Device string }
type MonitorStopMsg struct{}
type SampleMsg struct {
	Sample      monitor.Sample
	AlarmActive bool
	History     []monitor.Sample
}
type AlarmMsg struct{ Active bool }
type AlertMsg struct{ RMS float64 }
type SilentMsg struct{ Silent bool }
type LiveLevelMsg struct {
	Level   float64
	Elapsed float64
}
type StatusMsg struct{ Text string }
type tickMsg time.Time

const (
	chartCols  = 50
	chartRows  = 8
	meterWidth = 30
)

type tuiModel struct {
	monitoring    bool
	device        string
	threshold     float64
	frame         int
	elapsed       float64
	level         float64
	currentRMS    float64
	history       []monitor.Sample
	alarmActive   bool
	inputSilent   bool
	alertCount    int
	lastAlertRMS  float64
	statusText    string
	width, height int
	ctrl          chan<- struct{}
}

var (
	tuiProgram *tea.Program
	tuiMu      sync.Mutex
)

// Pre-computed styles to avoid allocations in the render loop
var (
	styleTitle     = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	styleRun       = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	styleIdle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	styleDim       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	styleHelp      = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	styleHelpBold  = lipgloss.NewStyle().Foreground(lipgloss.Color("239")).Bold(true)
	styleWarn      = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	styleBanner    = lipgloss.NewStyle().Foreground(lipgloss.Color("231")).Background(lipgloss.Color("196")).Bold(true)
	styleBannerLow = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	styleQuietBar  = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	styleLoudBar   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	styleMeterLow  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	styleMeterMid  = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	styleMeterHot  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

func NewTUIProgram(device string, threshold float64, ctrl chan<- struct{}) *tea.Program {
	m := tuiModel{
		device:    device,
		threshold: threshold,
		ctrl:      ctrl,
	}
	return tea.NewProgram(m, tea.WithAltScreen())
}

func tuiTick() tea.Cmd {
	return tea.Tick(60*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m tuiModel) Init() tea.Cmd {
	return tuiTick()
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "s", " ":
			// Toggle request; the run loop owns the monitor.
			select {
			case m.ctrl <- struct{}{}:
			default:
			}
		}

	case tickMsg:
		m.frame++
		return m, tuiTick()

	case MonitorStartMsg:
		m.monitoring = true
		m.device = msg.Device
		m.elapsed = 0
		m.level = 0
		m.currentRMS = 0
		m.history = nil
		m.alarmActive = false
		m.inputSilent = false
		m.alertCount = 0
		m.statusText = ""

	case MonitorStopMsg:
		m.monitoring = false
		m.level = 0
		m.alarmActive = false
		m.inputSilent = false

	case SampleMsg:
		m.currentRMS = msg.Sample.RMS
		m.alarmActive = msg.AlarmActive
		m.history = msg.History

	case AlarmMsg:
		m.alarmActive = msg.Active

	case AlertMsg:
		m.alertCount++
		m.lastAlertRMS = msg.RMS

	case SilentMsg:
		m.inputSilent = msg.Silent

	case LiveLevelMsg:
		if m.monitoring {
			m.level = m.level*0.6 + msg.Level*0.4
			m.elapsed = msg.Elapsed
		}

	case StatusMsg:
		m.statusText = msg.Text
	}
	return m, nil
}

func (m tuiModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var b strings.Builder

	b.WriteString(styleTitle.Render("klaxon") + styleDim.Render("  sound level alarm") + "\n\n")

	// Status line
	if m.monitoring {
		b.WriteString(styleRun.Render(fmt.Sprintf("● MONITORING %.0fs", m.elapsed)))
	} else {
		b.WriteString(styleIdle.Render("○ IDLE"))
	}
	device := m.device
	if audio.IsBluetooth(device) {
		device += " ⚠ BT mic, levels unreliable"
	}
	b.WriteString(styleDim.Render("  "+device) + "\n")

	// Live meter
	b.WriteString(renderMeter(m.level) + styleDim.Render(fmt.Sprintf("  rms %.4f", m.currentRMS)) + "\n")
	if m.inputSilent {
		b.WriteString(styleWarn.Render("⚠ no signal from microphone (input muted?)") + "\n\n")
	} else {
		b.WriteString("\n")
	}

	// Alarm banner, blinking while active
	if m.alarmActive {
		banner := fmt.Sprintf(" ALARM: Loud sound detected! RMS: %.4f ", m.currentRMS)
		if (m.frame/4)%2 == 0 {
			b.WriteString(styleBanner.Render(banner) + "\n\n")
		} else {
			b.WriteString(styleBannerLow.Render(banner) + "\n\n")
		}
	} else {
		b.WriteString("\n\n")
	}

	// Rolling chart
	b.WriteString(styleDim.Render(fmt.Sprintf("last %ds  (threshold %.2f)", chartCols, m.threshold)) + "\n")
	b.WriteString(renderChart(m.history, m.threshold))
	b.WriteString("\n")

	if m.alertCount > 0 {
		b.WriteString(styleWarn.Render(fmt.Sprintf("alerts: %d  last rms %.4f", m.alertCount, m.lastAlertRMS)) + "\n")
	}
	if m.statusText != "" {
		b.WriteString(styleWarn.Render(m.statusText) + "\n")
	}
	b.WriteString("\n")

	b.WriteString(styleHelpBold.Render("s") + styleHelp.Render(" start/stop  ") +
		styleHelpBold.Render("q") + styleHelp.Render(" quit") + "\n")
	b.WriteString(styleHelp.Render("klaxon " + version))

	return b.String()
}

// renderMeter draws the live level bar with a green/yellow/red ramp.
func renderMeter(level float64) string {
	filled := int(level * meterWidth)
	if filled > meterWidth {
		filled = meterWidth
	}
	var b strings.Builder
	b.WriteString(styleDim.Render("["))
	for i := 0; i < meterWidth; i++ {
		if i < filled {
			frac := float64(i) / meterWidth
			switch {
			case frac < 0.5:
				b.WriteString(styleMeterLow.Render("█"))
			case frac < 0.8:
				b.WriteString(styleMeterMid.Render("█"))
			default:
				b.WriteString(styleMeterHot.Render("█"))
			}
		} else {
			b.WriteString(styleDim.Render("░"))
		}
	}
	b.WriteString(styleDim.Render("]"))
	return b.String()
}

// renderChart draws the rolling history as one column per sample, newest
// on the right. Columns above the threshold are red; the threshold sits
// as a dotted line across empty cells.
func renderChart(history []monitor.Sample, threshold float64) string {
	const pixH = chartRows * 2

	// The chart shows the newest chartCols samples; the monitor may be
	// configured to keep more history than that.
	if len(history) > chartCols {
		history = history[len(history)-chartCols:]
	}

	// Scale starts at twice the threshold and grows with the data.
	scale := threshold * 2
	for _, s := range history {
		if s.RMS > scale {
			scale = s.RMS
		}
	}
	scale *= 1.1

	heights := make([]int, chartCols)
	loud := make([]bool, chartCols)
	offset := chartCols - len(history)
	for i, s := range history {
		px := int(s.RMS / scale * pixH)
		if px > pixH {
			px = pixH
		}
		if px == 0 && s.RMS > 0 {
			px = 1
		}
		heights[offset+i] = px
		loud[offset+i] = s.RMS > threshold
	}
	thrPx := int(threshold / scale * pixH)

	var b strings.Builder
	for cy := 0; cy < chartRows; cy++ {
		for cx := 0; cx < chartCols; cx++ {
			botPy := (chartRows - 1 - cy) * 2
			topPy := botPy + 1
			topFill := heights[cx] > topPy
			botFill := heights[cx] > botPy
			style := styleQuietBar
			if loud[cx] {
				style = styleLoudBar
			}
			switch {
			case topFill && botFill:
				b.WriteString(style.Render("█"))
			case botFill:
				b.WriteString(style.Render("▄"))
			case topFill:
				b.WriteString(style.Render("▀"))
			case thrPx == botPy || thrPx == topPy:
				b.WriteString(styleDim.Render("·"))
			default:
				b.WriteString(" ")
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

func tuiSend(msg tea.Msg) {
	tuiMu.Lock()
	p := tuiProgram
	tuiMu.Unlock()

	if p != nil {
		p.Send(msg)
	}
}

func statusToTUI(format string, args ...interface{}) {
	tuiSend(StatusMsg{Text: fmt.Sprintf(format, args...)})
}
