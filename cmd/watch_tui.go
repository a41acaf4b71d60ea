// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aquastat/aquastat/internal/session"
	"github.com/aquastat/aquastat/pkg/corelec"
)

// Event log entry
type logEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for info
}

// TUI model
type watchModel struct {
	connInfo      string
	window        string
	spinner       spinner.Model
	session       session.Session
	stats         corelec.Statistics
	last          *corelec.Measurement
	anomalies     []corelec.ValidationError
	settings      map[byte]corelec.Response
	eventLog      []logEntry
	maxLogEntries int
	width         int
	height        int
	quitting      bool
	now           func() time.Time
}

// Messages
type tickMsg time.Time
type eventMsg session.Event
type relayDoneMsg struct {
	err error
}

// formatDuration formats a duration as a human-friendly string
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "0 seconds"
	}

	seconds := int64(d / time.Second)
	minutes := seconds / 60
	hours := minutes / 60
	days := hours / 24

	seconds %= 60
	minutes %= 60
	hours %= 24

	parts := []string{}
	plural := func(n int64, unit string) {
		if n == 1 {
			parts = append(parts, "1 "+unit)
		} else {
			parts = append(parts, fmt.Sprintf("%d %ss", n, unit))
		}
	}
	if days > 0 {
		plural(days, "day")
	}
	if hours > 0 {
		plural(hours, "hour")
	}
	if minutes > 0 {
		plural(minutes, "minute")
	}
	if seconds > 0 || len(parts) == 0 {
		plural(seconds, "second")
	}

	// Join with commas and "and" for last item
	if len(parts) == 1 {
		return parts[0]
	}
	if len(parts) == 2 {
		return parts[0] + " and " + parts[1]
	}
	last := parts[len(parts)-1]
	rest := strings.Join(parts[:len(parts)-1], ", ")
	return rest + ", and " + last
}

func newWatchModel(connInfo, window string) watchModel {
	return watchModel{
		connInfo:      connInfo,
		window:        window,
		spinner:       spinner.New(spinner.WithSpinner(spinner.Dot)),
		stats:         *corelec.NewStatistics(),
		settings:      make(map[byte]corelec.Response),
		eventLog:      make([]logEntry, 0),
		maxLogEntries: 100,
		width:         80,
		height:        24,
		now:           time.Now,
	}
}

func (m watchModel) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		m.spinner.Tick,
		tea.EnterAltScreen,
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		return m, tickCmd()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case eventMsg:
		m.handleEvent(session.Event(msg))

	case relayDoneMsg:
		if msg.err != nil && !errors.Is(msg.err, context.Canceled) {
			m.addLogEntry(fmt.Sprintf("Relay stopped: %v", msg.err), true)
			return m, nil
		}
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

func (m *watchModel) handleEvent(ev session.Event) {
	m.session = ev.Session
	m.stats = ev.Stats

	switch ev.Kind {
	case session.EventState:
		m.addLogEntry("State: "+ev.Session.State.String(), false)

	case session.EventMeasurement:
		meas := ev.Measurement
		m.last = &meas
		m.anomalies = ev.Anomalies
		for _, a := range ev.Anomalies {
			m.addLogEntry("ANOMALY: "+a.Message, true)
		}

	case session.EventSettings:
		if ev.Settings != nil {
			m.settings[ev.Settings.Mnemonic()] = ev.Settings
			m.addLogEntry("Settings: "+corelec.FormatMnemonic(ev.Settings.Mnemonic()), false)
		}

	case session.EventDeliveryFailed:
		m.addLogEntry(fmt.Sprintf("DELIVERY FAILED: %v", ev.Err), true)

	case session.EventError:
		m.addLogEntry(fmt.Sprintf("%s: %v", session.ErrorKind(ev.Err), ev.Err), true)
	}
}

func (m *watchModel) addLogEntry(message string, isError bool) {
	entry := logEntry{
		timestamp: m.now(),
		message:   message,
		isError:   isError,
	}
	m.eventLog = append(m.eventLog, entry)

	// Keep only last N entries
	if len(m.eventLog) > m.maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxLogEntries:]
	}
}

func (m watchModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	// Header
	var s strings.Builder
	s.WriteString(titleStyle.Render("AQUASTAT - LIVE MONITOR"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | Window: %s | Press 'q' to quit", m.connInfo, m.window)))
	s.WriteString("\n\n")

	// Session state
	state := m.session.State
	switch state {
	case session.StateMonitoring:
		s.WriteString(valueStyle.Render("✓ Monitoring"))
	case session.StateError:
		s.WriteString(errorStyle.Render("✗ Error"))
	default:
		s.WriteString(m.spinner.View() + " " + warningStyle.Render(state.String()))
	}
	if m.session.Device != "" {
		s.WriteString(headerStyle.Render(fmt.Sprintf("  %s (%s)", m.session.Device, m.session.Address)))
	}
	s.WriteString("\n")

	sessionLine := fmt.Sprintf("%s %s   %s %s   %s %s",
		labelStyle.Render("Session:"), valueStyle.Render(shortID(m.session.ID)),
		labelStyle.Render("Failures:"), countStyle(m.session.Failures, valueStyle, errorStyle),
		labelStyle.Render("Dropped:"), countStyle(m.session.FailedAttempts, valueStyle, errorStyle),
	)
	s.WriteString(sessionLine)
	s.WriteString("\n")
	if !m.session.LastSuccess.IsZero() {
		s.WriteString(fmt.Sprintf("%s %s ago\n",
			labelStyle.Render("Last delivery:"),
			valueStyle.Render(formatDuration(m.now().Sub(m.session.LastSuccess))),
		))
	}
	s.WriteString("\n")

	// Latest measurement (only shown once one arrived)
	if m.last != nil {
		s.WriteString(labelStyle.Render("Latest Measurement:"))
		s.WriteString("\n")

		content := strings.Builder{}
		content.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s   %s %s\n",
			labelStyle.Render("pH:"), valueStyle.Render(fmt.Sprintf("%.2f", m.last.PH)),
			labelStyle.Render("Redox:"), valueStyle.Render(fmt.Sprintf("%.0f mV", m.last.Redox)),
			labelStyle.Render("Temp:"), valueStyle.Render(fmt.Sprintf("%.1f°C", m.last.Temperature)),
			labelStyle.Render("Salt:"), valueStyle.Render(fmt.Sprintf("%.1f g/L", m.last.Salt)),
		))
		content.WriteString(fmt.Sprintf("%s %d   %s %d   %s %d   %s %s",
			labelStyle.Render("Alarm:"), m.last.Alarm,
			labelStyle.Render("Warning:"), m.last.Warning,
			labelStyle.Render("Redox Alarm:"), m.last.AlarmRedox,
			labelStyle.Render("Active:"), valueStyle.Render(activeOutputs(*m.last)),
		))
		for _, a := range m.anomalies {
			content.WriteString("\n" + warningStyle.Render("⚠ "+a.Message))
		}

		s.WriteString(boxStyle.Render(content.String()))
		s.WriteString("\n\n")
	}

	// Statistics
	statsContent := fmt.Sprintf("%s %s   %s %s   %s %s   %s %s\n%s %s   %s %s   %s %s",
		labelStyle.Render("Frames:"), valueStyle.Render(fmt.Sprintf("%d", m.stats.Frames)),
		labelStyle.Render("Measurements:"), valueStyle.Render(fmt.Sprintf("%d", m.stats.Measurements)),
		labelStyle.Render("Settings:"), valueStyle.Render(fmt.Sprintf("%d", m.stats.SettingsFrames)),
		labelStyle.Render("Unknown:"), valueStyle.Render(fmt.Sprintf("%d", m.stats.UnknownMnemonics)),
		labelStyle.Render("Checksum Errors:"), countStyle(int(m.stats.ChecksumRejects), valueStyle, errorStyle),
		labelStyle.Render("Delivered:"), valueStyle.Render(fmt.Sprintf("%d", m.stats.DeliveriesOK)),
		labelStyle.Render("Failed:"), countStyle(int(m.stats.DeliveriesFailed), valueStyle, errorStyle),
	)
	s.WriteString(boxStyle.Render(statsContent))
	s.WriteString("\n\n")

	// Last known settings
	if len(m.settings) > 0 {
		keys := make([]int, 0, len(m.settings))
		for k := range m.settings {
			keys = append(keys, int(k))
		}
		sort.Ints(keys)

		content := strings.Builder{}
		for i, k := range keys {
			if i > 0 {
				content.WriteString("\n")
			}
			content.WriteString(labelStyle.Render(corelec.FormatMnemonic(byte(k))))
			content.WriteString(strings.TrimRight(corelec.FormatResponse(m.settings[byte(k)]), "\n"))
		}
		s.WriteString(boxStyle.Render(content.String()))
		s.WriteString("\n\n")
	}

	// Event log
	s.WriteString(labelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	// Calculate how many log entries we can show
	logHeight := m.height - 20
	if logHeight < 5 {
		logHeight = 5
	}

	logContent := strings.Builder{}
	startIdx := len(m.eventLog) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	if len(m.eventLog) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.eventLog); i++ {
			entry := m.eventLog[i]
			timestamp := entry.timestamp.Format("01/02/06 15:04:05")
			if entry.isError {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					errorStyle.Render("✗ "+entry.message),
				))
			} else {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					warningStyle.Render("ℹ "+entry.message),
				))
			}
		}
	}

	s.WriteString(boxStyle.Width(m.width - 4).Render(logContent.String()))

	return s.String()
}

func countStyle(n int, ok, bad lipgloss.Style) string {
	if n > 0 {
		return bad.Render(fmt.Sprintf("%d", n))
	}
	return ok.Render("0")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	if id == "" {
		return "-"
	}
	return id
}

func activeOutputs(m corelec.Measurement) string {
	active := []string{}
	if m.PumpPlusActive {
		active = append(active, "pH+")
	}
	if m.PumpMinusActive {
		active = append(active, "pH-")
	}
	if m.PumpChlorineActive {
		active = append(active, "chlorine")
	}
	if m.FilterRelayActive {
		active = append(active, "filter")
	}
	if len(active) == 0 {
		return "none"
	}
	return strings.Join(active, ", ")
}
