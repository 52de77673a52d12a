// Package ui provides the install progress view.
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/dustin/go-humanize"

	"github.com/quasar/mcinstall/internal/core"
	"github.com/quasar/mcinstall/internal/download"
	"github.com/quasar/mcinstall/internal/install"
)

const (
	stepPending = "pending"
	stepRunning = "running"
	stepDone    = "done"
	stepError   = "error"
)

// InstallModel shows install progress
type InstallModel struct {
	version core.Version
	width   int
	height  int

	progress progress.Model
	status   install.Status
	steps    []stepInfo
	result   *install.Result
	done     bool
	err      error
}

type stepInfo struct {
	name   string
	status string // pending, running, done, error
}

// NewInstallModel creates a new install view
func NewInstallModel(version core.Version) *InstallModel {
	p := progress.New(
		progress.WithDefaultGradient(),
		progress.WithWidth(50),
	)

	steps := make([]stepInfo, len(install.Steps))
	for i, name := range install.Steps {
		steps[i] = stepInfo{name: name, status: stepPending}
	}

	return &InstallModel{
		version:  version,
		progress: p,
		steps:    steps,
		width:    80,
	}
}

// SetSize updates dimensions
func (m *InstallModel) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.progress.Width = width - 10
}

// Done reports whether the install has finished
func (m *InstallModel) Done() bool {
	return m.done
}

// Init implements tea.Model
func (m *InstallModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model
func (m *InstallModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.SetSize(msg.Width, msg.Height)
		return m, nil

	case InstallStatusUpdate:
		m.status = msg.Status
		m.updateSteps()

		// Update progress bar
		cmd := m.progress.SetPercent(msg.Status.Progress)
		return m, cmd

	case InstallComplete:
		m.done = true
		m.result = msg.Result
		m.err = msg.Error
		if m.err == nil && m.result != nil {
			m.err = m.result.Err()
		}
		if m.err != nil {
			m.markFailed()
		} else {
			for i := range m.steps {
				m.steps[i].status = stepDone
			}
		}
		return m, nil

	case progress.FrameMsg:
		progressModel, cmd := m.progress.Update(msg)
		m.progress = progressModel.(progress.Model)
		return m, cmd

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "esc", "q":
			if m.done {
				return m, tea.Quit
			}
			return m, func() tea.Msg { return CancelInstall{} }
		case "enter":
			if m.done {
				return m, tea.Quit
			}
		}
	}

	return m, nil
}

func (m *InstallModel) updateSteps() {
	for i := range m.steps {
		if m.steps[i].name == m.status.Step {
			if m.status.Error != nil && !m.status.IsComplete {
				m.steps[i].status = stepError
			} else {
				m.steps[i].status = stepRunning
			}
		} else if m.steps[i].status == stepRunning {
			m.steps[i].status = stepDone
		}
	}
	if m.status.IsComplete {
		for i := range m.steps {
			if m.steps[i].status == stepRunning {
				m.steps[i].status = stepDone
			}
		}
	}
}

// markFailed flags the running step, or the download step when the
// pipeline completed with per-file failures
func (m *InstallModel) markFailed() {
	for i := range m.steps {
		if m.steps[i].status == stepRunning || m.steps[i].status == stepError {
			m.steps[i].status = stepError
			return
		}
	}
	for i := range m.steps {
		if m.steps[i].name == install.StepDownload {
			m.steps[i].status = stepError
		}
	}
}

// View implements tea.Model
func (m *InstallModel) View() string {
	header := TitleStyle.Render(fmt.Sprintf("Installing: %s", m.version.ID))
	info := SubtleStyle.Render(fmt.Sprintf("Minecraft %s • %s", m.version.ID, m.version.Type))

	// Steps
	var stepsView strings.Builder
	for _, step := range m.steps {
		var icon string
		switch step.status {
		case stepDone:
			icon = "✓"
		case stepRunning:
			icon = "◐"
		case stepError:
			icon = "✗"
		default:
			icon = "○"
		}
		stepsView.WriteString(stepStyles[step.status].Render(fmt.Sprintf("%s %s", icon, step.name)))
		stepsView.WriteString("\n")
	}

	var footer string
	if m.done {
		if m.err != nil {
			footer = ErrorStyle.Render(fmt.Sprintf("\n✗ Failed: %v", m.err))
		} else {
			footer = SuccessStyle.Render(fmt.Sprintf("\n✓ Installed %s", m.version.ID))
		}
		if m.result != nil && m.result.Report != nil {
			r := m.result.Report
			footer += "\n" + SubtleStyle.Render(fmt.Sprintf("%d files (%d reused, %d failed), %s downloaded in %s",
				r.Total(), r.Skipped, len(r.Failed), humanize.Bytes(uint64(r.Bytes)), m.result.Duration.Round(time.Millisecond)))
		}
		footer += "\n\n" + HelpStyle.Render("Press Enter to exit")
	} else {
		footer = HelpStyle.Render("\n[Esc] Cancel • [Ctrl+C] Quit")
	}

	return ContainerStyle.Render(lipgloss.JoinVertical(
		lipgloss.Left,
		header,
		info,
		"",
		m.progress.View(),
		m.downloadLine(),
		"",
		stepsView.String(),
		SubtleStyle.Render(m.statusLine()),
		footer,
	))
}

// statusLine is the current message cut to the view width
func (m *InstallModel) statusLine() string {
	width := m.width - 6
	if width < 10 {
		width = 10
	}
	return ansi.Truncate(m.status.Message, width, "…")
}

func (m *InstallModel) downloadLine() string {
	p := m.status.Download
	if p == nil {
		return ""
	}
	return SubtleStyle.Render(formatDownload(*p))
}

func formatDownload(p download.Progress) string {
	line := fmt.Sprintf("%d/%d files • %s / %s • %s",
		p.CompletedItems, p.TotalItems,
		humanize.Bytes(uint64(p.DownloadedBytes)), humanize.Bytes(uint64(p.TotalBytes)),
		download.FormatSpeed(p.Speed))
	if p.FailedItems > 0 {
		line += fmt.Sprintf(" • %d failed", p.FailedItems)
	}
	return line
}
