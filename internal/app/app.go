// Package app contains the Bubbletea program that drives an install.
// It owns the installer goroutine and feeds its status updates to the
// progress view.
package app

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/quasar/mcinstall/internal/core"
	"github.com/quasar/mcinstall/internal/install"
	"github.com/quasar/mcinstall/internal/ui"
)

// Installer is the part of install.Installer the program drives
type Installer interface {
	Install(ctx context.Context, record core.Version) (*install.Result, error)
}

// Model is the main application model
type Model struct {
	width  int
	height int
	ready  bool

	view      *ui.InstallModel
	installer Installer
	record    core.Version

	// Install state
	statusChan chan install.Status
	ctx        context.Context
	cancel     context.CancelFunc
	result     *install.Result
	err        error
}

// New creates a new application model. statusChan must be the channel the
// installer reports to.
func New(ctx context.Context, installer Installer, record core.Version, statusChan chan install.Status) *Model {
	ctx, cancel := context.WithCancel(ctx)
	return &Model{
		view:       ui.NewInstallModel(record),
		installer:  installer,
		record:     record,
		statusChan: statusChan,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Init implements tea.Model
func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		m.view.Init(),
		m.waitForInstallStatus(),
	)
}

// Update implements tea.Model
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.view.SetSize(msg.Width, msg.Height)
		return m, nil

	// Install status updates - continue subscription
	case ui.InstallStatusUpdate:
		_, cmd := m.view.Update(msg)
		return m, tea.Batch(cmd, m.waitForInstallStatus())

	case ui.InstallComplete:
		m.view.Update(msg)
		m.cancel()
		return m, nil

	case ui.CancelInstall:
		m.cancel()
		return m, nil
	}

	// Delegate to the view
	newView, cmd := m.view.Update(msg)
	m.view = newView.(*ui.InstallModel)
	return m, cmd
}

// start runs the installer in the background. The status channel is
// closed once Install returns.
func (m *Model) start() {
	go func() {
		m.result, m.err = m.installer.Install(m.ctx, m.record)
		close(m.statusChan)
	}()
}

// waitForInstallStatus creates a command that waits for the next install
// status. The installer's result is read only after the channel closes.
func (m *Model) waitForInstallStatus() tea.Cmd {
	return func() tea.Msg {
		status, ok := <-m.statusChan
		if !ok {
			// Channel closed, install finished
			return ui.InstallComplete{Result: m.result, Error: m.err}
		}
		return ui.InstallStatusUpdate{Status: status}
	}
}

// wait stops the install if it is still running and blocks until the
// installer goroutine has returned
func (m *Model) wait() {
	m.cancel()
	for range m.statusChan {
	}
}

// View implements tea.Model
func (m *Model) View() string {
	if !m.ready {
		return "Initializing..."
	}
	return m.view.View()
}

// Run shows the install progress view until the user exits and returns the
// installer's outcome. statusChan must be the channel the installer reports
// to; Run closes it.
func Run(ctx context.Context, installer Installer, record core.Version, statusChan chan install.Status) (*install.Result, error) {
	m := New(ctx, installer, record, statusChan)
	m.start()
	p := tea.NewProgram(m, tea.WithAltScreen())

	if _, err := p.Run(); err != nil {
		m.wait()
		return nil, fmt.Errorf("running install view: %w", err)
	}

	m.wait()
	return m.result, m.err
}
