package ui

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quasar/mcinstall/internal/core"
	"github.com/quasar/mcinstall/internal/download"
	"github.com/quasar/mcinstall/internal/install"
)

func stepStatus(m *InstallModel, name string) string {
	for _, s := range m.steps {
		if s.name == name {
			return s.status
		}
	}
	return ""
}

func TestInstallModel_StepsAdvance(t *testing.T) {
	m := NewInstallModel(core.Version{ID: "1.20.1", Type: core.VersionTypeRelease})
	require.Len(t, m.steps, len(install.Steps))

	m.Update(InstallStatusUpdate{Status: install.Status{Step: install.StepPrepare}})
	assert.Equal(t, stepRunning, stepStatus(m, install.StepPrepare))
	assert.Equal(t, stepPending, stepStatus(m, install.StepDescriptor))

	m.Update(InstallStatusUpdate{Status: install.Status{Step: install.StepDescriptor}})
	assert.Equal(t, stepDone, stepStatus(m, install.StepPrepare))
	assert.Equal(t, stepRunning, stepStatus(m, install.StepDescriptor))

	m.Update(InstallStatusUpdate{Status: install.Status{Step: install.StepComplete, Progress: 1, IsComplete: true}})
	m.Update(InstallComplete{Result: &install.Result{Report: &download.Report{}}})

	assert.True(t, m.Done())
	for _, s := range m.steps {
		assert.Equal(t, stepDone, s.status, s.name)
	}
	assert.Contains(t, m.View(), "Installed 1.20.1")
}

func TestInstallModel_FatalError(t *testing.T) {
	m := NewInstallModel(core.Version{ID: "1.20.1"})
	err := errors.New("descriptor unavailable")

	m.Update(InstallStatusUpdate{Status: install.Status{Step: install.StepDescriptor}})
	m.Update(InstallStatusUpdate{Status: install.Status{Step: install.StepDescriptor, Error: err, Message: err.Error()}})
	m.Update(InstallComplete{Error: err})

	assert.Equal(t, stepError, stepStatus(m, install.StepDescriptor))
	assert.Equal(t, stepPending, stepStatus(m, install.StepDownload))
	assert.Contains(t, m.View(), "Failed: descriptor unavailable")
}

func TestInstallModel_PartialFailure(t *testing.T) {
	m := NewInstallModel(core.Version{ID: "1.20.1"})
	report := &download.Report{
		Succeeded: make([]download.Task, 3),
		Failed:    []download.Failure{{Task: download.Task{URL: "http://cdn/x"}, Err: errors.New("boom")}},
	}

	m.Update(InstallStatusUpdate{Status: install.Status{Step: install.StepDownload}})
	m.Update(InstallComplete{Result: &install.Result{Report: report}})

	assert.Equal(t, stepError, stepStatus(m, install.StepDownload))
	view := m.View()
	assert.Contains(t, view, "1 of 4 downloads failed")
	assert.Contains(t, view, "4 files (0 reused, 1 failed)")
}

func TestInstallModel_Keys(t *testing.T) {
	m := NewInstallModel(core.Version{ID: "1.20.1"})

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	require.NotNil(t, cmd)
	assert.Equal(t, CancelInstall{}, cmd())

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd, "enter does nothing while running")

	m.Update(InstallComplete{})
	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.QuitMsg{}, cmd())
}

func TestInstallModel_StatusLineTruncated(t *testing.T) {
	m := NewInstallModel(core.Version{ID: "1.20.1"})
	m.Update(tea.WindowSizeMsg{Width: 30, Height: 20})
	m.Update(InstallStatusUpdate{Status: install.Status{
		Step:    install.StepDownload,
		Message: "Downloading " + strings.Repeat("a", 100),
	}})

	line := m.statusLine()
	assert.Equal(t, 24, len([]rune(line)))
	assert.True(t, strings.HasSuffix(line, "…"))
}

func TestFormatDownload(t *testing.T) {
	line := formatDownload(download.Progress{
		TotalBytes:      2000000,
		DownloadedBytes: 1000000,
		TotalItems:      10,
		CompletedItems:  4,
		FailedItems:     1,
		Speed:           2048,
	})
	assert.Equal(t, "4/10 files • 1.0 MB / 2.0 MB • 2.0 kB/s • 1 failed", line)
}
