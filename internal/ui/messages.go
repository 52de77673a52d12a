// Package ui provides TUI view messages shared between components.
package ui

import (
	"github.com/quasar/mcinstall/internal/install"
)

// Action messages
type (
	// InstallStatusUpdate is sent during install
	InstallStatusUpdate struct {
		Status install.Status
	}

	// InstallComplete is sent when install finishes
	InstallComplete struct {
		Result *install.Result
		Error  error
	}

	// CancelInstall asks the runner to stop the install
	CancelInstall struct{}
)
