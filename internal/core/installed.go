package core

import (
	"encoding/json"
	"os"
	"sort"
	"time"
)

// InstallState records the outcome of the last install of a version
type InstallState struct {
	ID          string      `json:"id"`
	Type        VersionType `json:"type"`
	RunID       string      `json:"runId"`
	InstalledAt time.Time   `json:"installedAt"`
	Files       int         `json:"files"`
	Failed      int         `json:"failed"`
	Complete    bool        `json:"complete"` // every file downloaded and verified
}

// InstallRegistry tracks the versions installed under a root
type InstallRegistry struct {
	layout   Layout
	installs map[string]*InstallState
}

// NewInstallRegistry creates a registry for root
func NewInstallRegistry(root string) *InstallRegistry {
	return &InstallRegistry{
		layout:   NewLayout(root),
		installs: make(map[string]*InstallState),
	}
}

// Load reads the state of every version directory
func (r *InstallRegistry) Load() error {
	entries, err := os.ReadDir(r.layout.VersionsDir())
	if os.IsNotExist(err) {
		// Nothing installed yet
		return nil
	}
	if err != nil {
		return IOError("reading versions directory", r.layout.VersionsDir(), err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		data, err := os.ReadFile(r.layout.InstallState(entry.Name()))
		if err != nil {
			continue // Installed by another launcher
		}

		var state InstallState
		if err := json.Unmarshal(data, &state); err != nil || state.ID != entry.Name() {
			continue // Skip malformed state
		}

		r.installs[state.ID] = &state
	}

	return nil
}

// List returns all recorded installs, most recent first
func (r *InstallRegistry) List() []*InstallState {
	result := make([]*InstallState, 0, len(r.installs))
	for _, s := range r.installs {
		result = append(result, s)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].InstalledAt.After(result[j].InstalledAt)
	})
	return result
}

// Get returns the state for a version ID
func (r *InstallRegistry) Get(id string) (*InstallState, bool) {
	s, ok := r.installs[id]
	return s, ok
}

// Record saves state next to the version's descriptor
func (r *InstallRegistry) Record(state *InstallState) error {
	if err := CheckID(state.ID); err != nil {
		return err
	}
	dir := r.layout.VersionDir(state.ID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return IOError("creating version directory", dir, err)
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}

	path := r.layout.InstallState(state.ID)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return IOError("writing install state", path, err)
	}

	r.installs[state.ID] = state
	return nil
}

// Remove deletes versions/<id> for a recorded install. Libraries and assets
// may be shared with other versions and are left in place. Directories
// without install state belong to other launchers and are never removed.
func (r *InstallRegistry) Remove(id string) error {
	if err := CheckID(id); err != nil {
		return err
	}
	dir := r.layout.VersionDir(id)
	if _, ok := r.installs[id]; !ok {
		return IOError("locating version", dir, os.ErrNotExist)
	}
	if err := os.RemoveAll(dir); err != nil {
		return IOError("removing version", dir, err)
	}

	delete(r.installs, id)
	return nil
}
