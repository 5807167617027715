package manager

import (
	"os"
	"strings"
)

// SanityReport summarizes dependency checks for readiness and the CLI.
type SanityReport struct {
	Runtime    string   `json:"runtime"`
	Devices    []string `json:"devices,omitempty"`
	System     string   `json:"system,omitempty"`
	Registry   int      `json:"registry_models"`
	Default    string   `json:"default_model,omitempty"`
	MissingDef bool     `json:"default_missing,omitempty"`
	Unreadable []string `json:"unreadable,omitempty"`
}

// SanityCheck initializes the backend and verifies every registered model
// file is still readable. A runtime that was not built in is reported as an
// ErrDependencyUnavailable error alongside the partial report.
func (m *Manager) SanityCheck() (SanityReport, error) {
	m.mu.RLock()
	rep := SanityReport{Registry: len(m.registry), Default: m.defaultModel}
	models := append(m.registry[:0:0], m.registry...)
	m.mu.RUnlock()

	if rep.Default != "" {
		if _, ok := m.getModelByID(rep.Default); !ok {
			rep.MissingDef = true
		}
	}
	for _, mdl := range models {
		f, err := os.Open(mdl.Path)
		if err != nil {
			rep.Unreadable = append(rep.Unreadable, mdl.ID)
			continue
		}
		_ = f.Close()
	}

	devs, err := m.initBackend()
	if err != nil {
		rep.Runtime = "unavailable"
		return rep, err
	}
	rep.Runtime = "ok"
	for _, d := range devs {
		rep.Devices = append(rep.Devices, strings.TrimSpace(string(d.Kind)+" "+d.Description))
	}
	rep.System, _ = m.eng.SystemInfo()
	return rep, nil
}
