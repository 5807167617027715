package manager

import (
	"time"

	"llmhost/pkg/types"
)

// Snapshot returns a read-only copy of the manager state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := Snapshot{State: m.state, Err: m.err}
	if m.cur != nil {
		cur := *m.cur
		s.CurrentModel = &cur
	}
	return s
}

// Status reports cached state only; it never waits on the engine mutex, so
// it answers promptly while a generation is running.
func (m *Manager) Status() types.StatusResponse {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := types.StatusResponse{
		State:          string(m.state),
		Lifecycle:      m.eng.Lifecycle().String(),
		DeviceInfo:     m.deviceInfo,
		Perf:           m.lastPerf,
		QueueLen:       len(m.queueCh) - len(m.genCh),
		Inflight:       len(m.genCh),
		MaxQueueDepth:  m.maxQueueDepth,
		LastError:      m.err,
		UptimeSeconds:  int64(time.Since(m.startTime).Seconds()),
		ServerTimeUnix: time.Now().Unix(),
		LoadsTotal:     m.loadsTotal.Load(),
		FaultsTotal:    m.faultsTotal.Load(),
	}
	if out.QueueLen < 0 {
		out.QueueLen = 0
	}
	if m.cur != nil {
		lm := m.cur.wire()
		out.Model = &lm
	}
	for _, d := range m.devices {
		out.Devices = append(out.Devices, types.Device{Name: d.Name, Description: d.Description, Kind: string(d.Kind)})
	}
	return out
}
