// Package anticheat counts tab-visibility and focus-loss violations during
// an active quiz session.
package anticheat

import "sync"

// Event is the kind of focus loss that was detected.
type Event string

const (
	EventTabHidden Event = "tab-hidden"
	EventFocusLost Event = "focus-lost"
)

// DefaultCap bounds how far UI severity escalates; violations past the cap
// are still counted.
const DefaultCap = 5

// Monitor is an explicit violation-counting state object: count, cap and an
// enabled flag behind one RecordViolation method. A callback forwards each
// violation (typically to SessionChannel.ReportTabSwitch).
type Monitor struct {
	mu          sync.Mutex
	count       int
	cap         int
	enabled     bool
	onViolation func(Event, int)
}

// New builds an enabled monitor. A non-positive cap falls back to DefaultCap;
// onViolation may be nil.
func New(cap int, onViolation func(Event, int)) *Monitor {
	if cap <= 0 {
		cap = DefaultCap
	}
	return &Monitor{cap: cap, enabled: true, onViolation: onViolation}
}

// RecordViolation registers one detected focus loss and returns the running
// count. Disabled monitors ignore the event entirely: nothing is counted for
// a user who already finished.
func (m *Monitor) RecordViolation(event Event) int {
	m.mu.Lock()
	if !m.enabled {
		count := m.count
		m.mu.Unlock()
		return count
	}
	m.count++
	count := m.count
	callback := m.onViolation
	m.mu.Unlock()

	if callback != nil {
		callback(event, count)
	}
	return count
}

// Count returns the total violations recorded so far.
func (m *Monitor) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count
}

// Severity is the count clamped to the cap, for UI escalation.
func (m *Monitor) Severity() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.count > m.cap {
		return m.cap
	}
	return m.count
}

// Enabled reports whether events are currently processed.
func (m *Monitor) Enabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled
}

// Disable stops further event processing immediately.
func (m *Monitor) Disable() {
	m.mu.Lock()
	m.enabled = false
	m.mu.Unlock()
}
