// Package memory holds the short-term memory carried across the actions of
// one plan execution.
package memory

import "sync"

// Well-known keys.
const (
	LastSelected   = "LAST_SELECTED"
	SelectedIDs    = "SELECTED_IDS"
	LastFuzzedFile = "LAST_FUZZED_FILE"
)

// Memory is the explicit context object handed to action handlers. Table
// selections write it; later actions read it through sentinel targets.
type Memory struct {
	mu       sync.RWMutex
	last     string
	selected []string
	values   map[string]string
}

// New returns an empty memory.
func New() *Memory {
	return &Memory{values: make(map[string]string)}
}

// RecordSelection stores id as LAST_SELECTED and appends it to SELECTED_IDS.
func (m *Memory) RecordSelection(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last = id
	m.selected = append(m.selected, id)
}

// LastSelected returns the most recent selection, if any.
func (m *Memory) LastSelected() (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last, m.last != ""
}

// SelectedIDs returns a copy of the selection history.
func (m *Memory) SelectedIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.selected))
	copy(out, m.selected)
	return out
}

// Set stores an auxiliary value such as LAST_FUZZED_FILE.
func (m *Memory) Set(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch key {
	case LastSelected:
		m.last = value
	default:
		m.values[key] = value
	}
}

// Get returns a stored value.
func (m *Memory) Get(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if key == LastSelected {
		return m.last, m.last != ""
	}
	v, ok := m.values[key]
	return v, ok
}

// Resolve substitutes the LAST_SELECTED sentinel in target.
func (m *Memory) Resolve(target string) string {
	if target != LastSelected {
		return target
	}
	v, _ := m.LastSelected()
	return v
}

// Snapshot returns all keys for journaling.
func (m *Memory) Snapshot() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := map[string]interface{}{
		LastSelected: m.last,
		SelectedIDs:  append([]string(nil), m.selected...),
	}
	for k, v := range m.values {
		out[k] = v
	}
	return out
}
