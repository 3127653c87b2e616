// Package situation supplies the condition evaluator for preview playback.
// In the editor the active situation is picked by hand (or pushed by a
// running game over MQTT) and destination conditions are matched against
// it literally.
package situation

import "sync"

// Manual holds the currently selected situation.
type Manual struct {
	mu       sync.RWMutex
	active   string
	onChange []func(string)
}

func NewManual(initial string) *Manual {
	return &Manual{active: initial}
}

// Select makes name the active situation. An empty name clears it.
func (m *Manual) Select(name string) {
	m.mu.Lock()
	changed := m.active != name
	m.active = name
	hooks := append([]func(string){}, m.onChange...)
	m.mu.Unlock()
	if changed {
		for _, fn := range hooks {
			fn(name)
		}
	}
}

func (m *Manual) Selected() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active
}

// IsActive matches condition literally against the selected situation. An
// empty condition is never active.
func (m *Manual) IsActive(condition string) bool {
	if condition == "" {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return condition == m.active
}

// OnChange registers a hook called after the selection changes.
func (m *Manual) OnChange(fn func(string)) {
	m.mu.Lock()
	m.onChange = append(m.onChange, fn)
	m.mu.Unlock()
}
