// Package hotkey observes the global push-to-talk chord (Ctrl+Space) and
// the Shift modifier that picks the dictation target.
package hotkey

import "sync"

// Hotkey delivers push-to-talk press and release edges. Modifier reports
// whether Shift is currently held, as seen by the same keyboard tracker.
type Hotkey interface {
	Register() error
	Unregister()
	Keydown() <-chan struct{}
	Keyup() <-chan struct{}
	Modifier() *Modifier
}

// Modifier is the process-wide Shift state. Only keyboard trackers in this
// package write it; everything else reads it through Held.
//
// The tracker latches the state at the chord's release edge and clears the
// latch at the next press, so a Shift-up that lands right after the release
// does not change what Held reports for that release.
type Modifier struct {
	mu      sync.Mutex
	sources map[int]bool
	held    bool
	latched bool
	frozen  bool
}

func NewModifier() *Modifier {
	return &Modifier{sources: make(map[int]bool)}
}

// Held reports whether Shift was down when the chord was last released. While
// the chord is held, or before any release, it reports the live state.
func (m *Modifier) Held() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.latched {
		return m.frozen
	}
	return m.held
}

// latch freezes the current state. Trackers call it at the release edge,
// before the keyup is signalled.
func (m *Modifier) latch() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latched = true
	m.frozen = m.held
}

// unlatch returns Held to the live state at the next press edge.
func (m *Modifier) unlatch() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latched = false
}

// set records the Shift state reported by one keyboard source.
func (m *Modifier) set(source int, down bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if down {
		m.sources[source] = true
	} else {
		delete(m.sources, source)
	}
	m.held = len(m.sources) > 0
}

func (m *Modifier) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.sources)
	m.held = false
	m.latched = false
	m.frozen = false
}

func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
