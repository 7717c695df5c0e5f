//go:build linux

package hotkey

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const (
	evKey      = 1
	keyPress   = 1
	keyRelease = 0
	keyLCtrl   = 29
	keyRCtrl   = 97
	keyLShift  = 42
	keyRShift  = 54
	keySpace   = 57
)

const inputEventSize = 24

type evdevHotkey struct {
	keydown  chan struct{}
	keyup    chan struct{}
	modifier *Modifier
	files    []*os.File
	stop     chan struct{}
	once     sync.Once
}

func New() Hotkey {
	return &evdevHotkey{
		keydown:  make(chan struct{}, 1),
		keyup:    make(chan struct{}, 1),
		modifier: NewModifier(),
	}
}

func (h *evdevHotkey) Register() error {
	keyboards, err := findKeyboards()
	if err != nil {
		return fmt.Errorf("finding keyboards: %w", err)
	}
	if len(keyboards) == 0 {
		return fmt.Errorf("no keyboard devices found (is user in 'input' group?)")
	}

	h.stop = make(chan struct{})
	for i, path := range keyboards {
		f, err := os.Open(path)
		if err != nil {
			continue
		}
		h.files = append(h.files, f)
		go h.readEvents(i, f)
	}

	if len(h.files) == 0 {
		return fmt.Errorf("could not open any keyboard device (run: sudo usermod -aG input $USER, then re-login)")
	}
	return nil
}

// chord tracks one keyboard's key state and turns it into press/release
// edges. A release is reported when either Ctrl or Space goes up.
type chord struct {
	ctrl, shift, active bool
}

type edge int

const (
	noEdge edge = iota
	pressEdge
	releaseEdge
)

func (c *chord) feed(code uint16, value int32) edge {
	pressed := value == keyPress
	released := value == keyRelease

	switch code {
	case keyLCtrl, keyRCtrl:
		c.ctrl = pressed || (!released && c.ctrl)
		if released && c.active {
			c.active = false
			return releaseEdge
		}
	case keyLShift, keyRShift:
		c.shift = pressed || (!released && c.shift)
	case keySpace:
		if pressed && !c.active && c.ctrl {
			c.active = true
			return pressEdge
		}
		if released && c.active {
			c.active = false
			return releaseEdge
		}
	}
	return noEdge
}

func (h *evdevHotkey) readEvents(source int, f *os.File) {
	buf := make([]byte, inputEventSize*16)
	var c chord
	defer h.modifier.set(source, false)

	for {
		select {
		case <-h.stop:
			return
		default:
		}

		n, err := f.Read(buf)
		if err != nil {
			return
		}

		h.handleBatch(source, &c, buf[:n])
	}
}

// handleBatch decodes one read's worth of input events in order.
func (h *evdevHotkey) handleBatch(source int, c *chord, buf []byte) {
	for i := 0; i+inputEventSize <= len(buf); i += inputEventSize {
		evType := binary.LittleEndian.Uint16(buf[i+16:])
		evCode := binary.LittleEndian.Uint16(buf[i+18:])
		evValue := int32(binary.LittleEndian.Uint32(buf[i+20:]))
		if evType != evKey {
			continue
		}

		e := c.feed(evCode, evValue)
		h.modifier.set(source, c.shift)
		switch e {
		case pressEdge:
			h.modifier.unlatch()
			notify(h.keydown)
		case releaseEdge:
			h.modifier.latch()
			notify(h.keyup)
		}
	}
}

func (h *evdevHotkey) Unregister() {
	h.once.Do(func() {
		if h.stop != nil {
			close(h.stop)
		}
		for _, f := range h.files {
			f.Close()
		}
		h.modifier.reset()
	})
}

func (h *evdevHotkey) Keydown() <-chan struct{} { return h.keydown }
func (h *evdevHotkey) Keyup() <-chan struct{}   { return h.keyup }
func (h *evdevHotkey) Modifier() *Modifier      { return h.modifier }

func findKeyboards() ([]string, error) {
	entries, err := os.ReadDir("/dev/input")
	if err != nil {
		return nil, err
	}

	var keyboards []string
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), "event") {
			continue
		}
		if isKeyboard(e.Name()) {
			keyboards = append(keyboards, filepath.Join("/dev/input", e.Name()))
		}
	}
	return keyboards, nil
}

func isKeyboard(eventName string) bool {
	capsPath := filepath.Join("/sys/class/input", eventName, "device", "capabilities", "key")
	data, err := os.ReadFile(capsPath)
	if err != nil {
		return false
	}
	return len(strings.TrimSpace(string(data))) > 10
}

// Diagnose reports whether a keyboard can be opened for both the chord and
// the Shift modifier.
func Diagnose() (string, error) {
	keyboards, err := findKeyboards()
	if err != nil {
		return "", fmt.Errorf("cannot scan input devices: %w", err)
	}
	if len(keyboards) == 0 {
		return "", fmt.Errorf("no keyboard devices found (is user in 'input' group?)")
	}

	for _, path := range keyboards {
		f, err := os.Open(path)
		if err == nil {
			f.Close()
			return fmt.Sprintf("%d keyboard(s) found, opened %s (Ctrl+Space, Shift via evdev)", len(keyboards), path), nil
		}
	}
	return "", fmt.Errorf("found %d keyboard(s) but cannot open any (run: sudo usermod -aG input $USER)", len(keyboards))
}
