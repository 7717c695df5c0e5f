//go:build !linux

package hotkey

import (
	"errors"
	"sync"

	hook "github.com/robotn/gohook"
	"golang.design/x/hotkey"
)

// xHotkey registers Ctrl+Space twice, with and without Shift, because the
// OS matches modifier sets exactly. gohook observes Shift on its own so the
// modifier can change while the chord is held.
type xHotkey struct {
	plain    *hotkey.Hotkey
	shifted  *hotkey.Hotkey
	keydown  chan struct{}
	keyup    chan struct{}
	modifier *Modifier
	stop     chan struct{}
	once     sync.Once
}

func New() Hotkey {
	return &xHotkey{
		plain:    hotkey.New([]hotkey.Modifier{hotkey.ModCtrl}, hotkey.KeySpace),
		shifted:  hotkey.New([]hotkey.Modifier{hotkey.ModCtrl, hotkey.ModShift}, hotkey.KeySpace),
		keydown:  make(chan struct{}, 1),
		keyup:    make(chan struct{}, 1),
		modifier: NewModifier(),
		stop:     make(chan struct{}),
	}
}

func (h *xHotkey) Register() error {
	if err := h.plain.Register(); err != nil {
		return err
	}
	if err := h.shifted.Register(); err != nil {
		h.plain.Unregister()
		return err
	}
	for _, hk := range []*hotkey.Hotkey{h.plain, h.shifted} {
		go h.forward(hk.Keydown(), h.keydown, h.modifier.unlatch)
		go h.forward(hk.Keyup(), h.keyup, h.modifier.latch)
	}
	go h.trackShift()
	return nil
}

// forward relays edges from src to dst, running edge first.
func (h *xHotkey) forward(src <-chan hotkey.Event, dst chan struct{}, edge func()) {
	for {
		select {
		case <-h.stop:
			return
		case _, ok := <-src:
			if !ok {
				return
			}
			edge()
			notify(dst)
		}
	}
}

func (h *xHotkey) trackShift() {
	events := hook.Start()
	defer hook.End()

	shift, rshift := hook.Keycode["shift"], hook.Keycode["rshift"]
	for {
		select {
		case <-h.stop:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Keycode != shift && ev.Keycode != rshift {
				continue
			}
			switch ev.Kind {
			case hook.KeyHold, hook.KeyDown:
				h.modifier.set(int(ev.Keycode), true)
			case hook.KeyUp:
				h.modifier.set(int(ev.Keycode), false)
			}
		}
	}
}

func (h *xHotkey) Unregister() {
	h.once.Do(func() {
		close(h.stop)
		h.plain.Unregister()
		h.shifted.Unregister()
		h.modifier.reset()
	})
}

func (h *xHotkey) Keydown() <-chan struct{} { return h.keydown }
func (h *xHotkey) Keyup() <-chan struct{}   { return h.keyup }
func (h *xHotkey) Modifier() *Modifier      { return h.modifier }

func Diagnose() (string, error) {
	if len(hook.Keycode) == 0 {
		return "", errors.New("global key hook has no keycode table")
	}
	return "hotkey support available (Ctrl+Space, Shift via global hook)", nil
}
