package hotkey

import (
	"testing"
	"time"
)

func TestModifierAggregatesSources(t *testing.T) {
	m := NewModifier()
	if m.Held() {
		t.Fatal("new modifier should not be held")
	}
	m.set(1, true)
	m.set(2, true)
	m.set(1, false)
	if !m.Held() {
		t.Error("still held on source 2")
	}
	m.set(2, false)
	if m.Held() {
		t.Error("all sources released")
	}
	m.set(3, true)
	m.reset()
	if m.Held() {
		t.Error("reset should clear")
	}
}

func TestFakeHotkey(t *testing.T) {
	f := NewFake()
	var _ Hotkey = f
	if err := f.Register(); err != nil {
		t.Fatal(err)
	}

	go f.SimKeydown()
	select {
	case <-f.Keydown():
	case <-time.After(time.Second):
		t.Fatal("no keydown")
	}

	f.SimModifierDown()
	if !f.Modifier().Held() {
		t.Error("modifier should be held")
	}
	go f.SimKeyup()
	select {
	case <-f.Keyup():
	case <-time.After(time.Second):
		t.Fatal("no keyup")
	}
	f.SimModifierUp()
	if !f.Modifier().Held() {
		t.Error("modifier should stay as it was at release")
	}
	go f.SimKeydown()
	<-f.Keydown()
	if f.Modifier().Held() {
		t.Error("modifier should be released after the next press")
	}
}

func TestModifierLatchedAtRelease(t *testing.T) {
	m := NewModifier()
	m.set(1, true)
	m.latch()
	m.set(1, false)
	if !m.Held() {
		t.Error("latched state should win over a later release")
	}
	m.unlatch()
	if m.Held() {
		t.Error("unlatch should return the live state")
	}

	m.latch()
	m.set(1, true)
	if m.Held() {
		t.Error("Shift pressed after the release must not count")
	}
	m.reset()
	if m.Held() {
		t.Error("reset should clear the latch")
	}
}

func TestNotifyDoesNotBlock(t *testing.T) {
	ch := make(chan struct{}, 1)
	notify(ch)
	notify(ch)
	if len(ch) != 1 {
		t.Errorf("len = %d", len(ch))
	}
}
