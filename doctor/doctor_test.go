package doctor

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"mediassist/audio"
	"mediassist/fault"
	"mediassist/hotkey"
	"mediassist/transcriber"
)

func TestRunReportsEveryCheck(t *testing.T) {
	var ran []string
	checks := []Check{
		{Name: "first", Run: func(context.Context, io.Writer) (string, error) {
			ran = append(ran, "first")
			return "ok", nil
		}},
		{Name: "second", Run: func(context.Context, io.Writer) (string, error) {
			ran = append(ran, "second")
			return "", errors.New("broken")
		}},
		{Name: "third", Run: func(context.Context, io.Writer) (string, error) {
			ran = append(ran, "third")
			return "fine", nil
		}},
	}

	var out bytes.Buffer
	if code := Run(context.Background(), &out, checks); code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
	if len(ran) != 3 {
		t.Errorf("ran = %v, a failure should not stop later checks", ran)
	}
	for _, want := range []string{"[1/3] first", "PASS: ok", "FAIL: broken", "1 check(s) failed"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}

func TestRunAllPass(t *testing.T) {
	var out bytes.Buffer
	code := Run(context.Background(), &out, []Check{{Name: "x", Run: func(context.Context, io.Writer) (string, error) { return "y", nil }}})
	if code != 0 || !strings.Contains(out.String(), "All checks passed!") {
		t.Errorf("code = %d, out = %s", code, out.String())
	}
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) (time.Duration, error) { return 12 * time.Millisecond, p.err }
func (p pinger) BaseURL() string                            { return "http://localhost:5000" }

func TestBackendCheck(t *testing.T) {
	detail, err := Backend(pinger{}).Run(context.Background(), io.Discard)
	if err != nil || !strings.Contains(detail, "12ms") {
		t.Errorf("detail = %q, err = %v", detail, err)
	}
	_, err = Backend(pinger{err: fault.New(fault.Transport, "ping", errors.New("refused"))}).Run(context.Background(), io.Discard)
	if err == nil || !strings.Contains(err.Error(), "Could not reach the server") {
		t.Errorf("err = %v", err)
	}
}

func TestHotkeyCheckSeesModifier(t *testing.T) {
	hk := hotkey.NewFake()
	go func() {
		hk.SimModifierDown()
		hk.SimKeydown()
		hk.SimKeyup()
	}()
	detail, err := Hotkey(hk, nil, time.Second).Run(context.Background(), io.Discard)
	if err != nil {
		t.Fatalf("err = %v", err)
	}
	if !strings.Contains(detail, "Shift seen") {
		t.Errorf("detail = %q", detail)
	}
}

func TestHotkeyCheckTimeout(t *testing.T) {
	_, err := Hotkey(hotkey.NewFake(), nil, 10*time.Millisecond).Run(context.Background(), io.Discard)
	if err == nil || !strings.Contains(err.Error(), "timeout") {
		t.Errorf("err = %v", err)
	}
}

func TestMicrophoneCheck(t *testing.T) {
	mic := audio.NewMicrophone(audio.NewFakeContextPCM(make([]byte, 3200), false), nil)
	tr := transcriber.NewFake("testing one two", nil)

	detail, err := Microphone(mic, tr, 20*time.Millisecond).Run(context.Background(), io.Discard)
	if err != nil {
		t.Fatalf("err = %v", err)
	}
	if !strings.Contains(detail, "testing one two") {
		t.Errorf("detail = %q", detail)
	}
	if mic.Held() {
		t.Error("microphone lease not released")
	}
	if p := tr.Payloads(); len(p) != 1 || len(p[0]) != 3200 {
		t.Errorf("payload sizes = %d", len(p))
	}
}

func TestMicrophoneCheckNoAudio(t *testing.T) {
	mic := audio.NewMicrophone(audio.NewFakeContextPCM(nil, false), nil)
	_, err := Microphone(mic, nil, 10*time.Millisecond).Run(context.Background(), io.Discard)
	if err == nil || !strings.Contains(err.Error(), "no audio") {
		t.Errorf("err = %v", err)
	}
}
