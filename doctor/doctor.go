// Package doctor runs the -doctor diagnostics.
package doctor

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"mediassist/audio"
	"mediassist/clipboard"
	"mediassist/fault"
	"mediassist/hotkey"
	"mediassist/transcriber"
)

// Check is one diagnostic step. Run returns a short detail on success.
type Check struct {
	Name string
	Run  func(ctx context.Context, out io.Writer) (string, error)
}

// Run executes checks in order and returns an exit code (0=all pass, 1=any fail).
// A failed check does not stop the ones after it.
func Run(ctx context.Context, out io.Writer, checks []Check) int {
	fmt.Fprintln(out, "mediassist doctor - system diagnostics")
	fmt.Fprintln(out, "======================================")

	failed := 0
	for i, c := range checks {
		fmt.Fprintf(out, "\n[%d/%d] %s\n", i+1, len(checks), c.Name)
		detail, err := c.Run(ctx, out)
		if err != nil {
			failed++
			fmt.Fprintf(out, "  FAIL: %v\n", err)
			continue
		}
		fmt.Fprintf(out, "  PASS: %s\n", detail)
	}

	fmt.Fprintln(out)
	if failed == 0 {
		fmt.Fprintln(out, "All checks passed!")
		return 0
	}
	fmt.Fprintf(out, "%d check(s) failed. See details above.\n", failed)
	return 1
}

type Pinger interface {
	Ping(ctx context.Context) (time.Duration, error)
	BaseURL() string
}

func Backend(p Pinger) Check {
	return Check{Name: "Backend reachability", Run: func(ctx context.Context, _ io.Writer) (string, error) {
		rtt, err := p.Ping(ctx)
		if err != nil {
			return "", fmt.Errorf("%s: %s", p.BaseURL(), fault.Message(err))
		}
		return fmt.Sprintf("%s answered in %s", p.BaseURL(), rtt.Round(time.Millisecond)), nil
	}}
}

// Hotkey waits for one Ctrl+Space press and reports the Shift state seen at
// release, exercising both halves of the keyboard tracker. diagnose may be nil.
func Hotkey(hk hotkey.Hotkey, diagnose func() (string, error), timeout time.Duration) Check {
	return Check{Name: "Hotkey and modifier detection", Run: func(ctx context.Context, out io.Writer) (string, error) {
		if diagnose != nil {
			diag, err := diagnose()
			if err != nil {
				return "", err
			}
			fmt.Fprintf(out, "  %s\n", diag)
		}
		if err := hk.Register(); err != nil {
			return "", fmt.Errorf("could not register hotkey: %w", err)
		}
		defer hk.Unregister()

		fmt.Fprintln(out, "  Hold Shift, then press and release Ctrl+Space...")
		select {
		case <-hk.Keydown():
		case <-time.After(timeout):
			return "", fmt.Errorf("timeout waiting for Ctrl+Space")
		case <-ctx.Done():
			return "", ctx.Err()
		}
		select {
		case <-hk.Keyup():
		case <-time.After(timeout):
			return "", fmt.Errorf("timeout waiting for release")
		case <-ctx.Done():
			return "", ctx.Err()
		}
		resetTerminal()
		if !hk.Modifier().Held() {
			return "hotkey detected (Shift not seen at release; dictation will always send)", nil
		}
		return "hotkey detected, Shift seen at release", nil
	}}
}

// Microphone records for d through an exclusive lease and transcribes the
// result when tr is non-nil.
func Microphone(mic *audio.Microphone, tr transcriber.Transcriber, d time.Duration) Check {
	return Check{Name: "Microphone and transcription", Run: func(ctx context.Context, out io.Writer) (string, error) {
		lease, err := mic.Acquire()
		if err != nil {
			return "", err
		}
		defer lease.Release()

		var mu sync.Mutex
		var pcm []byte
		err = lease.Start(func(b []byte) {
			mu.Lock()
			pcm = append(pcm, b...)
			mu.Unlock()
		})
		if err != nil {
			return "", err
		}
		fmt.Fprintf(out, "  Recording %s from %s, say something...\n", d, lease.DeviceName())

		select {
		case <-time.After(d):
		case <-ctx.Done():
			lease.Stop()
			return "", ctx.Err()
		}
		<-lease.Stop()

		mu.Lock()
		defer mu.Unlock()
		if len(pcm) == 0 {
			return "", fmt.Errorf("no audio captured")
		}
		fmt.Fprintf(out, "  Recorded %.1f KB\n", float64(len(pcm))/1024)
		if tr == nil {
			return "capture works (no transcription provider configured)", nil
		}

		res, err := tr.Transcribe(ctx, pcm)
		if err != nil {
			return "", fmt.Errorf("%s: %s", tr.Name(), fault.Message(err))
		}
		return fmt.Sprintf("%s heard %q", tr.Name(), res.Text), nil
	}}
}

func Clipboard() Check {
	return Check{Name: "Clipboard", Run: func(context.Context, io.Writer) (string, error) {
		if err := clipboard.Verify(); err != nil {
			return "", err
		}
		return "copy and read verified", nil
	}}
}
