package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"mediassist/api"
	"mediassist/audio"
	"mediassist/config"
	"mediassist/fault"
	"mediassist/hotkey"
	"mediassist/transcriber"
)

// lineDisplay prints one line per display event for headless runs.
type lineDisplay struct {
	mu   sync.Mutex
	w    io.Writer
	busy string
}

func newLineDisplay(w io.Writer) *lineDisplay {
	return &lineDisplay{w: w}
}

func (d *lineDisplay) printf(format string, args ...any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fmt.Fprintf(d.w, format+"\n", args...)
}

func (d *lineDisplay) Notice(level Level, text string) { d.printf("notice %s: %s", level, text) }
func (d *lineDisplay) Chat(from, text string)          { d.printf("%s: %s", from, text) }
func (d *lineDisplay) Compose(text string)             { d.printf("compose: %s", text) }
func (d *lineDisplay) LockCompose(bool)                {}

func (d *lineDisplay) Busy(label string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if label == d.busy {
		return
	}
	d.busy = label
	if label == "" {
		label = "idle"
	}
	fmt.Fprintf(d.w, "busy: %s\n", label)
}

func (d *lineDisplay) Show(title string, lines []string) {
	if title == "" {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	fmt.Fprintf(d.w, "== %s\n", title)
	for _, l := range lines {
		fmt.Fprintf(d.w, "  %s\n", l)
	}
}

// runTestMode replays wavPath as the microphone and takes key and command
// events from stdin, one per line.
func runTestMode(ctx context.Context, cfg *config.Config, client *api.Client, tr transcriber.Transcriber, wavPath string) int {
	fakeCtx, err := audio.NewFakeContext(wavPath, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading WAV: %v\n", err)
		return 1
	}

	hk := hotkey.NewFake()
	display := newLineDisplay(os.Stdout)
	a := newApp(ctx, cfg, client, microphone{audio.NewMicrophone(fakeCtx, nil)}, tr, hk.Modifier(), display)
	defer a.close()

	if _, err := a.refreshReports(ctx); err != nil {
		display.Notice(LevelError, "Could not load medical reports: "+fault.Message(err))
	}

	sessions := make(chan struct{}, 1)
	go listen(ctx, hk, a.recorder, func(done <-chan struct{}) {
		go func() {
			if done != nil {
				<-done
			}
			select {
			case sessions <- struct{}{}:
			default:
			}
		}()
	})

	return driveTestMode(ctx, os.Stdin, a, hk, sessions)
}

func driveTestMode(ctx context.Context, in io.Reader, a *app, hk *hotkey.FakeHotkey, sessions <-chan struct{}) int {
	wait := func(ch <-chan struct{}) bool {
		select {
		case <-ch:
			return true
		case <-ctx.Done():
			return false
		}
	}

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		cmd, arg, _ := strings.Cut(line, " ")
		switch cmd {
		case "":
		case "KEYDOWN":
			hk.SimKeydown()
		case "KEYUP":
			hk.SimKeyup()
		case "MODDOWN":
			hk.SimModifierDown()
		case "MODUP":
			hk.SimModifierUp()
		case "ANALYZE":
			if err := a.submit(ctx, "/analyze"); err != nil {
				a.display.Notice(LevelError, fault.Message(err))
			}
		case "WAIT":
			if !wait(sessions) {
				return 1
			}
			a.pending.Wait()
		case "WAIT_ANALYSIS":
			if !wait(a.events.finished) {
				return 1
			}
		case "SLEEP":
			if ms, err := strconv.Atoi(arg); err == nil {
				time.Sleep(time.Duration(ms) * time.Millisecond)
			}
		case "SAY":
			a.send(ctx, arg)
		case "QUIT":
			return 0
		default:
			if strings.HasPrefix(line, "/") {
				err := a.submit(ctx, line)
				if errors.Is(err, errQuit) {
					return 0
				}
				if err != nil {
					a.display.Notice(LevelError, fault.Message(err))
				}
				continue
			}
			fmt.Fprintf(os.Stderr, "unknown test command %q\n", line)
		}
	}
	return 0
}
