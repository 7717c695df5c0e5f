package main

import (
	"context"
	"errors"
	"strings"
	"sync"

	"mediassist/analysis"
	"mediassist/api"
	"mediassist/config"
	"mediassist/fault"
	"mediassist/history"
	"mediassist/log"
	"mediassist/recording"
	"mediassist/transcriber"
)

const (
	replyFallback   = "I'm sorry, I couldn't process your request."
	offlineFallback = "I'm sorry, I'm having trouble connecting to the server. Please try again later."
)

type Level int

const (
	LevelInfo Level = iota
	LevelSuccess
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelSuccess:
		return "success"
	case LevelError:
		return "error"
	}
	return "info"
}

// Display is the rendering layer. Implementations must be safe for use from
// any goroutine.
type Display interface {
	Notice(level Level, text string)
	// Busy shows label next to a spinner; an empty label clears it.
	Busy(label string)
	Chat(from, text string)
	Compose(text string)
	LockCompose(locked bool)
	// Show replaces the output panel. The panel stays until dismissed.
	Show(title string, lines []string)
}

var errComposeLocked = errors.New("compose is disabled while a recording is in progress")

type app struct {
	ctx         context.Context
	client      *api.Client
	analysis    *analysis.Controller
	recorder    *recording.Controller
	history     *history.Store // nil when disabled
	display     Display
	events      *events
	copyCompose bool

	// pending tracks dictations still waiting for the assistant's reply.
	pending sync.WaitGroup

	mu             sync.Mutex
	lastReply      string
	analysisStatus analysis.Status
	transcriptions int
	analyses       int
}

func newApp(ctx context.Context, cfg *config.Config, client *api.Client, mic recording.Microphone, tr transcriber.Transcriber, mod recording.Modifier, display Display) *app {
	a := &app{ctx: ctx, client: client, display: display, copyCompose: cfg.Compose.Clipboard}
	a.events = newEvents(a)
	a.analysis = analysis.New(jobService{client}, a.events, analysis.Config{
		PollInterval: cfg.Analysis.PollInterval,
		MaxDuration:  cfg.Analysis.MaxDuration,
		MaxFailures:  cfg.Analysis.MaxFailures,
	})
	a.recorder = recording.New(mic, speech{tr}, mod, a.events, recording.Config{
		FlushTimeout: cfg.Recording.FlushTimeout,
	})
	if !cfg.History.Disabled {
		h, err := history.Open(cfg.HistoryPath(log.Dir()))
		if err != nil {
			log.Warnf("history disabled: %v", err)
		} else {
			a.history = h
		}
	}
	return a
}

// send posts text to the assistant and appends both sides to the chat log.
func (a *app) send(ctx context.Context, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	a.display.Chat("you", text)

	reply, err := a.client.SendMessage(ctx, text)
	switch {
	case err != nil:
		log.Errorf("send message: %v", err)
		a.display.Notice(LevelError, fault.Message(err))
		reply = offlineFallback
	case strings.TrimSpace(reply) == "":
		reply = replyFallback
	}

	a.mu.Lock()
	a.lastReply = reply
	a.mu.Unlock()
	a.display.Chat("assistant", reply)
}

func (a *app) reply() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastReply
}

// refreshReports reloads the report list and hands its size to the analysis
// controller.
func (a *app) refreshReports(ctx context.Context) ([]api.Report, error) {
	reports, err := a.client.ListReports(ctx)
	if err != nil {
		return nil, err
	}
	a.analysis.SetReportCount(len(reports))
	return reports, nil
}

// dismiss closes the output panel and any finished-analysis state.
func (a *app) dismiss() {
	a.analysis.Dismiss()
	a.display.Show("", nil)
	a.refreshBusy()
}

func (a *app) composeLocked() bool {
	switch a.recorder.Phase() {
	case recording.Recording, recording.Stopping, recording.Transcribing:
		return true
	}
	return false
}

func (a *app) busyLabel() string {
	var parts []string
	switch a.recorder.Phase() {
	case recording.Recording:
		parts = append(parts, "recording")
	case recording.Stopping:
		parts = append(parts, "finishing recording")
	case recording.Transcribing:
		parts = append(parts, "transcribing")
	}
	switch a.analysis.State() {
	case analysis.Triggering:
		parts = append(parts, "starting analysis")
	case analysis.Tracking:
		a.mu.Lock()
		status := a.analysisStatus
		a.mu.Unlock()
		if status == "" {
			status = analysis.StatusPending
		}
		parts = append(parts, "analysis "+string(status))
	}
	return strings.Join(parts, " | ")
}

func (a *app) refreshBusy() {
	a.display.Busy(a.busyLabel())
	a.display.LockCompose(a.composeLocked())
}

// remember writes to the local history. Failures are logged and otherwise
// ignored.
func (a *app) remember(op string, fn func(*history.Store) error) {
	if a.history == nil {
		return
	}
	if err := fn(a.history); err != nil {
		log.Warnf("history %s: %v", op, err)
	}
}

func (a *app) close() {
	a.analysis.Dispose()
	a.recorder.Dispose()

	a.mu.Lock()
	analyses, transcriptions := a.analyses, a.transcriptions
	a.mu.Unlock()
	log.SessionEnd(analyses, transcriptions)

	if a.history != nil {
		if err := a.history.Close(); err != nil {
			log.Warnf("close history: %v", err)
		}
	}
}
