package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mediassist/analysis"
	"mediassist/clipboard"
	"mediassist/cue"
	"mediassist/fault"
	"mediassist/history"
	"mediassist/log"
	"mediassist/transcriber"
)

// events receives both controllers' callbacks and fans them out to the
// history ledger and the display.
type events struct {
	a *app

	// finished gets a token after each analysis reaches a terminal state.
	finished chan struct{}
}

func newEvents(a *app) *events {
	return &events{a: a, finished: make(chan struct{}, 1)}
}

func (e *events) signalFinished() {
	select {
	case e.finished <- struct{}{}:
	default:
	}
}

func (e *events) TrackingStarted(job analysis.Job) {
	a := e.a
	a.mu.Lock()
	a.analysisStatus = analysis.StatusPending
	a.analyses++
	a.mu.Unlock()

	a.remember("analysis started", func(h *history.Store) error {
		return h.AnalysisStarted(job.ID, job.FileCount, time.Now())
	})
	msg := job.Message
	if msg == "" {
		msg = fmt.Sprintf("Deep analysis started for %d report(s)", job.FileCount)
	}
	a.display.Notice(LevelInfo, msg)
	a.refreshBusy()
}

func (e *events) TrackingUpdated(jobID string, status analysis.Status) {
	a := e.a
	a.mu.Lock()
	a.analysisStatus = status
	a.mu.Unlock()

	a.remember("analysis status", func(h *history.Store) error {
		return h.AnalysisStatus(jobID, string(status))
	})
	a.refreshBusy()
}

func (e *events) TrackingCompleted(jobID string, status analysis.Status) {
	a := e.a
	a.remember("analysis finished", func(h *history.Store) error {
		return h.AnalysisFinished(jobID, string(status), "", time.Now())
	})
	if status == analysis.StatusCompletedNoContent {
		a.display.Notice(LevelSuccess, "Deep analysis finished, but there was nothing to report.")
	} else {
		a.display.Notice(LevelSuccess, "Deep analysis complete.")
	}
	a.refreshBusy()

	go func() {
		e.openResults(a.ctx)
		e.signalFinished()
	}()
}

// openResults shows the analysis report list once a job completes.
func (e *events) openResults(ctx context.Context) {
	a := e.a
	summaries, err := a.client.AnalysisReports(ctx)
	if err != nil {
		log.Warnf("load analysis results: %v", err)
		a.display.Notice(LevelError, "Could not load analysis results: "+fault.Message(err))
		return
	}
	a.display.Show("Analysis results (Esc to close)", summaryLines(summaries))
}

func (e *events) TrackingFailed(jobID string, err error) {
	a := e.a
	msg := fault.Message(err)
	if jobID == "" {
		a.display.Notice(LevelError, "Could not start deep analysis: "+msg)
	} else {
		a.remember("analysis finished", func(h *history.Store) error {
			return h.AnalysisFinished(jobID, string(analysis.StatusError), msg, time.Now())
		})
		a.display.Notice(LevelError, "Deep analysis failed: "+msg)
	}
	a.refreshBusy()
	e.signalFinished()
}

func (e *events) RecordingStarted(string) {
	cue.Play(cue.Start)
	e.a.refreshBusy()
}

func (e *events) RecordingStopped(string, bool) {
	cue.Play(cue.Stop)
	e.a.refreshBusy()
}

func (e *events) TranscriptionStarted(sessionID string, payloadBytes int) {
	e.a.remember("transcription started", func(h *history.Store) error {
		return h.TranscriptionStarted(sessionID, payloadBytes, time.Now())
	})
	e.a.refreshBusy()
}

func (e *events) TranscriptionSucceeded(sessionID, text string, targetsCompose bool) {
	a := e.a
	a.mu.Lock()
	a.transcriptions++
	a.mu.Unlock()

	target := history.TargetSend
	if targetsCompose {
		target = history.TargetCompose
	}
	a.remember("transcription finished", func(h *history.Store) error {
		return h.TranscriptionFinished(sessionID, text, target, "")
	})
	a.refreshBusy()

	if !targetsCompose {
		a.pending.Add(1)
		go func() {
			defer a.pending.Done()
			a.send(a.ctx, text)
		}()
		return
	}
	a.display.Compose(text)
	if a.copyCompose {
		if err := clipboard.Copy(text); err != nil {
			log.Warnf("copy dictation: %v", err)
		}
	}
}

func (e *events) TranscriptionFailed(sessionID string, err error) {
	a := e.a
	msg := fault.Message(err)
	if errors.Is(err, transcriber.ErrNoSpeech) || errors.Is(err, transcriber.ErrNoAudio) {
		msg = "no speech detected"
	}
	a.remember("transcription finished", func(h *history.Store) error {
		return h.TranscriptionFinished(sessionID, "", history.TargetNone, msg)
	})
	cue.Play(cue.Failure)
	a.display.Notice(LevelError, "Transcription failed: "+msg)
	a.refreshBusy()
}

func (e *events) DeviceFailed(err error) {
	log.Errorf("microphone: %v", err)
	cue.Play(cue.Failure)
	e.a.display.Notice(LevelError, fault.Message(err))
	e.a.refreshBusy()
}
