// Package recording runs the push-to-talk session: hold to capture, release
// to transcribe, with the output target picked by the modifier state at the
// moment of release.
package recording

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"mediassist/fault"
	"mediassist/log"
)

// Phase is where the current session is in its press/release cycle.
type Phase int

const (
	Idle Phase = iota
	Acquiring
	Recording
	Stopping
	Transcribing
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Acquiring:
		return "acquiring"
	case Recording:
		return "recording"
	case Stopping:
		return "stopping"
	case Transcribing:
		return "transcribing"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Capture is one exclusive acquisition of the microphone. The channel
// returned by Stop closes once trailing data has been delivered. Release
// must be safe to call more than once.
type Capture interface {
	Start(onChunk func([]byte)) error
	Stop() <-chan struct{}
	Release()
}

// Microphone hands out exclusive captures.
type Microphone interface {
	Acquire() (Capture, error)
}

// Transcriber turns one utterance of PCM into text.
type Transcriber interface {
	Transcribe(ctx context.Context, payload []byte) (string, error)
}

// Modifier is read-only access to the modifier-key flag as of the latest
// release.
type Modifier interface {
	Held() bool
}

// Sink receives session events. Calls are made without the controller lock.
type Sink interface {
	RecordingStarted(sessionID string)
	RecordingStopped(sessionID string, modifierHeld bool)
	TranscriptionStarted(sessionID string, payloadBytes int)
	// TranscriptionSucceeded carries the text and whether it belongs in the
	// compose field (true) or should be sent directly (false).
	TranscriptionSucceeded(sessionID, text string, targetsCompose bool)
	TranscriptionFailed(sessionID string, err error)
	DeviceFailed(err error)
}

var (
	ErrSessionActive       = errors.New("a recording session is already active")
	ErrDisposed            = errors.New("recording controller disposed")
	ErrTranscriptionFailed = errors.New("transcription failed")
)

const DefaultFlushTimeout = 2 * time.Second

// Config tunes session shutdown.
type Config struct {
	// FlushTimeout bounds the wait for the device's flush signal; whatever
	// was buffered by then is used.
	FlushTimeout time.Duration
}

type session struct {
	id           string
	capture      Capture
	buf          chunkBuffer
	modifierHeld bool
	ctx          context.Context
	cancel       context.CancelFunc
	releaseOnce  sync.Once
	done         chan struct{}
}

func (s *session) release() {
	s.releaseOnce.Do(s.capture.Release)
}

type Controller struct {
	mic      Microphone
	tr       Transcriber
	modifier Modifier
	sink     Sink
	cfg      Config

	mu       sync.Mutex
	phase    Phase
	session  *session
	disposed bool
}

// New returns an Idle controller; a zero FlushTimeout uses DefaultFlushTimeout.
func New(mic Microphone, tr Transcriber, modifier Modifier, sink Sink, cfg Config) *Controller {
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = DefaultFlushTimeout
	}
	return &Controller{mic: mic, tr: tr, modifier: modifier, sink: sink, cfg: cfg}
}

func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// SessionID returns the active session's id, or "".
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return ""
	}
	return c.session.id
}

// OnPressStart acquires the microphone and begins a session. It is rejected
// with ErrSessionActive unless the controller is Idle.
func (c *Controller) OnPressStart(ctx context.Context) error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return fault.New(fault.Precondition, "", ErrDisposed)
	}
	if c.phase != Idle {
		c.mu.Unlock()
		return fault.New(fault.Precondition, "", ErrSessionActive)
	}
	c.phase = Acquiring
	c.mu.Unlock()

	capture, err := c.mic.Acquire()

	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		if err == nil {
			capture.Release()
		}
		return fault.New(fault.Precondition, "", ErrDisposed)
	}
	if err != nil {
		c.phase = Idle
		c.mu.Unlock()
		return c.deviceFailed(err)
	}

	s := &session{id: uuid.NewString(), capture: capture, done: make(chan struct{})}
	s.ctx, s.cancel = context.WithCancel(ctx)
	c.session = s
	c.mu.Unlock()

	if err := capture.Start(s.buf.Append); err != nil {
		c.mu.Lock()
		if c.session == s {
			c.session = nil
			c.phase = Idle
		}
		c.mu.Unlock()
		s.release()
		s.cancel()
		close(s.done)
		return c.deviceFailed(err)
	}

	c.mu.Lock()
	if c.session != s {
		c.mu.Unlock()
		return fault.New(fault.Precondition, "", ErrDisposed)
	}
	c.phase = Recording
	c.mu.Unlock()

	log.Recording(s.id, "started", nil)
	c.sink.RecordingStarted(s.id)
	return nil
}

func (c *Controller) deviceFailed(err error) error {
	if fault.KindOf(err) != fault.Device {
		err = fault.New(fault.Device, "microphone", err)
	}
	log.Errorf("microphone: %v", err)
	c.sink.DeviceFailed(err)
	return err
}

// OnPressEnd stops the current recording. The modifier flag is sampled
// before it returns. It is a no-op returning nil unless a recording is in
// progress; otherwise the returned channel closes when the session has
// finished and the controller is back to Idle.
func (c *Controller) OnPressEnd() <-chan struct{} {
	held := c.modifier.Held()

	c.mu.Lock()
	s := c.session
	if c.disposed || c.phase != Recording || s == nil {
		c.mu.Unlock()
		return nil
	}
	s.modifierHeld = held
	c.phase = Stopping
	c.mu.Unlock()

	log.Recording(s.id, "stopped", map[string]any{"modifier_held": held, "buffered_bytes": s.buf.Len()})
	c.sink.RecordingStopped(s.id, held)

	flushed := s.capture.Stop()
	go c.finish(s, flushed)
	return s.done
}

func (c *Controller) finish(s *session, flushed <-chan struct{}) {
	defer close(s.done)
	defer s.cancel()

	timer := time.NewTimer(c.cfg.FlushTimeout)
	select {
	case <-flushed:
	case <-timer.C:
		log.Warnf("recording %s: device flush timed out after %s", s.id, c.cfg.FlushTimeout)
	case <-s.ctx.Done():
	}
	timer.Stop()

	s.release()
	payload := s.buf.Drain()

	c.mu.Lock()
	if c.session != s {
		c.mu.Unlock()
		return
	}
	c.phase = Transcribing
	c.mu.Unlock()

	log.Recording(s.id, "transcribing", map[string]any{"payload_bytes": len(payload)})
	c.sink.TranscriptionStarted(s.id, len(payload))

	text, err := c.tr.Transcribe(s.ctx, payload)

	c.mu.Lock()
	if c.session != s {
		c.mu.Unlock()
		return
	}
	c.session = nil
	c.phase = Idle
	c.mu.Unlock()

	if err != nil {
		kind := fault.KindOf(err)
		if kind == fault.Unknown {
			kind = fault.Transport
		}
		err = fault.New(kind, "transcribe", fmt.Errorf("%w: %w", ErrTranscriptionFailed, err))
		log.Recording(s.id, "failed", map[string]any{"error": err.Error()})
		c.sink.TranscriptionFailed(s.id, err)
		return
	}
	log.Recording(s.id, "transcribed", map[string]any{"compose": s.modifierHeld, "chars": len(text)})
	c.sink.TranscriptionSucceeded(s.id, text, s.modifierHeld)
}

// Dispose releases any held device, cancels an in-flight transcription and
// suppresses further events. It is safe to call more than once.
func (c *Controller) Dispose() {
	c.mu.Lock()
	c.disposed = true
	s := c.session
	c.session = nil
	c.phase = Idle
	c.mu.Unlock()

	if s == nil {
		return
	}
	s.cancel()
	s.capture.Stop()
	s.release()
}
