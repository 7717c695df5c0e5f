// Package poller repeatedly fetches the status of a remote job until a
// terminal result arrives or the caller cancels.
package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"mediassist/log"
)

// DefaultInterval is used when Spec.Interval is not positive.
const DefaultInterval = 2 * time.Second

// Give-up causes passed to OnGiveUp.
var (
	ErrTimedOut        = errors.New("polling timed out")
	ErrTooManyFailures = errors.New("too many consecutive poll failures")
)

// Spec describes one polling run. Fetch, IsTerminal and OnUpdate are required.
type Spec[R any] struct {
	JobID      string
	Interval   time.Duration
	Fetch      func(ctx context.Context, jobID string) (R, error)
	IsTerminal func(R) bool
	OnUpdate   func(R)

	// Optional caps; zero means unlimited.
	MaxDuration time.Duration
	MaxFailures int
	// OnGiveUp is called once when a cap stops the handle.
	OnGiveUp func(error)
}

// Handle controls a running poll. All methods are safe for concurrent use.
type Handle struct {
	cancel   context.CancelFunc
	stopped  atomic.Bool
	stopOnce sync.Once
	done     chan struct{}

	// deliverMu serialises OnUpdate/OnGiveUp. Cancel only waits on it when
	// called from outside a callback, so a callback may cancel its own handle.
	deliverMu  sync.Mutex
	inCallback atomic.Bool
	failures   int
}

// Start begins polling in the background. The first fetch happens one
// interval after Start; each tick fires a new fetch without waiting for
// earlier ones to finish.
func Start[R any](ctx context.Context, spec Spec[R]) *Handle {
	if spec.Interval <= 0 {
		spec.Interval = DefaultInterval
	}
	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{cancel: cancel, done: make(chan struct{})}

	go run(ctx, h, spec)
	return h
}

// Cancel stops the poll. It is idempotent. Once Cancel returns no new
// OnUpdate begins, and results of fetches still in flight are discarded.
func (h *Handle) Cancel() {
	h.stop()
	if !h.inCallback.Load() {
		// Wait out a delivery that passed its stopped check just before us.
		h.deliverMu.Lock()
		h.deliverMu.Unlock()
	}
}

func (h *Handle) stop() {
	h.stopOnce.Do(func() {
		h.stopped.Store(true)
		h.cancel()
		close(h.done)
	})
}

// Done is closed when the handle stops for any reason.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Active reports whether the poll is still running.
func (h *Handle) Active() bool { return !h.stopped.Load() }

func run[R any](ctx context.Context, h *Handle, spec Spec[R]) {
	ticker := time.NewTicker(spec.Interval)
	defer ticker.Stop()

	var deadline <-chan time.Time
	if spec.MaxDuration > 0 {
		timer := time.NewTimer(spec.MaxDuration)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			h.stop()
			return
		case <-deadline:
			giveUp(h, spec, fmt.Errorf("%w after %s", ErrTimedOut, spec.MaxDuration))
			return
		case <-ticker.C:
			go fetch(ctx, h, spec)
		}
	}
}

func fetch[R any](ctx context.Context, h *Handle, spec Spec[R]) {
	res, err := spec.Fetch(ctx, spec.JobID)

	h.deliverMu.Lock()
	defer h.deliverMu.Unlock()
	if h.stopped.Load() || ctx.Err() != nil {
		return
	}

	if err != nil {
		h.failures++
		log.Warnf("poll %s: %v (failure %d)", spec.JobID, err, h.failures)
		if spec.MaxFailures > 0 && h.failures >= spec.MaxFailures {
			h.giveUpLocked(spec.OnGiveUp, fmt.Errorf("%w: %w", ErrTooManyFailures, err))
		}
		return
	}
	h.failures = 0

	if spec.IsTerminal(res) {
		h.stop()
	}
	h.inCallback.Store(true)
	defer h.inCallback.Store(false)
	spec.OnUpdate(res)
}

func giveUp[R any](h *Handle, spec Spec[R], err error) {
	h.deliverMu.Lock()
	defer h.deliverMu.Unlock()
	if h.stopped.Load() {
		return
	}
	h.giveUpLocked(spec.OnGiveUp, err)
}

func (h *Handle) giveUpLocked(onGiveUp func(error), err error) {
	h.stop()
	log.Warnf("poll gave up: %v", err)
	if onGiveUp == nil {
		return
	}
	h.inCallback.Store(true)
	defer h.inCallback.Store(false)
	onGiveUp(err)
}
