// Package analysis tracks a single server-side deep-analysis job from
// trigger to a terminal status.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"mediassist/fault"
	"mediassist/log"
	"mediassist/poller"
)

// Status is the job state reported by the status endpoint.
type Status string

const (
	StatusPending            Status = "pending"
	StatusRunning            Status = "running"
	StatusCompleted          Status = "completed"
	StatusCompletedNoContent Status = "completed_no_content"
	StatusError              Status = "error"
)

// Terminal reports whether polling should stop at s.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCompletedNoContent, StatusError:
		return true
	}
	return false
}

// Job is an accepted analysis request.
type Job struct {
	ID        string
	FileCount int
	Message   string
}

// Report is one answer from the status endpoint.
type Report struct {
	Status Status
	Error  string
}

// JobService starts analysis jobs and reports their status. Implementations
// classify failures with fault.Rejection or fault.Transport.
type JobService interface {
	StartAnalysis(ctx context.Context) (Job, error)
	AnalysisStatus(ctx context.Context, jobID string) (Report, error)
}

// Sink receives tracking events. Calls are made without the controller lock
// held, so a sink may query the controller.
type Sink interface {
	TrackingStarted(job Job)
	TrackingUpdated(jobID string, status Status)
	TrackingCompleted(jobID string, status Status)
	// TrackingFailed is called with an empty jobID when the trigger itself failed.
	TrackingFailed(jobID string, err error)
}

// State is the controller's position in the trigger/track/finish cycle.
type State int

const (
	Idle State = iota
	Triggering
	Tracking
	OpeningResults
	ReportingError
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Triggering:
		return "triggering"
	case Tracking:
		return "tracking"
	case OpeningResults:
		return "opening_results"
	case ReportingError:
		return "reporting_error"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

var (
	ErrNoReports       = errors.New("no medical reports available for analysis")
	ErrAlreadyTracking = errors.New("an analysis is already in progress")
	ErrStartRejected   = errors.New("analysis start rejected")
	ErrTransport       = errors.New("analysis service unreachable")
	ErrJobFailed       = errors.New("analysis failed")
	ErrDisposed        = errors.New("analysis controller disposed")
)

const unknownError = "Unknown error"

// Config tunes status polling. Zero caps mean unlimited.
type Config struct {
	PollInterval time.Duration
	MaxDuration  time.Duration
	MaxFailures  int
}

// Controller owns at most one tracked job at a time.
type Controller struct {
	svc  JobService
	sink Sink
	cfg  Config

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	state    State
	reports  int
	jobID    string
	handle   *poller.Handle
	disposed bool
}

// New returns an Idle controller. Call SetReportCount before Trigger.
func New(svc JobService, sink Sink, cfg Config) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{svc: svc, sink: sink, cfg: cfg, ctx: ctx, cancel: cancel}
}

// SetReportCount records how many medical reports the store currently holds.
func (c *Controller) SetReportCount(n int) {
	c.mu.Lock()
	c.reports = n
	c.mu.Unlock()
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// JobID returns the tracked job id, or "" when none is tracked.
func (c *Controller) JobID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.jobID
}

// Busy is true while a trigger is in flight or a job is being tracked.
func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == Triggering || c.state == Tracking
}

// Trigger starts a new analysis job and begins tracking it. Precondition
// failures return immediately without contacting the job service.
func (c *Controller) Trigger(ctx context.Context) error {
	c.mu.Lock()
	switch {
	case c.disposed:
		c.mu.Unlock()
		return fault.New(fault.Precondition, "", ErrDisposed)
	case c.state == Triggering || c.state == Tracking:
		c.mu.Unlock()
		return fault.New(fault.Precondition, "", ErrAlreadyTracking)
	case c.reports <= 0:
		c.mu.Unlock()
		return fault.New(fault.Precondition, "", ErrNoReports)
	}
	c.state = Triggering
	c.mu.Unlock()

	job, err := c.svc.StartAnalysis(ctx)
	if err == nil && job.ID == "" {
		err = fault.Newf(fault.Rejection, "start analysis", nil, "server returned no analysis id")
	}

	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return fault.New(fault.Precondition, "", ErrDisposed)
	}
	if err != nil {
		c.state = Idle
		c.mu.Unlock()

		err = classifyStart(err)
		log.Analysis("", "start_failed", err.Error())
		c.sink.TrackingFailed("", err)
		return err
	}
	c.state = Tracking
	c.jobID = job.ID
	c.mu.Unlock()

	log.Analysis(job.ID, "started", string(StatusPending))
	c.sink.TrackingStarted(job)
	c.startPolling(job.ID)
	return nil
}

func classifyStart(err error) error {
	if fault.KindOf(err) == fault.Rejection {
		return fault.New(fault.Rejection, "start analysis", fmt.Errorf("%w: %w", ErrStartRejected, err))
	}
	return fault.New(fault.Transport, "start analysis", fmt.Errorf("%w: %w", ErrTransport, err))
}

func (c *Controller) startPolling(jobID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed || c.jobID != jobID || c.state != Tracking {
		return
	}
	c.handle = poller.Start(c.ctx, poller.Spec[Report]{
		JobID:       jobID,
		Interval:    c.cfg.PollInterval,
		MaxDuration: c.cfg.MaxDuration,
		MaxFailures: c.cfg.MaxFailures,
		Fetch:       c.svc.AnalysisStatus,
		IsTerminal:  func(r Report) bool { return r.Status.Terminal() },
		OnUpdate:    func(r Report) { c.onUpdate(jobID, r) },
		OnGiveUp:    func(err error) { c.onGiveUp(jobID, err) },
	})
}

func (c *Controller) onUpdate(jobID string, r Report) {
	c.mu.Lock()
	if c.jobID != jobID || c.state != Tracking {
		c.mu.Unlock()
		return
	}

	if !r.Status.Terminal() {
		c.mu.Unlock()
		if r.Status != StatusPending && r.Status != StatusRunning {
			log.Warnf("analysis %s: unrecognised status %q", jobID, r.Status)
		}
		log.Analysis(jobID, "updated", string(r.Status))
		c.sink.TrackingUpdated(jobID, r.Status)
		return
	}

	h := c.handle
	c.handle = nil
	c.jobID = ""
	if r.Status == StatusError {
		c.state = ReportingError
	} else {
		c.state = OpeningResults
	}
	c.mu.Unlock()
	if h != nil {
		h.Cancel()
	}

	log.Analysis(jobID, "finished", string(r.Status))
	if r.Status == StatusError {
		msg := r.Error
		if msg == "" {
			msg = unknownError
		}
		c.sink.TrackingFailed(jobID, &fault.Error{Kind: fault.Rejection, Op: "analysis " + jobID, Msg: msg, Err: ErrJobFailed})
		return
	}
	c.sink.TrackingCompleted(jobID, r.Status)
}

func (c *Controller) onGiveUp(jobID string, cause error) {
	c.mu.Lock()
	if c.jobID != jobID || c.state != Tracking {
		c.mu.Unlock()
		return
	}
	c.handle = nil
	c.jobID = ""
	c.state = ReportingError
	c.mu.Unlock()

	err := fault.New(fault.Transport, "poll analysis "+jobID, fmt.Errorf("%w: %w", ErrTransport, cause))
	log.Analysis(jobID, "gave_up", err.Error())
	c.sink.TrackingFailed(jobID, err)
}

// Dismiss returns a finished controller to Idle once the results view or
// error notice has been closed.
func (c *Controller) Dismiss() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == OpeningResults || c.state == ReportingError {
		c.state = Idle
	}
}

// Dispose cancels any active poll. Later triggers fail with ErrDisposed.
func (c *Controller) Dispose() {
	c.mu.Lock()
	c.disposed = true
	h := c.handle
	c.handle = nil
	c.jobID = ""
	c.state = Idle
	c.mu.Unlock()

	if h != nil {
		h.Cancel()
	}
	c.cancel()
}
