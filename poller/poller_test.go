package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type status struct {
	seq  int
	done bool
}

// scripted returns a Fetch that walks through results, repeating the last one.
func scripted(results ...status) func(context.Context, string) (status, error) {
	var n atomic.Int32
	return func(ctx context.Context, id string) (status, error) {
		i := int(n.Add(1)) - 1
		if i >= len(results) {
			i = len(results) - 1
		}
		return results[i], nil
	}
}

func waitDone(t *testing.T, h *Handle) {
	t.Helper()
	select {
	case <-h.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("handle did not stop")
	}
}

func TestStopsAfterTerminal(t *testing.T) {
	var mu sync.Mutex
	var got []int
	h := Start(context.Background(), Spec[status]{
		JobID:      "a1",
		Interval:   5 * time.Millisecond,
		Fetch:      scripted(status{seq: 1}, status{seq: 2}, status{seq: 3, done: true}),
		IsTerminal: func(s status) bool { return s.done },
		OnUpdate: func(s status) {
			mu.Lock()
			got = append(got, s.seq)
			mu.Unlock()
		},
	})
	waitDone(t, h)
	if h.Active() {
		t.Error("Active should be false after terminal")
	}

	time.Sleep(30 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if len(got) == 0 || got[len(got)-1] != 3 {
		t.Fatalf("updates = %v, want last to be terminal 3", got)
	}
	terminals := 0
	for _, s := range got {
		if s == 3 {
			terminals++
		}
	}
	if terminals != 1 {
		t.Errorf("terminal delivered %d times, want 1", terminals)
	}
}

func TestFirstFetchWaitsOneInterval(t *testing.T) {
	var fetched atomic.Bool
	h := Start(context.Background(), Spec[status]{
		Interval: 200 * time.Millisecond,
		Fetch: func(context.Context, string) (status, error) {
			fetched.Store(true)
			return status{}, nil
		},
		IsTerminal: func(status) bool { return false },
		OnUpdate:   func(status) {},
	})
	defer h.Cancel()
	time.Sleep(50 * time.Millisecond)
	if fetched.Load() {
		t.Error("fetch fired before the first interval elapsed")
	}
}

func TestFailuresKeepPolling(t *testing.T) {
	var calls atomic.Int32
	updated := make(chan status, 1)
	h := Start(context.Background(), Spec[status]{
		Interval: 5 * time.Millisecond,
		Fetch: func(context.Context, string) (status, error) {
			if calls.Add(1) < 3 {
				return status{}, errors.New("connection refused")
			}
			return status{seq: 9, done: true}, nil
		},
		IsTerminal: func(s status) bool { return s.done },
		OnUpdate:   func(s status) { updated <- s },
	})
	select {
	case s := <-updated:
		if s.seq != 9 {
			t.Errorf("seq = %d", s.seq)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no update after transient failures")
	}
	waitDone(t, h)
}

func TestCancelDiscardsInFlight(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 16)
	var updates atomic.Int32
	h := Start(context.Background(), Spec[status]{
		Interval: 5 * time.Millisecond,
		Fetch: func(ctx context.Context, _ string) (status, error) {
			started <- struct{}{}
			<-release
			return status{done: true}, nil
		},
		IsTerminal: func(s status) bool { return s.done },
		OnUpdate:   func(status) { updates.Add(1) },
	})

	<-started
	h.Cancel()
	close(release)
	time.Sleep(30 * time.Millisecond)

	if n := updates.Load(); n != 0 {
		t.Errorf("got %d updates after Cancel, want 0", n)
	}
	if h.Active() {
		t.Error("Active after Cancel")
	}
}

func TestCancelCancelsFetchContext(t *testing.T) {
	ctxErr := make(chan error, 1)
	h := Start(context.Background(), Spec[status]{
		Interval: 5 * time.Millisecond,
		Fetch: func(ctx context.Context, _ string) (status, error) {
			<-ctx.Done()
			select {
			case ctxErr <- ctx.Err():
			default:
			}
			return status{}, ctx.Err()
		},
		IsTerminal: func(status) bool { return false },
		OnUpdate:   func(status) {},
	})
	time.Sleep(20 * time.Millisecond)
	h.Cancel()
	select {
	case err := <-ctxErr:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("ctx err = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("fetch context was not cancelled")
	}
}

func TestCancelIdempotentAndReentrant(t *testing.T) {
	var h *Handle
	var updates atomic.Int32
	ready := make(chan struct{})
	h = Start(context.Background(), Spec[status]{
		Interval:   5 * time.Millisecond,
		Fetch:      scripted(status{}),
		IsTerminal: func(status) bool { return false },
		OnUpdate: func(status) {
			<-ready
			updates.Add(1)
			h.Cancel()
			h.Cancel()
		},
	})
	close(ready)
	waitDone(t, h)
	h.Cancel()

	time.Sleep(30 * time.Millisecond)
	if n := updates.Load(); n != 1 {
		t.Errorf("updates = %d, want 1", n)
	}
}

func TestParentContextStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := Start(ctx, Spec[status]{
		Interval:   5 * time.Millisecond,
		Fetch:      scripted(status{}),
		IsTerminal: func(status) bool { return false },
		OnUpdate:   func(status) {},
	})
	cancel()
	waitDone(t, h)
}

func TestMaxFailuresGivesUp(t *testing.T) {
	transport := errors.New("dial tcp: refused")
	gaveUp := make(chan error, 1)
	h := Start(context.Background(), Spec[status]{
		Interval:    5 * time.Millisecond,
		MaxFailures: 3,
		Fetch: func(context.Context, string) (status, error) {
			return status{}, transport
		},
		IsTerminal: func(status) bool { return false },
		OnUpdate:   func(status) { t.Error("unexpected update") },
		OnGiveUp:   func(err error) { gaveUp <- err },
	})
	select {
	case err := <-gaveUp:
		if !errors.Is(err, ErrTooManyFailures) || !errors.Is(err, transport) {
			t.Errorf("give-up err = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("never gave up")
	}
	waitDone(t, h)
}

func TestMaxDurationGivesUp(t *testing.T) {
	gaveUp := make(chan error, 1)
	h := Start(context.Background(), Spec[status]{
		Interval:    5 * time.Millisecond,
		MaxDuration: 40 * time.Millisecond,
		Fetch:       scripted(status{}),
		IsTerminal:  func(status) bool { return false },
		OnUpdate:    func(status) {},
		OnGiveUp:    func(err error) { gaveUp <- err },
	})
	select {
	case err := <-gaveUp:
		if !errors.Is(err, ErrTimedOut) {
			t.Errorf("give-up err = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("never timed out")
	}
	waitDone(t, h)
	select {
	case err := <-gaveUp:
		t.Errorf("OnGiveUp called twice: %v", err)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestDefaultInterval(t *testing.T) {
	h := Start(context.Background(), Spec[status]{
		Fetch:      scripted(status{}),
		IsTerminal: func(status) bool { return false },
		OnUpdate:   func(status) {},
	})
	defer h.Cancel()
	if !h.Active() {
		t.Error("new handle should be active")
	}
}
