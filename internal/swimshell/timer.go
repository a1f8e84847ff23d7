package swimshell

import (
	"sync"
	"time"
)

// Cancellable is an opaque handle to a scheduled one-shot callback.
// Cancel is idempotent: calling it more than once, or after the
// callback has already fired, is a no-op.
type Cancellable interface {
	Cancel()
}

// realClock schedules callbacks with time.AfterFunc. It is the
// production Clock; tests supply a fake that fires deterministically.
type realClock struct{}

// NewClock returns the real wall-clock Clock used by cmd/swimd.
func NewClock() Clock {
	return realClock{}
}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Cancellable {
	return &timerHandle{t: time.AfterFunc(d, f)}
}

type timerHandle struct {
	mu sync.Mutex
	t  *time.Timer
}

func (h *timerHandle) Cancel() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.t == nil {
		return
	}
	h.t.Stop()
	h.t = nil
}
