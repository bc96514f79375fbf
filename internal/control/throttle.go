package control

import (
	"sync"
	"time"
)

// Sender-side rate limits. Other action types are never throttled.
const (
	MouseMoveInterval = 16 * time.Millisecond
	ScrollInterval    = 30 * time.Millisecond
)

// DefaultIntervals returns the per-type rate limits used by callers.
func DefaultIntervals() map[ActionType]time.Duration {
	return map[ActionType]time.Duration{
		ActionMouseMove: MouseMoveInterval,
		ActionScroll:    ScrollInterval,
	}
}

type lane struct {
	last    time.Time
	pending *Action
	timer   *time.Timer
}

// Throttler coalesces high-frequency actions. A throttled type is emitted at
// most once per interval; actions arriving inside the interval replace each
// other and the latest is emitted when the interval ends.
//
// emit is called with the throttler's lock held, so emitted actions keep
// their submission order. It must not call back into the throttler.
type Throttler struct {
	mu        sync.Mutex
	emit      func(Action)
	intervals map[ActionType]time.Duration
	lanes     map[ActionType]*lane
	stopped   bool
}

// NewThrottler creates a throttler that emits through emit. A nil
// intervals map uses DefaultIntervals.
func NewThrottler(intervals map[ActionType]time.Duration, emit func(Action)) *Throttler {
	if intervals == nil {
		intervals = DefaultIntervals()
	}
	return &Throttler{
		emit:      emit,
		intervals: intervals,
		lanes:     make(map[ActionType]*lane),
	}
}

// Submit emits a now or schedules it.
func (t *Throttler) Submit(a Action) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return
	}

	interval, throttled := t.intervals[a.Type]
	if !throttled {
		// A button press carries its own position; a queued move is stale.
		if a.Pointer() {
			t.discard(ActionMouseMove)
		}
		t.emit(a)
		return
	}

	l := t.lanes[a.Type]
	if l == nil {
		l = &lane{}
		t.lanes[a.Type] = l
	}

	now := time.Now()
	elapsed := now.Sub(l.last)
	if l.last.IsZero() || (elapsed >= interval && l.timer == nil) {
		l.last = now
		t.emit(a)
		return
	}

	l.pending = &a
	if l.timer == nil {
		l.timer = time.AfterFunc(interval-elapsed, func() { t.flush(a.Type) })
	}
}

func (t *Throttler) flush(typ ActionType) {
	t.mu.Lock()
	defer t.mu.Unlock()

	l := t.lanes[typ]
	if l == nil {
		return
	}
	l.timer = nil
	if t.stopped || l.pending == nil {
		return
	}

	a := *l.pending
	l.pending = nil
	l.last = time.Now()
	t.emit(a)
}

func (t *Throttler) discard(typ ActionType) {
	if l := t.lanes[typ]; l != nil {
		l.pending = nil
	}
}

// Stop cancels pending trailing actions. Later submissions are dropped.
func (t *Throttler) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopped = true
	for _, l := range t.lanes {
		if l.timer != nil {
			l.timer.Stop()
			l.timer = nil
		}
		l.pending = nil
	}
}
