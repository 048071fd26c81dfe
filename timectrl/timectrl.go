package timectrl

import (
	"sync"
	"time"
)

// SimClock is the read side of the playback clock. Consumers that only need
// to know "where are we in the run" depend on this instead of the controller.
type SimClock interface {
	// Now returns the current simulation time.
	Now() time.Time
	// Elapsed returns how far playback has advanced past the start time.
	Elapsed() time.Duration
}

// Mode describes how the TimeController advances simulation time.
type Mode int

const (
	// RealTime advances once per wall-clock Tick.
	RealTime Mode = iota
	// Accelerated advances as quickly as the loop can run while still stepping by Tick.
	Accelerated
)

// String returns the lower-case mode name.
func (m Mode) String() string {
	switch m {
	case Accelerated:
		return "accelerated"
	default:
		return "realtime"
	}
}

// ParseMode maps "accelerated" to Accelerated and anything else to RealTime.
func ParseMode(s string) Mode {
	if s == "accelerated" {
		return Accelerated
	}
	return RealTime
}

const defaultTick = time.Second

// TimeController drives playback time over a simulated run and notifies
// registered listeners on every step.
type TimeController struct {
	mu        sync.RWMutex
	StartTime time.Time
	Tick      time.Duration
	Mode      Mode
	// Rate scales simulation time per step. Values <= 0 mean 1.
	Rate float64

	currentTime time.Time
	listeners   []func(time.Time)

	stop    chan struct{}
	running bool
}

// NewTimeController constructs a controller positioned at start.
func NewTimeController(start time.Time, tick time.Duration, mode Mode) *TimeController {
	if tick <= 0 {
		tick = defaultTick
	}
	return &TimeController{
		StartTime:   start,
		Tick:        tick,
		Mode:        mode,
		Rate:        1,
		currentTime: start,
	}
}

// Now returns the current simulation time. Implements SimClock.
func (tc *TimeController) Now() time.Time {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.currentTime
}

// Elapsed returns Now() - StartTime. Implements SimClock.
func (tc *TimeController) Elapsed() time.Duration {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.currentTime.Sub(tc.StartTime)
}

// SetTime seeks the clock. A running loop continues from the new time.
func (tc *TimeController) SetTime(t time.Time) {
	tc.mu.Lock()
	tc.currentTime = t
	tc.mu.Unlock()
}

// Reset seeks back to StartTime.
func (tc *TimeController) Reset() {
	tc.SetTime(tc.StartTime)
}

// SetRate changes the playback multiplier.
func (tc *TimeController) SetRate(rate float64) {
	tc.mu.Lock()
	tc.Rate = rate
	tc.mu.Unlock()
}

// SetMode switches between RealTime and Accelerated. It takes effect on
// the next Start.
func (tc *TimeController) SetMode(m Mode) {
	tc.mu.Lock()
	tc.Mode = m
	tc.mu.Unlock()
}

// Settings returns the mode and rate under lock.
func (tc *TimeController) Settings() (Mode, float64) {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.Mode, tc.Rate
}

// Running reports whether a Start loop is active.
func (tc *TimeController) Running() bool {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.running
}

// AddListener registers a callback invoked on every tick.
func (tc *TimeController) AddListener(fn func(time.Time)) {
	tc.mu.Lock()
	tc.listeners = append(tc.listeners, fn)
	tc.mu.Unlock()
}

// Start runs the controller for the specified simulation duration in a
// separate goroutine, beginning at the current time. A duration <= 0 runs
// until Stop. It returns a channel that is closed when the loop exits. If a
// loop is already running the returned channel is closed immediately.
func (tc *TimeController) Start(duration time.Duration) <-chan struct{} {
	done := make(chan struct{})

	tc.mu.Lock()
	if tc.running {
		tc.mu.Unlock()
		close(done)
		return done
	}
	stop := make(chan struct{})
	tc.stop = stop
	tc.running = true
	step := tc.stepLocked()
	mode := tc.Mode
	tick := tc.Tick
	tc.mu.Unlock()

	go func() {
		defer close(done)
		defer func() {
			tc.mu.Lock()
			tc.running = false
			if tc.stop == stop {
				tc.stop = nil
			}
			tc.mu.Unlock()
		}()

		var tickC <-chan time.Time
		if mode == RealTime {
			ticker := time.NewTicker(tick)
			defer ticker.Stop()
			tickC = ticker.C
		}

		elapsed := time.Duration(0)
		for {
			if duration > 0 && elapsed >= duration {
				return
			}

			if tickC != nil {
				select {
				case <-stop:
					return
				case <-tickC:
				}
			} else {
				select {
				case <-stop:
					return
				default:
				}
			}

			tc.mu.Lock()
			simTime := tc.currentTime.Add(step)
			tc.currentTime = simTime
			listeners := append([]func(time.Time){}, tc.listeners...)
			tc.mu.Unlock()

			elapsed += step
			for _, fn := range listeners {
				fn(simTime)
			}
		}
	}()
	return done
}

// Stop ends a running loop. It is a no-op when nothing is running.
func (tc *TimeController) Stop() {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if tc.stop != nil {
		close(tc.stop)
		tc.stop = nil
	}
}

func (tc *TimeController) stepLocked() time.Duration {
	rate := tc.Rate
	if rate <= 0 {
		rate = 1
	}
	step := time.Duration(float64(tc.Tick) * rate)
	if step <= 0 {
		step = tc.Tick
	}
	return step
}
