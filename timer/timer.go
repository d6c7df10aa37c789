// Package timer records wall-clock laps for a sequence of benchmark steps.
package timer

import (
	"log/slog"
	"time"
)

// Option configures a Timer.
type Option func(*Timer)

// WithClock replaces time.Now as the timer's clock source.
func WithClock(now func() time.Time) Option {
	return func(t *Timer) {
		t.now = now
	}
}

// WithLogger sets the logger used by Stop.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Timer) {
		t.logger = logger
	}
}

// Timer measures elapsed time between successive laps. It is not safe
// for concurrent use.
type Timer struct {
	now    func() time.Time
	logger *slog.Logger

	start   time.Time
	last    time.Time
	laps    []time.Duration
	total   time.Duration
	running bool
}

// New creates a stopped Timer.
func New(opts ...Option) *Timer {
	t := &Timer{
		now:    time.Now,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// Start discards previous laps and begins timing.
func (t *Timer) Start() {
	t.start = t.now()
	t.last = t.start
	t.laps = nil
	t.total = 0
	t.running = true
}

// Lap appends the time elapsed since the previous lap, or since Start
// for the first lap, and returns it.
func (t *Timer) Lap() time.Duration {
	now := t.now()
	if !t.running {
		t.Start()
		t.start, t.last = now, now
	}

	d := now.Sub(t.last)
	t.last = now
	t.laps = append(t.laps, d)

	return d
}

// Stop ends timing, logs the total under label and returns it.
// Calling Stop on a stopped timer returns the previous total.
func (t *Timer) Stop(label string) time.Duration {
	if t.running {
		t.total = t.now().Sub(t.start)
		t.running = false
	}

	t.logger.Info("timer stopped",
		slog.String("label", label),
		slog.Duration("total", t.total),
		slog.Int("laps", len(t.laps)),
	)

	return t.total
}

// Record returns a copy of the laps and total recorded so far. While the
// timer is running the total is the time elapsed since Start.
func (t *Timer) Record() Record {
	total := t.total
	if t.running {
		total = t.now().Sub(t.start)
	}

	laps := make([]time.Duration, len(t.laps))
	copy(laps, t.laps)

	return Record{Laps: laps, Total: total}
}
