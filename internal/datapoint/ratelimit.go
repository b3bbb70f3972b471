package datapoint

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Limiter guards outbound datapoint commands with two process-wide checks:
// a token-bucket quota over a rolling window, and a minimum spacing between
// consecutive commands. Both model a shared radio budget, so a single
// Limiter is shared by all devices.
//
// Quota exhaustion fails fast (callers retry later); spacing shortfall
// sleeps until the gap has elapsed. The dispatch timestamp is recorded
// only when a command is actually admitted, so a burst of rejected calls
// never blocks legitimate future calls.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Limiter struct {
	mu sync.Mutex

	quota      int
	window     time.Duration
	minSpacing time.Duration

	// sent holds the admission times still inside the rolling window.
	sent []time.Time

	// lastDispatch is the admission time of the most recent command.
	lastDispatch time.Time

	// now is replaceable for tests.
	now func() time.Time
}

// LimiterOptions configures a Limiter.
type LimiterOptions struct {
	// Quota is the number of commands admitted per rolling window.
	Quota int

	// Window is the rolling quota window.
	Window time.Duration

	// MinSpacing is the minimum gap between consecutive commands.
	MinSpacing time.Duration
}

// Default dispatch guard settings, matching the radio budget of a typical
// Tuya mesh gateway.
const (
	DefaultQuota      = 20
	DefaultWindow     = 10 * time.Second
	DefaultMinSpacing = 100 * time.Millisecond
)

// NewLimiter creates a Limiter. Zero Quota and Window fall back to
// defaults; a zero MinSpacing disables the spacing guard.
func NewLimiter(opts LimiterOptions) *Limiter {
	if opts.Quota <= 0 {
		opts.Quota = DefaultQuota
	}
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.MinSpacing < 0 {
		opts.MinSpacing = DefaultMinSpacing
	}

	return &Limiter{
		quota:      opts.Quota,
		window:     opts.Window,
		minSpacing: opts.MinSpacing,
		now:        time.Now,
	}
}

// Acquire admits one outbound command.
//
// If the rolling-window quota is exhausted it returns ErrRateLimited
// immediately. If the minimum spacing since the previous command has not
// elapsed it sleeps for the remainder (interruptible via ctx). On success
// the admission is recorded against both guards.
//
// Parameters:
//   - ctx: Cancels the spacing delay
//
// Returns:
//   - error: ErrRateLimited on quota exhaustion, ctx.Err() on cancellation
func (l *Limiter) Acquire(ctx context.Context) error {
	l.mu.Lock()

	now := l.now()
	l.prune(now)

	if len(l.sent) >= l.quota {
		l.mu.Unlock()
		return fmt.Errorf("%w: %d commands in %v", ErrRateLimited, l.quota, l.window)
	}

	var wait time.Duration
	if !l.lastDispatch.IsZero() {
		if elapsed := now.Sub(l.lastDispatch); elapsed < l.minSpacing {
			wait = l.minSpacing - elapsed
		}
	}
	l.mu.Unlock()

	if wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	l.mu.Lock()
	now = l.now()
	l.prune(now)
	// Re-check after sleeping: another goroutine may have drained the
	// quota while this one waited.
	if len(l.sent) >= l.quota {
		l.mu.Unlock()
		return fmt.Errorf("%w: %d commands in %v", ErrRateLimited, l.quota, l.window)
	}
	l.sent = append(l.sent, now)
	l.lastDispatch = now
	l.mu.Unlock()

	return nil
}

// Pending returns how many admissions are currently inside the window.
func (l *Limiter) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune(l.now())
	return len(l.sent)
}

// prune drops admissions that have left the rolling window.
// Caller must hold l.mu.
func (l *Limiter) prune(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.sent) && !l.sent[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.sent = append(l.sent[:0], l.sent[i:]...)
	}
}
