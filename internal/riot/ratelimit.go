package riot

import (
	"context"
	"sync"
	"time"
)

// limiter is a two-window sliding rate limiter matching Riot's
// per-second and per-2-minute application limits.
type limiter struct {
	perSecond int
	per2Min   int

	mu          sync.Mutex
	shortWindow []time.Time // Requests in last second
	longWindow  []time.Time // Requests in last 2 minutes
}

func newLimiter(perSecond, per2Min int) *limiter {
	return &limiter{
		perSecond:   perSecond,
		per2Min:     per2Min,
		shortWindow: make([]time.Time, 0, perSecond),
		longWindow:  make([]time.Time, 0, per2Min),
	}
}

// wait blocks until another request may be made or ctx is done
func (l *limiter) wait(ctx context.Context) error {
	for {
		waitTime := l.reserve(time.Now())
		if waitTime == 0 {
			return nil
		}

		timer := time.NewTimer(waitTime)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			// Re-check after waiting
		}
	}
}

// reserve records a request at now and returns 0, or returns how long to
// wait before trying again.
func (l *limiter) reserve(now time.Time) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.shortWindow = prune(l.shortWindow, now.Add(-time.Second))
	l.longWindow = prune(l.longWindow, now.Add(-2*time.Minute))

	if len(l.shortWindow) >= l.perSecond {
		return l.shortWindow[0].Add(time.Second).Sub(now) + 100*time.Millisecond
	}
	if len(l.longWindow) >= l.per2Min {
		return l.longWindow[0].Add(2*time.Minute).Sub(now) + 100*time.Millisecond
	}

	l.shortWindow = append(l.shortWindow, now)
	l.longWindow = append(l.longWindow, now)
	return 0
}

// prune drops entries at or before cutoff. Entries are in time order.
func prune(window []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(window) && !window[i].After(cutoff) {
		i++
	}
	return append(window[:0], window[i:]...)
}
