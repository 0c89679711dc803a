package api

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

// limiterIdle is how long an unused per-voter limiter is kept.
const limiterIdle = 10 * time.Minute

// BallotLimiter throttles ballots per voter with a token bucket each.
type BallotLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*voterLimiter
	rate      rate.Limit
	burst     int
	clock     clockwork.Clock
	cleanupAt time.Time
}

type voterLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewBallotLimiter allows perSecond ballots per voter with the given burst.
// A non-positive perSecond disables limiting. clock may be nil.
func NewBallotLimiter(perSecond float64, burst int, clock clockwork.Clock) *BallotLimiter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &BallotLimiter{
		limiters:  make(map[string]*voterLimiter),
		rate:      limit,
		burst:     burst,
		clock:     clock,
		cleanupAt: clock.Now().Add(limiterIdle),
	}
}

// Allow reports whether voter may cast a ballot now.
func (l *BallotLimiter) Allow(voter string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if now.After(l.cleanupAt) {
		l.cleanup(now)
		l.cleanupAt = now.Add(limiterIdle)
	}

	entry, ok := l.limiters[voter]
	if !ok {
		entry = &voterLimiter{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.limiters[voter] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

// cleanup must be called with mu held.
func (l *BallotLimiter) cleanup(now time.Time) {
	cutoff := now.Add(-limiterIdle)
	for voter, entry := range l.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(l.limiters, voter)
		}
	}
}

// Voters returns how many voters are currently tracked.
func (l *BallotLimiter) Voters() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}
