// Package quota implements a sliding-window rate limiter for the image
// generation API: requests per minute, requests per day and tokens per minute.
package quota

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Limits are the free-tier estimates for the image API.
type Limits struct {
	RequestsPerMinute int
	RequestsPerDay    int
	TokensPerMinute   int
}

// DefaultLimits are conservative free-tier values.
func DefaultLimits() Limits {
	return Limits{RequestsPerMinute: 15, RequestsPerDay: 1500, TokensPerMinute: 32000}
}

const (
	minuteWindow = 60 * time.Second
	dayWindow    = 24 * time.Hour
)

type usage struct {
	at     time.Time
	tokens int
}

// UsageStats reports current window occupancy against the limits.
type UsageStats struct {
	RequestsPerMinute int    `json:"requestsPerMinute"`
	RequestsPerDay    int    `json:"requestsPerDay"`
	TokensPerMinute   int    `json:"tokensPerMinute"`
	Limits            Limits `json:"limits"`
}

// Tracker owns the three usage windows. Entries older than a window's
// duration are evicted before every capacity check, so stale usage never
// counts against a limit. Windows are strictly wall-clock based.
type Tracker struct {
	mu     sync.Mutex
	limits Limits

	minuteReqs []usage
	dayReqs    []usage
	tokens     []usage

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
	log   zerolog.Logger
}

// New constructs a Tracker with the given limits.
func New(limits Limits, log zerolog.Logger) *Tracker {
	return &Tracker{
		limits: limits,
		now:    time.Now,
		sleep:  sleepContext,
		log:    log.With().Str("component", "quota").Logger(),
	}
}

// CanMakeRequest evicts expired entries and checks, in order: request/minute,
// request/day, token/minute capacity. It returns false plus the wait until the
// first blocking constraint clears, or (true, 0).
func (t *Tracker) CanMakeRequest(estimatedTokens int) (bool, time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.evict(now)

	if len(t.minuteReqs) >= t.limits.RequestsPerMinute {
		if wait := t.minuteReqs[0].at.Add(minuteWindow).Sub(now); wait > 0 {
			return false, wait
		}
	}
	if len(t.dayReqs) >= t.limits.RequestsPerDay {
		if wait := t.dayReqs[0].at.Add(dayWindow).Sub(now); wait > 0 {
			return false, wait
		}
	}

	current := 0
	for _, u := range t.tokens {
		current += u.tokens
	}
	if current+estimatedTokens > t.limits.TokensPerMinute {
		// Walk oldest-first until enough tokens would have expired.
		needed := estimatedTokens - (t.limits.TokensPerMinute - current)
		for _, u := range t.tokens {
			needed -= u.tokens
			if needed <= 0 {
				if wait := u.at.Add(minuteWindow).Sub(now); wait > 0 {
					return false, wait
				}
				break
			}
		}
	}

	return true, 0
}

// RecordRequest appends a timestamped entry to all three windows.
func (t *Tracker) RecordRequest(tokensUsed int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	u := usage{at: t.now(), tokens: tokensUsed}
	t.minuteReqs = append(t.minuteReqs, u)
	t.dayReqs = append(t.dayReqs, u)
	t.tokens = append(t.tokens, u)

	t.log.Debug().Int("tokens", tokensUsed).Msg("recorded api usage")
}

// WaitIfNeeded blocks until capacity for estimatedTokens is available or the
// context is canceled. This is the tracker's only suspending operation.
func (t *Tracker) WaitIfNeeded(ctx context.Context, estimatedTokens int) error {
	for {
		ok, wait := t.CanMakeRequest(estimatedTokens)
		if ok {
			return nil
		}
		t.log.Info().Dur("wait", wait).Msg("quota limit reached, waiting")
		if err := t.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// Stats returns current occupancy. Eviction runs first so the numbers reflect
// only live entries.
func (t *Tracker) Stats() UsageStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.evict(t.now())
	tokens := 0
	for _, u := range t.tokens {
		tokens += u.tokens
	}
	return UsageStats{
		RequestsPerMinute: len(t.minuteReqs),
		RequestsPerDay:    len(t.dayReqs),
		TokensPerMinute:   tokens,
		Limits:            t.limits,
	}
}

// evict drops entries older than each window. Callers hold the lock.
func (t *Tracker) evict(now time.Time) {
	t.minuteReqs = evictBefore(t.minuteReqs, now.Add(-minuteWindow))
	t.tokens = evictBefore(t.tokens, now.Add(-minuteWindow))
	t.dayReqs = evictBefore(t.dayReqs, now.Add(-dayWindow))
}

func evictBefore(entries []usage, cutoff time.Time) []usage {
	keep := entries[:0]
	for _, u := range entries {
		if u.at.After(cutoff) {
			keep = append(keep, u)
		}
	}
	return keep
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
