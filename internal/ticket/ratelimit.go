package ticket

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// CreationWindow is the minimum gap between ticket creations per user.
const CreationWindow = 60 * time.Second

// defaultPruneSchedule drops stale rate-limit entries every five minutes.
const defaultPruneSchedule = "*/5 * * * *"

// rateCronParser accepts standard 5-field cron expressions.
var rateCronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// RateLimiter gates ticket creation to one per user per window. It is
// process-wide, in-memory state: created at startup, lost on restart.
// That is acceptable because creation is inherently re-triable.
//
// Check and record are one atomic step (Reserve), so a burst of
// near-simultaneous attempts by the same user serializes to at most one
// acceptance per window.
type RateLimiter struct {
	window time.Duration
	prune  cron.Schedule
	now    func() time.Time

	mu   sync.Mutex
	last map[string]time.Time
}

// RateLimiterOpts holds parameters for creating a RateLimiter.
type RateLimiterOpts struct {
	Window        time.Duration // defaults to CreationWindow
	PruneSchedule string        // 5-field cron expression; defaults to every 5 minutes
}

// NewRateLimiter creates a RateLimiter.
func NewRateLimiter(opts RateLimiterOpts) (*RateLimiter, error) {
	window := opts.Window
	if window <= 0 {
		window = CreationWindow
	}
	expr := opts.PruneSchedule
	if expr == "" {
		expr = defaultPruneSchedule
	}
	sched, err := rateCronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("ticket: rate limiter: parse prune schedule %q: %w", expr, err)
	}
	return &RateLimiter{
		window: window,
		prune:  sched,
		now:    time.Now,
		last:   make(map[string]time.Time),
	}, nil
}

// Reserve checks the user's window and, when clear, records the
// acceptance in the same step. On rejection it returns how long the user
// must wait (0 < retryAfter <= window).
func (rl *RateLimiter) Reserve(userID string) (time.Duration, bool) {
	now := rl.now()
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if last, ok := rl.last[userID]; ok {
		if elapsed := now.Sub(last); elapsed < rl.window {
			return rl.window - elapsed, false
		}
	}
	rl.last[userID] = now
	return 0, true
}

// Release refunds a reservation when creation fails before anything was
// persisted (validation, DM probe, insert failure), so the failed attempt
// does not burn the user's window.
func (rl *RateLimiter) Release(userID string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.last, userID)
}

// Prune drops entries whose window has fully elapsed and returns how many
// were removed.
func (rl *RateLimiter) Prune() int {
	now := rl.now()
	rl.mu.Lock()
	defer rl.mu.Unlock()

	n := 0
	for user, last := range rl.last {
		if now.Sub(last) >= rl.window {
			delete(rl.last, user)
			n++
		}
	}
	return n
}

// Run prunes on the configured cron schedule until ctx is cancelled.
func (rl *RateLimiter) Run(ctx context.Context) {
	for {
		next := rl.prune.Next(rl.now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			rl.Prune()
		}
	}
}
