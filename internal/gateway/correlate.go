package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultWaitTimeout is how long a handler waits for a correlated modal
// submission before abandoning the wait.
const DefaultWaitTimeout = 5 * time.Minute

// defaultSweepSchedule runs the expiry sweep every minute.
const defaultSweepSchedule = "* * * * *"

// ErrWaitExpired is returned by Wait when the deadline passes without a
// matching submission. Callers abandon the interaction silently.
var ErrWaitExpired = errors.New("gateway: wait expired")

// ErrWaitPending is returned when a wait is already registered for the
// same correlation ID and user.
var ErrWaitPending = errors.New("gateway: wait already pending")

// cronParser uses standard 5-field cron expressions.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

type waitKey struct {
	CorrelationID string
	UserID        string
}

type pendingWait struct {
	deadline time.Time
	ch       chan *Event
}

// Correlator is the pending-request table behind "present a modal and
// await its submission". Each entry is keyed by (correlation ID,
// initiating user) and carries a deadline. Deliver resolves an entry with
// the matching submission; a background sweep resolves expired entries as
// cancelled.
type Correlator struct {
	sweep cron.Schedule
	now   func() time.Time

	mu      sync.Mutex
	pending map[waitKey]*pendingWait
}

// CorrelatorOpts holds parameters for creating a Correlator.
type CorrelatorOpts struct {
	SweepSchedule string // 5-field cron expression; defaults to every minute
}

// NewCorrelator creates a Correlator.
func NewCorrelator(opts CorrelatorOpts) (*Correlator, error) {
	expr := opts.SweepSchedule
	if expr == "" {
		expr = defaultSweepSchedule
	}
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("gateway: correlator: parse sweep schedule %q: %w", expr, err)
	}
	return &Correlator{
		sweep:   sched,
		now:     time.Now,
		pending: make(map[waitKey]*pendingWait),
	}, nil
}

// Wait blocks until a modal submission with the given correlation ID from
// the given user is delivered, the timeout passes (ErrWaitExpired), or ctx
// is cancelled. timeout <= 0 uses DefaultWaitTimeout.
func (c *Correlator) Wait(ctx context.Context, correlationID, userID string, timeout time.Duration) (*Event, error) {
	if timeout <= 0 {
		timeout = DefaultWaitTimeout
	}
	key := waitKey{CorrelationID: correlationID, UserID: userID}
	w := &pendingWait{
		deadline: c.now().Add(timeout),
		ch:       make(chan *Event, 1),
	}

	c.mu.Lock()
	if _, exists := c.pending[key]; exists {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %s for user %s", ErrWaitPending, correlationID, userID)
	}
	c.pending[key] = w
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		if c.pending[key] == w {
			delete(c.pending, key)
		}
		c.mu.Unlock()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ev, ok := <-w.ch:
		if !ok {
			// Swept as expired.
			return nil, ErrWaitExpired
		}
		return ev, nil
	case <-timer.C:
		return nil, ErrWaitExpired
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Deliver offers a modal submission to the table. It consumes and resolves
// the pending wait keyed by (ev.Key, ev.UserID) if one exists and has not
// expired. Returns whether the event was consumed.
func (c *Correlator) Deliver(ev *Event) bool {
	key := waitKey{CorrelationID: ev.Key, UserID: ev.UserID}

	c.mu.Lock()
	defer c.mu.Unlock()

	w, ok := c.pending[key]
	if !ok {
		return false
	}
	if c.now().After(w.deadline) {
		close(w.ch)
		delete(c.pending, key)
		return false
	}
	w.ch <- ev
	delete(c.pending, key)
	return true
}

// Pending returns the number of outstanding waits.
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Sweep resolves all expired entries as cancelled and returns how many
// were removed. Waiters see ErrWaitExpired.
func (c *Correlator) Sweep() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for key, w := range c.pending {
		if now.After(w.deadline) {
			close(w.ch)
			delete(c.pending, key)
			n++
		}
	}
	return n
}

// Run sweeps on the configured cron schedule until ctx is cancelled. The
// per-wait timers already resolve most expiries; the sweep is the backstop
// that keeps the table inspectable and bounded.
func (c *Correlator) Run(ctx context.Context) {
	for {
		next := c.sweep.Next(c.now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			c.Sweep()
		}
	}
}
