package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/juju/clock"
)

const (
	PolicyDefault = "default"
	PolicyAuth    = "auth"
	PolicyStrict  = "strict"
)

const defaultSweepInterval = time.Minute

// Policy is a named fixed-window configuration.
type Policy struct {
	Name        string
	Window      time.Duration
	MaxRequests int
}

// DefaultPolicies returns the built-in policy table.
func DefaultPolicies() map[string]Policy {
	return map[string]Policy{
		PolicyDefault: {Name: PolicyDefault, Window: 60 * time.Second, MaxRequests: 100},
		PolicyAuth:    {Name: PolicyAuth, Window: 15 * time.Minute, MaxRequests: 10},
		PolicyStrict:  {Name: PolicyStrict, Window: 60 * time.Second, MaxRequests: 5},
	}
}

// Entry is the counter state of one policy:identifier pair.
type Entry struct {
	Count   int
	ResetAt time.Time
}

// Store keeps window counters. Hit must increment and return the counter
// for key atomically, replacing the window when now >= ResetAt.
type Store interface {
	Hit(ctx context.Context, key string, window time.Duration, now time.Time) (Entry, error)
	Sweep(ctx context.Context, now time.Time) (int, error)
}

// Result is the decision for a single request.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetIn   time.Duration
}

// ResetInMs returns ResetIn in whole milliseconds.
func (r Result) ResetInMs() int64 {
	return r.ResetIn.Milliseconds()
}

// Limiter is a fixed-window request counter keyed by (policy, client).
// Windows are replaced, not extended, so a client can burst up to
// 2×MaxRequests across a window boundary.
type Limiter struct {
	store    Store
	policies map[string]Policy
	clock    clock.Clock

	mu      sync.Mutex
	stop    chan struct{}
	stopped chan struct{}
}

// New creates a limiter. A nil clock means wall clock time.
func New(store Store, policies map[string]Policy, clk clock.Clock) *Limiter {
	if clk == nil {
		clk = clock.WallClock
	}
	if len(policies) == 0 {
		policies = DefaultPolicies()
	}
	return &Limiter{
		store:    store,
		policies: policies,
		clock:    clk,
	}
}

// Policy returns the named policy.
func (l *Limiter) Policy(name string) (Policy, bool) {
	p, ok := l.policies[name]
	return p, ok
}

// Check counts one request for identifier under the named policy.
func (l *Limiter) Check(ctx context.Context, identifier, policy string) (Result, error) {
	p, ok := l.policies[policy]
	if !ok {
		return Result{}, fmt.Errorf("unknown rate limit policy %q", policy)
	}

	now := l.clock.Now()
	entry, err := l.store.Hit(ctx, p.Name+":"+identifier, p.Window, now)
	if err != nil {
		return Result{}, err
	}

	resetIn := entry.ResetAt.Sub(now)
	if resetIn < 0 {
		resetIn = 0
	}
	res := Result{
		Allowed: entry.Count <= p.MaxRequests,
		Limit:   p.MaxRequests,
		ResetIn: resetIn,
	}
	if res.Allowed {
		res.Remaining = p.MaxRequests - entry.Count
	}
	return res, nil
}

// Sweep deletes expired windows from the store.
func (l *Limiter) Sweep(ctx context.Context) (int, error) {
	return l.store.Sweep(ctx, l.clock.Now())
}

// Start runs the background sweeper until Stop is called.
func (l *Limiter) Start(interval time.Duration) {
	if interval <= 0 {
		interval = defaultSweepInterval
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stop != nil {
		return
	}
	l.stop = make(chan struct{})
	l.stopped = make(chan struct{})

	go l.sweepLoop(interval, l.stop, l.stopped)
}

// Stop halts the sweeper and waits for it to exit.
func (l *Limiter) Stop() {
	l.mu.Lock()
	stop, stopped := l.stop, l.stopped
	l.stop, l.stopped = nil, nil
	l.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-stopped
}

func (l *Limiter) sweepLoop(interval time.Duration, stop <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)
	for {
		select {
		case <-stop:
			return
		case <-l.clock.After(interval):
			n, err := l.Sweep(context.Background())
			if err != nil {
				log.Warnf("[RateLimit] sweep failed: %v", err)
				continue
			}
			if n > 0 {
				log.Debugf("[RateLimit] swept %d expired windows", n)
			}
		}
	}
}
