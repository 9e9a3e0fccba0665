// Package costguard enforces the per-request budget shared by every resolver:
// a maximum number of backend fetches and a wall-clock deadline.
package costguard

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// Limits configures one request's budget. Zero values mean unbounded.
type Limits struct {
	MaxFetches int
	TimeLimit  time.Duration
}

// Kind distinguishes the budget that was exceeded.
type Kind string

const (
	KindQueryLimit Kind = "query_limit"
	KindTimeLimit  Kind = "time_limit"
)

// LimitError reports a budget breach for one backend request.
type LimitError struct {
	Kind      Kind
	Count     int
	Max       int
	Elapsed   time.Duration
	Limit     time.Duration
	Signature string
}

func (e *LimitError) Error() string {
	if e.Kind == KindQueryLimit {
		return fmt.Sprintf("Query limit exceeded: %d > %d - %s", e.Count, e.Max, e.Signature)
	}
	return fmt.Sprintf("Time limit exceeded: %s > %s - %s", formatMillis(e.Elapsed), formatMillis(e.Limit), e.Signature)
}

func formatMillis(d time.Duration) string {
	ms := float64(d) / float64(time.Millisecond)
	if ms == float64(int64(ms)) {
		return fmt.Sprintf("%dms", int64(ms))
	}
	return fmt.Sprintf("%.2fms", ms)
}

// Guard is created once per request and shared by all resolvers of that
// request. All methods are safe for concurrent use.
type Guard struct {
	limits  Limits
	now     func() time.Time
	start   time.Time
	fetches atomic.Int64
	breach  atomic.Pointer[LimitError]
}

// Option customizes a Guard.
type Option func(*Guard)

// WithClock replaces time.Now. The clock must be monotonic for elapsed time
// to be meaningful; time.Now readings carry a monotonic component.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) {
		g.now = now
	}
}

// New starts a budget at the current instant.
func New(limits Limits, opts ...Option) *Guard {
	g := &Guard{limits: limits, now: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	g.start = g.now()
	return g
}

// Acquire claims one fetch for the request identified by signature. It fails
// when the fetch would exceed the fetch limit, when the deadline has passed,
// or when an earlier fetch already breached the budget. The first breach is
// recorded; fetches already in flight are unaffected.
func (g *Guard) Acquire(signature string) error {
	if err := g.CheckDeadline(signature); err != nil {
		return err
	}
	if prior := g.breach.Load(); prior != nil {
		return g.refuse(signature)
	}
	n := int(g.fetches.Add(1))
	if g.limits.MaxFetches > 0 && n > g.limits.MaxFetches {
		err := &LimitError{Kind: KindQueryLimit, Count: n, Max: g.limits.MaxFetches, Signature: signature}
		g.breach.CompareAndSwap(nil, err)
		return err
	}
	return nil
}

// CheckDeadline fails once the elapsed time exceeds the time limit.
func (g *Guard) CheckDeadline(signature string) error {
	if g.limits.TimeLimit <= 0 {
		return nil
	}
	elapsed := g.now().Sub(g.start)
	if elapsed <= g.limits.TimeLimit {
		return nil
	}
	err := &LimitError{Kind: KindTimeLimit, Elapsed: elapsed, Limit: g.limits.TimeLimit, Signature: signature}
	g.breach.CompareAndSwap(nil, err)
	return err
}

// refuse reports a fetch refused after an earlier breach, naming the budget
// that was exceeded and this fetch's signature.
func (g *Guard) refuse(signature string) error {
	prior := g.breach.Load()
	err := *prior
	err.Signature = signature
	if err.Kind == KindQueryLimit {
		err.Count = int(g.fetches.Add(1))
	}
	return &err
}

// Fetches returns the number of fetches claimed so far.
func (g *Guard) Fetches() int {
	return int(g.fetches.Load())
}

// Breached returns the first recorded breach, or nil.
func (g *Guard) Breached() *LimitError {
	return g.breach.Load()
}

type contextKey struct{}

// WithGuard stores g in ctx.
func WithGuard(ctx context.Context, g *Guard) context.Context {
	return context.WithValue(ctx, contextKey{}, g)
}

// FromContext returns the request's Guard, or an unbounded one when absent.
func FromContext(ctx context.Context) *Guard {
	if g, ok := ctx.Value(contextKey{}).(*Guard); ok && g != nil {
		return g
	}
	return New(Limits{})
}
