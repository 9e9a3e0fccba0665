package costguard

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestAcquire_QueryLimit(t *testing.T) {
	g := New(Limits{MaxFetches: 2})

	require.NoError(t, g.Acquire("/test/users.json?_size=10"))
	require.NoError(t, g.Acquire("/test/repos.json?_size=10&owner=1"))

	err := g.Acquire("/test/repos.json?_size=10&owner=2")
	require.Error(t, err)
	assert.Equal(t, "Query limit exceeded: 3 > 2 - /test/repos.json?_size=10&owner=2", err.Error())

	var limitErr *LimitError
	require.True(t, errors.As(err, &limitErr))
	assert.Equal(t, KindQueryLimit, limitErr.Kind)
	assert.Same(t, limitErr, g.Breached())
}

func TestAcquire_RefusesAfterBreach(t *testing.T) {
	g := New(Limits{MaxFetches: 1})
	require.NoError(t, g.Acquire("a"))
	require.Error(t, g.Acquire("b"))

	err := g.Acquire("c")
	require.Error(t, err)
	assert.Equal(t, "Query limit exceeded: 3 > 1 - c", err.Error())
	assert.Equal(t, "b", g.Breached().Signature)
}

func TestAcquire_Unbounded(t *testing.T) {
	g := New(Limits{})
	for i := 0; i < 1000; i++ {
		require.NoError(t, g.Acquire("x"))
	}
	assert.Equal(t, 1000, g.Fetches())
	assert.Nil(t, g.Breached())
}

func TestAcquire_ConcurrentFirstCrosserWins(t *testing.T) {
	g := New(Limits{MaxFetches: 50})

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if g.Acquire("x") == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, succeeded)
	require.NotNil(t, g.Breached())
	assert.GreaterOrEqual(t, g.Breached().Count, 51)
}

func TestCheckDeadline(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	g := New(Limits{TimeLimit: time.Millisecond}, WithClock(clock.Now))

	require.NoError(t, g.Acquire("/test/repos.json?_size=10&_search=dogspotter"))

	clock.Advance(3 * time.Millisecond)
	err := g.CheckDeadline("/test/repos.json?_size=10&_search=dogspotter")
	require.Error(t, err)
	assert.Equal(t, "Time limit exceeded: 3ms > 1ms - /test/repos.json?_size=10&_search=dogspotter", err.Error())

	err = g.Acquire("/test/users.json?_size=10")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Time limit exceeded: ")
	assert.Equal(t, 1, g.Fetches())
}

func TestTimeLimitFractionalMillis(t *testing.T) {
	err := &LimitError{Kind: KindTimeLimit, Elapsed: 1500 * time.Microsecond, Limit: time.Millisecond, Signature: "s"}
	assert.Equal(t, "Time limit exceeded: 1.50ms > 1ms - s", err.Error())
}

func TestAcquire_InFlightFetchesSurviveDeadline(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	g := New(Limits{TimeLimit: 20 * time.Millisecond}, WithClock(clock.Now))

	require.NoError(t, g.Acquire("/test/users.json?_size=10"))
	require.NoError(t, g.Acquire("/test/licenses.json?_size=10"))
	clock.Advance(30 * time.Millisecond)

	// Only the next claim fails; the two admitted fetches leave no breach.
	assert.Nil(t, g.Breached())
	err := g.Acquire("/test/repos.json?_size=10")
	require.Error(t, err)
	assert.Equal(t, "Time limit exceeded: 30ms > 20ms - /test/repos.json?_size=10", err.Error())
	assert.Equal(t, 2, g.Fetches())
}

func TestFromContext(t *testing.T) {
	g := New(Limits{MaxFetches: 1})
	ctx := WithGuard(context.Background(), g)
	assert.Same(t, g, FromContext(ctx))
	assert.NotNil(t, FromContext(context.Background()))
}
