package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/EreZAzariyA/dream-team-builder-sub007/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"
)

var errFail = errors.New("provider failed")

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestBreaker(threshold int, clock *fakeClock) CircuitBreaker {
	return NewCircuitBreaker(&Config{
		Name:         "openai",
		Threshold:    threshold,
		ResetTimeout: time.Minute,
		Now:          clock.Now,
	}, zap.NewNop())
}

// ---------------------------------------------------------------------------
// Config defaults
// ---------------------------------------------------------------------------

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 5, cfg.Threshold)
	assert.Equal(t, 60*time.Second, cfg.ResetTimeout)
	assert.Equal(t, 2*time.Minute, cfg.MonitoringPeriod)
	assert.Nil(t, cfg.OnStateChange)

	assert.Equal(t, 3, SecondaryConfig().Threshold)
}

func TestNewCircuitBreaker_CorrectsZeroValues(t *testing.T) {
	cb := NewCircuitBreaker(&Config{Threshold: -1}, nil)
	b := cb.(*breaker)

	assert.Equal(t, 5, b.config.Threshold)
	assert.Equal(t, 60*time.Second, b.config.ResetTimeout)
	assert.NotNil(t, b.config.Now)
	assert.Equal(t, StateClosed, cb.State())
}

// ---------------------------------------------------------------------------
// Closed -> Open
// ---------------------------------------------------------------------------

func TestBreaker_ClosedToOpen(t *testing.T) {
	clock := newFakeClock()
	cb := newTestBreaker(3, clock)

	for i := 0; i < 2; i++ {
		err := cb.Call(context.Background(), func() error { return errFail })
		assert.ErrorIs(t, err, errFail)
		assert.Equal(t, StateClosed, cb.State())
	}

	err := cb.Call(context.Background(), func() error { return errFail })
	assert.ErrorIs(t, err, errFail, "original error is returned unchanged")
	assert.Equal(t, StateOpen, cb.State())

	snap := cb.Snapshot()
	assert.Equal(t, 3, snap.FailureCount)
	assert.Equal(t, clock.Now().Add(time.Minute), snap.NextAttempt)
	assert.Equal(t, "openai", snap.Name)
}

// ---------------------------------------------------------------------------
// Open rejects calls without invoking fn
// ---------------------------------------------------------------------------

func TestBreaker_OpenRejectsCalls(t *testing.T) {
	clock := newFakeClock()
	cb := newTestBreaker(1, clock)

	_ = cb.Call(context.Background(), func() error { return errFail })
	require.Equal(t, StateOpen, cb.State())

	invoked := false
	err := cb.Call(context.Background(), func() error {
		invoked = true
		return nil
	})
	assert.False(t, invoked)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.True(t, types.IsErrorCode(err, types.ErrCircuitOpen))

	clock.Advance(59 * time.Second)
	err = cb.Call(context.Background(), func() error { return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

// ---------------------------------------------------------------------------
// Open -> HalfOpen -> Closed
// ---------------------------------------------------------------------------

func TestBreaker_HalfOpenToClosed(t *testing.T) {
	clock := newFakeClock()
	cb := newTestBreaker(1, clock)

	_ = cb.Call(context.Background(), func() error { return errFail })
	clock.Advance(time.Minute)

	err := cb.Call(context.Background(), func() error { return nil })
	require.NoError(t, err)
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 0, cb.Snapshot().FailureCount)
}

// ---------------------------------------------------------------------------
// HalfOpen -> Open
// ---------------------------------------------------------------------------

func TestBreaker_HalfOpenToOpen(t *testing.T) {
	clock := newFakeClock()
	cb := newTestBreaker(3, clock)

	for i := 0; i < 3; i++ {
		_ = cb.Call(context.Background(), func() error { return errFail })
	}
	require.Equal(t, StateOpen, cb.State())
	clock.Advance(time.Minute)

	err := cb.Call(context.Background(), func() error { return errFail })
	assert.ErrorIs(t, err, errFail)
	assert.Equal(t, StateOpen, cb.State())
	assert.Equal(t, clock.Now().Add(time.Minute), cb.Snapshot().NextAttempt)
}

// ---------------------------------------------------------------------------
// HalfOpen admits exactly one trial
// ---------------------------------------------------------------------------

func TestBreaker_HalfOpenSingleTrial(t *testing.T) {
	clock := newFakeClock()
	cb := newTestBreaker(1, clock)

	_ = cb.Call(context.Background(), func() error { return errFail })
	clock.Advance(time.Minute)

	release := make(chan struct{})
	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- cb.Call(context.Background(), func() error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	assert.Equal(t, StateHalfOpen, cb.State())
	err := cb.Call(context.Background(), func() error { return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, StateClosed, cb.State())
}

// ---------------------------------------------------------------------------
// Reset
// ---------------------------------------------------------------------------

func TestBreaker_Reset(t *testing.T) {
	clock := newFakeClock()
	cb := newTestBreaker(1, clock)

	_ = cb.Call(context.Background(), func() error { return errFail })
	require.Equal(t, StateOpen, cb.State())

	cb.Reset()
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 0, cb.Snapshot().FailureCount)
	assert.True(t, cb.Snapshot().NextAttempt.IsZero())

	err := cb.Call(context.Background(), func() error { return nil })
	assert.NoError(t, err)
}

// ---------------------------------------------------------------------------
// OnStateChange callback
// ---------------------------------------------------------------------------

func TestBreaker_OnStateChange(t *testing.T) {
	clock := newFakeClock()
	transitions := make(chan [2]State, 4)

	cb := NewCircuitBreaker(&Config{
		Threshold:    2,
		ResetTimeout: time.Minute,
		Now:          clock.Now,
		OnStateChange: func(from, to State) {
			transitions <- [2]State{from, to}
		},
	}, zap.NewNop())

	_ = cb.Call(context.Background(), func() error { return errFail })
	_ = cb.Call(context.Background(), func() error { return errFail })

	select {
	case tr := <-transitions:
		assert.Equal(t, [2]State{StateClosed, StateOpen}, tr)
	case <-time.After(time.Second):
		t.Fatal("state change callback not invoked")
	}
}

// ---------------------------------------------------------------------------
// Success resets failure count in Closed state
// ---------------------------------------------------------------------------

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb := newTestBreaker(3, newFakeClock())

	_ = cb.Call(context.Background(), func() error { return errFail })
	_ = cb.Call(context.Background(), func() error { return errFail })
	_ = cb.Call(context.Background(), func() error { return nil })
	assert.Equal(t, 0, cb.Snapshot().FailureCount)

	_ = cb.Call(context.Background(), func() error { return errFail })
	_ = cb.Call(context.Background(), func() error { return errFail })
	assert.Equal(t, StateClosed, cb.State())
}

// ---------------------------------------------------------------------------
// CallWithResultTyped
// ---------------------------------------------------------------------------

func TestCallWithResultTyped(t *testing.T) {
	cb := newTestBreaker(5, newFakeClock())

	v, err := CallWithResultTyped(cb, context.Background(), func() (int, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	v, err = CallWithResultTyped(cb, context.Background(), func() (int, error) { return 0, errFail })
	assert.ErrorIs(t, err, errFail)
	assert.Zero(t, v)
}

func TestBreaker_CanceledContext(t *testing.T) {
	cb := newTestBreaker(1, newFakeClock())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := cb.Call(ctx, func() error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, cb.State())
}

// ---------------------------------------------------------------------------
// Concurrent safety
// ---------------------------------------------------------------------------

func TestBreaker_ConcurrentSafety(t *testing.T) {
	cb := newTestBreaker(100, newFakeClock())

	var wg sync.WaitGroup
	var successCount atomic.Int64

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := cb.Call(context.Background(), func() error { return nil }); err == nil {
				successCount.Add(1)
			}
		}()
	}

	wg.Wait()
	assert.Equal(t, int64(50), successCount.Load())
	assert.Equal(t, StateClosed, cb.State())
}

// ---------------------------------------------------------------------------
// Property: OPEN exactly when consecutive failures reach the threshold
// ---------------------------------------------------------------------------

func TestBreaker_OpensExactlyAtThreshold_Property(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		threshold := rapid.IntRange(1, 8).Draw(rt, "threshold")
		outcomes := rapid.SliceOfN(rapid.Bool(), 1, 40).Draw(rt, "outcomes")

		cb := newTestBreaker(threshold, newFakeClock())
		consecutive := 0
		open := false

		for i, ok := range outcomes {
			invoked := false
			err := cb.Call(context.Background(), func() error {
				invoked = true
				if ok {
					return nil
				}
				return errFail
			})

			if open {
				if invoked {
					rt.Fatalf("call %d invoked fn while open", i)
				}
				if !errors.Is(err, ErrCircuitOpen) {
					rt.Fatalf("call %d: expected ErrCircuitOpen, got %v", i, err)
				}
				continue
			}

			if !invoked {
				rt.Fatalf("call %d not invoked while closed", i)
			}
			if ok {
				consecutive = 0
			} else {
				consecutive++
			}
			open = consecutive == threshold

			if got := cb.State() == StateOpen; got != open {
				rt.Fatalf("call %d: open=%v, want %v (consecutive=%d threshold=%d)", i, got, open, consecutive, threshold)
			}
		}
	})
}
