package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSlidingWindow(t *testing.T) {
	l := New(10, 1000*time.Millisecond)
	l.spacing = 5 * time.Millisecond // keep the test quick

	var (
		mu     sync.Mutex
		starts []time.Time
	)
	task := func(ctx context.Context) (any, error) {
		mu.Lock()
		starts = append(starts, time.Now())
		mu.Unlock()
		return nil, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 15; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Execute(context.Background(), task, Normal)
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	require.Len(t, starts, 15)

	// No rolling 1000ms slice may contain more than 10 starts.
	for i := range starts {
		n := 0
		for j := range starts {
			d := starts[j].Sub(starts[i])
			if d >= 0 && d < 1000*time.Millisecond {
				n++
			}
		}
		require.LessOrEqual(t, n, 10, "window starting at %v overflows", starts[i])
	}
}

func TestThrottledTaskIsRetried(t *testing.T) {
	l := New(10, 50*time.Millisecond)
	l.spacing = time.Millisecond

	calls := 0
	task := func(ctx context.Context) (any, error) {
		calls++
		if calls < 3 {
			return nil, fmt.Errorf("HTTP 429: %w", ErrRateLimited)
		}
		return "ok", nil
	}

	got, err := l.Execute(context.Background(), task, Normal)
	require.NoError(t, err)
	require.Equal(t, "ok", got)
	require.Equal(t, 3, calls)
}

func TestOtherFailuresPropagate(t *testing.T) {
	l := New(10, 50*time.Millisecond)
	l.spacing = time.Millisecond

	boom := errors.New("boom")
	_, err := l.Execute(context.Background(), func(ctx context.Context) (any, error) {
		return nil, boom
	}, Normal)
	require.ErrorIs(t, err, boom)
}

func TestQueueOverflowFailsFast(t *testing.T) {
	l := New(1, time.Hour) // saturate immediately
	l.spacing = time.Millisecond

	release := make(chan struct{})
	blocker := func(ctx context.Context) (any, error) {
		<-release
		return nil, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// One running task plus a full queue.
	go l.Execute(ctx, blocker, Normal)
	time.Sleep(20 * time.Millisecond)
	for i := 0; i < 101; i++ {
		go l.Execute(ctx, blocker, Normal)
	}
	time.Sleep(50 * time.Millisecond)

	_, err := l.Execute(context.Background(), blocker, Normal)
	require.ErrorIs(t, err, ErrQueueFull)
	close(release)
}

func TestCancelledEntriesDoNotConsumeBudget(t *testing.T) {
	l := New(2, time.Hour)
	l.spacing = time.Millisecond

	// Hold the loop on a first task. It takes one of the two window slots.
	release := make(chan struct{})
	go l.Execute(context.Background(), func(ctx context.Context) (any, error) {
		<-release
		return nil, nil
	}, Normal)
	time.Sleep(20 * time.Millisecond)

	// Queue entries whose callers already gave up. If these consumed start
	// slots the live task below would stall for the full window.
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	for i := 0; i < 5; i++ {
		go l.Execute(cancelled, func(ctx context.Context) (any, error) {
			t.Error("cancelled task must not run")
			return nil, nil
		}, Normal)
	}
	time.Sleep(20 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := l.Execute(context.Background(), func(ctx context.Context) (any, error) {
			return "live", nil
		}, Normal)
		require.NoError(t, err)
	}()

	close(release)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("live task starved by abandoned queue entries")
	}
}

func TestHighPriorityRunsFirst(t *testing.T) {
	l := New(100, time.Second)
	l.spacing = time.Millisecond

	var order []string
	var mu sync.Mutex
	record := func(name string) Task {
		return func(ctx context.Context) (any, error) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil, nil
		}
	}

	// Hold the loop on a first task so the others queue up behind it.
	hold := make(chan struct{})
	go l.Execute(context.Background(), func(ctx context.Context) (any, error) {
		<-hold
		return nil, nil
	}, Normal)
	time.Sleep(20 * time.Millisecond)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); l.Execute(context.Background(), record("normal"), Normal) }()
	time.Sleep(20 * time.Millisecond)
	go func() { defer wg.Done(); l.Execute(context.Background(), record("high"), High) }()
	time.Sleep(20 * time.Millisecond)

	close(hold)
	wg.Wait()

	require.Equal(t, []string{"high", "normal"}, order)
}
