package runtime

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSupervisor_AllWorkersStart(t *testing.T) {
	s := NewSupervisor()

	var started [3]atomic.Bool

	for i := 0; i < 3; i++ {
		idx := i
		s.Add("worker-"+string(rune('0'+i)), func(ctx context.Context) error {
			started[idx].Store(true)
			<-ctx.Done()
			return nil
		}, nil)
	}

	ctx, cancel := context.WithCancel(context.Background())
	err := s.Start(ctx)
	require.NoError(t, err)

	// Give workers time to start
	time.Sleep(50 * time.Millisecond)

	for i := 0; i < 3; i++ {
		assert.True(t, started[i].Load(), "worker %d should have started", i)
	}

	cancel()
	_ = s.Wait(ctx)
}

func TestSupervisor_ShutdownReverseOrder(t *testing.T) {
	s := NewSupervisor()

	var shutdownOrder []int
	var mu sync.Mutex

	for i := 0; i < 3; i++ {
		idx := i
		s.Add("worker-"+string(rune('0'+i)), func(ctx context.Context) error {
			<-ctx.Done()
			return nil
		}, func() error {
			mu.Lock()
			shutdownOrder = append(shutdownOrder, idx)
			mu.Unlock()
			return nil
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	err := s.Start(ctx)
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)

	cancel()
	_ = s.Wait(ctx)

	// Workers should be closed in reverse order: 2, 1, 0
	assert.Equal(t, []int{2, 1, 0}, shutdownOrder)
}

func TestSupervisor_WorkerExitStopsGroup(t *testing.T) {
	s := NewSupervisor()

	var peerSawCancellation atomic.Bool

	s.Add("short-lived", func(ctx context.Context) error {
		return nil
	}, nil)
	s.Add("peer", func(ctx context.Context) error {
		<-ctx.Done()
		peerSawCancellation.Store(true)
		return nil
	}, nil)

	// The parent context is never cancelled: the first worker returning
	// must bring the group down on its own.
	ctx := context.Background()
	require.NoError(t, s.Start(ctx))

	done := make(chan error, 1)
	go func() { done <- s.Wait(ctx) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after a worker exited")
	}
	assert.True(t, peerSawCancellation.Load())
}

func TestSupervisor_WorkerErrorStopsGroup(t *testing.T) {
	s := NewSupervisor()
	expectedErr := errors.New("worker failed")

	s.Add("failing-worker", func(ctx context.Context) error {
		return expectedErr
	}, nil)
	s.Add("peer", func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	}, nil)

	ctx := context.Background()
	require.NoError(t, s.Start(ctx))

	done := make(chan error, 1)
	go func() { done <- s.Wait(ctx) }()

	select {
	case err := <-done:
		assert.Equal(t, expectedErr, err)
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after a worker failed")
	}
}

func TestSupervisor_OnlyFirstErrorReturned(t *testing.T) {
	s := NewSupervisor()

	firstErr := errors.New("first error")
	secondErr := errors.New("second error")

	var barrier sync.WaitGroup
	barrier.Add(1)

	s.Add("first-worker", func(ctx context.Context) error {
		barrier.Done()
		return firstErr
	}, nil)

	s.Add("second-worker", func(ctx context.Context) error {
		barrier.Wait() // Wait for first worker to fail
		time.Sleep(10 * time.Millisecond)
		return secondErr
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	err := s.Start(ctx)
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)

	cancel()
	resultErr := s.Wait(ctx)

	assert.Equal(t, firstErr, resultErr)
}

func TestSupervisor_SignalShutdownNoError(t *testing.T) {
	s := NewSupervisor()

	s.Add("worker", func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	err := s.Start(ctx)
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	cancel()

	resultErr := s.Wait(ctx)
	assert.NoError(t, resultErr)
}

func TestSupervisor_NilCloseFunc(t *testing.T) {
	s := NewSupervisor()

	s.Add("worker", func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	}, nil) // nil close function

	ctx, cancel := context.WithCancel(context.Background())
	err := s.Start(ctx)
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	cancel()

	require.NotPanics(t, func() {
		_ = s.Wait(ctx)
	})
}

func TestSupervisor_CloseErrorIgnored(t *testing.T) {
	s := NewSupervisor()

	s.Add("worker", func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	}, func() error {
		return errors.New("close error")
	})

	ctx, cancel := context.WithCancel(context.Background())
	err := s.Start(ctx)
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	cancel()

	// Close errors are ignored
	resultErr := s.Wait(ctx)
	assert.NoError(t, resultErr)
}

func TestSupervisor_EmptySupervisor(t *testing.T) {
	s := NewSupervisor()

	ctx, cancel := context.WithCancel(context.Background())
	err := s.Start(ctx)
	require.NoError(t, err)

	cancel()

	resultErr := s.Wait(ctx)
	assert.NoError(t, resultErr)
}

func TestSupervisor_WaitBeforeStart(t *testing.T) {
	s := NewSupervisor()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NotPanics(t, func() {
		_ = s.Wait(ctx)
	})
}

func TestSupervisor_AddAfterStart(t *testing.T) {
	s := NewSupervisor()

	s.Add("initial-worker", func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	err := s.Start(ctx)
	require.NoError(t, err)

	// Add after start is not run, but must not panic.
	require.NotPanics(t, func() {
		s.Add("late-worker", func(ctx context.Context) error {
			return nil
		}, nil)
	})

	cancel()
	_ = s.Wait(ctx)
}
