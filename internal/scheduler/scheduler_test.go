package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestSchedulerRunsJobsUntilStopped(t *testing.T) {
	s := New(zaptest.NewLogger(t))

	var ticks int32
	s.Add("tick", 10*time.Millisecond, func(context.Context) {
		atomic.AddInt32(&ticks, 1)
	})

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.Running())

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&ticks) >= 3 }, 2*time.Second, 5*time.Millisecond)

	s.Stop()
	s.Stop()
	assert.False(t, s.Running())

	after := atomic.LoadInt32(&ticks)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, atomic.LoadInt32(&ticks))
}

func TestSchedulerSurvivesPanics(t *testing.T) {
	s := New(zaptest.NewLogger(t))

	var calls int32
	s.Add("flaky", 10*time.Millisecond, func(context.Context) {
		if atomic.AddInt32(&calls, 1) == 1 {
			panic("boom")
		}
	})

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&calls) >= 3 }, 2*time.Second, 5*time.Millisecond)
}

func TestSchedulerStopWaitsForRunningJob(t *testing.T) {
	s := New(zaptest.NewLogger(t))

	started := make(chan struct{})
	var finished atomic.Bool
	var once atomic.Bool
	s.Add("slow", 10*time.Millisecond, func(ctx context.Context) {
		if once.Swap(true) {
			return
		}
		close(started)
		<-ctx.Done()
		time.Sleep(20 * time.Millisecond)
		finished.Store(true)
	})

	require.NoError(t, s.Start(context.Background()))

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not start")
	}

	s.Stop()
	assert.True(t, finished.Load())
}

func TestSchedulerRejectsNonPositiveInterval(t *testing.T) {
	s := New(zaptest.NewLogger(t))
	s.Add("bad", 0, func(context.Context) {})

	assert.Error(t, s.Start(context.Background()))
	assert.False(t, s.Running())
}
