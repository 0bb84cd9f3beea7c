package reactor

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startLoop(t *testing.T, loop *EventLoop) {
	t.Helper()
	go func() {
		if err := loop.Run(); err != nil {
			t.Errorf("Run returned error: %v", err)
		}
	}()
	t.Cleanup(func() {
		loop.Stop()
		select {
		case <-loop.Done():
		case <-time.After(2 * time.Second):
			t.Fatal("loop did not stop in time")
		}
	})
}

func TestEventLoop_RunAndStop(t *testing.T) {
	loop, err := NewEventLoop()
	require.NoError(t, err)
	startLoop(t, loop)

	loop.Stop()
	select {
	case <-loop.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop")
	}
}

func TestEventLoop_RunTwiceReturnsError(t *testing.T) {
	loop, err := NewEventLoop()
	require.NoError(t, err)
	startLoop(t, loop)

	// Give the goroutine a chance to transition to running.
	require.Eventually(t, func() bool {
		return loop.state.Load() != loopStateAwake
	}, time.Second, time.Millisecond)

	assert.ErrorIs(t, loop.Run(), ErrLoopAlreadyRunning)
}

func TestEventLoop_ReentrantRunReturnsError(t *testing.T) {
	loop, err := NewEventLoop()
	require.NoError(t, err)
	startLoop(t, loop)

	done := make(chan error, 1)
	loop.RunInLoop(func() {
		done <- loop.Run()
	})

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrReentrantRun)
	case <-time.After(time.Second):
		t.Fatal("reentrant Run call never returned")
	}
}

func TestEventLoop_RunInLoopFromForeignGoroutine(t *testing.T) {
	loop, err := NewEventLoop()
	require.NoError(t, err)
	startLoop(t, loop)

	done := make(chan struct{})
	var ranOnLoopThread bool
	loop.RunInLoop(func() {
		ranOnLoopThread = loop.IsInLoopThread()
		close(done)
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunInLoop callback never ran")
	}
	assert.True(t, ranOnLoopThread)
}

func TestEventLoop_QueueInLoopDefersEvenOnLoopThread(t *testing.T) {
	loop, err := NewEventLoop()
	require.NoError(t, err)
	startLoop(t, loop)

	var order []int
	var mu sync.Mutex
	done := make(chan struct{})

	loop.RunInLoop(func() {
		mu.Lock()
		order = append(order, 1)
		mu.Unlock()
		loop.QueueInLoop(func() {
			mu.Lock()
			order = append(order, 3)
			mu.Unlock()
			close(done)
		})
		mu.Lock()
		order = append(order, 2)
		mu.Unlock()
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("queued callback never ran")
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestEventLoop_RunAfterFires(t *testing.T) {
	loop, err := NewEventLoop()
	require.NoError(t, err)
	startLoop(t, loop)

	var fired atomic.Bool
	done := make(chan struct{})
	loop.RunAfter(20*time.Millisecond, func() {
		fired.Store(true)
		close(done)
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timer never fired")
	}
	assert.True(t, fired.Load())
}

func TestEventLoop_CancelTimerPreventsFire(t *testing.T) {
	loop, err := NewEventLoop()
	require.NoError(t, err)
	startLoop(t, loop)

	var fired atomic.Bool
	id := loop.RunAfter(30*time.Millisecond, func() {
		fired.Store(true)
	})
	loop.CancelTimer(id)

	time.Sleep(80 * time.Millisecond)
	assert.False(t, fired.Load())
}

func TestEventLoop_RunEveryFiresRepeatedly(t *testing.T) {
	loop, err := NewEventLoop()
	require.NoError(t, err)
	startLoop(t, loop)

	var count atomic.Int32
	id := loop.RunEvery(15*time.Millisecond, func() {
		count.Add(1)
	})

	require.Eventually(t, func() bool {
		return count.Load() >= 3
	}, time.Second, 5*time.Millisecond)
	loop.CancelTimer(id)
}

// TestEventLoop_PeriodicTimerCancelsItselfMidFire exercises S5: a periodic
// timer whose own callback cancels it on the third firing must stop dead at
// exactly 3 firings, with the cancel-while-the-timer-is-currently-firing
// case (the timer is mid-callback on the loop goroutine when Cancel runs,
// also on the loop goroutine) treated as a valid cancellation rather than an
// error.
func TestEventLoop_PeriodicTimerCancelsItselfMidFire(t *testing.T) {
	loop, err := NewEventLoop()
	require.NoError(t, err)
	startLoop(t, loop)

	var count atomic.Int32
	var id TimerID
	id = loop.RunEvery(10*time.Millisecond, func() {
		n := count.Add(1)
		if n == 3 {
			loop.CancelTimer(id)
		}
	})

	require.Eventually(t, func() bool {
		return count.Load() == 3
	}, 200*time.Millisecond, 2*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(3), count.Load(), "no firings after self-cancellation")
}
