package reactor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimerQueue_ExpireOrdersByTime(t *testing.T) {
	q := newTimerQueue(nil)
	now := time.Now()

	var order []int
	q.addTimer(now.Add(30*time.Millisecond), 0, func() { order = append(order, 3) })
	q.addTimer(now.Add(10*time.Millisecond), 0, func() { order = append(order, 1) })
	q.addTimer(now.Add(20*time.Millisecond), 0, func() { order = append(order, 2) })

	due := q.ExpireAndReschedule(now.Add(25 * time.Millisecond))
	require.Len(t, due, 2)
	for _, fn := range due {
		fn()
	}
	assert.Equal(t, []int{1, 2}, order)
	assert.Equal(t, 1, q.Len())
}

func TestTimerQueue_CancelRemovesPendingTimer(t *testing.T) {
	q := newTimerQueue(nil)
	now := time.Now()
	fired := false
	id := q.addTimer(now.Add(time.Millisecond), 0, func() { fired = true })

	require.NoError(t, q.Cancel(id))
	due := q.ExpireAndReschedule(now.Add(time.Second))
	assert.Empty(t, due)
	assert.False(t, fired)
}

func TestTimerQueue_CancelUnknownIDReturnsError(t *testing.T) {
	q := newTimerQueue(nil)
	err := q.Cancel(TimerID{seq: 9999})
	assert.ErrorIs(t, err, ErrTimerNotFound)
}

func TestTimerQueue_PeriodicReschedules(t *testing.T) {
	q := newTimerQueue(nil)
	now := time.Now()
	count := 0
	q.addTimer(now.Add(10*time.Millisecond), 10*time.Millisecond, func() { count++ })

	due := q.ExpireAndReschedule(now.Add(35 * time.Millisecond))
	for _, fn := range due {
		fn()
	}
	assert.Equal(t, 1, count)
	assert.Equal(t, 1, q.Len(), "periodic timer should be rescheduled, not dropped")

	when, ok := q.NextExpiry()
	require.True(t, ok)
	assert.True(t, when.After(now.Add(30*time.Millisecond)))
}

func TestTimerQueue_NextExpiryEmpty(t *testing.T) {
	q := newTimerQueue(nil)
	_, ok := q.NextExpiry()
	assert.False(t, ok)
}
