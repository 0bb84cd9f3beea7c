package reactor

import (
	"container/heap"
	"sync/atomic"
	"time"
)

// TimerID identifies a scheduled timer for cancellation. It embeds a
// monotonically increasing sequence number rather than reusing slice/array
// indices, so a TimerID surviving past its timer's expiry or cancellation can
// never be mistaken for an unrelated, later timer occupying the same slot.
type TimerID struct {
	seq uint64
}

// nextTimerSeq is shared by every TimerQueue, so a sequence number is unique
// across all loops in the process.
var nextTimerSeq atomic.Uint64

type timerEntry struct {
	seq      uint64
	when     time.Time
	interval time.Duration // 0 for one-shot
	task     func()
	canceled bool
	heapIdx  int
}

// timeHeap orders timerEntry by expiry time; it is the collection popped to
// find expired timers.
type timeHeap []*timerEntry

func (h timeHeap) Len() int            { return len(h) }
func (h timeHeap) Less(i, j int) bool  { return h[i].when.Before(h[j].when) }
func (h timeHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIdx = i
	h[j].heapIdx = j
}
func (h *timeHeap) Push(x any) {
	e := x.(*timerEntry)
	e.heapIdx = len(*h)
	*h = append(*h, e)
}
func (h *timeHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.heapIdx = -1
	*h = old[:n-1]
	return e
}

// TimerQueue manages one-shot and periodic timers for a single EventLoop.
// It keeps timers in two collections as muduo's TimerQueue does: the time
// heap above for efficient "pop everything expired", and seqIndex below for
// O(log n) cancellation by TimerID without a linear scan of the heap.
type TimerQueue struct {
	loop     *EventLoop
	heap     timeHeap
	seqIndex map[uint64]*timerEntry
}

func newTimerQueue(loop *EventLoop) *TimerQueue {
	return &TimerQueue{
		loop:     loop,
		seqIndex: make(map[uint64]*timerEntry),
	}
}

// RunAt schedules task to run once at the given time. Must be called from
// the loop thread (callers from other goroutines should go through
// EventLoop.RunAt, which marshals via RunInLoop).
func (q *TimerQueue) RunAt(when time.Time, task func()) TimerID {
	return q.addTimer(when, 0, task)
}

// RunAfter schedules task to run once after d elapses.
func (q *TimerQueue) RunAfter(d time.Duration, task func()) TimerID {
	return q.addTimer(time.Now().Add(d), 0, task)
}

// RunEvery schedules task to run repeatedly every d, starting after d.
func (q *TimerQueue) RunEvery(d time.Duration, task func()) TimerID {
	return q.addTimer(time.Now().Add(d), d, task)
}

func (q *TimerQueue) addTimer(when time.Time, interval time.Duration, task func()) TimerID {
	seq := nextTimerSeq.Add(1)
	e := &timerEntry{seq: seq, when: when, interval: interval, task: task}
	heap.Push(&q.heap, e)
	q.seqIndex[seq] = e
	return TimerID{seq: seq}
}

// Cancel removes a pending timer by id. Canceling an already-fired one-shot
// timer, or an id from a different TimerQueue, is a no-op returning
// ErrTimerNotFound.
func (q *TimerQueue) Cancel(id TimerID) error {
	e, ok := q.seqIndex[id.seq]
	if !ok {
		return ErrTimerNotFound
	}
	delete(q.seqIndex, id.seq)
	if e.heapIdx >= 0 {
		heap.Remove(&q.heap, e.heapIdx)
	}
	e.canceled = true
	return nil
}

// NextExpiry returns the time of the earliest pending timer, and false if
// there are none, used to compute the poller's blocking timeout.
func (q *TimerQueue) NextExpiry() (time.Time, bool) {
	if len(q.heap) == 0 {
		return time.Time{}, false
	}
	return q.heap[0].when, true
}

// ExpireAndReschedule pops every timer due at or before now, reschedules
// periodic timers for their next interval, and returns the due tasks without
// running them. Must run on the loop thread; the caller runs the returned
// tasks under its panic recovery. Because a periodic timer is already back
// in the queue when its task runs, a Cancel issued from inside that task
// removes the rescheduled entry and the timer does not fire again.
func (q *TimerQueue) ExpireAndReschedule(now time.Time) []func() {
	var due []func()
	for len(q.heap) > 0 && !q.heap[0].when.After(now) {
		e := heap.Pop(&q.heap).(*timerEntry)
		delete(q.seqIndex, e.seq)
		if e.canceled {
			continue
		}
		due = append(due, e.task)
		if e.interval > 0 {
			e.when = now.Add(e.interval)
			e.canceled = false
			heap.Push(&q.heap, e)
			q.seqIndex[e.seq] = e
		}
	}
	return due
}

// Len reports the number of currently pending (non-canceled) timers.
func (q *TimerQueue) Len() int {
	return len(q.heap)
}
