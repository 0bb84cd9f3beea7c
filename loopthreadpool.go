package reactor

import (
	"hash/fnv"
	"sync"
	"sync/atomic"
)

// ThreadInitCallback runs once on a pooled loop's own goroutine, before that
// loop starts dispatching, letting callers register per-loop state (e.g. a
// loop-local cache) without a race against the loop's first iteration.
type ThreadInitCallback func(loop *EventLoop)

// EventLoopThreadPool owns a fixed set of EventLoops, each run on its own
// goroutine, and hands them out to TcpServer round-robin so accepted
// sockets are spread evenly across loops. A pool of size
// zero degenerates to handing out the base loop for every connection,
// matching muduo's single-threaded mode.
type EventLoopThreadPool struct {
	baseLoop *EventLoop
	loops    []*EventLoop
	next     atomic.Uint64
	started  atomic.Bool
}

// NewEventLoopThreadPool creates a pool that will run numThreads additional
// EventLoops (beyond baseLoop) once Start is called.
func NewEventLoopThreadPool(baseLoop *EventLoop, numThreads int, opts ...LoopOption) (*EventLoopThreadPool, error) {
	pool := &EventLoopThreadPool{baseLoop: baseLoop}
	for i := 0; i < numThreads; i++ {
		loop, err := NewEventLoop(opts...)
		if err != nil {
			pool.stopStarted()
			return nil, err
		}
		pool.loops = append(pool.loops, loop)
	}
	return pool, nil
}

func (p *EventLoopThreadPool) stopStarted() {
	for _, l := range p.loops {
		l.Stop()
	}
}

// Start launches each pooled loop's Run on its own goroutine, invoking cb (if
// non-nil) on each loop's own goroutine just before that loop starts
// dispatching, and returns once cb has returned on every pooled loop. It
// must be called before GetNextLoop/LoopForHash are used and before the base
// loop's Run, from the same goroutine that will call the base loop's Run.
func (p *EventLoopThreadPool) Start(cb ThreadInitCallback) {
	if !p.started.CompareAndSwap(false, true) {
		return
	}
	var ready sync.WaitGroup
	ready.Add(len(p.loops))
	for _, l := range p.loops {
		go func(l *EventLoop) {
			if cb != nil {
				cb(l)
			}
			ready.Done()
			_ = l.Run()
		}(l)
	}
	ready.Wait()
}

// GetNextLoop returns the next loop in round-robin order. If the pool has no
// additional threads it always returns the base loop.
func (p *EventLoopThreadPool) GetNextLoop() *EventLoop {
	if len(p.loops) == 0 {
		return p.baseLoop
	}
	i := p.next.Add(1) - 1
	return p.loops[i%uint64(len(p.loops))]
}

// LoopForHash returns the loop key consistently hashes to, giving callers
// that need session affinity (repeated lookups for the same key always
// landing on the same loop) an alternative to round-robin GetNextLoop. If
// the pool has no additional threads it always returns the base loop.
func (p *EventLoopThreadPool) LoopForHash(key string) *EventLoop {
	if len(p.loops) == 0 {
		return p.baseLoop
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return p.loops[h.Sum32()%uint32(len(p.loops))]
}

// AllLoops returns the base loop followed by every pooled loop.
func (p *EventLoopThreadPool) AllLoops() []*EventLoop {
	out := make([]*EventLoop, 0, len(p.loops)+1)
	out = append(out, p.baseLoop)
	out = append(out, p.loops...)
	return out
}

// Stop requests every pooled loop (not the base loop, which the caller owns)
// to exit, and waits for them to finish.
func (p *EventLoopThreadPool) Stop() {
	for _, l := range p.loops {
		l.Stop()
	}
	for _, l := range p.loops {
		<-l.Done()
	}
}
