package reactor

import (
	"sync"
	"time"
)

// IOEvent is a bitmask of poll interest/return events.
type IOEvent uint32

const (
	EventNone IOEvent = 0
	EventRead IOEvent = 1 << (iota - 1)
	EventWrite
	EventError
	EventHangup
)

// Channel binds a single file descriptor's I/O interest and callbacks to an
// owning EventLoop. A Channel never owns the fd: callers are responsible for
// closing it, typically from within the close callback so the loop has
// already removed the fd from the poller.
//
// tie holds a weak-reference-style guard: TcpConnection ties its Channel to
// itself so that if the connection is destroyed while an event for its fd is
// still queued for dispatch (possible when multiple events are drained from
// one poll call), handleEvent can detect the owner is gone and skip the
// callback rather than touch freed state.
type Channel struct {
	loop *EventLoop
	fd   int

	mu      sync.Mutex
	events  IOEvent
	revents IOEvent

	readCallback  func(receiveTime time.Time)
	writeCallback func()
	closeCallback func()
	errorCallback func()

	tieMu sync.Mutex
	tied  bool
	tie   func() (owner any, alive bool)

	addedToLoop bool
	eventHandling bool
}

// NewChannel creates a Channel for fd, owned by loop. It is not registered
// with the poller until EnableReading or EnableWriting is called.
func NewChannel(loop *EventLoop, fd int) *Channel {
	return &Channel{loop: loop, fd: fd}
}

func (c *Channel) FD() int { return c.fd }

func (c *Channel) SetReadCallback(cb func(receiveTime time.Time)) {
	c.mu.Lock()
	c.readCallback = cb
	c.mu.Unlock()
}
func (c *Channel) SetWriteCallback(cb func()) { c.mu.Lock(); c.writeCallback = cb; c.mu.Unlock() }
func (c *Channel) SetCloseCallback(cb func()) { c.mu.Lock(); c.closeCallback = cb; c.mu.Unlock() }
func (c *Channel) SetErrorCallback(cb func()) { c.mu.Lock(); c.errorCallback = cb; c.mu.Unlock() }

// Tie ties the channel's lifetime to owner: while alive() returns true the
// channel's callbacks may run; once it returns false handleEvent no-ops.
// TcpConnection calls this in its constructor with a liveness flag backed by
// its own state.
func (c *Channel) Tie(alive func() bool) {
	c.tieMu.Lock()
	defer c.tieMu.Unlock()
	c.tied = true
	c.tie = func() (any, bool) { return nil, alive() }
}

func (c *Channel) isAlive() bool {
	c.tieMu.Lock()
	defer c.tieMu.Unlock()
	if !c.tied {
		return true
	}
	_, alive := c.tie()
	return alive
}

func (c *Channel) EnableReading() {
	c.mu.Lock()
	c.events |= EventRead
	c.mu.Unlock()
	c.update()
}

func (c *Channel) DisableReading() {
	c.mu.Lock()
	c.events &^= EventRead
	c.mu.Unlock()
	c.update()
}

func (c *Channel) EnableWriting() {
	c.mu.Lock()
	c.events |= EventWrite
	c.mu.Unlock()
	c.update()
}

func (c *Channel) DisableWriting() {
	c.mu.Lock()
	c.events &^= EventWrite
	c.mu.Unlock()
	c.update()
}

func (c *Channel) DisableAll() {
	c.mu.Lock()
	c.events = EventNone
	c.mu.Unlock()
	c.update()
}

func (c *Channel) IsWriting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.events&EventWrite != 0
}

func (c *Channel) IsReading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.events&EventRead != 0
}

func (c *Channel) isNoneEvent() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.events == EventNone
}

func (c *Channel) interest() IOEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.events
}

// update registers the channel with the loop's poller, or modifies its
// interest mask if already registered; an empty mask leaves it registered
// until Remove is called. It must itself be invoked from the loop thread.
func (c *Channel) update() {
	c.loop.updateChannel(c)
}

// Remove drops the channel from its loop's poller entirely. Callers must
// disable all interest first (or rely on Close doing so).
func (c *Channel) Remove() {
	c.loop.removeChannel(c)
}

// setRevents records the events the poller returned for this fd, called by
// the loop from within dispatch.
func (c *Channel) setRevents(ev IOEvent) {
	c.mu.Lock()
	c.revents = ev
	c.mu.Unlock()
}

// handleEvent runs the appropriate callbacks for the last recorded revents.
// receiveTime is the timestamp the owning Poller recorded when it observed
// the fd ready, threaded through so a read/message callback can learn how
// stale the data is by the time application code sees it. It must run on
// the loop thread; it is a no-op if the channel has been untied from a dead
// owner.
func (c *Channel) handleEvent(receiveTime time.Time) {
	if !c.isAlive() {
		return
	}
	c.eventHandling = true
	defer func() { c.eventHandling = false }()

	c.mu.Lock()
	rev := c.revents
	readCB, writeCB, closeCB, errCB := c.readCallback, c.writeCallback, c.closeCallback, c.errorCallback
	c.mu.Unlock()

	if rev&EventHangup != 0 && rev&EventRead == 0 {
		if closeCB != nil {
			closeCB()
		}
		return
	}
	if rev&EventError != 0 {
		if errCB != nil {
			errCB()
		}
	}
	if rev&(EventRead|EventHangup) != 0 {
		if readCB != nil {
			readCB(receiveTime)
		}
	}
	if rev&EventWrite != 0 {
		if writeCB != nil {
			writeCB()
		}
	}
}
