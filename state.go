package reactor

import "sync/atomic"

// LoopState represents the current state of an EventLoop.
//
// State machine:
//
//	loopStateAwake (constructed, not yet run)
//	  --Run()--> loopStateRunning
//	loopStateRunning <--CAS--> loopStateSleeping   (around each Poller.Wait)
//	loopStateRunning|loopStateSleeping --Stop()--> loopStateTerminating
//	loopStateTerminating --(drain complete)--> loopStateTerminated
//
// Transitions between the temporary states (Running/Sleeping) use CAS via
// TryTransition; the terminal state is set unconditionally via Store.
type LoopState uint32

const (
	// loopStateAwake indicates the loop has been created but Run has not been called.
	loopStateAwake LoopState = iota
	// loopStateRunning indicates the loop is actively dispatching.
	loopStateRunning
	// loopStateSleeping indicates the loop is blocked inside Poller.Wait.
	loopStateSleeping
	// loopStateTerminating indicates Stop was requested but drain is not complete.
	loopStateTerminating
	// loopStateTerminated is the terminal state.
	loopStateTerminated
)

func (s LoopState) String() string {
	switch s {
	case loopStateAwake:
		return "awake"
	case loopStateRunning:
		return "running"
	case loopStateSleeping:
		return "sleeping"
	case loopStateTerminating:
		return "terminating"
	case loopStateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// atomicLoopState is a lock-free holder for LoopState, CAS-driven.
type atomicLoopState struct {
	v atomic.Uint32
}

func newAtomicLoopState() *atomicLoopState {
	s := &atomicLoopState{}
	s.v.Store(uint32(loopStateAwake))
	return s
}

func (s *atomicLoopState) Load() LoopState {
	return LoopState(s.v.Load())
}

func (s *atomicLoopState) Store(state LoopState) {
	s.v.Store(uint32(state))
}

func (s *atomicLoopState) TryTransition(from, to LoopState) bool {
	return s.v.CompareAndSwap(uint32(from), uint32(to))
}
