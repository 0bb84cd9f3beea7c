//go:build darwin

package reactor

import (
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// kqueuePoller implements Poller on Darwin/BSD using kqueue. Unlike epoll,
// kqueue has no single combined "modify" filter per fd: read and write
// interest are independent filters that must each be added/deleted, so the
// poller tracks per-fd state to compute the delta on Modify.
type kqueuePoller struct {
	kq int

	mu    sync.RWMutex
	table map[int]*fdInfo

	eventBuf []unix.Kevent_t
}

func newPoller() (Poller, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}
	return &kqueuePoller{
		kq:       kq,
		table:    make(map[int]*fdInfo),
		eventBuf: make([]unix.Kevent_t, 256),
	}, nil
}

func (p *kqueuePoller) changeList(fd int, old, new IOEvent) []unix.Kevent_t {
	var changes []unix.Kevent_t
	addDel := func(filter int16, want bool) {
		flags := unix.EV_ADD | unix.EV_ENABLE
		if !want {
			flags = unix.EV_DELETE
		}
		changes = append(changes, unix.Kevent_t{
			Ident:  uint64(fd),
			Filter: filter,
			Flags:  uint16(flags),
		})
	}
	if (old&EventRead != 0) != (new&EventRead != 0) {
		addDel(unix.EVFILT_READ, new&EventRead != 0)
	}
	if (old&EventWrite != 0) != (new&EventWrite != 0) {
		addDel(unix.EVFILT_WRITE, new&EventWrite != 0)
	}
	return changes
}

func (p *kqueuePoller) Add(fd int, events IOEvent, ch *Channel) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.table[fd]; ok {
		return ErrFDAlreadyRegistered
	}
	changes := p.changeList(fd, EventNone, events)
	if len(changes) > 0 {
		if _, err := unix.Kevent(p.kq, changes, nil, nil); err != nil {
			return err
		}
	}
	p.table[fd] = &fdInfo{ch: ch, events: events, active: true}
	return nil
}

func (p *kqueuePoller) Modify(fd int, events IOEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	info, ok := p.table[fd]
	if !ok {
		return ErrFDNotRegistered
	}
	changes := p.changeList(fd, info.events, events)
	if len(changes) > 0 {
		if _, err := unix.Kevent(p.kq, changes, nil, nil); err != nil {
			return err
		}
	}
	info.events = events
	return nil
}

func (p *kqueuePoller) Remove(fd int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	info, ok := p.table[fd]
	if !ok {
		return ErrFDNotRegistered
	}
	changes := p.changeList(fd, info.events, EventNone)
	delete(p.table, fd)
	if len(changes) > 0 {
		_, err := unix.Kevent(p.kq, changes, nil, nil)
		return err
	}
	return nil
}

func (p *kqueuePoller) Wait(timeoutMillis int) (int, error) {
	var ts *unix.Timespec
	if timeoutMillis >= 0 {
		t := unix.NsecToTimespec(int64(timeoutMillis) * int64(1e6))
		ts = &t
	}
	n, err := unix.Kevent(p.kq, nil, p.eventBuf, ts)
	receiveTime := time.Now()
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}
	return p.dispatch(n, receiveTime)
}

func (p *kqueuePoller) dispatch(n int, receiveTime time.Time) (int, error) {
	type ready struct {
		ch  *Channel
		rev IOEvent
	}
	pending := make([]ready, 0, n)

	p.mu.RLock()
	merged := make(map[int]IOEvent, n)
	for i := 0; i < n; i++ {
		ev := p.eventBuf[i]
		fd := int(ev.Ident)
		info, ok := p.table[fd]
		if !ok || !info.active {
			continue
		}
		var rev IOEvent
		switch ev.Filter {
		case unix.EVFILT_READ:
			rev = EventRead
		case unix.EVFILT_WRITE:
			rev = EventWrite
		}
		if ev.Flags&unix.EV_EOF != 0 {
			rev |= EventHangup
		}
		if ev.Flags&unix.EV_ERROR != 0 {
			rev |= EventError
		}
		merged[fd] |= rev
	}
	for fd, rev := range merged {
		pending = append(pending, ready{ch: p.table[fd].ch, rev: rev})
	}
	p.mu.RUnlock()

	for _, r := range pending {
		r.ch.setRevents(r.rev)
		r.ch.handleEvent(receiveTime)
	}
	return len(pending), nil
}

func (p *kqueuePoller) Close() error {
	return unix.Close(p.kq)
}
