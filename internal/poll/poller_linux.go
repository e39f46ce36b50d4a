//go:build linux

package poll

import (
	"encoding/binary"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

const maxEvents = 128

// Poller multiplexes readiness of many descriptors. It is level-triggered:
// a descriptor stays reported until the condition is consumed.
//
// Wait must only be called from one goroutine at a time. Add, Modify,
// Remove and Wake are safe from any goroutine.
type Poller struct {
	epfd   int
	wakefd int

	mu     sync.RWMutex
	closed bool

	raw []unix.EpollEvent
}

// NewPoller creates an epoll instance and its wakeup eventfd.
func NewPoller() (*Poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, os.NewSyscallError("epoll_create1", err)
	}

	wakefd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epfd)
		return nil, os.NewSyscallError("eventfd", err)
	}

	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakefd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakefd, &ev); err != nil {
		unix.Close(wakefd)
		unix.Close(epfd)
		return nil, os.NewSyscallError("epoll_ctl", err)
	}

	return &Poller{
		epfd:   epfd,
		wakefd: wakefd,
		raw:    make([]unix.EpollEvent, maxEvents),
	}, nil
}

func interest(read, write bool) uint32 {
	var events uint32 = unix.EPOLLRDHUP
	if read {
		events |= unix.EPOLLIN
	}
	if write {
		events |= unix.EPOLLOUT
	}
	return events
}

func (p *Poller) ctl(op, fd int, read, write bool) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrClosed
	}

	ev := unix.EpollEvent{Events: interest(read, write), Fd: int32(fd)}
	if op == unix.EPOLL_CTL_DEL {
		if err := unix.EpollCtl(p.epfd, op, fd, nil); err != nil {
			return os.NewSyscallError("epoll_ctl", err)
		}
		return nil
	}
	if err := unix.EpollCtl(p.epfd, op, fd, &ev); err != nil {
		return os.NewSyscallError("epoll_ctl", err)
	}
	return nil
}

// Add starts watching fd.
func (p *Poller) Add(fd int, read, write bool) error {
	return p.ctl(unix.EPOLL_CTL_ADD, fd, read, write)
}

// Modify changes the interest set of a watched fd.
func (p *Poller) Modify(fd int, read, write bool) error {
	return p.ctl(unix.EPOLL_CTL_MOD, fd, read, write)
}

// Remove stops watching fd. It must be called before fd is closed.
func (p *Poller) Remove(fd int) error {
	return p.ctl(unix.EPOLL_CTL_DEL, fd, false, false)
}

// Wait blocks until at least one descriptor is ready, Wake is called, or
// timeout elapses. A negative timeout waits forever. Ready events are
// appended to dst. Wakeups are consumed and never reported.
func (p *Poller) Wait(dst []Event, timeout time.Duration) ([]Event, error) {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return dst, ErrClosed
	}
	epfd := p.epfd
	p.mu.RUnlock()

	n, err := unix.EpollWait(epfd, p.raw, timeoutMillis(timeout))
	if err != nil {
		if err == unix.EINTR {
			return dst, nil
		}
		return dst, os.NewSyscallError("epoll_wait", err)
	}

	for i := 0; i < n; i++ {
		raw := p.raw[i]
		fd := int(raw.Fd)
		if fd == p.wakefd {
			p.drainWake()
			continue
		}
		dst = append(dst, Event{
			Fd:       fd,
			Readable: raw.Events&(unix.EPOLLIN|unix.EPOLLRDHUP) != 0,
			Writable: raw.Events&unix.EPOLLOUT != 0,
			Hangup:   raw.Events&(unix.EPOLLHUP|unix.EPOLLERR) != 0,
		})
	}
	return dst, nil
}

func timeoutMillis(timeout time.Duration) int {
	switch {
	case timeout < 0:
		return -1
	case timeout == 0:
		return 0
	case timeout < time.Millisecond:
		return 1
	default:
		return int(timeout / time.Millisecond)
	}
}

func (p *Poller) drainWake() {
	var buf [8]byte
	for {
		if _, err := unix.Read(p.wakefd, buf[:]); err != nil {
			return
		}
	}
}

// Wake interrupts a concurrent or the next Wait.
func (p *Poller) Wake() error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrClosed
	}

	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], 1)
	if _, err := unix.Write(p.wakefd, buf[:]); err != nil && err != unix.EAGAIN {
		return os.NewSyscallError("write", err)
	}
	return nil
}

// Close releases the epoll instance. Watched descriptors are not closed.
func (p *Poller) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	unix.Close(p.wakefd)
	if err := unix.Close(p.epfd); err != nil {
		return os.NewSyscallError("close", err)
	}
	return nil
}
