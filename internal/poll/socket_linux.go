//go:build linux

package poll

import (
	"io"
	"net/netip"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// Socket is a non-blocking TCP socket.
type Socket struct {
	fd int

	mu     sync.RWMutex
	closed bool
}

// Connect creates a socket and starts a non-blocking connect to addr.
// Completion is reported as write readiness; check it with Connected.
func Connect(addr netip.AddrPort) (*Socket, error) {
	ip := addr.Addr().Unmap()

	var sa unix.Sockaddr
	family := unix.AF_INET
	if ip.Is4() {
		sa = &unix.SockaddrInet4{Port: int(addr.Port()), Addr: ip.As4()}
	} else {
		family = unix.AF_INET6
		sa = &unix.SockaddrInet6{Port: int(addr.Port()), Addr: ip.As16()}
	}

	fd, err := unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return nil, os.NewSyscallError("socket", err)
	}

	_ = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)

	if err := unix.Connect(fd, sa); err != nil && err != unix.EINPROGRESS {
		unix.Close(fd)
		return nil, os.NewSyscallError("connect", err)
	}

	return &Socket{fd: fd}, nil
}

// Fd returns the descriptor to register with a Poller.
func (s *Socket) Fd() int {
	return s.fd
}

// Connected reports whether the connect started by Connect has completed.
// A failed connect returns its error. It checks the peer address rather
// than trusting readiness alone, so a stale notification never reports a
// connect still in progress as done.
func (s *Socket) Connected() (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false, ErrClosed
	}

	if _, err := unix.Getpeername(s.fd); err == nil {
		return true, nil
	}

	soerr, err := unix.GetsockoptInt(s.fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return false, os.NewSyscallError("getsockopt", err)
	}
	if soerr != 0 {
		return false, os.NewSyscallError("connect", unix.Errno(soerr))
	}
	return false, nil
}

// Read reads available bytes. It returns ErrWouldBlock when none are
// available and io.EOF once the peer closed its side.
func (s *Socket) Read(p []byte) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, ErrClosed
	}

	for {
		n, err := unix.Read(s.fd, p)
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN:
			return 0, ErrWouldBlock
		case err != nil:
			return 0, os.NewSyscallError("read", err)
		case n == 0 && len(p) > 0:
			return 0, io.EOF
		}
		return n, nil
	}
}

// Write writes as much of p as the socket accepts. A short write returns
// the count with ErrWouldBlock.
func (s *Socket) Write(p []byte) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, ErrClosed
	}

	written := 0
	for written < len(p) {
		n, err := unix.Write(s.fd, p[written:])
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN:
			return written, ErrWouldBlock
		case err != nil:
			return written, os.NewSyscallError("write", err)
		}
		written += n
	}
	return written, nil
}

// Close closes the descriptor. Remove it from any Poller first.
func (s *Socket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if err := unix.Close(s.fd); err != nil {
		return os.NewSyscallError("close", err)
	}
	return nil
}
