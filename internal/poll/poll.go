// Package poll is the readiness layer under the NNTP reactor: an epoll
// poller with a wakeup descriptor and non-blocking TCP sockets.
//
// Only Linux is supported. Elsewhere every constructor returns
// ErrUnsupported.
package poll

import "errors"

var (
	// ErrWouldBlock is returned by Socket reads and writes that cannot make
	// progress without waiting for readiness.
	ErrWouldBlock = errors.New("poll: operation would block")

	// ErrUnsupported is returned on platforms without epoll.
	ErrUnsupported = errors.New("poll: readiness polling is not supported on this platform")

	// ErrClosed is returned when using a closed Poller or Socket.
	ErrClosed = errors.New("poll: use of closed descriptor")
)

// Event is one readiness notification.
type Event struct {
	Fd       int
	Readable bool
	Writable bool
	// Hangup is set for EPOLLHUP and EPOLLERR. The socket must still be
	// read to learn what happened.
	Hangup bool
}
