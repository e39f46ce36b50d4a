package nntp

import (
	"errors"

	"github.com/pior/nntp/internal/poll"
)

var (
	// ErrConnectionClosed is reported when the server closes the
	// connection without being asked to, and returned when using a closed
	// Conn.
	ErrConnectionClosed = errors.New("nntp: connection closed")

	// ErrAuthRejected is reported when the server refuses the credentials.
	ErrAuthRejected = errors.New("nntp: authentication rejected")

	// ErrPasswordRequired is reported when the server asks for a password
	// and none is configured.
	ErrPasswordRequired = errors.New("nntp: server requires a password but none is configured")

	// ErrRequestReused is returned when a request is submitted twice.
	ErrRequestReused = errors.New("nntp: request already submitted")

	// ErrReactorRunning is returned when the reactor loop is entered twice.
	ErrReactorRunning = errors.New("nntp: reactor already running")

	// ErrReactorClosed is returned when dialing on a closed reactor.
	ErrReactorClosed = errors.New("nntp: reactor closed")

	// ErrUnsupported is returned on platforms without a readiness poller.
	ErrUnsupported = poll.ErrUnsupported
)

// ConnectionError is a transport failure. It is fatal to the connection
// it happened on.
type ConnectionError struct {
	Op   string // dial, connect, read, write
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	return "nntp: " + e.Op + " " + e.Addr + ": " + e.Err.Error()
}

// Unwrap returns the underlying error for error chain inspection
func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// HandshakeError is a TLS negotiation failure. It is fatal to the
// connection it happened on.
type HandshakeError struct {
	Addr string
	Err  error
}

func (e *HandshakeError) Error() string {
	return "nntp: tls handshake with " + e.Addr + ": " + e.Err.Error()
}

// Unwrap returns the underlying error for error chain inspection
func (e *HandshakeError) Unwrap() error {
	return e.Err
}

// ShouldReconnect reports whether err leaves the connection unusable, so
// a Reconnect is the only way forward.
func ShouldReconnect(err error) bool {
	if err == nil {
		return false
	}

	var connErr *ConnectionError
	var hsErr *HandshakeError
	return errors.As(err, &connErr) ||
		errors.As(err, &hsErr) ||
		errors.Is(err, ErrConnectionClosed)
}
