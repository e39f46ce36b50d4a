package nntp

import (
	"bytes"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/pior/nntp/internal/poll"
)

// HandshakeState is the encryption state of a connection.
type HandshakeState int

const (
	HandshakePlain HandshakeState = iota
	HandshakeNegotiating
	HandshakeEstablished
	HandshakeFailed
)

func (s HandshakeState) String() string {
	switch s {
	case HandshakePlain:
		return "plain"
	case HandshakeNegotiating:
		return "negotiating"
	case HandshakeEstablished:
		return "established"
	case HandshakeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// HandshakeStatus is the outcome of one handshake step.
type HandshakeStatus int

const (
	HandshakeComplete HandshakeStatus = iota
	HandshakeWantRead
	HandshakeWantWrite
	HandshakeFatal
)

// HandshakeResult is returned by each handshake step. Err is set for
// HandshakeFatal only.
type HandshakeResult struct {
	Status HandshakeStatus
	Err    error
}

// channel moves protocol bytes over an established transport.
type channel interface {
	// Read returns 0, nil when nothing is available.
	Read(p []byte) (int, error)
	// Write buffers p for Flush.
	Write(p []byte) error
	// Flush writes buffered bytes until the socket would block.
	Flush() error
	// Pending reports whether buffered bytes remain.
	Pending() bool
}

type plainChannel struct {
	sock *poll.Socket
	out  []byte
}

func (ch *plainChannel) Read(p []byte) (int, error) {
	n, err := ch.sock.Read(p)
	if errors.Is(err, poll.ErrWouldBlock) {
		return 0, nil
	}
	return n, err
}

func (ch *plainChannel) Write(p []byte) error {
	ch.out = append(ch.out, p...)
	return nil
}

func (ch *plainChannel) Flush() error {
	if len(ch.out) == 0 {
		return nil
	}
	n, err := ch.sock.Write(ch.out)
	ch.out = ch.out[:copy(ch.out, ch.out[n:])]
	if errors.Is(err, poll.ErrWouldBlock) {
		return nil
	}
	return err
}

func (ch *plainChannel) Pending() bool {
	return len(ch.out) > 0
}

// tlsTransport runs crypto/tls over an in-memory conn so the handshake
// can be stepped from readiness events. Ciphertext is moved between the
// memory conn and the socket by Step, Read and Flush; crypto/tls never
// touches the socket.
type tlsTransport struct {
	sock *poll.Socket
	mem  *memConn
	conn *tls.Conn
	buf  []byte
}

func newTLSTransport(sock *poll.Socket, cfg *tls.Config, bufSize int) *tlsTransport {
	mem := newMemConn()
	t := &tlsTransport{
		sock: sock,
		mem:  mem,
		conn: tls.Client(mem, cfg),
		buf:  make([]byte, bufSize),
	}

	go func() {
		err := t.conn.Handshake()
		mem.finish(err)
	}()

	return t
}

// Step advances the handshake as far as the socket allows.
func (t *tlsTransport) Step() HandshakeResult {
	m := t.mem
	m.mu.Lock()
	defer m.mu.Unlock()

	for {
		for !m.done && m.out.Len() == 0 && !(m.waiting && m.in.Len() == 0) {
			m.cond.Wait()
		}

		if m.out.Len() > 0 {
			n, err := t.sock.Write(m.out.Bytes())
			m.out.Next(n)
			if err != nil && !errors.Is(err, poll.ErrWouldBlock) {
				return HandshakeResult{Status: HandshakeFatal, Err: err}
			}
			if m.out.Len() > 0 {
				return HandshakeResult{Status: HandshakeWantWrite}
			}
			continue
		}

		if m.done {
			if m.err != nil {
				return HandshakeResult{Status: HandshakeFatal, Err: m.err}
			}
			return HandshakeResult{Status: HandshakeComplete}
		}

		// The handshake waits for the peer.
		n, err := t.sock.Read(t.buf)
		switch {
		case n > 0:
			m.in.Write(t.buf[:n])
			m.cond.Broadcast()
		case errors.Is(err, poll.ErrWouldBlock):
			return HandshakeResult{Status: HandshakeWantRead}
		case err != nil:
			return HandshakeResult{Status: HandshakeFatal, Err: err}
		}
	}
}

// Read decrypts available bytes.
func (t *tlsTransport) Read(p []byte) (int, error) {
	if err := t.fill(); err != nil {
		return 0, err
	}

	n, err := t.conn.Read(p)
	if isWouldBlock(err) {
		return n, nil
	}
	return n, err
}

// fill moves ciphertext from the socket into the memory conn.
func (t *tlsTransport) fill() error {
	for {
		n, err := t.sock.Read(t.buf)
		if n > 0 {
			t.mem.feed(t.buf[:n])
		}
		switch {
		case errors.Is(err, poll.ErrWouldBlock):
			return nil
		case errors.Is(err, io.EOF):
			t.mem.feedEOF()
			return nil
		case err != nil:
			return err
		case n == 0:
			return nil
		}
	}
}

func (t *tlsTransport) Write(p []byte) error {
	_, err := t.conn.Write(p)
	return err
}

func (t *tlsTransport) Flush() error {
	m := t.mem
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.out.Len() == 0 {
		return nil
	}
	n, err := t.sock.Write(m.out.Bytes())
	m.out.Next(n)
	if errors.Is(err, poll.ErrWouldBlock) {
		return nil
	}
	return err
}

func (t *tlsTransport) Pending() bool {
	m := t.mem
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.out.Len() > 0
}

// Close stops a running handshake. The socket is closed by its owner.
func (t *tlsTransport) Close() {
	t.mem.Close()
}

// memConn is the net.Conn crypto/tls talks to. During the handshake reads
// block until Step supplies bytes. Afterwards an empty conn reports a
// temporary error, which crypto/tls passes through without failing the
// connection.
type memConn struct {
	mu   sync.Mutex
	cond *sync.Cond
	in   bytes.Buffer
	out  bytes.Buffer

	blocking bool
	waiting  bool
	done     bool
	err      error
	eof      bool
	closed   bool
}

func newMemConn() *memConn {
	m := &memConn{blocking: true}
	m.cond = sync.NewCond(&m.mu)
	return m
}

func (m *memConn) finish(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.done = true
	m.err = err
	m.blocking = false
	m.cond.Broadcast()
}

func (m *memConn) feed(p []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.in.Write(p)
	m.cond.Broadcast()
}

func (m *memConn) feedEOF() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.eof = true
	m.cond.Broadcast()
}

func (m *memConn) Read(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for m.in.Len() == 0 {
		switch {
		case m.closed:
			return 0, net.ErrClosed
		case m.eof:
			return 0, io.EOF
		case !m.blocking:
			return 0, wouldBlockError{}
		}
		m.waiting = true
		m.cond.Broadcast()
		m.cond.Wait()
		m.waiting = false
	}
	return m.in.Read(p)
}

func (m *memConn) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, net.ErrClosed
	}
	m.out.Write(p)
	m.cond.Broadcast()
	return len(p), nil
}

func (m *memConn) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.cond.Broadcast()
	return nil
}

func (m *memConn) LocalAddr() net.Addr                { return memAddr{} }
func (m *memConn) RemoteAddr() net.Addr               { return memAddr{} }
func (m *memConn) SetDeadline(t time.Time) error      { return nil }
func (m *memConn) SetReadDeadline(t time.Time) error  { return nil }
func (m *memConn) SetWriteDeadline(t time.Time) error { return nil }

type memAddr struct{}

func (memAddr) Network() string { return "memory" }
func (memAddr) String() string  { return "memory" }

type wouldBlockError struct{}

func (wouldBlockError) Error() string   { return "nntp: no data available" }
func (wouldBlockError) Timeout() bool   { return true }
func (wouldBlockError) Temporary() bool { return true }

func isWouldBlock(err error) bool {
	var wb wouldBlockError
	return errors.As(err, &wb)
}
