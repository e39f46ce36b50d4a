package nntp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pior/nntp/internal/coarsetime"
	"github.com/pior/nntp/internal/poll"
	"github.com/pior/nntp/wire"
)

type transportState int

const (
	stateClosed transportState = iota
	stateConnecting
	stateNegotiating
	stateEstablished
)

func (s transportState) String() string {
	switch s {
	case stateConnecting:
		return "connecting"
	case stateNegotiating:
		return "negotiating"
	case stateEstablished:
		return "established"
	default:
		return "closed"
	}
}

// Conn is one NNTP session driven by a Reactor.
//
// Requests are sent one at a time in submission order and responses are
// matched to them in that order. Requests submitted before the session is
// ready are queued and sent once it is. Conn is safe for concurrent use.
type Conn struct {
	cfg     Config
	log     logrus.FieldLogger
	reactor *Reactor
	useTLS  bool
	addr    netip.AddrPort
	stats   *connStatsCollector

	mu        sync.Mutex
	state     transportState
	handshake HandshakeState
	sock      *poll.Socket
	ch        channel
	tls       *tlsTransport
	wantWrite bool // handshake waits for write readiness
	watchOut  bool // write readiness registered with the reactor

	inbound []byte
	readBuf []byte
	term    wire.Terminator
	pipe    pipeline

	welcomed    bool
	ready       bool
	welcome     string
	expectClose bool
	authErr     error
	lastErr     error
	closed      bool
	lastActive  time.Time

	handlers     Handlers
	changed      chan struct{}
	disconnected chan struct{}
}

// Dial resolves cfg.Host and starts connecting on r. It returns as soon as
// the connect is under way; use WaitReady or the on_ready event to learn
// when commands flow.
func Dial(ctx context.Context, r *Reactor, cfg Config) (*Conn, error) {
	cfg = cfg.withDefaults()
	if cfg.Host == "" {
		return nil, errors.New("nntp: no host configured")
	}

	addr, err := resolve(ctx, cfg.Host, cfg.Port)
	if err != nil {
		return nil, &ConnectionError{Op: "dial", Addr: cfg.Addr(), Err: err}
	}

	c := &Conn{
		cfg:     cfg,
		reactor: r,
		useTLS:  cfg.UseTLS(),
		addr:    addr,
		stats:   newConnStatsCollector(),
		log: cfg.Logger.WithFields(logrus.Fields{
			"host": cfg.Host,
			"port": cfg.Port,
		}),
		readBuf:      make([]byte, cfg.ReadBufferSize),
		term:         wire.LineTerminator,
		handlers:     make(Handlers, len(cfg.Handlers)),
		changed:      make(chan struct{}),
		disconnected: make(chan struct{}),
	}
	for ev, h := range cfg.Handlers {
		c.handlers[ev] = h
	}
	close(c.disconnected)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.connectLocked(); err != nil {
		return nil, err
	}
	return c, nil
}

func resolve(ctx context.Context, host string, port int) (netip.AddrPort, error) {
	if ip, err := netip.ParseAddr(host); err == nil {
		return netip.AddrPortFrom(ip, uint16(port)), nil
	}

	ips, err := net.DefaultResolver.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return netip.AddrPort{}, err
	}
	if len(ips) == 0 {
		return netip.AddrPort{}, fmt.Errorf("no address for %s", host)
	}
	for _, ip := range ips {
		if ip.Unmap().Is4() {
			return netip.AddrPortFrom(ip.Unmap(), uint16(port)), nil
		}
	}
	return netip.AddrPortFrom(ips[0], uint16(port)), nil
}

// connectLocked opens a socket and registers it. The resolved address is
// reused across reconnects.
func (c *Conn) connectLocked() error {
	sock, err := poll.Connect(c.addr)
	if err != nil {
		return &ConnectionError{Op: "dial", Addr: c.cfg.Addr(), Err: err}
	}

	if err := c.reactor.add(c, sock.Fd()); err != nil {
		sock.Close()
		return err
	}

	c.sock = sock
	c.state = stateConnecting
	c.handshake = HandshakePlain
	c.watchOut = true
	c.wantWrite = false
	c.term = wire.LineTerminator
	c.inbound = nil
	c.disconnected = make(chan struct{})
	c.lastActive = coarsetime.Now()
	c.notifyLocked()

	c.log.Debug("connecting")
	return nil
}

// handleEvent is called by the reactor for readiness on fd.
func (c *Conn) handleEvent(ev poll.Event) {
	c.mu.Lock()
	sock := c.sock
	if sock == nil || sock.Fd() != ev.Fd {
		c.mu.Unlock()
		return
	}
	eof, err := c.ioLocked(ev)
	c.mu.Unlock()

	// Data read before a failure or EOF is delivered first.
	c.process()

	switch {
	case err != nil:
		c.fail(sock, err)
	case eof:
		c.peerClosed(sock)
	}
}

func (c *Conn) ioLocked(ev poll.Event) (bool, error) {
	if c.state == stateConnecting {
		ok, err := c.sock.Connected()
		if err != nil {
			return false, &ConnectionError{Op: "connect", Addr: c.cfg.Addr(), Err: err}
		}
		if !ok {
			return false, nil
		}
		c.transportUpLocked()
	}

	if c.state == stateNegotiating {
		if !c.stepHandshakeLocked() {
			c.updateInterestLocked()
			if c.handshake == HandshakeFailed {
				return false, c.lastErr
			}
			return false, nil
		}
	}

	if err := c.ch.Flush(); err != nil {
		return false, &ConnectionError{Op: "write", Addr: c.cfg.Addr(), Err: err}
	}

	eof, err := c.readLocked()
	c.updateInterestLocked()
	return eof, err
}

// transportUpLocked runs once the TCP connect completed.
func (c *Conn) transportUpLocked() {
	c.stats.recordConnect()
	c.term = wire.LineTerminator

	if !c.useTLS {
		c.ch = &plainChannel{sock: c.sock}
		c.state = stateEstablished
		c.log.Debug("connected")
		return
	}

	c.tls = newTLSTransport(c.sock, c.cfg.tlsConfig(), c.cfg.ReadBufferSize)
	c.state = stateNegotiating
	c.handshake = HandshakeNegotiating
	c.log.Debug("negotiating tls")
}

// stepHandshakeLocked advances TLS and reports whether it completed.
func (c *Conn) stepHandshakeLocked() bool {
	res := c.tls.Step()
	switch res.Status {
	case HandshakeWantRead:
		c.wantWrite = false
	case HandshakeWantWrite:
		c.wantWrite = true
	case HandshakeFatal:
		c.handshake = HandshakeFailed
		c.lastErr = &HandshakeError{Addr: c.cfg.Addr(), Err: res.Err}
	case HandshakeComplete:
		c.wantWrite = false
		c.handshake = HandshakeEstablished
		c.state = stateEstablished
		c.ch = c.tls
		c.log.WithField("version", tls.VersionName(c.tls.conn.ConnectionState().Version)).Debug("tls established")
		return true
	}
	return false
}

// readLocked drains the channel into the inbound buffer. It reports EOF
// separately so buffered data is processed before the close.
func (c *Conn) readLocked() (bool, error) {
	for {
		n, err := c.ch.Read(c.readBuf)
		if n > 0 {
			c.inbound = append(c.inbound, c.readBuf[:n]...)
			c.stats.recordRead(n)
			c.lastActive = coarsetime.Now()
		}
		switch {
		case errors.Is(err, io.EOF):
			return true, nil
		case err != nil:
			return false, &ConnectionError{Op: "read", Addr: c.cfg.Addr(), Err: err}
		case n == 0:
			return false, nil
		}
	}
}

func (c *Conn) updateInterestLocked() {
	if c.sock == nil {
		return
	}

	var write bool
	switch c.state {
	case stateConnecting:
		write = true
	case stateNegotiating:
		write = c.wantWrite
	case stateEstablished:
		write = c.ch.Pending()
	}

	if write == c.watchOut {
		return
	}
	if err := c.reactor.watch(c.sock.Fd(), write); err != nil {
		c.log.WithError(err).Warn("updating readiness interest")
		return
	}
	c.watchOut = write
}

// process completes every response available in the inbound buffer and
// keeps the pipeline moving. Handlers run without the lock.
func (c *Conn) process() {
	for {
		c.mu.Lock()
		c.sendNextLocked()
		req := c.scanLocked()
		if req == nil {
			c.updateInterestLocked()
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()

		c.stats.recordComplete(req)
		c.complete(req)
	}
}

// scanLocked feeds inbound bytes to the in-flight request and returns it
// once its response completed.
//
// A multi-line command is framed in two steps: its status line is read
// first, and only a success code switches to the multi-line terminator.
// The status line's CRLF is given back to the framer since it also opens
// the terminator of an empty data block.
func (c *Conn) scanLocked() *Request {
	if c.state != stateEstablished {
		return nil
	}

	for {
		frame, rest, ok := wire.Next(c.inbound, c.term)
		if !ok {
			return nil
		}
		c.inbound = rest

		req := c.pipe.inFlight
		if req == nil {
			req = newUnsolicited()
			c.pipe.inFlight = req
		}
		req.collect(frame.Data)

		if !frame.End {
			continue
		}

		if req.multiline && !req.statusSeen {
			req.statusSeen = true
			if code, ok := req.statusCode(); ok && wire.IsMultiLineStatus(code) {
				c.term = wire.MultiLineTerminator
				c.inbound = append([]byte(wire.CRLF), c.inbound...)
				continue
			}
		}

		c.pipe.inFlight = nil
		c.term = wire.LineTerminator
		req.finalize()
		return req
	}
}

// sendNextLocked sends the head of the pipeline if nothing is in flight.
func (c *Conn) sendNextLocked() {
	if c.state != stateEstablished {
		return
	}

	req := c.pipe.next(c.welcomed, c.ready)
	if req == nil {
		return
	}

	c.pipe.inFlight = req
	c.term = wire.LineTerminator
	req.sentAt = coarsetime.Now()

	if err := c.ch.Write(req.line); err != nil {
		// The reactor reports the transport failure on the next event.
		c.log.WithError(err).Warn("buffering command")
		return
	}
	c.stats.recordSend(len(req.line))
	if err := c.ch.Flush(); err != nil {
		c.log.WithError(err).Debug("flushing command")
	}

	c.log.WithField("command", req.Command).Debug("sent")
}

// Send queues req. It is written once every request submitted before it
// completed and the session is ready.
func (c *Conn) Send(req *Request) error {
	return c.submit(req, false)
}

// sendSetup queues a session setup command ahead of user requests.
func (c *Conn) sendSetup(req *Request) {
	if err := c.submit(req, true); err != nil {
		c.log.WithError(err).Error("queueing session setup")
	}
}

func (c *Conn) submit(req *Request, setup bool) error {
	line, err := req.Line()
	if err != nil {
		return err
	}
	if !req.submitted.CompareAndSwap(false, true) {
		return ErrRequestReused
	}
	req.line = line
	req.setup = setup

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrConnectionClosed
	}

	c.pipe.push(req)
	c.sendNextLocked()
	c.updateInterestLocked()
	return nil
}

// fail closes the transport after a fatal error and reports it.
func (c *Conn) fail(sock *poll.Socket, err error) {
	c.mu.Lock()
	if c.sock != sock {
		c.mu.Unlock()
		return
	}
	c.lastErr = err
	c.closeTransportLocked()
	c.mu.Unlock()

	c.stats.recordError()
	c.log.WithError(err).Error("connection failed")
	if c.cfg.OnError != nil {
		c.cfg.OnError(c, err)
	}
}

// peerClosed handles EOF. A close after QUIT or a 400 notice is expected.
func (c *Conn) peerClosed(sock *poll.Socket) {
	c.mu.Lock()
	if c.sock != sock {
		c.mu.Unlock()
		return
	}
	expected := c.expectClose
	if expected {
		c.closeTransportLocked()
	}
	c.mu.Unlock()

	if expected {
		c.log.Debug("server closed the connection")
		return
	}
	c.fail(sock, ErrConnectionClosed)
}

// closeTransportLocked drops the socket and the session state. Queued
// requests are kept; see pipeline.interrupt.
func (c *Conn) closeTransportLocked() {
	if c.sock == nil {
		return
	}

	if err := c.reactor.remove(c.sock.Fd()); err != nil {
		c.log.WithError(err).Debug("removing from reactor")
	}
	if c.tls != nil {
		c.tls.Close()
	}
	if err := c.sock.Close(); err != nil {
		c.log.WithError(err).Debug("closing socket")
	}

	c.sock = nil
	c.ch = nil
	c.tls = nil
	c.state = stateClosed
	if c.handshake != HandshakeFailed {
		c.handshake = HandshakePlain
	}
	c.wantWrite = false
	c.watchOut = false

	c.welcomed = false
	c.ready = false
	c.inbound = nil
	c.term = wire.LineTerminator
	c.pipe.interrupt()

	close(c.disconnected)
	c.notifyLocked()
}

// Reconnect drops the current transport, if any, and connects again.
// Queued requests survive and a request that was in flight is sent again
// first, once the new session is ready. Calling it on a closed transport
// just connects.
func (c *Conn) Reconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrConnectionClosed
	}

	c.closeTransportLocked()
	c.expectClose = false
	c.authErr = nil
	c.lastErr = nil

	if err := c.connectLocked(); err != nil {
		c.lastErr = err
		c.notifyLocked()
		return err
	}
	c.stats.recordReconnect()
	c.log.Info("reconnecting")
	return nil
}

// Close shuts the connection down for good. Requests still queued never
// complete. Use Quit for a graceful end of session.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.closeTransportLocked()
	c.notifyLocked()
	c.mu.Unlock()

	c.reactor.detach(c)
	return nil
}

func (c *Conn) notifyLocked() {
	close(c.changed)
	c.changed = make(chan struct{})
}

// WaitReady blocks until the session is ready. It fails early when
// authentication failed or the transport is down without a reconnect
// under way.
func (c *Conn) WaitReady(ctx context.Context) error {
	for {
		c.mu.Lock()
		switch {
		case c.ready:
			c.mu.Unlock()
			return nil
		case c.closed:
			c.mu.Unlock()
			return ErrConnectionClosed
		case c.authErr != nil:
			err := c.authErr
			c.mu.Unlock()
			return err
		case c.state == stateClosed && c.lastErr != nil:
			err := c.lastErr
			c.mu.Unlock()
			return err
		}
		changed := c.changed
		c.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Ready reports whether the session accepts commands.
func (c *Conn) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

// Established reports whether the transport carries protocol traffic.
func (c *Conn) Established() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == stateEstablished
}

// HandshakeState returns the encryption state.
func (c *Conn) HandshakeState() HandshakeState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handshake
}

// Welcome returns the server greeting of the current session.
func (c *Conn) Welcome() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.welcome
}

// Err returns the last transport, handshake or authentication error.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.authErr != nil {
		return c.authErr
	}
	return c.lastErr
}

// Disconnected is closed when the current transport goes away.
func (c *Conn) Disconnected() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnected
}

// Queued returns the number of requests waiting to be sent.
func (c *Conn) Queued() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pipe.queued()
}

// InFlight reports whether a response is being received.
func (c *Conn) InFlight() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pipe.inFlight != nil
}

// LastActive returns when data was last received or the connect started.
func (c *Conn) LastActive() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActive
}

// Addr returns host:port.
func (c *Conn) Addr() string {
	return c.cfg.Addr()
}

// Stats returns a snapshot of the connection counters.
func (c *Conn) Stats() ConnStats {
	return c.stats.snapshot()
}
