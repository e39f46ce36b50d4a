package nntp

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/pior/nntp/internal/testutils"
	"github.com/pior/nntp/wire"
)

const testTimeout = 5 * time.Second

func quietLogger() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// recordChannel stands in for a transport. Everything written is kept.
type recordChannel struct {
	written []byte
}

func (ch *recordChannel) Read(p []byte) (int, error) { return 0, nil }
func (ch *recordChannel) Flush() error               { return nil }
func (ch *recordChannel) Pending() bool              { return false }

func (ch *recordChannel) Write(p []byte) error {
	ch.written = append(ch.written, p...)
	return nil
}

// newTestConn returns an established Conn without a socket. Bytes are fed
// with feed and commands are read back with sent.
func newTestConn(cfg Config) (*Conn, *recordChannel) {
	if cfg.Logger == nil {
		cfg.Logger = quietLogger()
	}
	cfg = cfg.withDefaults()

	ch := &recordChannel{}
	c := &Conn{
		cfg:          cfg,
		log:          cfg.Logger,
		stats:        newConnStatsCollector(),
		state:        stateEstablished,
		ch:           ch,
		term:         wire.LineTerminator,
		handlers:     make(Handlers),
		changed:      make(chan struct{}),
		disconnected: make(chan struct{}),
	}
	for ev, h := range cfg.Handlers {
		c.handlers[ev] = h
	}
	return c, ch
}

func feed(c *Conn, chunks ...string) {
	for _, chunk := range chunks {
		c.mu.Lock()
		c.inbound = append(c.inbound, chunk...)
		c.mu.Unlock()
		c.process()
	}
}

func sent(c *Conn, ch *recordChannel) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := string(ch.written)
	ch.written = nil
	return out
}

func startReactor(t testing.TB) *Reactor {
	t.Helper()
	r, err := NewReactor(quietLogger())
	require.NoError(t, err)

	loop := r.Start()
	t.Cleanup(func() {
		require.NoError(t, loop.Stop())
		require.NoError(t, r.Close())
	})
	return r
}

func dialServer(t testing.TB, r *Reactor, srv *testutils.Server, cfg Config) *Conn {
	t.Helper()
	cfg.Host = srv.Host
	cfg.Port = srv.Port
	if cfg.Logger == nil {
		cfg.Logger = quietLogger()
	}

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	c, err := Dial(ctx, r, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func waitReady(t testing.TB, c *Conn) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	require.NoError(t, c.WaitReady(ctx))
}

func waitResponse(t testing.TB, req *Request) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	require.NoError(t, req.Wait(ctx))
}

// errorSink returns an OnError hook that never blocks the reactor.
func errorSink() (chan error, func(*Conn, error)) {
	errs := make(chan error, 8)
	return errs, func(c *Conn, err error) {
		select {
		case errs <- err:
		default:
		}
	}
}
