package nntp

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pior/nntp/internal/poll"
)

// Reactor drives the I/O of many connections from a single loop. It is
// level-triggered: a connection is notified for as long as it has
// something to do.
//
// Drive it either by calling Poll repeatedly from one goroutine, or with
// Run or Start. Only one of them may be active at a time.
type Reactor struct {
	poller  *poll.Poller
	log     logrus.FieldLogger
	running atomic.Bool

	mu     sync.Mutex
	fds    map[int]*Conn
	conns  map[*Conn]struct{}
	closed bool

	events []poll.Event
}

// NewReactor creates a reactor. A nil logger uses logrus.StandardLogger().
func NewReactor(logger logrus.FieldLogger) (*Reactor, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	poller, err := poll.NewPoller()
	if err != nil {
		return nil, err
	}

	return &Reactor{
		poller: poller,
		log:    logger,
		fds:    make(map[int]*Conn),
		conns:  make(map[*Conn]struct{}),
	}, nil
}

// Poll waits up to timeout for readiness and handles what is ready. A
// negative timeout waits until something happens. It returns the number
// of events handled.
func (r *Reactor) Poll(timeout time.Duration) (int, error) {
	if !r.running.CompareAndSwap(false, true) {
		return 0, ErrReactorRunning
	}
	defer r.running.Store(false)

	return r.poll(timeout)
}

func (r *Reactor) poll(timeout time.Duration) (int, error) {
	events, err := r.poller.Wait(r.events[:0], timeout)
	if err != nil {
		return 0, err
	}
	r.events = events

	for _, ev := range events {
		r.mu.Lock()
		c := r.fds[ev.Fd]
		r.mu.Unlock()

		if c != nil {
			c.handleEvent(ev)
		}
	}
	return len(events), nil
}

// Run handles events until ctx is done.
func (r *Reactor) Run(ctx context.Context) error {
	if !r.running.CompareAndSwap(false, true) {
		return ErrReactorRunning
	}
	defer r.running.Store(false)

	stop := context.AfterFunc(ctx, func() {
		if err := r.poller.Wake(); err != nil {
			r.log.WithError(err).Warn("waking reactor")
		}
	})
	defer stop()

	r.log.Debug("reactor started")
	defer r.log.Debug("reactor stopped")

	for ctx.Err() == nil {
		if _, err := r.poll(-1); err != nil {
			return err
		}
	}
	return nil
}

// Start runs the loop on its own goroutine. The caller owns the returned
// handle and stops the loop with it.
func (r *Reactor) Start() *Loop {
	ctx, cancel := context.WithCancel(context.Background())
	l := &Loop{
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(l.done)
		l.err = r.Run(ctx)
	}()

	return l
}

// Close closes every connection and releases the poller. The loop must be
// stopped first.
func (r *Reactor) Close() error {
	if r.running.Load() {
		return ErrReactorRunning
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	conns := make([]*Conn, 0, len(r.conns))
	for c := range r.conns {
		conns = append(conns, c)
	}
	r.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
	return r.poller.Close()
}

// Conns returns the number of connections attached.
func (r *Reactor) Conns() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// add watches fd for c, read and write, write completing the connect.
func (r *Reactor) add(c *Conn, fd int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrReactorClosed
	}
	if err := r.poller.Add(fd, true, true); err != nil {
		return err
	}
	r.fds[fd] = c
	r.conns[c] = struct{}{}
	return nil
}

func (r *Reactor) watch(fd int, write bool) error {
	return r.poller.Modify(fd, true, write)
}

func (r *Reactor) remove(fd int) error {
	r.mu.Lock()
	delete(r.fds, fd)
	r.mu.Unlock()

	return r.poller.Remove(fd)
}

func (r *Reactor) detach(c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, c)
}

// Loop is a running reactor loop.
type Loop struct {
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Stop ends the loop and waits for it to exit. It returns the error that
// ended the loop early, if any.
func (l *Loop) Stop() error {
	l.cancel()
	<-l.done
	return l.err
}

// Done is closed when the loop exited.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Err returns why the loop exited. Only valid after Done is closed.
func (l *Loop) Err() error {
	return l.err
}
