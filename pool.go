package nntp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/puddle/v2"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"

	"github.com/pior/nntp/wire"
)

const (
	// DefaultReadyTimeout bounds how long a new pooled connection may take
	// to greet and authenticate.
	DefaultReadyTimeout = 30 * time.Second

	// DefaultHealthCheckTimeout bounds the DATE round trip of a health check.
	DefaultHealthCheckTimeout = 5 * time.Second
)

// ErrPoolClosed is returned when using a closed Pool.
var ErrPoolClosed = errors.New("nntp: pool closed")

// PoolConfig holds the settings of a Pool.
type PoolConfig struct {
	// Config is used to dial every connection of the pool.
	Config

	// MaxSize is the maximum number of connections in the pool.
	// Required: must be > 0.
	MaxSize int32

	// ReadyTimeout bounds the session setup of a new connection.
	// Defaults to DefaultReadyTimeout.
	ReadyTimeout time.Duration

	// NewCircuitBreaker creates the circuit breaker of the pool.
	// If nil, no circuit breaker is used.
	NewCircuitBreaker func(addr string) *gobreaker.CircuitBreaker[*Request]

	// MaxConnLifetime is the maximum age of a connection.
	// Zero means no limit.
	MaxConnLifetime time.Duration

	// MaxConnIdleTime is the maximum time a connection may stay idle.
	// Zero means no limit.
	MaxConnIdleTime time.Duration

	// HealthCheckInterval is how often idle connections are checked with
	// DATE, and closed when stale or unhealthy. Zero disables the checks;
	// connections whose session ended are still skipped when borrowed.
	HealthCheckInterval time.Duration

	// HealthCheckTimeout bounds one health check.
	// Defaults to DefaultHealthCheckTimeout.
	HealthCheckTimeout time.Duration
}

// Pool is a blocking facade over ready connections sharing one reactor.
// Each call borrows a connection for a single request, so requests run in
// parallel across connections. The reactor loop must be running.
type Pool struct {
	addr           string
	log            logrus.FieldLogger
	pool           *puddle.Pool[*Conn]
	circuitBreaker *gobreaker.CircuitBreaker[*Request]
	maxSize        int

	maxConnLifetime    time.Duration
	maxConnIdleTime    time.Duration
	healthCheckTimeout time.Duration
	stopHealthCheck    chan struct{}
	healthCheckDone    chan struct{}
	closeOnce          sync.Once

	createdConns   atomic.Int64
	destroyedConns atomic.Int64
	requests       atomic.Uint64
	requestErrors  atomic.Uint64

	mu    sync.Mutex
	conns map[*Conn]struct{}
}

// NewPool creates a pool. Connections are dialed on demand.
func NewPool(r *Reactor, config PoolConfig) (*Pool, error) {
	readyTimeout := config.ReadyTimeout
	if readyTimeout <= 0 {
		readyTimeout = DefaultReadyTimeout
	}

	healthCheckTimeout := config.HealthCheckTimeout
	if healthCheckTimeout <= 0 {
		healthCheckTimeout = DefaultHealthCheckTimeout
	}

	defaults := config.Config.withDefaults()
	p := &Pool{
		addr:               defaults.Addr(),
		log:                defaults.Logger.WithField("server", defaults.Addr()),
		maxSize:            int(config.MaxSize),
		maxConnLifetime:    config.MaxConnLifetime,
		maxConnIdleTime:    config.MaxConnIdleTime,
		healthCheckTimeout: healthCheckTimeout,
		conns:              make(map[*Conn]struct{}),
	}

	poolConfig := &puddle.Config[*Conn]{
		Constructor: func(ctx context.Context) (*Conn, error) {
			conn, err := Dial(ctx, r, config.Config)
			if err != nil {
				return nil, err
			}

			readyCtx, cancel := context.WithTimeout(ctx, readyTimeout)
			defer cancel()
			if err := conn.WaitReady(readyCtx); err != nil {
				conn.Close()
				return nil, err
			}

			p.track(conn)
			p.createdConns.Add(1)
			return conn, nil
		},
		Destructor: func(c *Conn) {
			p.untrack(c)
			p.destroyedConns.Add(1)
			_ = c.Close()
		},
		MaxSize: config.MaxSize,
	}

	pool, err := puddle.NewPool(poolConfig)
	if err != nil {
		return nil, err
	}
	p.pool = pool

	if config.NewCircuitBreaker != nil {
		p.circuitBreaker = config.NewCircuitBreaker(p.addr)
	}

	if config.HealthCheckInterval > 0 {
		p.stopHealthCheck = make(chan struct{})
		p.healthCheckDone = make(chan struct{})
		go p.healthCheckLoop(config.HealthCheckInterval)
	}
	return p, nil
}

func (p *Pool) track(c *Conn) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.conns[c] = struct{}{}
}

func (p *Pool) untrack(c *Conn) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.conns, c)
}

// Addr returns the server address.
func (p *Pool) Addr() string {
	return p.addr
}

// Do sends req on a pooled connection and waits for its response.
// Responses with a negative status code are not errors; check req.Code.
func (p *Pool) Do(ctx context.Context, req *Request) (*Request, error) {
	p.requests.Add(1)

	var resp *Request
	var err error
	if p.circuitBreaker == nil {
		resp, err = p.execDirect(ctx, req)
	} else {
		resp, err = p.circuitBreaker.Execute(func() (*Request, error) {
			return p.execDirect(ctx, req)
		})
	}

	if err != nil {
		p.requestErrors.Add(1)
	}
	return resp, err
}

// execDirect performs the request without circuit breaker.
func (p *Pool) execDirect(ctx context.Context, req *Request) (*Request, error) {
	resource, err := p.acquire(ctx)
	if err != nil {
		return nil, err
	}

	resp, keep, err := roundTrip(ctx, resource.Value(), req)
	if keep {
		resource.Release()
	} else {
		resource.Destroy()
	}
	return resp, err
}

// acquire borrows a ready connection. Connections whose session ended
// while idle, e.g. after a "400 idle timeout", are destroyed on the way.
func (p *Pool) acquire(ctx context.Context) (*puddle.Resource[*Conn], error) {
	for attempt := 0; ; attempt++ {
		resource, err := p.pool.Acquire(ctx)
		if err != nil {
			if errors.Is(err, puddle.ErrClosedPool) {
				return nil, ErrPoolClosed
			}
			return nil, err
		}

		conn := resource.Value()
		if conn.Ready() {
			return resource, nil
		}
		resource.Destroy()
		p.log.Debug("destroyed a connection that is no longer ready")

		// Every idle connection was tried and a fresh one did not stay up.
		if attempt > p.maxSize {
			if err := conn.Err(); err != nil {
				return nil, err
			}
			return nil, ErrConnectionClosed
		}
	}
}

// roundTrip sends req on conn and waits for its response. keep reports
// whether conn can serve the next request; resp is nil when no response
// arrived.
func roundTrip(ctx context.Context, conn *Conn, req *Request) (resp *Request, keep bool, err error) {
	disconnected := conn.Disconnected()

	if err := conn.Send(req); err != nil {
		keep = errors.Is(err, ErrRequestReused) || errors.Is(err, wire.ErrInvalidArgument)
		return nil, keep, err
	}

	select {
	case <-req.Done():
		return req, true, req.Err()

	case <-disconnected:
		select {
		case <-req.Done():
			return req, false, req.Err()
		default:
		}
		if err := conn.Err(); err != nil {
			return nil, false, err
		}
		return nil, false, ErrConnectionClosed

	case <-ctx.Done():
		// The response would still arrive later, ahead of the next user.
		return nil, false, ctx.Err()
	}
}

func (p *Pool) healthCheckLoop(interval time.Duration) {
	defer close(p.healthCheckDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopHealthCheck:
			return
		case <-ticker.C:
			p.checkIdleConns()
		}
	}
}

// checkIdleConns destroys idle connections that are stale or fail a
// health check.
func (p *Pool) checkIdleConns() {
	now := time.Now()

	for _, res := range p.pool.AcquireAllIdle() {
		conn := res.Value()

		switch {
		case !conn.Ready():
			res.Destroy()
			continue
		case p.maxConnLifetime > 0 && now.Sub(res.CreationTime()) > p.maxConnLifetime:
			res.Destroy()
			continue
		case p.maxConnIdleTime > 0 && res.IdleDuration() > p.maxConnIdleTime:
			res.Destroy()
			continue
		}

		if err := p.healthCheck(conn); err != nil {
			p.log.WithError(err).Debug("health check failed")
			res.Destroy()
			continue
		}
		res.ReleaseUnused()
	}
}

// healthCheck sends DATE, the cheapest command every server answers.
func (p *Pool) healthCheck(conn *Conn) error {
	ctx, cancel := context.WithTimeout(context.Background(), p.healthCheckTimeout)
	defer cancel()

	req := NewRequest(wire.CmdDate)
	resp, _, err := roundTrip(ctx, conn, req)
	if err != nil {
		return err
	}
	if resp.Status() != wire.StatusDate {
		return fmt.Errorf("nntp: health check failed: %d %s", resp.Code, resp.Message)
	}
	return nil
}

// Stat checks whether an article exists. The response code tells:
// 223 exists, 430 does not.
func (p *Pool) Stat(ctx context.Context, id string) (*Request, error) {
	return p.Do(ctx, NewRequest(wire.CmdStat, id))
}

// Stats returns a snapshot of pool statistics.
func (p *Pool) Stats() PoolStats {
	s := p.pool.Stat()

	stats := PoolStats{
		TotalConns:        s.TotalResources(),
		IdleConns:         s.IdleResources(),
		ActiveConns:       s.AcquiredResources(),
		AcquireCount:      uint64(s.AcquireCount()),
		AcquireWaitCount:  uint64(s.EmptyAcquireCount()),
		CreatedConns:      uint64(p.createdConns.Load()),
		DestroyedConns:    uint64(p.destroyedConns.Load()),
		AcquireErrors:     uint64(s.CanceledAcquireCount()),
		AcquireWaitTimeNs: uint64(s.EmptyAcquireWaitTime().Nanoseconds()),
		Requests:          p.requests.Load(),
		RequestErrors:     p.requestErrors.Load(),
	}

	p.mu.Lock()
	for c := range p.conns {
		stats.Conns.add(c.Stats())
	}
	p.mu.Unlock()

	return stats
}

// CircuitBreakerState returns the breaker state, StateClosed without one.
func (p *Pool) CircuitBreakerState() gobreaker.State {
	if p.circuitBreaker == nil {
		return gobreaker.StateClosed
	}
	return p.circuitBreaker.State()
}

// Close stops the health checks and destroys every connection. It blocks
// until borrowed connections are returned.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		if p.stopHealthCheck != nil {
			close(p.stopHealthCheck)
			<-p.healthCheckDone
		}
		p.pool.Close()
	})
}
