// Package verify checks article availability in bulk with STAT.
package verify

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/pior/nntp"
	"github.com/pior/nntp/wire"
)

// DefaultConcurrency is the number of STAT requests outstanding at once.
const DefaultConcurrency = 16

// ErrNoServers is returned when a Checker has nothing to check against.
var ErrNoServers = errors.New("verify: no servers")

// Result buckets an article.
type Result int

const (
	Unknown   Result = iota // error or unexpected status
	Available               // 223
	Missing                 // 430
)

func (r Result) String() string {
	switch r {
	case Available:
		return "available"
	case Missing:
		return "missing"
	default:
		return "unknown"
	}
}

// Server is the part of nntp.Pool a Checker needs.
type Server interface {
	Stat(ctx context.Context, id string) (*nntp.Request, error)
	Addr() string
}

var _ Server = (*nntp.Pool)(nil)

// Outcome is the result for one message id.
type Outcome struct {
	ID      string
	Server  string
	Result  Result
	Code    int
	Message string
	Err     error
	Elapsed time.Duration
}

// Report summarizes a Check run. Outcomes are in input order, duplicates
// removed.
type Report struct {
	Outcomes   []Outcome
	Available  int
	Missing    int
	Unknown    int
	Duplicates int
	Elapsed    time.Duration
}

// Options configure a Checker.
type Options struct {
	// Concurrency defaults to DefaultConcurrency.
	Concurrency int

	// Selector defaults to JumpSelector.
	Selector Selector

	// Progress is called after each id, from the checking goroutines.
	Progress func(Outcome)

	// Logger defaults to logrus.StandardLogger().
	Logger logrus.FieldLogger
}

// Checker sends STAT for many ids across servers.
type Checker struct {
	servers []Server
	opts    Options
}

// New returns a Checker over servers.
func New(servers []Server, opts Options) *Checker {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Selector == nil {
		opts.Selector = JumpSelector
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &Checker{servers: servers, opts: opts}
}

// Check looks up every id. Failures of single ids land in the Unknown
// bucket; only a canceled ctx stops the run, returning the partial report
// with ctx's error.
func (c *Checker) Check(ctx context.Context, ids []string) (*Report, error) {
	if len(c.servers) == 0 {
		return nil, ErrNoServers
	}

	started := time.Now()
	ids, dups := Dedupe(ids)
	outcomes := make([]Outcome, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Concurrency)

	for i, id := range ids {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			outcomes[i] = c.check(gctx, id)
			if c.opts.Progress != nil {
				c.opts.Progress(outcomes[i])
			}
			return gctx.Err()
		})
	}
	err := g.Wait()

	report := &Report{Duplicates: dups}
	for _, o := range outcomes {
		if o.ID == "" {
			continue
		}
		report.Outcomes = append(report.Outcomes, o)
		switch o.Result {
		case Available:
			report.Available++
		case Missing:
			report.Missing++
		default:
			report.Unknown++
		}
	}
	report.Elapsed = time.Since(started)

	c.opts.Logger.WithFields(logrus.Fields{
		"checked":    len(report.Outcomes),
		"available":  report.Available,
		"missing":    report.Missing,
		"unknown":    report.Unknown,
		"duplicates": report.Duplicates,
		"elapsed":    report.Elapsed,
	}).Info("verify done")

	if err != nil {
		return report, err
	}
	return report, ctx.Err()
}

func (c *Checker) check(ctx context.Context, id string) Outcome {
	server := c.servers[c.opts.Selector(id, len(c.servers))]
	o := Outcome{ID: id, Server: server.Addr()}

	started := time.Now()
	req, err := server.Stat(ctx, id)
	o.Elapsed = time.Since(started)

	if err != nil {
		o.Err = err
		c.opts.Logger.WithError(err).WithField("id", id).Debug("stat failed")
		return o
	}

	o.Code = req.Code
	o.Message = req.Message
	switch req.Status() {
	case wire.StatusArticleExists:
		o.Result = Available
	case wire.StatusNoSuchArticle:
		o.Result = Missing
	}
	return o
}
