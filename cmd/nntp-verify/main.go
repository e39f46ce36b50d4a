// Command nntp-verify checks which articles a server carries.
//
// Message ids are read from the files given as arguments, or stdin, one
// per line. Each id is checked with STAT and the ids selected by --show
// are printed with their result.
package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/pior/nntp"
	"github.com/pior/nntp/internal/verify"
	"github.com/pior/nntp/promexporter"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}

	rootCmd := &cobra.Command{
		Use:   "nntp-verify [flags] [file...]",
		Short: "Check article availability on NNTP servers",
		Long: `nntp-verify sends STAT for every message id read from the given files,
or stdin, and reports which articles are available, missing or unknown.

Settings are read from NNTP_* environment variables (NNTP_HOST,
NNTP_USERNAME, NNTP_PASSWORD, ...) and overridden by flags.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfg, args, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cfg.bindFlags(rootCmd.Flags())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func newLogger(level string) (*logrus.Logger, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(lvl)
	return logger, nil
}

func insecureTLS() *tls.Config {
	return &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in flag
}

func readIDs(args []string, stdin io.Reader) ([]string, error) {
	if len(args) == 0 {
		return verify.ReadIDs(stdin)
	}

	var ids []string
	for _, name := range args {
		f, err := os.Open(name)
		if err != nil {
			return nil, err
		}
		more, err := verify.ReadIDs(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		ids = append(ids, more...)
	}
	return ids, nil
}

func run(ctx context.Context, cfg Config, args []string, stdin io.Reader, stdout io.Writer) error {
	if err := cfg.validate(); err != nil {
		return err
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}

	ids, err := readIDs(args, stdin)
	if err != nil {
		return err
	}
	servers, err := cfg.servers(logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	reactor, err := nntp.NewReactor(logger)
	if err != nil {
		return err
	}
	loop := reactor.Start()
	defer func() {
		if err := loop.Stop(); err != nil {
			logger.WithError(err).Error("reactor loop")
		}
		reactor.Close()
	}()

	exporter := promexporter.NewExporter()
	var pools []verify.Server
	for _, server := range servers {
		pool, err := nntp.NewPool(reactor, nntp.PoolConfig{
			Config:              server,
			MaxSize:             int32(cfg.Connections),
			NewCircuitBreaker:   nntp.NewCircuitBreakerConfig(1, 0, 0),
			HealthCheckInterval: time.Minute,
		})
		if err != nil {
			return err
		}
		defer pool.Close()

		exporter.AddPool(pool)
		pools = append(pools, pool)
	}

	g, gctx := errgroup.WithContext(ctx)
	if cfg.MetricsAddr != "" {
		ln, err := net.Listen("tcp", cfg.MetricsAddr)
		if err != nil {
			return err
		}
		logger.WithField("addr", ln.Addr().String()).Info("serving metrics")
		g.Go(func() error { return exporter.Serve(gctx, ln) })
	}

	metrics := exporter.VerifyMetrics()
	reporter := NewReporter(gctx, logger, len(ids), cfg.Progress)
	checker := verify.New(pools, verify.Options{
		Concurrency: cfg.Concurrency,
		Logger:      logger,
		Progress: func(o verify.Outcome) {
			reporter.Record(o)
			metrics.RecordOutcome(o.Server, o.Result.String(), o.Elapsed)
		},
	})

	var report *verify.Report
	g.Go(func() error {
		defer cancel()

		metrics.Start(len(ids))
		var err error
		report, err = checker.Check(gctx, ids)
		if report != nil {
			metrics.Finish(report.Elapsed)
		}
		return err
	})

	err = g.Wait()
	reporter.Stop()
	if report != nil {
		if werr := printReport(stdout, report, cfg.Show); werr != nil {
			return werr
		}
	}
	return err
}

func printReport(w io.Writer, report *verify.Report, show string) error {
	for _, o := range report.Outcomes {
		if show != "all" && show != o.Result.String() {
			continue
		}
		line := fmt.Sprintf("%s\t%s\t%d", o.ID, o.Result, o.Code)
		if o.Err != nil {
			line += "\t" + o.Err.Error()
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
