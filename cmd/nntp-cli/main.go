// Command nntp-cli is an interactive NNTP shell.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"

	"github.com/pior/nntp"
)

// Env holds the NNTP_* environment variables, the defaults of the flags.
type Env struct {
	Host     string       `envconfig:"HOST" default:"localhost"`
	Port     int          `envconfig:"PORT"`
	TLS      nntp.TLSMode `envconfig:"TLS"`
	Username string       `envconfig:"USERNAME"`
	Password string       `envconfig:"PASSWORD"`
	Debug    bool         `envconfig:"DEBUG"`
}

func loadEnv() (Env, error) {
	var env Env
	if err := envconfig.Process("nntp", &env); err != nil {
		return env, err
	}
	return env, nil
}

// bindFlags registers the flags on fs, defaulting to the environment.
func (e *Env) bindFlags(fs *flag.FlagSet) {
	fs.StringVar(&e.Host, "host", e.Host, "server host")
	fs.IntVar(&e.Port, "port", e.Port, "server port (default 119, or 563 with -tls=on)")
	fs.Var(&e.TLS, "tls", "transport encryption: auto, on or off")
	fs.StringVar(&e.Username, "username", e.Username, "AUTHINFO user")
	fs.StringVar(&e.Password, "password", e.Password, "AUTHINFO password")
	fs.BoolVar(&e.Debug, "debug", e.Debug, "log protocol events")
}

// config builds the connection settings.
func (e Env) config() nntp.Config {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	if e.Debug {
		logger.SetLevel(logrus.DebugLevel)
	}

	return nntp.Config{
		Host:            e.Host,
		Port:            e.Port,
		TLS:             e.TLS,
		Username:        e.Username,
		Password:        e.Password,
		Logger:          logger,
		ReconnectOnIdle: true,
	}
}

func main() {
	env, err := loadEnv()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(2)
	}
	env.bindFlags(flag.CommandLine)
	flag.Parse()
	cfg := env.config()

	fmt.Println("NNTP CLI Tool")
	fmt.Println("=============")
	fmt.Println("Type any NNTP command, or: stats, reconnect, help, exit")
	fmt.Println()

	if err := run(context.Background(), cfg, os.Stdin, os.Stdout); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg nntp.Config, in io.Reader, out io.Writer) error {
	reactor, err := nntp.NewReactor(cfg.Logger)
	if err != nil {
		return err
	}
	loop := reactor.Start()
	defer func() {
		loop.Stop()
		reactor.Close()
	}()

	cfg.OnError = func(c *nntp.Conn, err error) {
		fmt.Fprintf(out, "Connection error: %v (type 'reconnect' to retry)\n", err)
	}
	conn, err := nntp.Dial(ctx, reactor, cfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	readyCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	err = conn.WaitReady(readyCtx)
	cancel()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Connected to %s: %s\n", conn.Addr(), conn.Welcome())

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		parts := strings.Fields(line)
		switch strings.ToLower(parts[0]) {
		case "exit":
			fmt.Fprintln(out, "Goodbye!")
			return nil

		case "help":
			fmt.Fprintln(out, "Commands:")
			fmt.Fprintln(out, "  <NNTP command> [args]     - Send a command, e.g. STAT <id@host> or LIST")
			fmt.Fprintln(out, "  stats                     - Show connection statistics")
			fmt.Fprintln(out, "  reconnect                 - Drop the connection and connect again")
			fmt.Fprintln(out, "  exit                      - Leave the CLI")

		case "stats":
			handleStats(out, conn)

		case "reconnect":
			handleReconnect(ctx, out, conn)

		default:
			handleCommand(ctx, out, conn, parts)
			if strings.EqualFold(parts[0], "QUIT") {
				return nil
			}
		}
	}

	return scanner.Err()
}

func handleCommand(ctx context.Context, out io.Writer, conn *nntp.Conn, parts []string) {
	start := time.Now()
	disconnected := conn.Disconnected()
	req := nntp.NewRequest(parts[0], parts[1:]...)
	if err := conn.Send(req); err != nil {
		fmt.Fprintf(out, "Error: %v\n", err)
		return
	}

	waitCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	select {
	case <-req.Done():
	case <-disconnected:
		select {
		case <-req.Done():
		default:
			fmt.Fprintf(out, "Disconnected before a response (took %v)\n", time.Since(start))
			return
		}
	case <-waitCtx.Done():
		fmt.Fprintf(out, "Timed out (took %v)\n", time.Since(start))
		return
	}

	if err := req.Err(); err != nil {
		fmt.Fprintf(out, "Error: %v (took %v)\n", err, time.Since(start))
		return
	}

	for _, l := range req.Lines() {
		fmt.Fprintln(out, l)
	}
	if req.Multiline() && len(req.Lines()) > 1 {
		fmt.Fprintln(out, ".")
	}
	fmt.Fprintf(out, "(took %v)\n", time.Since(start))
}

func handleReconnect(ctx context.Context, out io.Writer, conn *nntp.Conn) {
	if err := conn.Reconnect(); err != nil {
		fmt.Fprintf(out, "Error: %v\n", err)
		return
	}

	readyCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := conn.WaitReady(readyCtx); err != nil {
		fmt.Fprintf(out, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(out, "Reconnected: %s\n", conn.Welcome())
}

func handleStats(out io.Writer, conn *nntp.Conn) {
	s := conn.Stats()
	fmt.Fprintf(out, "Connection Statistics (%s):\n", conn.Addr())
	fmt.Fprintf(out, "  Encryption:   %s\n", conn.HandshakeState())
	fmt.Fprintf(out, "  Connects:     %d\n", s.Connects)
	fmt.Fprintf(out, "  Reconnects:   %d\n", s.Reconnects)
	fmt.Fprintf(out, "  Sent:         %d\n", s.Sent)
	fmt.Fprintf(out, "  Completed:    %d\n", s.Completed)
	fmt.Fprintf(out, "  Unsolicited:  %d\n", s.Unsolicited)
	fmt.Fprintf(out, "  Bytes in/out: %d/%d\n", s.BytesIn, s.BytesOut)
	fmt.Fprintf(out, "  Errors:       %d\n", s.Errors)
}
