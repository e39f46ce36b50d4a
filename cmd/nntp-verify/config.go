package main

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/pior/nntp"
)

// Config is read from NNTP_* environment variables first, then flags.
type Config struct {
	Host     string       `envconfig:"HOST"`
	Port     int          `envconfig:"PORT"`
	Mirrors  []string     `envconfig:"MIRRORS"` // more host:port serving the same articles
	TLS      nntp.TLSMode `envconfig:"TLS"`
	Insecure bool         `envconfig:"TLS_INSECURE"`
	Username string       `envconfig:"USERNAME"`
	Password string       `envconfig:"PASSWORD"`

	Connections int           `envconfig:"CONNECTIONS" default:"4"`
	Concurrency int           `envconfig:"CONCURRENCY" default:"16"`
	Timeout     time.Duration `envconfig:"TIMEOUT" default:"10m"`

	Show        string        `envconfig:"SHOW" default:"missing"`
	MetricsAddr string        `envconfig:"METRICS_ADDR"`
	LogLevel    string        `envconfig:"LOG_LEVEL" default:"info"`
	Progress    time.Duration `envconfig:"PROGRESS" default:"5s"`
}

func loadConfig() (Config, error) {
	var cfg Config
	if err := envconfig.Process("nntp", &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) bindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.Host, "host", c.Host, "server host")
	fs.IntVar(&c.Port, "port", c.Port, "server port (default 119, or 563 with --tls=on)")
	fs.StringSliceVar(&c.Mirrors, "mirror", c.Mirrors, "additional host:port with the same articles, ids are spread across servers")
	fs.Var(&c.TLS, "tls", "transport encryption: auto, on or off")
	fs.BoolVar(&c.Insecure, "tls-insecure", c.Insecure, "skip certificate verification")
	fs.StringVar(&c.Username, "username", c.Username, "AUTHINFO user")
	fs.StringVar(&c.Password, "password", c.Password, "AUTHINFO password")
	fs.IntVar(&c.Connections, "connections", c.Connections, "connections per server")
	fs.IntVar(&c.Concurrency, "concurrency", c.Concurrency, "requests outstanding at once")
	fs.DurationVar(&c.Timeout, "timeout", c.Timeout, "overall deadline")
	fs.StringVar(&c.Show, "show", c.Show, "ids to print: available, missing, unknown, all or none")
	fs.StringVar(&c.MetricsAddr, "metrics-addr", c.MetricsAddr, "serve Prometheus metrics on this address")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level")
	fs.DurationVar(&c.Progress, "progress", c.Progress, "progress log interval, 0 disables")
}

func (c Config) validate() error {
	if c.Host == "" {
		return fmt.Errorf("no host: set --host or NNTP_HOST")
	}
	if c.Connections <= 0 {
		return fmt.Errorf("connections must be positive")
	}
	switch c.Show {
	case "available", "missing", "unknown", "all", "none":
	default:
		return fmt.Errorf("invalid --show %q", c.Show)
	}
	return nil
}

// servers returns the connection settings of every server, the main one
// first.
func (c Config) servers(logger logrus.FieldLogger) ([]nntp.Config, error) {
	base := nntp.Config{
		Host:     c.Host,
		Port:     c.Port,
		TLS:      c.TLS,
		Username: c.Username,
		Password: c.Password,
		Logger:   logger,
	}
	if c.Insecure {
		base.TLSConfig = insecureTLS()
	}

	out := []nntp.Config{base}
	for _, mirror := range c.Mirrors {
		host, port, err := net.SplitHostPort(mirror)
		if err != nil {
			return nil, fmt.Errorf("mirror %q: %w", mirror, err)
		}
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("mirror %q: %w", mirror, err)
		}

		cfg := base
		cfg.Host, cfg.Port = host, p
		out = append(out, cfg)
	}
	return out, nil
}
