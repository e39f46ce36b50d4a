package nntp

import (
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/pior/nntp/wire"
)

const (
	// DefaultPort is the plain NNTP port.
	DefaultPort = 119

	// DefaultTLSPort is the NNTP over TLS port.
	DefaultTLSPort = 563

	// DefaultReadBufferSize is the size of a single socket read.
	DefaultReadBufferSize = 32 * 1024
)

// TLSMode selects whether the transport is encrypted.
type TLSMode int

const (
	// TLSAuto encrypts when the port is one of wire.TLSPorts.
	TLSAuto TLSMode = iota
	// TLSOn always encrypts.
	TLSOn
	// TLSOff never encrypts.
	TLSOff
)

func (m TLSMode) String() string {
	switch m {
	case TLSOn:
		return "on"
	case TLSOff:
		return "off"
	default:
		return "auto"
	}
}

// ParseTLSMode parses "auto", "on" or "off". Boolean spellings are
// accepted for on and off.
func ParseTLSMode(s string) (TLSMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return TLSAuto, nil
	case "on", "true", "yes", "1":
		return TLSOn, nil
	case "off", "false", "no", "0":
		return TLSOff, nil
	}
	return TLSAuto, fmt.Errorf("nntp: invalid tls mode %q", s)
}

// Set implements flag.Value.
func (m *TLSMode) Set(s string) error {
	mode, err := ParseTLSMode(s)
	if err != nil {
		return err
	}
	*m = mode
	return nil
}

// Decode lets environment decoders parse a TLSMode.
func (m *TLSMode) Decode(s string) error { return m.Set(s) }

// Type names the value in flag usage.
func (m *TLSMode) Type() string { return "tls-mode" }

// Config holds the settings of a single connection.
type Config struct {
	// Host is the server name or address. Required.
	Host string

	// Port defaults to DefaultTLSPort when TLS is TLSOn, else DefaultPort.
	Port int

	// TLS selects transport encryption. Zero value is TLSAuto.
	TLS TLSMode

	// TLSConfig is cloned for each handshake. ServerName defaults to Host.
	TLSConfig *tls.Config

	// Username and Password are sent with AUTHINFO once the server
	// greeted. No authentication happens when Username is empty.
	Username string
	Password string

	// Handlers are user handlers keyed by event. They run after the
	// internal handler of the same event.
	Handlers Handlers

	// OnError receives transport and handshake failures. The connection
	// is already closed when it runs; call Reconnect to retry.
	OnError func(c *Conn, err error)

	// ReconnectOnIdle reconnects when the server disconnects an idle
	// session with a 400 response.
	ReconnectOnIdle bool

	// ReadBufferSize is the size of a single socket read.
	ReadBufferSize int

	// Logger receives diagnostics. Defaults to logrus.StandardLogger().
	Logger logrus.FieldLogger
}

func (c Config) withDefaults() Config {
	if c.Port == 0 {
		c.Port = DefaultPort
		if c.TLS == TLSOn {
			c.Port = DefaultTLSPort
		}
	}
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = DefaultReadBufferSize
	}
	if c.Logger == nil {
		c.Logger = logrus.StandardLogger()
	}
	return c
}

// UseTLS reports whether the connection is encrypted.
func (c Config) UseTLS() bool {
	switch c.TLS {
	case TLSOn:
		return true
	case TLSOff:
		return false
	default:
		return wire.IsTLSPort(c.Port)
	}
}

// Addr returns host:port.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c Config) tlsConfig() *tls.Config {
	var cfg *tls.Config
	if c.TLSConfig != nil {
		cfg = c.TLSConfig.Clone()
	} else {
		cfg = &tls.Config{}
	}
	if cfg.ServerName == "" {
		cfg.ServerName = c.Host
	}
	return cfg
}
