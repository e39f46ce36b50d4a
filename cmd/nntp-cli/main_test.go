package main

import (
	"bytes"
	"context"
	"flag"
	"io"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pior/nntp"
	"github.com/pior/nntp/internal/testutils"
)

func TestRun(t *testing.T) {
	srv := testutils.NewServer(t, testutils.Serve("200 test ready", testutils.StatResponder(map[string]bool{"<1@x>": true})))

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	input := strings.Join([]string{
		"help",
		"STAT <1@x>",
		"stat <2@x>",
		"stats",
		"reconnect",
		"exit",
	}, "\n")

	var out bytes.Buffer
	err := run(context.Background(), nntp.Config{Host: srv.Host, Port: srv.Port, Logger: logger}, strings.NewReader(input), &out)
	require.NoError(t, err)

	got := out.String()
	require.Contains(t, got, "Connected to "+srv.Host)
	require.Contains(t, got, "test ready")
	require.Contains(t, got, "223 0 <1@x>\n")
	require.Contains(t, got, "430 No Such Article\n")
	require.Contains(t, got, "  Sent:         2\n")
	require.Contains(t, got, "Reconnected: test ready\n")
	require.Contains(t, got, "Goodbye!")
}

func TestRunQuit(t *testing.T) {
	srv := testutils.NewServer(t, testutils.Serve("200 test ready", testutils.StatResponder(nil)))

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	var out bytes.Buffer
	err := run(context.Background(), nntp.Config{Host: srv.Host, Port: srv.Port, Logger: logger}, strings.NewReader("QUIT\nSTAT <1@x>\n"), &out)
	require.NoError(t, err)
	require.Contains(t, out.String(), "205 bye\n")
	require.NotContains(t, out.String(), "430")
}

func TestEnvAndFlags(t *testing.T) {
	t.Setenv("NNTP_HOST", "env.example.com")
	t.Setenv("NNTP_TLS", "on")
	t.Setenv("NNTP_USERNAME", "bob")
	t.Setenv("NNTP_PASSWORD", "secret")

	env, err := loadEnv()
	require.NoError(t, err)
	assert.Equal(t, "env.example.com", env.Host)
	assert.Equal(t, nntp.TLSOn, env.TLS)

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	env.bindFlags(fs)
	require.NoError(t, fs.Parse([]string{"-host", "flag.example.com", "-port", "443", "-debug"}))

	cfg := env.config()
	assert.Equal(t, "flag.example.com", cfg.Host)
	assert.Equal(t, 443, cfg.Port)
	assert.Equal(t, nntp.TLSOn, cfg.TLS)
	assert.Equal(t, "bob", cfg.Username)
	assert.Equal(t, "secret", cfg.Password)
	assert.True(t, cfg.ReconnectOnIdle)
	assert.Equal(t, logrus.DebugLevel, cfg.Logger.(*logrus.Logger).GetLevel())
}

func TestEnvDefaults(t *testing.T) {
	env, err := loadEnv()
	require.NoError(t, err)
	assert.Equal(t, "localhost", env.Host)
	assert.Equal(t, nntp.TLSAuto, env.TLS)
}

func TestEnvInvalidTLSMode(t *testing.T) {
	t.Setenv("NNTP_TLS", "maybe")
	_, err := loadEnv()
	require.Error(t, err)
}
