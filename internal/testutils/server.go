// Package testutils provides loopback NNTP servers for tests.
package testutils

import (
	"bufio"
	"crypto/tls"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// Server accepts connections on a loopback port and runs a handler per
// connection. It is closed when the test ends.
type Server struct {
	Host string
	Port int

	ln      net.Listener
	handler func(*Session)

	mu       sync.Mutex
	sessions []*Session
	accepted chan *Session
	wg       sync.WaitGroup
}

// NewServer starts a plain server.
func NewServer(t testing.TB, handler func(*Session)) *Server {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	return start(t, ln, handler)
}

// NewTLSServer starts a server speaking TLS with cert.
func NewTLSServer(t testing.TB, cert tls.Certificate, handler func(*Session)) *Server {
	t.Helper()
	ln, err := tls.Listen("tcp", "127.0.0.1:0", &tls.Config{
		Certificates: []tls.Certificate{cert},
	})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	return start(t, ln, handler)
}

func start(t testing.TB, ln net.Listener, handler func(*Session)) *Server {
	host, port, _ := net.SplitHostPort(ln.Addr().String())
	p, _ := strconv.Atoi(port)

	s := &Server{
		Host:     host,
		Port:     p,
		ln:       ln,
		handler:  handler,
		accepted: make(chan *Session, 16),
	}

	s.wg.Add(1)
	go s.serve()

	t.Cleanup(s.Close)
	return s
}

func (s *Server) serve() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}

		sess := &Session{conn: conn, r: bufio.NewReader(conn)}
		s.mu.Lock()
		s.sessions = append(s.sessions, sess)
		s.mu.Unlock()

		select {
		case s.accepted <- sess:
		default:
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer conn.Close()
			s.handler(sess)
		}()
	}
}

// Accepted returns the next accepted session, or nil after timeout.
func (s *Server) Accepted(timeout time.Duration) *Session {
	select {
	case sess := <-s.accepted:
		return sess
	case <-time.After(timeout):
		return nil
	}
}

// Sessions returns the number of connections accepted so far.
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Close stops accepting, closes every session and waits for handlers.
func (s *Server) Close() {
	s.ln.Close()

	s.mu.Lock()
	for _, sess := range s.sessions {
		sess.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
}

// Session is one server side connection.
type Session struct {
	conn net.Conn
	r    *bufio.Reader

	mu       sync.Mutex
	received []string
}

// Write sends raw bytes, no CRLF added.
func (s *Session) Write(raw string) error {
	_, err := io.WriteString(s.conn, raw)
	return err
}

// Reply sends lines, each followed by CRLF.
func (s *Session) Reply(lines ...string) error {
	var b strings.Builder
	for _, line := range lines {
		b.WriteString(line)
		b.WriteString("\r\n")
	}
	return s.Write(b.String())
}

// ReadLine returns the next command line without its CRLF.
func (s *Session) ReadLine() (string, error) {
	line, err := s.r.ReadString('\n')
	if err != nil {
		return "", err
	}
	line = strings.TrimRight(line, "\r\n")

	s.mu.Lock()
	s.received = append(s.received, line)
	s.mu.Unlock()
	return line, nil
}

// Received returns every command line read so far.
func (s *Session) Received() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.received...)
}

// Close closes the connection.
func (s *Session) Close() error {
	return s.conn.Close()
}

// Responder answers one command line. Returning close ends the session
// after the reply is written.
type Responder func(line string) (reply string, close bool)

// Serve greets with welcome and answers commands until the client leaves.
// QUIT is answered with 205 and ends the session unless respond handles it.
func Serve(welcome string, respond Responder) func(*Session) {
	return func(s *Session) {
		if err := s.Reply(welcome); err != nil {
			return
		}
		for {
			line, err := s.ReadLine()
			if err != nil {
				return
			}

			reply, done := respond(line)
			if reply == "" && strings.EqualFold(line, "QUIT") {
				reply, done = "205 bye\r\n", true
			}
			if reply != "" {
				if err := s.Write(reply); err != nil {
					return
				}
			}
			if done {
				return
			}
		}
	}
}

// StatResponder answers STAT with 223 for ids in exists and 430 for the
// rest, answers DATE, and accepts any credentials.
func StatResponder(exists map[string]bool) Responder {
	return func(line string) (string, bool) {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			return "500 what?\r\n", false
		}

		switch strings.ToUpper(fields[0]) {
		case "STAT":
			if len(fields) > 1 && exists[fields[1]] {
				return "223 0 " + fields[1] + "\r\n", false
			}
			return "430 No Such Article\r\n", false
		case "AUTHINFO":
			if len(fields) > 1 && strings.EqualFold(fields[1], "USER") {
				return "381 Password required\r\n", false
			}
			return "281 Authenticated\r\n", false
		case "DATE":
			return "111 " + time.Now().UTC().Format("20060102150405") + "\r\n", false
		case "QUIT":
			return "", false
		}
		return "500 unknown command\r\n", false
	}
}
