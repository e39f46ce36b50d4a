package nntp

import (
	"bytes"
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/pior/nntp/wire"
)

// Request is one command and, once completed, its response.
//
// A request is either named (built with NewRequest) or unsolicited: the
// latter is created by the connection to carry a server message nobody
// asked for, such as the greeting or a disconnect notice.
//
// Code and Message are set when the response completes, before Done is
// closed and before any handler runs. A request must not be submitted
// twice.
type Request struct {
	Command  string
	Args     []string
	Callback Event // overrides the event derived from Command

	Code    int
	Message string

	unsolicited bool
	multiline   bool
	setup       bool // issued by the session setup, never requeued
	statusSeen  bool // multi-line response past its status line

	line   []byte
	raw    [][]byte
	data   []byte
	err    error
	sentAt time.Time

	submitted atomic.Bool
	done      chan struct{}
}

// NewRequest builds a request for command. Empty arguments are omitted on
// the wire.
func NewRequest(command string, args ...string) *Request {
	command = strings.ToUpper(strings.TrimSpace(command))
	return &Request{
		Command:   command,
		Args:      args,
		multiline: wire.IsMultiLineCommand(command),
		done:      make(chan struct{}),
	}
}

// NewRequestWithEvent builds a request whose response is dispatched to ev
// instead of the event derived from command.
func NewRequestWithEvent(ev Event, command string, args ...string) *Request {
	req := NewRequest(command, args...)
	req.Callback = ev
	return req
}

func newUnsolicited() *Request {
	req := &Request{
		unsolicited: true,
		done:        make(chan struct{}),
	}
	req.submitted.Store(true)
	return req
}

// Unsolicited reports whether the server sent this response without a
// matching command.
func (r *Request) Unsolicited() bool {
	return r.unsolicited
}

// Multiline reports whether a successful response carries a data block.
func (r *Request) Multiline() bool {
	return r.multiline
}

// Event returns the event the response is dispatched to.
func (r *Request) Event() Event {
	if r.Callback != "" {
		return r.Callback
	}
	return EventFor(r.Command)
}

// Line renders the command line, CRLF included.
func (r *Request) Line() ([]byte, error) {
	return wire.AppendCommand(nil, r.Command, r.Args...)
}

// Status returns Code as a wire status code.
func (r *Request) Status() wire.StatusCode {
	return wire.StatusCode(r.Code)
}

// Data returns the raw response without its terminator.
func (r *Request) Data() []byte {
	return r.data
}

// Lines returns the response split into lines, status line first.
// Multi-line data lines are returned as received, dot-stuffing included.
func (r *Request) Lines() []string {
	if len(r.data) == 0 {
		return nil
	}
	return wire.SplitLines(r.data)
}

// Body returns the data lines of a multi-line response with the
// dot-stuffing removed.
func (r *Request) Body() []string {
	lines := r.Lines()
	if len(lines) < 2 {
		return nil
	}

	body := make([]string, 0, len(lines)-1)
	for _, line := range lines[1:] {
		body = append(body, wire.Unstuff(line))
	}
	return body
}

// Err returns the framing error of the response, if any. A request with
// an error still completes and is still dispatched.
func (r *Request) Err() error {
	return r.err
}

// SentAt returns when the command was written.
func (r *Request) SentAt() time.Time {
	return r.sentAt
}

// Done is closed once the response completed.
func (r *Request) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the response completed and returns its framing error.
// Requests still queued when their connection is closed never complete.
func (r *Request) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	select {
	case <-r.done:
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Request) String() string {
	if r.unsolicited {
		return "UNKNOWN"
	}
	if len(r.Args) == 0 {
		return r.Command
	}
	return r.Command + " " + strings.Join(r.Args, " ")
}

// collect appends a chunk of response data. The chunk is copied since it
// aliases the connection's inbound buffer.
func (r *Request) collect(chunk []byte) {
	r.raw = append(r.raw, bytes.Clone(chunk))
}

// statusCode parses the status line collected so far.
func (r *Request) statusCode() (wire.StatusCode, bool) {
	code, _, err := wire.ParseStatusLine(string(bytes.Join(r.raw, nil)))
	return code, err == nil
}

// reset drops partial response data so the request can be sent again
// after a reconnect.
func (r *Request) reset() {
	r.raw = nil
	r.statusSeen = false
	r.sentAt = time.Time{}
}

// finalize parses the status line and releases waiters. It runs exactly
// once per request.
func (r *Request) finalize() {
	r.data = bytes.Join(r.raw, nil)
	r.raw = nil

	if len(r.data) == 0 {
		r.err = wire.ErrNoData
	} else {
		status := r.data
		if i := bytes.Index(status, []byte(wire.CRLF)); i >= 0 {
			status = status[:i]
		}
		code, msg, err := wire.ParseStatusLine(string(status))
		if err != nil {
			r.err = err
		} else {
			r.Code = int(code)
			r.Message = msg
		}
	}

	close(r.done)
}
