package wire

import "errors"

var (
	// ErrInvalidArgument is returned for command arguments that would break
	// the line framing (embedded CR or LF) or exceed MaxLineLength.
	ErrInvalidArgument = errors.New("nntp: invalid command argument")

	// ErrNoData is the framing error for a response that carried no bytes.
	ErrNoData = &ParseError{Message: "no data received"}
)

// ParseError represents a client-side parsing failure of a response.
// The response it belongs to is unusable but the connection state is
// still in sync: framing already found the terminator.
type ParseError struct {
	Message string
	Line    string // offending line, if any
	Err     error  // underlying error, if any
}

func (e *ParseError) Error() string {
	msg := "nntp: parse error: " + e.Message
	if e.Line != "" {
		msg += ": " + quote(e.Line)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection
func (e *ParseError) Unwrap() error {
	return e.Err
}

func quote(s string) string {
	const max = 64
	if len(s) > max {
		s = s[:max] + "..."
	}
	return "\"" + s + "\""
}
