// Package wire provides the NNTP (RFC 3977) wire format used by the
// client: command line rendering, status line parsing and the response
// framer.
//
// The package does no I/O of its own. It is shared by the connection
// engine in the parent package and by tests that need to reason about
// framing without sockets.
//
// # Framing
//
// Responses are framed by a Terminator. Single-line responses end with
// CRLF, multi-line responses end with CRLF "." CRLF:
//
//	frames, rest := wire.Scan(buf, wire.LineTerminator)
//	for _, f := range frames {
//	    collect(f.Data)
//	    if f.End {
//	        // one response is complete
//	    }
//	}
//	buf = rest // partial terminator held back for the next read
//
// A terminator split across two reads is held back rather than delivered,
// so feeding a stream in arbitrary pieces produces the same responses as
// feeding it at once. Use Next instead of Scan when the terminator may
// change after a boundary.
//
// # Commands
//
//	line, err := wire.AppendCommand(nil, wire.CmdStat, "<1@example>")
//	// "STAT <1@example>\r\n"
//
// Arguments carrying CR or LF, or lines longer than MaxLineLength, are
// rejected with ErrInvalidArgument.
//
// # Status lines
//
//	code, msg, err := wire.ParseStatusLine("223 0 <1@example> found")
//	// 223, "0 <1@example> found"
package wire
