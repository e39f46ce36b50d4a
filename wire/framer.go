package wire

import "bytes"

// Terminator marks the end of a response frame. It is either a byte
// sequence or a fixed length. The zero value disables framing: every byte
// is delivered and no boundary is ever reported.
type Terminator struct {
	seq []byte
	n   int
}

var (
	// LineTerminator ends a single-line response.
	LineTerminator = Sequence([]byte(CRLF))

	// MultiLineTerminator ends a multi-line response.
	MultiLineTerminator = Sequence([]byte(MultiLineEnd))
)

// Sequence returns a terminator matching seq.
func Sequence(seq []byte) Terminator {
	return Terminator{seq: append([]byte(nil), seq...)}
}

// Length returns a terminator closing a frame every n bytes.
func Length(n int) Terminator {
	return Terminator{n: n}
}

// IsZero reports whether t disables framing.
func (t Terminator) IsZero() bool {
	return len(t.seq) == 0 && t.n <= 0
}

// Equal reports whether t and o frame the same way.
func (t Terminator) Equal(o Terminator) bool {
	return t.n == o.n && bytes.Equal(t.seq, o.seq)
}

func (t Terminator) String() string {
	switch {
	case len(t.seq) > 0:
		return string(bytes.ReplaceAll(bytes.ReplaceAll(t.seq, []byte("\r"), []byte(`\r`)), []byte("\n"), []byte(`\n`)))
	case t.n > 0:
		return "length"
	default:
		return "none"
	}
}

// Frame is one piece of scanned input. End is set when the frame closes at
// a terminator boundary; the terminator itself is never part of Data.
// A frame without End always carries at least one byte. A frame with End
// may have empty Data when the terminator directly follows the previous
// boundary.
type Frame struct {
	Data []byte
	End  bool
}

// Next performs one scanning step over buf. It returns the next frame, the
// bytes left to scan, and false when no progress is possible until more
// bytes arrive. Frame data aliases buf.
func Next(buf []byte, term Terminator) (Frame, []byte, bool) {
	if len(buf) == 0 {
		return Frame{}, buf, false
	}

	switch {
	case len(term.seq) > 0:
		return nextSequence(buf, term.seq)

	case term.n > 0:
		if len(buf) < term.n {
			return Frame{}, buf, false
		}
		return Frame{Data: buf[:term.n], End: true}, buf[term.n:], true

	default:
		return Frame{Data: buf}, buf[len(buf):], true
	}
}

func nextSequence(buf, seq []byte) (Frame, []byte, bool) {
	if idx := bytes.Index(buf, seq); idx != -1 {
		return Frame{Data: buf[:idx], End: true}, buf[idx+len(seq):], true
	}

	// Hold back a trailing partial terminator until the next read.
	if p := prefixAtEnd(buf, seq); p > 0 {
		if p == len(buf) {
			return Frame{}, buf, false
		}
		cut := len(buf) - p
		return Frame{Data: buf[:cut]}, buf[cut:], true
	}

	return Frame{Data: buf}, buf[len(buf):], true
}

// prefixAtEnd returns the length of the longest strict prefix of seq that
// buf ends with.
func prefixAtEnd(buf, seq []byte) int {
	l := len(seq) - 1
	if l > len(buf) {
		l = len(buf)
	}
	for ; l > 0; l-- {
		if bytes.HasSuffix(buf, seq[:l]) {
			return l
		}
	}
	return 0
}

// Scan runs Next until no further progress is possible with term and
// returns every frame produced plus the bytes held back.
func Scan(buf []byte, term Terminator) ([]Frame, []byte) {
	var frames []Frame
	for {
		frame, rest, ok := Next(buf, term)
		if !ok {
			return frames, buf
		}
		frames = append(frames, frame)
		buf = rest
	}
}
