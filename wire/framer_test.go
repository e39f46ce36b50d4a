package wire

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

// messages joins frame data up to each boundary. Trailing data without a
// boundary is returned as the last element.
func messages(frames []Frame) []string {
	var out []string
	var cur bytes.Buffer
	pending := false
	for _, f := range frames {
		cur.Write(f.Data)
		pending = true
		if f.End {
			out = append(out, cur.String())
			cur.Reset()
			pending = false
		}
	}
	if pending && cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}

// feed runs Scan over chunks, carrying the held back bytes between reads
// the way the connection engine does.
func feed(chunks [][]byte, term Terminator) ([]Frame, []byte) {
	var all []Frame
	var buf []byte
	for _, chunk := range chunks {
		buf = append(buf, chunk...)
		frames, rest := Scan(buf, term)
		for _, f := range frames {
			all = append(all, Frame{Data: append([]byte(nil), f.Data...), End: f.End})
		}
		buf = append([]byte(nil), rest...)
	}
	return all, buf
}

func TestNextSequence(t *testing.T) {
	tests := []struct {
		name     string
		buf      string
		term     Terminator
		frame    Frame
		rest     string
		progress bool
	}{
		{
			name:     "exact match",
			buf:      "223 found\r\n",
			term:     LineTerminator,
			frame:    Frame{Data: []byte("223 found"), End: true},
			rest:     "",
			progress: true,
		},
		{
			name:     "match with trailing bytes",
			buf:      "200 hi\r\n223",
			term:     LineTerminator,
			frame:    Frame{Data: []byte("200 hi"), End: true},
			rest:     "223",
			progress: true,
		},
		{
			name:     "terminator at start",
			buf:      "\r\nmore",
			term:     LineTerminator,
			frame:    Frame{Data: []byte{}, End: true},
			rest:     "more",
			progress: true,
		},
		{
			name:     "partial terminator held back",
			buf:      "215 list\r\na\r\n.",
			term:     MultiLineTerminator,
			frame:    Frame{Data: []byte("215 list\r\na")},
			rest:     "\r\n.",
			progress: true,
		},
		{
			name:     "only a partial terminator",
			buf:      "\r\n.\r",
			term:     MultiLineTerminator,
			rest:     "\r\n.\r",
			progress: false,
		},
		{
			name:     "no terminator at all",
			buf:      "abc",
			term:     LineTerminator,
			frame:    Frame{Data: []byte("abc")},
			rest:     "",
			progress: true,
		},
		{
			name:     "empty buffer",
			buf:      "",
			term:     LineTerminator,
			rest:     "",
			progress: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, rest, ok := Next([]byte(tt.buf), tt.term)
			require.Equal(t, tt.progress, ok)
			require.Equal(t, tt.rest, string(rest))
			if ok {
				require.Equal(t, string(tt.frame.Data), string(frame.Data))
				require.Equal(t, tt.frame.End, frame.End)
			}
		})
	}
}

func TestNextFixedLength(t *testing.T) {
	frames, rest := Scan([]byte("abcdefgh"), Length(3))
	require.Len(t, frames, 2)
	require.Equal(t, "abc", string(frames[0].Data))
	require.Equal(t, "def", string(frames[1].Data))
	require.True(t, frames[0].End)
	require.True(t, frames[1].End)
	require.Equal(t, "gh", string(rest))
}

func TestNextNoFraming(t *testing.T) {
	var term Terminator
	require.True(t, term.IsZero())

	frames, rest := Scan([]byte("anything\r\n.\r\n"), term)
	require.Len(t, frames, 1)
	require.Equal(t, "anything\r\n.\r\n", string(frames[0].Data))
	require.False(t, frames[0].End)
	require.Empty(t, rest)
}

func TestScanSeveralFramesInOneRead(t *testing.T) {
	frames, rest := Scan([]byte("200 welcome\r\n223 a\r\n430 b\r\n"), LineTerminator)
	require.Equal(t, []string{"200 welcome", "223 a", "430 b"}, messages(frames))
	require.Empty(t, rest)
}

func TestScanTerminatorStraddlesReads(t *testing.T) {
	chunks := [][]byte{
		[]byte("215 list follows\r\na\r\nb\r\nc\r\n."),
		[]byte("\r\n"),
	}
	frames, rest := feed(chunks, MultiLineTerminator)

	boundaries := 0
	for _, f := range frames {
		if f.End {
			boundaries++
		} else {
			require.NotEmpty(t, f.Data, "data frames are never empty")
		}
	}
	require.Equal(t, 1, boundaries)
	require.Equal(t, []string{"215 list follows\r\na\r\nb\r\nc"}, messages(frames))
	require.Empty(t, rest)
}

func TestScanLineTerminatorSplitBetweenCRAndLF(t *testing.T) {
	frames, rest := feed([][]byte{[]byte("223 ok\r"), []byte("\n430 no\r"), []byte("\n")}, LineTerminator)
	require.Equal(t, []string{"223 ok", "430 no"}, messages(frames))
	require.Empty(t, rest)
}

func TestScanSplitInvariance(t *testing.T) {
	streams := []struct {
		data string
		term Terminator
	}{
		{"200 welcome\r\n381 more\r\n281 ok\r\n223 0 <a@b>\r\n430 nope\r\n", LineTerminator},
		{"215 list\r\nalt.a 1 2 y\r\nalt.b 3 4 n\r\n..dotted\r\n.\r\n220 art\r\nbody\r\n.\r\n", MultiLineTerminator},
		{"\r\n\r\n\r\r\n\n\r\n", LineTerminator},
		{"\r\n.\r\n\r\n.\r\n.\r\n", MultiLineTerminator},
	}

	rng := rand.New(rand.NewSource(42))
	for _, s := range streams {
		whole, wholeRest := feed([][]byte{[]byte(s.data)}, s.term)
		want := messages(whole)

		for i := 0; i < 200; i++ {
			chunks := randomSplit(rng, []byte(s.data))
			got, rest := feed(chunks, s.term)
			require.Equal(t, want, messages(got), "split %q", chunks)
			require.Equal(t, string(wholeRest), string(rest))
			for _, f := range got {
				if !f.End {
					require.NotEmpty(t, f.Data)
				}
			}
		}
	}
}

func randomSplit(rng *rand.Rand, data []byte) [][]byte {
	var chunks [][]byte
	for len(data) > 0 {
		n := 1 + rng.Intn(len(data))
		chunks = append(chunks, data[:n])
		data = data[n:]
	}
	return chunks
}

func TestPrefixAtEnd(t *testing.T) {
	seq := []byte(MultiLineEnd)
	require.Equal(t, 0, prefixAtEnd([]byte("abc"), seq))
	require.Equal(t, 1, prefixAtEnd([]byte("abc\r"), seq))
	require.Equal(t, 2, prefixAtEnd([]byte("abc\r\n"), seq))
	require.Equal(t, 3, prefixAtEnd([]byte("abc\r\n."), seq))
	require.Equal(t, 4, prefixAtEnd([]byte("abc\r\n.\r"), seq))
	require.Equal(t, 1, prefixAtEnd([]byte("\r"), seq))
	require.Equal(t, 0, prefixAtEnd([]byte(""), seq))
}

func TestTerminatorEqual(t *testing.T) {
	require.True(t, LineTerminator.Equal(Sequence([]byte("\r\n"))))
	require.False(t, LineTerminator.Equal(MultiLineTerminator))
	require.True(t, Length(4).Equal(Length(4)))
	require.Equal(t, `\r\n.\r\n`, MultiLineTerminator.String())
}
