package wire

import (
	"io"
	"strings"
)

// ValidateArgument checks that arg can be sent on a command line.
func ValidateArgument(arg string) error {
	if strings.ContainsAny(arg, "\r\n") {
		return ErrInvalidArgument
	}
	return nil
}

// AppendCommand renders a command line onto dst: the verb, then every
// non-empty argument separated by a single space, then CRLF.
//
//	AppendCommand(nil, "STAT", "<1@x>") // "STAT <1@x>\r\n"
//	AppendCommand(nil, "LISTGROUP", "", "1-10") // "LISTGROUP 1-10\r\n"
func AppendCommand(dst []byte, verb string, args ...string) ([]byte, error) {
	start := len(dst)

	if err := ValidateArgument(verb); err != nil {
		return dst, err
	}
	dst = append(dst, strings.TrimSpace(verb)...)

	for _, arg := range args {
		if arg == "" {
			continue
		}
		if err := ValidateArgument(arg); err != nil {
			return dst[:start], err
		}
		dst = append(dst, Space...)
		dst = append(dst, arg...)
	}
	dst = append(dst, CRLF...)

	if len(dst)-start > MaxLineLength {
		return dst[:start], ErrInvalidArgument
	}
	return dst, nil
}

// WriteCommand renders a command line and writes it to w.
func WriteCommand(w io.Writer, verb string, args ...string) error {
	line, err := AppendCommand(make([]byte, 0, 64), verb, args...)
	if err != nil {
		return err
	}
	_, err = w.Write(line)
	return err
}
