package wire

import (
	"strconv"
	"strings"
)

// ParseStatusLine splits a response line into its code and message.
// The line must not include the CRLF. The message is everything after the
// three digit code with surrounding spaces removed.
//
//	ParseStatusLine("223 1@x found") // 223, "1@x found"
func ParseStatusLine(line string) (StatusCode, string, error) {
	if len(line) < 3 {
		return 0, "", &ParseError{Message: "status line too short", Line: line}
	}

	for i := 0; i < 3; i++ {
		if line[i] < '0' || line[i] > '9' {
			return 0, "", &ParseError{Message: "status code is not numeric", Line: line}
		}
	}

	code, err := strconv.Atoi(line[:3])
	if err != nil {
		return 0, "", &ParseError{Message: "invalid status code", Line: line, Err: err}
	}

	return StatusCode(code), strings.TrimSpace(line[3:]), nil
}

// SplitLines splits a response into its lines on CRLF.
func SplitLines(data []byte) []string {
	return strings.Split(string(data), CRLF)
}

// Unstuff removes the leading dot RFC 3977 section 3.1.1 adds to data
// lines starting with a dot.
func Unstuff(line string) string {
	if strings.HasPrefix(line, "..") {
		return line[1:]
	}
	return line
}
