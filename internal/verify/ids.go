package verify

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/zeebo/xxh3"
)

// ReadIDs reads one message id per line. Blank lines and lines starting
// with # are skipped, and missing angle brackets are added.
func ReadIDs(r io.Reader) ([]string, error) {
	var ids []string

	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		if strings.ContainsAny(text, " \t") {
			return nil, fmt.Errorf("line %d: message id contains whitespace: %q", line, text)
		}
		ids = append(ids, normalize(text))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

func normalize(id string) string {
	if !strings.HasPrefix(id, "<") {
		id = "<" + id
	}
	if !strings.HasSuffix(id, ">") {
		id += ">"
	}
	return id
}

// Dedupe drops repeated ids, keeping the first occurrence. It returns the
// number of ids dropped.
func Dedupe(ids []string) ([]string, int) {
	seen := make(map[uint64]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		h := xxh3.HashString(id)
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, id)
	}
	return out, len(ids) - len(out)
}
