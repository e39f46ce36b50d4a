package verify

import "github.com/zeebo/xxh3"

// Selector picks which of n servers checks a message id.
type Selector func(id string, n int) int

// JumpSelector spreads ids over servers with Jump consistent hashing, so
// an id is always checked on the same server and few ids move when a
// server is added or removed.
func JumpSelector(id string, n int) int {
	return jump(xxh3.HashString(id), n)
}

// jump is Lamping and Veach's jump consistent hash.
// See https://arxiv.org/abs/1406.2294.
func jump(key uint64, buckets int) int {
	if buckets <= 0 {
		return 0
	}

	b, j := int64(-1), int64(0)
	for j < int64(buckets) {
		b = j
		key = key*2862933555777941757 + 1
		j = int64(float64(b+1) * (float64(int64(1)<<31) / float64((key>>33)+1)))
	}
	return int(b)
}
