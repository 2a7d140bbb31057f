// Package framer splits a byte stream into newline terminated records.
package framer

import "bytes"

// Framer accumulates bytes across reads and yields complete records.
// It is not safe for concurrent use.
type Framer struct {
	pending []byte
}

// New returns a Framer with an initial buffer capacity.
func New(capacity int) *Framer {
	return &Framer{pending: make([]byte, 0, capacity)}
}

// Feed appends p to the pending buffer and calls emit once for every
// complete record, in order. The terminating "\n" and a single "\r"
// before it are stripped. Bytes after the last "\n" stay buffered.
func (f *Framer) Feed(p []byte, emit func(record string)) {
	f.pending = append(f.pending, p...)

	start := 0
	for {
		i := bytes.IndexByte(f.pending[start:], '\n')
		if i < 0 {
			break
		}
		line := f.pending[start : start+i]
		line = bytes.TrimSuffix(line, []byte{'\r'})
		emit(string(line))
		start += i + 1
	}

	if start > 0 {
		n := copy(f.pending, f.pending[start:])
		f.pending = f.pending[:n]
	}
}

// Pending returns the number of buffered bytes without a terminator.
func (f *Framer) Pending() int {
	return len(f.pending)
}

// Reset discards any partial record.
func (f *Framer) Reset() {
	f.pending = f.pending[:0]
}
