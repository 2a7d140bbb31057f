package framer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func collect(f *Framer, chunks ...string) []string {
	var out []string
	for _, c := range chunks {
		f.Feed([]byte(c), func(r string) { out = append(out, r) })
	}
	return out
}

func TestFeed_ByteByByte(t *testing.T) {
	in := "e0 agent\n"
	var chunks []string
	for i := range in {
		chunks = append(chunks, in[i:i+1])
	}

	f := New(16)
	assert.Equal(t, []string{"e0 agent"}, collect(f, chunks...))
	assert.Equal(t, 0, f.Pending())
}

func TestFeed_ChunkingIsTransparent(t *testing.T) {
	stream := "g1 0 0 0\r\n\nd2 1 2 3 4 5 6\nm1 2 3 4\r\ne9 agent\npartial"

	whole := collect(New(0), stream)
	assert.Equal(t, []string{"g1 0 0 0", "", "d2 1 2 3 4 5 6", "m1 2 3 4", "e9 agent"}, whole)

	for size := 1; size <= len(stream); size++ {
		var chunks []string
		for i := 0; i < len(stream); i += size {
			chunks = append(chunks, stream[i:min(i+size, len(stream))])
		}
		f := New(4)
		assert.Equal(t, whole, collect(f, chunks...), "chunk size %d", size)
		assert.Equal(t, len("partial"), f.Pending())
	}
}

func TestFeed_OnlyOneCarriageReturnStripped(t *testing.T) {
	f := New(0)
	assert.Equal(t, []string{"a\r", "\r"}, collect(f, "a\r\r\n\r\r\n"))
}

func TestReset(t *testing.T) {
	f := New(0)
	assert.Empty(t, collect(f, "e1 trunc"))
	assert.Equal(t, 8, f.Pending())

	f.Reset()
	assert.Equal(t, 0, f.Pending())
	assert.Equal(t, []string{"e2"}, collect(f, "e2\n"))
}
