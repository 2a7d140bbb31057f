package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContext_Lifecycle(t *testing.T) {
	ctx := NewContext()

	_, ok := ctx.Current()
	assert.False(t, ok)

	start := time.Unix(10, 0)
	s := ctx.Begin("127.0.0.1:4000", start)
	assert.Equal(t, uint64(1), s.ID)
	assert.Equal(t, uint64(1), ctx.CurrentID())

	ctx.RecordFrame(5, "agent/1")
	ctx.RecordFrame(6, "agent/1")

	cur, ok := ctx.Current()
	require.True(t, ok)
	assert.Equal(t, uint(2), cur.Frames)
	assert.Equal(t, "agent/1", cur.UserAgent)
	assert.Equal(t, int64(6), ctx.LastFrame())

	assert.Equal(t, "127.0.0.1:4000", cur.RemoteAddr)

	end := time.Unix(20, 0)
	final, ok := ctx.End(end)
	require.True(t, ok)
	assert.Equal(t, end, final.EndedAt)
	assert.Equal(t, start, final.StartedAt)

	_, ok = ctx.End(end)
	assert.False(t, ok)
	assert.Equal(t, uint64(0), ctx.CurrentID())

	assert.Equal(t, uint64(2), ctx.Begin("x", end).ID)
	assert.Equal(t, uint64(2), ctx.Total())
}

func TestContext_ThreadSafe(t *testing.T) {
	ctx := NewContext()
	ctx.Begin("client", time.Now())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			ctx.RecordFrame(int64(i), "agent")
		}(i)
		go func() {
			defer wg.Done()
			_ = ctx.LastFrame()
			_, _ = ctx.Current()
		}()
	}
	wg.Wait()

	cur, _ := ctx.Current()
	assert.Equal(t, uint(10), cur.Frames)
}

func TestContext_Lookup(t *testing.T) {
	ctx := NewContext()
	_, ok := ctx.Lookup(1)
	assert.False(t, ok)

	first := ctx.Begin("a", time.Unix(1, 0))
	got, ok := ctx.Lookup(first.ID)
	require.True(t, ok)
	assert.True(t, got.EndedAt.IsZero())

	ctx.RecordFrame(3, "emu")
	ctx.End(time.Unix(2, 0))
	got, ok = ctx.Lookup(first.ID)
	require.True(t, ok)
	assert.Equal(t, time.Unix(2, 0), got.EndedAt)
	assert.Equal(t, uint(1), got.Frames)
	assert.Equal(t, "emu", got.UserAgent)
}

func TestContext_LookupHistoryIsBounded(t *testing.T) {
	ctx := NewContext()
	for i := 0; i < historySize+5; i++ {
		ctx.Begin("a", time.Unix(int64(i), 0))
		ctx.End(time.Unix(int64(i), 1))
	}

	_, ok := ctx.Lookup(1)
	assert.False(t, ok, "oldest session should be evicted")
	_, ok = ctx.Lookup(uint64(historySize + 5))
	assert.True(t, ok)
	_, ok = ctx.Lookup(6)
	assert.True(t, ok)
}
