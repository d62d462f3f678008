package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/phaniarnab/lineagecache/internal/lineage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReuseMissThenHit(t *testing.T) {
	e := newTestEngine(NewConfig(WithCacheType(FullReuse)))
	li := lineage.MustNew("tsmm", "X", []*lineage.Item{leaf("X")}, nil)
	ctx := newFakeCtx()

	instr := fakeInstr{opcode: "tsmm", outVar: "X", li: li}
	assert.False(t, e.Reuse(instr, ctx), "first probe of a fresh lineage item must miss")

	e.PutValue(li, ValueScalar, nil, 42, 100)

	hitCtx := newFakeCtx()
	assert.True(t, e.Reuse(instr, hitCtx), "second probe of the same lineage item must hit")
	v, ok := hitCtx.GetVariable("X")
	require.True(t, ok)
	assert.Equal(t, 42.0, v)
}

func TestReuseUnreusableOpcodeFallsThroughToPartialReuse(t *testing.T) {
	cfg := NewConfig(WithCacheType(FullReuse | PartialReuse))
	e := newTestEngine(cfg)
	e.rewrite = fakeRewrite{ok: true}

	instr := fakeInstr{opcode: "print", outVar: "y"}
	assert.True(t, e.Reuse(instr, newFakeCtx()), "an unreusable opcode should still get a shot at partial reuse")
}

func TestReuseWithoutPartialReuseConfiguredMisses(t *testing.T) {
	e := newTestEngine(NewConfig(WithCacheType(FullReuse)))
	instr := fakeInstr{opcode: "print", outVar: "y"}
	assert.False(t, e.Reuse(instr, newFakeCtx()))
}

func TestPlaceholderCoordinationAcrossConcurrentProducers(t *testing.T) {
	e := newTestEngine(NewConfig())
	li := lineage.MustNew("tsmm", "X", []*lineage.Item{leaf("X")}, nil)

	first, hit := e.reuseLI(li, true)
	require.False(t, hit)
	require.Equal(t, StatusEmpty, first.Status())

	var wg sync.WaitGroup
	wg.Add(1)
	var second *Entry
	var secondHit bool
	go func() {
		defer wg.Done()
		second, secondHit = e.reuseLI(li, true)
	}()

	time.Sleep(20 * time.Millisecond)
	e.PutValue(li, ValueScalar, nil, 7, 50)
	wg.Wait()

	assert.True(t, secondHit, "a concurrent probe of the same in-flight lineage item must join the placeholder, not install a second one")
	assert.Same(t, first, second, "at most one producer's entry should ever exist for a given lineage item")
	assert.Equal(t, 7.0, second.Scalar())
}

func TestPinPreventsEviction(t *testing.T) {
	e := newTestEngine(NewConfig(WithCacheLimitBytes(100)))
	li := leaf("pinned")
	e.Put(li, ValueMatrix, fakeMatrix{Rows: 3, Cols: 3}, 0, 1) // 72 bytes
	e.Pin(li)

	other := leaf("other")
	e.Put(other, ValueScalar, nil, 1, 1) // would need to evict pinned to fit

	assert.False(t, e.WasEvicted(li), "a pinned entry must never be selected for eviction")

	e.Unpin(li, StatusCached)
	e.mu.Lock()
	entry, ok := e.index.Get(li)
	e.mu.Unlock()
	require.True(t, ok)
	assert.Equal(t, StatusCached, entry.Status())
}

func TestResetClearsIndexAndLRU(t *testing.T) {
	e := newTestEngine(NewConfig())
	li := leaf("X")
	e.Put(li, ValueScalar, nil, 1, 1)
	e.Reset()

	e.mu.Lock()
	_, ok := e.index.Get(li)
	resident := e.bytesResident
	e.mu.Unlock()
	assert.False(t, ok)
	assert.Equal(t, int64(0), resident)
	assert.False(t, e.WasEvicted(li))
}

func TestSpillThenReuseRehydratesPinned(t *testing.T) {
	e := newTestEngine(NewConfig(WithSpillEnabled(true), WithCacheLimitBytes(300)))
	li := leaf("expensive")
	e.Put(li, ValueMatrix, fakeMatrix{Rows: 4, Cols: 4}, 0, int64(200*1_000_000))

	// Push it out to the spill store by exceeding the budget with a filler.
	filler := leaf("filler")
	e.Put(filler, ValueMatrix, fakeMatrix{Rows: 5, Cols: 5}, 0, 1)

	entry, hit := e.reuseLI(li, false)
	require.True(t, hit, "a spilled lineage item must still be reusable via rehydration")
	assert.Equal(t, StatusPinned, entry.Status(), "rehydrated entries start pinned until the caller unpins them")

	e.Unpin(li, StatusReloaded)
	assert.Equal(t, StatusReloaded, entry.Status())
}

func TestRemoveWakesPlaceholderWaiters(t *testing.T) {
	e := newTestEngine(NewConfig())
	li := leaf("doomed")
	entry, hit := e.reuseLI(li, true)
	require.False(t, hit)

	done := make(chan struct{})
	go func() {
		entry.AwaitValue()
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	e.Remove(li)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Remove must release goroutines blocked awaiting a doomed placeholder")
	}
	assert.False(t, e.WasEvicted(li), "Remove is an undo, not a recorded eviction")
}

func TestCloseIsIdempotent(t *testing.T) {
	e := newTestEngine(NewConfig())
	require.NoError(t, e.Close())
	require.NoError(t, e.Close())
}
