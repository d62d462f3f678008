package cache

import (
	"testing"

	"github.com/phaniarnab/lineagecache/internal/lineage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMultiLevelAllOutputsHit(t *testing.T) {
	e := newTestEngine(NewConfig(WithCacheType(MultiLevelReuse)))
	ml := NewMultiLevel(e)

	call := FunctionCall{FuncName: "pca", OutputVarNames: []string{"U", "S"}, CommonInputs: []*lineage.Item{leaf("X")}}

	allHit, _, staging := ml.Probe(call)
	require.False(t, allHit, "nothing is cached yet")

	outputs := []FunctionOutput{
		{Kind: ValueMatrix, Matrix: fakeMatrix{Rows: 2, Cols: 2}, ExecTimeNS: 10},
		{Kind: ValueScalar, Scalar: 3.0, ExecTimeNS: 10},
	}

	ctx := newFakeCtx()
	ctx.SetLineage("U", leaf("U-body-lineage"))
	ctx.SetLineage("S", leaf("S-body-lineage"))
	ml.Commit(staging, ctx, outputs)

	allHit2, entries2, _ := ml.Probe(call)
	require.True(t, allHit2, "both outputs are now cached, so a second call with the same inputs must fully hit")

	bindCtx := newFakeCtx()
	require.NoError(t, ml.BindHit(entries2, call, bindCtx))
	u, ok := bindCtx.GetVariable("U")
	require.True(t, ok)
	assert.Equal(t, fakeMatrix{Rows: 2, Cols: 2}, u)
	s, ok := bindCtx.GetVariable("S")
	require.True(t, ok)
	assert.Equal(t, 3.0, s)
}

func TestMultiLevelAbandonOnRandomGenTaint(t *testing.T) {
	e := newTestEngine(NewConfig(WithCacheType(MultiLevelReuse)))
	ml := NewMultiLevel(e)

	call := FunctionCall{FuncName: "simulate", OutputVarNames: []string{"A", "B"}, CommonInputs: nil}
	allHit, _, staging := ml.Probe(call)
	require.False(t, allHit)

	outputs := []FunctionOutput{
		{Kind: ValueMatrix, Matrix: fakeMatrix{Rows: 2, Cols: 2}, ExecTimeNS: 10},
		{Kind: ValueMatrix, Matrix: fakeMatrix{Rows: 2, Cols: 2}, ExecTimeNS: 10},
	}

	ctx := newFakeCtx()
	ctx.SetLineage("A", leaf("clean"))
	// B's body lineage traces through a rand() call: ineligible for
	// function-scope caching even though it individually computed fine.
	tainted := lineage.MustNew("rand", "seed=1", nil, nil)
	ctx.SetLineage("B", lineage.MustNew("+", "", []*lineage.Item{tainted, leaf("k")}, nil))

	ml.Commit(staging, ctx, outputs)

	allHit2, _, _ := ml.Probe(call)
	assert.False(t, allHit2, "a call tainted by random generation on any output must not be cached at all")
}

func TestMultiLevelAllOrNoneOnOversizeOutput(t *testing.T) {
	e := newTestEngine(NewConfig(WithCacheType(MultiLevelReuse), WithCacheLimitBytes(100)))
	ml := NewMultiLevel(e)

	call := FunctionCall{FuncName: "fit", OutputVarNames: []string{"model", "residual"}}
	_, _, staging := ml.Probe(call)

	outputs := []FunctionOutput{
		{Kind: ValueScalar, Scalar: 1.0, ExecTimeNS: 10},                         // 64 bytes, fits
		{Kind: ValueMatrix, Matrix: fakeMatrix{Rows: 20, Cols: 20}, ExecTimeNS: 10}, // far over budget
	}
	ctx := newFakeCtx()
	ctx.SetLineage("model", leaf("model-body"))
	ctx.SetLineage("residual", leaf("residual-body"))
	ml.Commit(staging, ctx, outputs)

	allHit2, _, _ := ml.Probe(call)
	assert.False(t, allHit2, "an oversize output must undo the whole call's placeholders, not just its own")
}

func TestContainsRandomGenWalksDedupAndInputs(t *testing.T) {
	rnd := lineage.MustNew("rand", "", nil, nil)
	wrapped := lineage.MustNew("dedup_1", "", []*lineage.Item{rnd}, rnd)
	assert.True(t, containsRandomGen(wrapped))
	assert.False(t, containsRandomGen(leaf("clean")))
}
