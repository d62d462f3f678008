// Package workload generates a PCA + linear-regression-style instruction
// trace used as a reference workload for policy-comparison and
// spill/evict scenarios: a loop over a fixed 1000x100-style design
// matrix whose "stable" operations (the same tsmm/ba+* lineage every
// iteration) are reusable across the whole run, interleaved with
// "transient" per-iteration operations that are never reused and exist
// only to put pressure on a tight cache budget.
package workload

import (
	"fmt"

	"github.com/phaniarnab/lineagecache/internal/cache"
	"github.com/phaniarnab/lineagecache/internal/lineage"
)

// Block is the workload's stand-in MatrixValue: a plain shape/sparsity
// descriptor, since the reuse cache never interprets matrix bytes.
type Block struct {
	Rows, Cols, Nnz int64
	Sparse          bool
}

func (b Block) InMemorySize() int64       { return b.Rows * b.Cols * 8 }
func (b Block) EstimateOnDiskSize() int64 { return b.InMemorySize() }
func (b Block) NumRows() int64            { return b.Rows }
func (b Block) NumCols() int64            { return b.Cols }
func (b Block) NNZ() int64                { return b.Nnz }
func (b Block) IsSparseFormat() bool      { return b.Sparse }

// Instr is a synthetic cache.Instruction: its lineage item is built
// directly from the opcode/data/inputs the trace assigned it, rather than
// derived from some larger optimizer/parser pipeline, which stays out of
// scope here.
type Instr struct {
	Op           string
	OutVar       string
	Inputs       []*lineage.Item
	Data         string
	MatrixOutput bool
	Marked       bool
	VectorAppend bool
}

func (i Instr) Opcode() string          { return i.Op }
func (i Instr) OutputVarName() string   { return i.OutVar }
func (i Instr) IsMatrixOutput() bool    { return i.MatrixOutput }
func (i Instr) MarkedByOptimizer() bool { return i.Marked }
func (i Instr) IsVectorAppend() bool    { return i.VectorAppend }
func (i Instr) LineageItem(ctx cache.ExecutionContext) (*lineage.Item, error) {
	return lineage.New(i.Op, i.Data, i.Inputs, nil)
}

// Step pairs an Instr with the pre-computed output value the driver
// should install on a miss, so the driver never needs its own notion of
// "executing" linear algebra.
type Step struct {
	Instr      Instr
	Kind       cache.ValueKind
	Matrix     cache.MatrixValue
	Scalar     float64
	ExecTimeNS int64
}

// Trace is an ordered instruction sequence for one simulated run.
type Trace []Step

// Reference builds the reference workload: rows x cols design
// matrix X, a weight vector w, iters rounds of a PCA-ish tsmm(X) / ba+*(X,
// w) pair (stable — identical lineage every iteration, hence reusable)
// plus one transient per-iteration residual scalar (unique data per
// iteration, tiny exec time, never reused) that contends for cache space
// against the stable entries.
func Reference(rows, cols int64, iters int) Trace {
	x := lineage.MustNew("", "X", nil, nil)
	w := lineage.MustNew("", "w", nil, nil)

	trace := make(Trace, 0, iters*3)
	for it := 0; it < iters; it++ {
		xtx := Instr{
			Op: "tsmm", OutVar: "XtX", Inputs: []*lineage.Item{x},
			MatrixOutput: true,
		}
		trace = append(trace, Step{
			Instr:      xtx,
			Kind:       cache.ValueMatrix,
			Matrix:     Block{Rows: cols, Cols: cols, Nnz: cols * cols},
			ExecTimeNS: int64(20 * 1_000_000), // 20ms, costly relative to its small size
		})

		xw := Instr{
			Op: "ba+*", OutVar: "Xw", Inputs: []*lineage.Item{x, w},
			MatrixOutput: true,
		}
		trace = append(trace, Step{
			Instr:      xw,
			Kind:       cache.ValueMatrix,
			Matrix:     Block{Rows: rows, Cols: 1, Nnz: rows},
			ExecTimeNS: int64(15 * 1_000_000),
		})
		residual := Instr{
			Op:     "groupedagg",
			OutVar: "residual",
			Data:   fmt.Sprintf("iter=%d", it),
		}
		trace = append(trace, Step{
			Instr:      residual,
			Kind:       cache.ValueScalar,
			Scalar:     float64(it),
			// A leaf node (height 0) with a microsecond of elementwise
			// work behind it: far cheaper per resident byte, and
			// shallower, than either stable matrix op above, so a
			// cost- or height-ordered evictor always sacrifices it
			// first.
			ExecTimeNS: int64(1_000),
		})
	}
	return trace
}

// Context is a minimal in-memory cache.ExecutionContext for driving a
// Trace: a symbol table plus a parallel lineage binding per variable name.
type Context struct {
	vars     map[string]any
	matrices map[string]cache.MatrixValue
	lineages map[string]*lineage.Item
}

// NewContext returns an empty Context.
func NewContext() *Context {
	return &Context{
		vars:     make(map[string]any),
		matrices: make(map[string]cache.MatrixValue),
		lineages: make(map[string]*lineage.Item),
	}
}

func (c *Context) GetVariable(name string) (any, bool) { v, ok := c.vars[name]; return v, ok }
func (c *Context) SetVariable(name string, value any)   { c.vars[name] = value }
func (c *Context) GetMatrixObject(name string) (cache.MatrixValue, bool) {
	m, ok := c.matrices[name]
	return m, ok
}
func (c *Context) RemoveVariable(name string) { delete(c.vars, name) }
func (c *Context) CleanupDataObject(value any) {}
func (c *Context) SetMatrixOutput(name string, value cache.MatrixValue) {
	c.matrices[name] = value
	c.vars[name] = value
}
func (c *Context) SetScalarOutput(name string, value float64) { c.vars[name] = value }
func (c *Context) SetLineage(name string, li *lineage.Item)   { c.lineages[name] = li }
func (c *Context) GetLineage(name string) (*lineage.Item, bool) {
	li, ok := c.lineages[name]
	return li, ok
}

// Result tallies what a Trace replay did against an engine.
type Result struct {
	Hits   int
	Misses int
}

// Run replays trace against engine, recording a recompute against stats
// for every miss, tracked per opcode so a heavy-hitter op's recompute
// count can be compared across policies. Each miss reconstructs the
// instruction's lineage item directly (the same
// construction Engine.Reuse performed internally — lineage identity is
// structural, so this lands on the same cache key) and fills the
// placeholder Reuse installed via PutValue.
func Run(engine *cache.Engine, stats *cache.Stats, trace Trace) Result {
	ctx := NewContext()
	var res Result
	for _, step := range trace {
		if engine.Reuse(step.Instr, ctx) {
			res.Hits++
			continue
		}
		res.Misses++
		stats.RecordRecompute(step.Instr.Opcode())
		li, err := step.Instr.LineageItem(ctx)
		if err != nil {
			continue
		}
		engine.PutValue(li, step.Kind, step.Matrix, step.Scalar, step.ExecTimeNS)
	}
	return res
}
