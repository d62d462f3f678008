package cache

import (
	"encoding/json"
	"fmt"

	"github.com/phaniarnab/lineagecache/internal/lineage"
	"github.com/spf13/afero"
)

// fakeMatrix is the test double for MatrixValue: a plain shape/sparsity
// descriptor with no real backing data, json-encodable so it doubles as
// the spill-store payload in tests.
type fakeMatrix struct {
	Rows, Cols, Nnz int64
	Sparse          bool
}

func (m fakeMatrix) InMemorySize() int64     { return m.Rows * m.Cols * 8 }
func (m fakeMatrix) EstimateOnDiskSize() int64 { return m.InMemorySize() }
func (m fakeMatrix) NumRows() int64          { return m.Rows }
func (m fakeMatrix) NumCols() int64          { return m.Cols }
func (m fakeMatrix) NNZ() int64              { return m.Nnz }
func (m fakeMatrix) IsSparseFormat() bool    { return m.Sparse }

// fakeFSCost is a cheap, deterministic FSCostEstimator: linear in cell
// count, so tests can reason about which side of spillThresholdMS a given
// shape lands on without depending on real disk behavior.
type fakeFSCost struct {
	msPerCell float64
}

func (f fakeFSCost) FSWriteTimeMS(rows, cols int64, sparsity float64) float64 {
	return float64(rows*cols) * f.msPerCell
}

func (f fakeFSCost) FSReadTimeMS(rows, cols int64, sparsity float64) float64 {
	return float64(rows*cols) * f.msPerCell
}

// fakeCodec round-trips a fakeMatrix through JSON.
type fakeCodec struct{}

func (fakeCodec) EncodeBlob(v MatrixValue) ([]byte, error) {
	m, ok := v.(fakeMatrix)
	if !ok {
		return nil, fmt.Errorf("fakeCodec: unsupported matrix value %T", v)
	}
	return json.Marshal(m)
}

func (fakeCodec) DecodeBlob(data []byte) (MatrixValue, error) {
	var m fakeMatrix
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// fakeCtx is a minimal in-memory ExecutionContext.
type fakeCtx struct {
	vars     map[string]any
	matrices map[string]MatrixValue
	lineages map[string]*lineage.Item
}

func newFakeCtx() *fakeCtx {
	return &fakeCtx{
		vars:     make(map[string]any),
		matrices: make(map[string]MatrixValue),
		lineages: make(map[string]*lineage.Item),
	}
}

func (c *fakeCtx) GetVariable(name string) (any, bool) { v, ok := c.vars[name]; return v, ok }
func (c *fakeCtx) SetVariable(name string, value any)   { c.vars[name] = value }
func (c *fakeCtx) GetMatrixObject(name string) (MatrixValue, bool) {
	m, ok := c.matrices[name]
	return m, ok
}
func (c *fakeCtx) RemoveVariable(name string) { delete(c.vars, name) }
func (c *fakeCtx) CleanupDataObject(value any) {}
func (c *fakeCtx) SetMatrixOutput(name string, value MatrixValue) {
	c.matrices[name] = value
	c.vars[name] = value
}
func (c *fakeCtx) SetScalarOutput(name string, value float64) { c.vars[name] = value }
func (c *fakeCtx) SetLineage(name string, li *lineage.Item)   { c.lineages[name] = li }
func (c *fakeCtx) GetLineage(name string) (*lineage.Item, bool) {
	li, ok := c.lineages[name]
	return li, ok
}

// fakeInstr is a minimal Instruction.
type fakeInstr struct {
	opcode     string
	outVar     string
	matrixOut  bool
	marked     bool
	vectorAppend bool
	li         *lineage.Item
	liErr      error
}

func (i fakeInstr) Opcode() string          { return i.opcode }
func (i fakeInstr) OutputVarName() string   { return i.outVar }
func (i fakeInstr) IsMatrixOutput() bool    { return i.matrixOut }
func (i fakeInstr) MarkedByOptimizer() bool { return i.marked }
func (i fakeInstr) IsVectorAppend() bool    { return i.vectorAppend }
func (i fakeInstr) LineageItem(ctx ExecutionContext) (*lineage.Item, error) {
	return i.li, i.liErr
}

// fakeRewrite is a RewriteEngine stub the tests configure per-call.
type fakeRewrite struct {
	ok  bool
	err error
}

func (r fakeRewrite) TryReuse(instr Instruction, ctx ExecutionContext) (bool, error) {
	return r.ok, r.err
}

func leaf(data string) *lineage.Item {
	return lineage.MustNew("", data, nil, nil)
}

func newTestEngine(cfg Config) *Engine {
	if cfg.CacheLimitBytes == 0 {
		cfg.CacheLimitBytes = 1 << 30
	}
	oracle := NewOracle(cfg.ReusableOpcodes, cfg.CompAssistedRW)
	costModel := NewCostModel(fakeFSCost{msPerCell: 0.0001})
	spillStore := NewSpillStore(afero.NewMemMapFs(), fakeCodec{}, "/spill")
	stats := NewStats(nil)
	engine, err := NewEngine(cfg, 0, oracle, costModel, spillStore, nil, stats, nil)
	if err != nil {
		panic(err)
	}
	return engine
}
