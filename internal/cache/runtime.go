package cache

import "github.com/phaniarnab/lineagecache/internal/lineage"

// ExecutionContext is the consumed runtime collaborator: the symbol table
// an instruction reads operands from and writes its result into. The
// cache never owns variable storage; it only binds/reads through this
// interface.
type ExecutionContext interface {
	GetVariable(name string) (any, bool)
	SetVariable(name string, value any)
	GetMatrixObject(name string) (MatrixValue, bool)
	RemoveVariable(name string)
	CleanupDataObject(value any)
	SetMatrixOutput(name string, value MatrixValue)
	SetScalarOutput(name string, value float64)
	SetLineage(name string, li *lineage.Item)
	GetLineage(name string) (*lineage.Item, bool)
}

// Instruction is the consumed instruction-introspection collaborator.
// LineageItem returns the already-constructed lineage item for this
// instruction's output (LI construction happens during the producing
// instruction's own trace pass, out of scope here).
type Instruction interface {
	Opcode() string
	OutputVarName() string
	IsMatrixOutput() bool
	MarkedByOptimizer() bool
	IsVectorAppend() bool
	LineageItem(ctx ExecutionContext) (*lineage.Item, error)
}

// RewriteEngine is the external partial-reuse collaborator: when the
// configured cache type includes partial reuse, a plain structural probe
// miss additionally tries this rewrite engine, and its success path
// counts as a hit too. Algebraic lineage rewriting is out of this
// cache's scope; it is consulted, not implemented, here.
type RewriteEngine interface {
	TryReuse(instr Instruction, ctx ExecutionContext) (bool, error)
}
