package cache

import "strings"

// Instruction introspection the oracle needs is defined once, in
// runtime.go, and shared with the rest of the package.

// DefaultReusableOpcodes is the built-in allow-list. "anything whose
// opcode contains spoof" and "append only when a vector operand is
// involved" are handled structurally in IsReusable rather than listed
// here.
func DefaultReusableOpcodes() []string {
	return []string{
		"tsmm", "ba+*", "*", "/", "+",
		"nrow", "ncol", "rightIndex", "leftIndex",
		"groupedagg", "r'", "solve",
	}
}

// Oracle holds the stateless predicates deciding which instructions are
// cacheable and which outputs are admissible. The allow-list and the
// compiler-assisted-rewrite gate are both configuration inputs.
type Oracle struct {
	reusable       map[string]struct{}
	compAssistedRW bool
}

// NewOracle builds an Oracle from a configured opcode allow-list override
// (nil/empty uses DefaultReusableOpcodes) and the comp_assisted_rw flag.
func NewOracle(reusableOpcodes []string, compAssistedRW bool) *Oracle {
	if len(reusableOpcodes) == 0 {
		reusableOpcodes = DefaultReusableOpcodes()
	}
	set := make(map[string]struct{}, len(reusableOpcodes))
	for _, op := range reusableOpcodes {
		set[op] = struct{}{}
	}
	return &Oracle{reusable: set, compAssistedRW: compAssistedRW}
}

// IsReusable reports whether instr's result is eligible for caching at
// all.
func (o *Oracle) IsReusable(instr Instruction) bool {
	op := instr.Opcode()
	if strings.Contains(op, "spoof") {
		return true
	}
	if op == "append" {
		return instr.IsVectorAppend()
	}
	_, ok := o.reusable[op]
	return ok
}

// IsMarkedForCaching reports whether a reusable instruction's output
// should actually be admitted. With comp_assisted_rw off, everything
// reusable is admitted. With it on, matrix outputs are admitted only when
// the optimizer marked them — this keeps loop-carried values (which
// partial reuse already handles) from polluting the cache.
func (o *Oracle) IsMarkedForCaching(instr Instruction) bool {
	if !o.compAssistedRW {
		return true
	}
	if !instr.IsMatrixOutput() {
		return true
	}
	return instr.MarkedByOptimizer()
}
