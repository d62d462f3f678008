package cache

import (
	"fmt"
	"strings"

	"github.com/phaniarnab/lineagecache/internal/lineage"
)

// FunctionCall describes one invocation site for the multi-level
// (function-scope) reuse protocol: a function name, the names its n
// outputs are bound to in the calling scope, and the lineage items
// common to every output (the call's actual-argument lineages).
type FunctionCall struct {
	FuncName       string
	OutputVarNames []string
	CommonInputs   []*lineage.Item
}

// FunctionOutput is what the caller supplies per output after it has run
// the function body normally: the produced value and how long it took to
// compute. Commit separately checks whether the output's body-bound
// lineage is tainted by random-data generation, which disqualifies it
// from being cached at the function-scope level even if individually
// reusable.
type FunctionOutput struct {
	Kind       ValueKind
	Matrix     MatrixValue
	Scalar     float64
	ExecTimeNS int64
}

func (o FunctionOutput) size() int64 {
	switch o.Kind {
	case ValueMatrix:
		if o.Matrix == nil {
			return 0
		}
		return o.Matrix.InMemorySize()
	case ValueScalar:
		const scalarFootprintBytes = 64
		return scalarFootprintBytes
	default:
		return 0
	}
}

// MultiLevel sits on top of an Engine's lower-level reuseLI: it
// coordinates the synthetic per-output lineage items a function call's
// outputs are keyed on, so that caching a function call's result set is
// all-or-nothing.
type MultiLevel struct {
	engine *Engine
}

// NewMultiLevel wraps engine with the function-scope reuse protocol.
func NewMultiLevel(engine *Engine) *MultiLevel {
	return &MultiLevel{engine: engine}
}

// syntheticLI builds the opcode = funcName+(i+1), data = outputName
// lineage item for output i.
func (m *MultiLevel) syntheticLI(call FunctionCall, i int) (*lineage.Item, error) {
	opcode := fmt.Sprintf("%s%d", call.FuncName, i+1)
	return lineage.New(opcode, call.OutputVarNames[i], call.CommonInputs, nil)
}

// callEntries are the live placeholders/entries installed for one
// function call, kept between Probe and Commit/Abandon so the caller
// doesn't have to reconstruct the synthetic lineage twice.
type callEntries struct {
	call    FunctionCall
	lis     []*lineage.Item
	entries []*Entry
}

// Probe builds the n synthetic LIs for call and probes each one. It
// returns whether every output hit (in which case the
// caller should bind from the returned entries and skip executing the
// function body) along with the staging handle Commit/Abandon consume
// when a miss sends the body down the execute-then-cache path.
func (m *MultiLevel) Probe(call FunctionCall) (allHit bool, entries []*Entry, staging *callEntries) {
	n := len(call.OutputVarNames)
	lis := make([]*lineage.Item, n)
	ents := make([]*Entry, n)
	allHit = true
	for i := range call.OutputVarNames {
		li, err := m.syntheticLI(call, i)
		if err != nil {
			// A malformed call can't be staged at all; treat as a
			// total miss so the caller just executes normally.
			return false, nil, &callEntries{call: call}
		}
		lis[i] = li
		entry, hit := m.engine.reuseLI(li, true)
		ents[i] = entry
		if !hit {
			allHit = false
		}
	}
	return allHit, ents, &callEntries{call: call, lis: lis, entries: ents}
}

// BindHit binds every cached output into ctx under its variable name,
// and rewrites the calling scope's lineage binding to the
// *original* producing LI by chasing orig_key (falling back to the
// synthetic key itself when the entry was cached directly rather than
// cloned from an upstream hit).
func (m *MultiLevel) BindHit(entries []*Entry, call FunctionCall, ctx ExecutionContext) error {
	for i, entry := range entries {
		if err := bindEntryToContext(entry, call.OutputVarNames[i], ctx); err != nil {
			return err
		}
		orig := entry.OrigKey()
		if orig == nil {
			orig = entry.Key
		}
		ctx.SetLineage(call.OutputVarNames[i], orig)
	}
	return nil
}

// Commit runs after the caller has executed the function body normally:
// each output must have a lineage bound in ctx that is free of random-
// data-generation nodes, and a value within cache_limit_bytes. Commit
// does not probe whether that body-bound lineage is itself cached. If
// every output passes, it records each bound lineage as orig_key and
// calls put_value. Admission is all-or-none across the call's outputs —
// if any output fails (no bound lineage, oversize, or tainted by random
// generation), every placeholder installed by Probe is torn down instead.
func (m *MultiLevel) Commit(staging *callEntries, ctx ExecutionContext, outputs []FunctionOutput) {
	if staging == nil || len(staging.lis) == 0 {
		return
	}
	call := staging.call
	n := len(call.OutputVarNames)
	origKeys := make([]*lineage.Item, n)
	admissible := true
	for i := 0; i < n; i++ {
		bound, ok := ctx.GetLineage(call.OutputVarNames[i])
		if !ok {
			admissible = false
			continue
		}
		if containsRandomGen(bound) {
			admissible = false
			continue
		}
		if outputs[i].size() > m.engine.cfg.CacheLimitBytes {
			admissible = false
			continue
		}
		origKeys[i] = bound
	}

	if !admissible {
		m.abandon(staging)
		return
	}

	for i, li := range staging.lis {
		staging.entries[i].SetOrigKey(origKeys[i])
		m.engine.PutValue(li, outputs[i].Kind, outputs[i].Matrix, outputs[i].Scalar, outputs[i].ExecTimeNS)
	}
}

// abandon tears down every placeholder this call installed, atomically
// across all of the call's outputs.
func (m *MultiLevel) abandon(staging *callEntries) {
	for _, li := range staging.lis {
		m.engine.Remove(li)
	}
}

// Abandon is the exported form of abandon, for callers that decide not to
// cache a partially-missed call at all (e.g. the body itself errored).
func (m *MultiLevel) Abandon(staging *callEntries) {
	if staging == nil {
		return
	}
	m.abandon(staging)
}

// randGenOpcodes are the opcodes the runtime uses for nondeterministic
// data creation (rand/sample instructions); a function output whose
// lineage includes one of these can't be soundly reused across calls with
// different seeds, so it's excluded from function-scope admission even
// when the body happened to hit internally.
var randGenOpcodes = []string{"rand", "sample"}

// containsRandomGen walks root's DAG (through dedup patches) looking for
// an opcode matching one of randGenOpcodes, using its own local
// seen-node map rather than any shared traversal state on the items
// themselves.
func containsRandomGen(root *lineage.Item) bool {
	if root == nil {
		return false
	}
	found := false
	stack := []*lineage.Item{root}
	seen := make(map[*lineage.Item]struct{})
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == nil {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		if isRandGenOpcode(n.Opcode()) {
			found = true
		}
		stack = append(stack, n.Inputs()...)
		if n.DedupPatch() != nil {
			stack = append(stack, n.DedupPatch())
		}
	}
	return found
}

func isRandGenOpcode(opcode string) bool {
	for _, prefix := range randGenOpcodes {
		if strings.HasPrefix(opcode, prefix) {
			return true
		}
	}
	return false
}
