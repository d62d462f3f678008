// Package lineage implements the lineage-item (LI) DAG used as the cache
// key throughout the reuse cache: structural hashing, dedup-patch aware
// equality, DAG height, and deep copy. Height traverses iteratively with
// an explicit stack; Equal and DeepCopy recurse, using one native call
// frame per level of the DAG.
package lineage

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
)

// DedupPrefix marks an opcode as a dedup node: its hash and equality are
// forwarded to DedupPatch instead of being computed from opcode/data/inputs.
const DedupPrefix = "dedup"

// PlaceholderPrefix marks an opcode as a placeholder node. A placeholder
// has exactly one input and is transparent for both hashing and equality:
// it forwards to that input. Placeholders mark patch points inside dedup
// DAGs.
const PlaceholderPrefix = "_placeholder_"

// Category is the derived classification of an Item, a function of its
// opcode and input count.
type Category int

const (
	Literal Category = iota
	Creation
	Instruction
	Dedup
)

func (c Category) String() string {
	switch c {
	case Literal:
		return "Literal"
	case Creation:
		return "Creation"
	case Instruction:
		return "Instruction"
	case Dedup:
		return "Dedup"
	default:
		return "Unknown"
	}
}

var idSeq atomic.Int64

// Item is an immutable DAG node carrying an opcode, a data literal, and
// ordered input edges to other Items. It is the cache key.
//
// Only hashVal/hashValid (the memoized structural hash) are allowed to
// mutate after construction, plus an input edge rewired by ReplaceInput
// before the node is keyed in the cache; every other field is fixed for
// the node's lifetime. The hash fields are guarded by mu so a shared node
// can be safely hashed from more than one goroutine.
type Item struct {
	id         int64
	opcode     string
	data       string
	inputs     []*Item
	dedupPatch *Item

	mu        sync.Mutex
	hashValid bool
	hashVal   uint64
}

// New constructs an Item and memoizes its structural hash immediately —
// cheap, because every input's hash is already memoized. Returns a
// LineageInvariant-class error if the node is a non-leaf with an empty
// opcode.
func New(opcode, data string, inputs []*Item, dedupPatch *Item) (*Item, error) {
	if opcode == "" && len(inputs) > 0 {
		return nil, fmt.Errorf("%w: non-leaf lineage item with empty opcode (data=%q, %d inputs)", ErrLineageInvariant, data, len(inputs))
	}
	n := &Item{
		id:         idSeq.Add(1),
		opcode:     opcode,
		data:       data,
		inputs:     inputs,
		dedupPatch: dedupPatch,
	}
	n.Hash() // memoize eagerly; inputs are already memoized.
	return n, nil
}

// MustNew is New without the error return, for call sites that already
// know the opcode/input combination is well-formed (tests, literals).
func MustNew(opcode, data string, inputs []*Item, dedupPatch *Item) *Item {
	n, err := New(opcode, data, inputs, dedupPatch)
	if err != nil {
		panic(err)
	}
	return n
}

func (n *Item) ID() int64             { return n.id }
func (n *Item) Opcode() string        { return n.opcode }
func (n *Item) Data() string          { return n.data }
func (n *Item) Inputs() []*Item       { return n.inputs }
func (n *Item) DedupPatch() *Item     { return n.dedupPatch }
func (n *Item) IsLeaf() bool          { return len(n.inputs) == 0 }
func (n *Item) IsDedup() bool         { return IsDedupOpcode(n.opcode) }
func (n *Item) IsPlaceholder() bool   { return IsPlaceholderOpcode(n.opcode) }
func (n *Item) HasDedupPatch() bool   { return n.dedupPatch != nil }

// IsDedupOpcode reports whether an opcode string marks a dedup node.
func IsDedupOpcode(opcode string) bool { return strings.HasPrefix(opcode, DedupPrefix) }

// IsPlaceholderOpcode reports whether an opcode string marks a placeholder node.
func IsPlaceholderOpcode(opcode string) bool { return strings.HasPrefix(opcode, PlaceholderPrefix) }

// Category returns the node's derived category, or a LineageInvariant
// error if the node is structurally invalid (non-leaf, empty opcode —
// this should already have been rejected by New, but callers holding onto
// an Item built elsewhere may still ask).
func (n *Item) Category() (Category, error) {
	switch {
	case n.IsLeaf() && n.opcode == "":
		return Literal, nil
	case n.IsLeaf():
		return Creation, nil
	case n.opcode == "":
		return 0, fmt.Errorf("%w: non-leaf lineage item %d with empty opcode", ErrLineageInvariant, n.id)
	case n.IsDedup():
		return Dedup, nil
	default:
		return Instruction, nil
	}
}

// DeepCopy clones the DAG reachable from n bottom-up, assigning each
// cloned node a fresh id. Shared sub-DAGs in the source remain shared in
// the clone (a memo keyed by source pointer prevents re-cloning a node
// reached via two different paths).
func (n *Item) DeepCopy() *Item {
	if n == nil {
		return nil
	}
	memo := make(map[*Item]*Item)
	return deepCopyRec(n, memo)
}

func deepCopyRec(n *Item, memo map[*Item]*Item) *Item {
	if n == nil {
		return nil
	}
	if c, ok := memo[n]; ok {
		return c
	}
	clone := &Item{
		id:     idSeq.Add(1),
		opcode: n.opcode,
		data:   n.data,
	}
	memo[n] = clone
	if len(n.inputs) > 0 {
		clone.inputs = make([]*Item, len(n.inputs))
		for i, in := range n.inputs {
			clone.inputs[i] = deepCopyRec(in, memo)
		}
	}
	clone.dedupPatch = deepCopyRec(n.dedupPatch, memo)
	clone.hashValid = n.hashValid
	clone.hashVal = n.hashVal
	return clone
}
