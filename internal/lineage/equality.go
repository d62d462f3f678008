package lineage

// Equal reports whether a and b are structurally equal: with dedup
// rewriting and placeholder bypassing applied, their opcode, data, and
// input sequences match recursively. Dedup-patch reentrancy is handled by
// tracking which (a, b) pairs are on the active recursion stack: meeting
// a pair that is still being compared further up (a genuine cycle, e.g. a
// dedup patch that loops back to an ancestor) is assumed equal rather
// than re-descended. A pair is taken off the stack once its comparison
// finishes, so a shared sub-DAG reached again by another path (a diamond)
// is compared again from scratch, and a *different* pair that merely
// happens to reuse one side of an earlier, unrelated pairing is never
// shortcut — it is always compared structurally.
func Equal(a, b *Item) bool {
	return equalRec(a, b, make(map[pairKey]bool))
}

// pairKey identifies one (a, b) comparison on the active recursion
// stack, by pointer identity on both sides.
type pairKey struct{ a, b *Item }

// resolve follows dedup-patch and placeholder rewriting until neither
// applies, so the comparison always operates on the canonical node.
func resolve(n *Item) *Item {
	for n != nil {
		if n.dedupPatch != nil {
			n = n.dedupPatch
			continue
		}
		if n.IsPlaceholder() && len(n.inputs) == 1 {
			n = n.inputs[0]
			continue
		}
		break
	}
	return n
}

func equalRec(a, b *Item, onStack map[pairKey]bool) bool {
	a = resolve(a)
	b = resolve(b)

	if a == nil || b == nil {
		return a == b
	}
	if a == b {
		return true
	}
	if a.opcode != b.opcode || a.data != b.data || len(a.inputs) != len(b.inputs) {
		return false
	}

	// This exact pair is already being compared further up the
	// recursion stack: it's a genuine cycle (a dedup patch looping
	// back to an ancestor) rather than two unrelated nodes that happen
	// to look alike, so assume equal and terminate instead of
	// recursing forever.
	key := pairKey{a, b}
	if onStack[key] {
		return true
	}
	onStack[key] = true
	defer delete(onStack, key)

	for i := range a.inputs {
		if !equalRec(a.inputs[i], b.inputs[i], onStack) {
			return false
		}
	}
	return true
}
