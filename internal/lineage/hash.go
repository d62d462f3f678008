package lineage

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// Hash returns the node's memoized structural hash, computing and caching
// it on first use. Placeholders hash to their inner input's hash; dedup
// nodes hash to their patch-root's hash; everything else combines
// hash(opcode), hash(data), and the ordered fold of its inputs' hashes
// with an order-sensitive combiner (xxhash over the concatenated,
// length-delimited fields), so permuting input order changes the hash.
func (n *Item) Hash() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.hashValid {
		return n.hashVal
	}
	n.hashVal = n.computeHashLocked()
	n.hashValid = true
	return n.hashVal
}

// computeHashLocked assumes n.mu is held by the caller.
func (n *Item) computeHashLocked() uint64 {
	if n.IsPlaceholder() && len(n.inputs) == 1 {
		return n.inputs[0].Hash()
	}
	if n.dedupPatch != nil {
		return n.dedupPatch.Hash()
	}

	h := xxhash.New()
	writeLenPrefixed(h, n.opcode)
	writeLenPrefixed(h, n.data)
	var buf [8]byte
	for _, in := range n.inputs {
		binary.LittleEndian.PutUint64(buf[:], in.Hash())
		_, _ = h.Write(buf[:])
	}
	return h.Sum64()
}

func writeLenPrefixed(h *xxhash.Digest, s string) {
	var lbuf [8]byte
	binary.LittleEndian.PutUint64(lbuf[:], uint64(len(s)))
	_, _ = h.Write(lbuf[:])
	_, _ = h.Write([]byte(s))
}

// invalidateHash clears the memoized hash, used when an input edge of a
// not-yet-admitted node is replaced (e.g. a dedup patch rewiring a
// placeholder's target before the node is inserted into the cache index).
func (n *Item) invalidateHash() {
	n.mu.Lock()
	n.hashValid = false
	n.mu.Unlock()
}

// ReplaceInput rewires input i to point at repl and invalidates the
// memoized hash. Only valid before the node is inserted into the cache
// index — LIs are otherwise immutable once keyed.
func (n *Item) ReplaceInput(i int, repl *Item) {
	n.inputs[i] = repl
	n.invalidateHash()
}
