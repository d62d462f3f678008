package lineage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashEqualityCoherence(t *testing.T) {
	a := MustNew("tsmm", "", []*Item{MustNew("", "X", nil, nil)}, nil)
	b := MustNew("tsmm", "", []*Item{MustNew("", "X", nil, nil)}, nil)
	assert.True(t, Equal(a, b))
	assert.Equal(t, a.Hash(), b.Hash())
}

func TestEqualityIsOrderSensitive(t *testing.T) {
	x := MustNew("", "X", nil, nil)
	y := MustNew("", "Y", nil, nil)
	a := MustNew("+", "", []*Item{x, y}, nil)
	b := MustNew("+", "", []*Item{y, x}, nil)
	assert.False(t, Equal(a, b))
	assert.NotEqual(t, a.Hash(), b.Hash())
}

func TestPlaceholderTransparency(t *testing.T) {
	inner := MustNew("tsmm", "", []*Item{MustNew("", "X", nil, nil)}, nil)
	ph := MustNew(PlaceholderPrefix+"0", "", []*Item{inner}, nil)

	assert.True(t, Equal(ph, inner))
	assert.Equal(t, inner.Hash(), ph.Hash())
}

func TestDedupTransparency(t *testing.T) {
	patch := MustNew("tsmm", "", []*Item{MustNew("", "X", nil, nil)}, nil)
	dedupNode := MustNew("dedup_7", "irrelevant-data", []*Item{patch}, patch)

	assert.True(t, Equal(dedupNode, patch))
	assert.Equal(t, patch.Hash(), dedupNode.Hash())

	// Rewriting placeholders inside the patch before comparing must still
	// hold: a placeholder standing in for the patch resolves the same way.
	ph := MustNew(PlaceholderPrefix+"1", "", []*Item{patch}, nil)
	assert.True(t, Equal(dedupNode, ph))
}

func TestEqualityTerminatesOnSharedDiamond(t *testing.T) {
	shared := MustNew("tsmm", "", []*Item{MustNew("", "X", nil, nil)}, nil)
	left := MustNew("+", "", []*Item{shared, shared}, nil)
	right := MustNew("+", "", []*Item{shared, shared}, nil)

	done := make(chan bool, 1)
	go func() { done <- Equal(left, right) }()
	select {
	case eq := <-done:
		assert.True(t, eq)
	case <-time.After(2 * time.Second):
		t.Fatal("equality did not terminate on a shared diamond")
	}
}

// TestEqualityDoesNotConfuseUnrelatedPairsSharingANode reproduces a
// cross-pairing false positive a per-node (rather than per-pair) cycle
// guard would produce: A and C are genuinely different (built over
// different leaves), but A appears twice in root1's inputs: once paired
// with P, which legitimately equals A, and once paired with C, which it
// does not equal (C legitimately equals only Q, the input between them).
// A comparison that marks whole nodes "visited" after a single true
// pairing would then treat the unrelated A-vs-C position as equal too,
// without ever checking their children.
func TestEqualityDoesNotConfuseUnrelatedPairsSharingANode(t *testing.T) {
	l1 := MustNew("", "x", nil, nil)
	l2 := MustNew("", "y", nil, nil)
	l1prime := MustNew("", "x", nil, nil)
	l2prime := MustNew("", "y", nil, nil)

	a := MustNew("g", "", []*Item{l1}, nil)
	c := MustNew("g", "", []*Item{l2}, nil)
	p := MustNew("g", "", []*Item{l1prime}, nil)
	q := MustNew("g", "", []*Item{l2prime}, nil)

	require.True(t, Equal(a, p))
	require.True(t, Equal(q, c))
	require.False(t, Equal(a, c))

	root1 := MustNew("f", "", []*Item{a, q, a}, nil)
	root2 := MustNew("f", "", []*Item{p, c, c}, nil)

	assert.False(t, Equal(root1, root2))
}

func TestEqualityIsSymmetric(t *testing.T) {
	a := MustNew("ba+*", "", []*Item{MustNew("", "1", nil, nil), MustNew("", "2", nil, nil)}, nil)
	b := MustNew("ba+*", "", []*Item{MustNew("", "1", nil, nil), MustNew("", "2", nil, nil)}, nil)
	assert.Equal(t, Equal(a, b), Equal(b, a))
}
