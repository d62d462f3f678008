package lineage

import "errors"

// ErrLineageInvariant marks a structurally invalid lineage DAG (a
// non-leaf node with an empty opcode). It is fatal wherever it surfaces:
// the runtime cannot key a cache lookup on a malformed lineage item.
var ErrLineageInvariant = errors.New("lineage: invariant violated")
