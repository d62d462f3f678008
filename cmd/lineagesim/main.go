// Command lineagesim replays a reference PCA + linear-regression-style
// instruction trace against the lineage reuse cache under the lru,
// costnsize and dagheight eviction policies (not hybrid) and reports
// hit/recompute counts, so cost-aware policies can be
// eyeballed against plain LRU end to end.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
