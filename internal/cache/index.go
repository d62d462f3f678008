package cache

import "github.com/phaniarnab/lineagecache/internal/lineage"

// liIndex is a hash map keyed by lineage-item structural equality rather
// than pointer identity: two different *lineage.Item values that Equal()
// considers the same lineage must land on the same slot. Lookups bucket
// by Hash() (cheap, memoized) and fall back to Equal() within the bucket
// to resolve the rare hash collision — the same shape every Go map uses
// internally, just exposed because lineage.Item isn't `comparable` in any
// sense Go's built-in map understands (pointer identity is wrong: two
// distinct nodes can be the same lineage via dedup/placeholder rewriting).
//
// No library in the example corpus offers a content-addressable map over
// a custom equality relation (hashicorp/golang-lru and friends key on
// `comparable`, which pointer-keys would satisfy but incorrectly), so
// this is hand-rolled rather than grounded on a third-party dependency.
type liIndex[V any] struct {
	buckets map[uint64][]liEntry[V]
	count   int
}

type liEntry[V any] struct {
	key *lineage.Item
	val V
}

func newLIIndex[V any]() *liIndex[V] {
	return &liIndex[V]{buckets: make(map[uint64][]liEntry[V])}
}

func (idx *liIndex[V]) Get(key *lineage.Item) (V, bool) {
	for _, e := range idx.buckets[key.Hash()] {
		if lineage.Equal(e.key, key) {
			return e.val, true
		}
	}
	var zero V
	return zero, false
}

func (idx *liIndex[V]) Has(key *lineage.Item) bool {
	_, ok := idx.Get(key)
	return ok
}

// Put inserts or overwrites the value for key, returning true if it
// replaced an existing entry.
func (idx *liIndex[V]) Put(key *lineage.Item, val V) bool {
	h := key.Hash()
	bucket := idx.buckets[h]
	for i, e := range bucket {
		if lineage.Equal(e.key, key) {
			bucket[i].val = val
			return true
		}
	}
	idx.buckets[h] = append(bucket, liEntry[V]{key: key, val: val})
	idx.count++
	return false
}

func (idx *liIndex[V]) Delete(key *lineage.Item) {
	h := key.Hash()
	bucket := idx.buckets[h]
	for i, e := range bucket {
		if lineage.Equal(e.key, key) {
			idx.buckets[h] = append(bucket[:i], bucket[i+1:]...)
			idx.count--
			return
		}
	}
}

func (idx *liIndex[V]) Len() int { return idx.count }

func (idx *liIndex[V]) Reset() {
	idx.buckets = make(map[uint64][]liEntry[V])
	idx.count = 0
}
