package cache

import (
	"container/list"
	"sync"

	"github.com/phaniarnab/lineagecache/internal/lineage"
)

// Status is an Entry's lifecycle state.
type Status int

const (
	// StatusEmpty marks a placeholder awaiting its producer's put_value.
	StatusEmpty Status = iota
	// StatusCached marks a freshly produced, valued entry.
	StatusCached
	// StatusReloaded marks an entry rehydrated from the spill store.
	StatusReloaded
	// StatusPinned marks an entry under active function/SB execution
	// that must not be evicted.
	StatusPinned
)

func (s Status) String() string {
	switch s {
	case StatusEmpty:
		return "EMPTY"
	case StatusCached:
		return "CACHED"
	case StatusReloaded:
		return "RELOADED"
	case StatusPinned:
		return "PINNED"
	default:
		return "UNKNOWN"
	}
}

// Evictable reports whether an entry in this status may be considered by
// the eviction engine at all. PINNED entries (active function/SB
// execution) and EMPTY placeholders (a producer is still in flight) are
// never touched by make_space.
func (s Status) Evictable() bool {
	return s == StatusCached || s == StatusReloaded
}

// ValueKind distinguishes what an Entry's value slot holds.
type ValueKind int

const (
	ValueNone ValueKind = iota
	ValueMatrix
	ValueScalar
)

// MatrixValue is the opaque, externally-owned matrix-block
// representation: a byte-sized blob as far as this package is concerned.
// The runtime's block representation satisfies this interface; the
// cache never interprets the bytes.
type MatrixValue interface {
	InMemorySize() int64
	EstimateOnDiskSize() int64
	NumRows() int64
	NumCols() int64
	NNZ() int64
	IsSparseFormat() bool
}

// Dims captures the shape/sparsity of a matrix value for cost-model use,
// read out of a MatrixValue at the call site so the cost model itself
// stays free of the MatrixValue interface.
type Dims struct {
	Rows, Cols, NNZ int64
}

func DimsOf(m MatrixValue) Dims {
	return Dims{Rows: m.NumRows(), Cols: m.NumCols(), NNZ: m.NNZ()}
}

// Sparsity returns nnz / (rows*cols), or 0 for a degenerate/empty shape.
func (d Dims) Sparsity() float64 {
	cells := d.Rows * d.Cols
	if cells <= 0 {
		return 0
	}
	return float64(d.NNZ) / float64(cells)
}

/*
Entry is a mutable cache record.

LIFECYCLE

An Entry is created EMPTY (a placeholder) the instant its key is first
probed, before anything has been computed. Its eventual producer fills
in the value and transitions it to CACHED (or RELOADED, if rehydrated
from the spill store). PINNED marks an entry in active use by a
function/statement-block execution that must survive eviction pressure
until released.

CONCURRENCY MODEL

Each Entry owns a private monitor (mu + cond) independent of the
engine's coarse lock: a producer can release the engine lock entirely
while it computes the value, and any number of concurrent consumers can
block on AwaitValue without holding the engine lock either. Only
listElem is engine-lock-owned rather than entry-owned, since its
validity depends on the shared LRU list, not on this entry alone.
*/
type Entry struct {
	Key *lineage.Item

	mu     sync.Mutex
	cond   *sync.Cond
	status Status
	kind   ValueKind
	matrix MatrixValue
	scalar float64

	execTimeNS int64

	// listElem is this entry's position in the engine's LRU
	// container/list.List. It is owned by the engine's coarse lock, not
	// by mu; only ever touched while that lock is held.
	listElem *list.Element

	// spilled marks an entry that currently lives only in the spill
	// index (its value fields above are stale/zeroed once spilled).
	spilled bool

	// origKey is, for multi-level reuse, the lineage item of the
	// upstream entry this one was cloned from, so the function-call
	// site can bind the original lineage.
	origKey *lineage.Item
}

// OrigKey returns the upstream lineage item this entry was bound to by
// the multi-level reuse protocol, or nil if it was never set.
func (e *Entry) OrigKey() *lineage.Item {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.origKey
}

// SetOrigKey records the upstream lineage item.
func (e *Entry) SetOrigKey(li *lineage.Item) {
	e.mu.Lock()
	e.origKey = li
	e.mu.Unlock()
}

// NewPlaceholder installs a value-less entry under key, in StatusEmpty,
// used to coordinate concurrent producers of the same lineage.
func NewPlaceholder(key *lineage.Item) *Entry {
	e := &Entry{Key: key, status: StatusEmpty}
	e.cond = sync.NewCond(&e.mu)
	return e
}

// NewValued constructs an already-valued entry (used by put/put_value
// paths that skip the placeholder step, and by rehydration).
func NewValued(key *lineage.Item, kind ValueKind, matrix MatrixValue, scalar float64, execTimeNS int64, status Status) *Entry {
	e := &Entry{
		Key:        key,
		status:     status,
		kind:       kind,
		matrix:     matrix,
		scalar:     scalar,
		execTimeNS: execTimeNS,
	}
	e.cond = sync.NewCond(&e.mu)
	return e
}

// Status returns the entry's current status.
func (e *Entry) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// SetStatus overwrites the status without touching the value (used to
// pin/unpin an entry around function-call execution, and to mark a
// rehydrated entry RELOADED).
func (e *Entry) SetStatus(s Status) {
	e.mu.Lock()
	e.status = s
	e.mu.Unlock()
}

// ExecTimeNS returns the measured/estimated execution time backing this
// entry's value.
func (e *Entry) ExecTimeNS() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.execTimeNS
}

// Kind reports what the value slot holds.
func (e *Entry) Kind() ValueKind {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.kind
}

// Matrix returns the matrix value, or nil if the entry holds a scalar or
// nothing.
func (e *Entry) Matrix() MatrixValue {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.matrix
}

// Scalar returns the scalar value; only meaningful when Kind() == ValueScalar.
func (e *Entry) Scalar() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.scalar
}

// SetValue fills a previously-empty entry (or overwrites a rehydrated
// one) and wakes any goroutines blocked in AwaitValue.
func (e *Entry) SetValue(kind ValueKind, matrix MatrixValue, scalar float64, execTimeNS int64, status Status) {
	e.mu.Lock()
	e.kind = kind
	e.matrix = matrix
	e.scalar = scalar
	e.execTimeNS = execTimeNS
	e.status = status
	e.cond.Broadcast()
	e.mu.Unlock()
}

// AwaitValue blocks while the entry is StatusEmpty, returning once a
// producer has called SetValue. There is no cancellation or timeout: a
// waiting reader is released only by SetValue (which Engine.Remove also
// calls); Engine.Reset does not wake it, and calling reset while
// producers hold placeholders is undefined behavior.
func (e *Entry) AwaitValue() {
	e.mu.Lock()
	for e.status == StatusEmpty {
		e.cond.Wait()
	}
	e.mu.Unlock()
}

// Size reports the entry's contribution to bytes_resident: a matrix's
// in-memory size, a small fixed footprint for a scalar, or zero for a
// still-empty placeholder (placeholders never count toward bytes_resident).
func (e *Entry) Size() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch e.kind {
	case ValueMatrix:
		if e.matrix == nil {
			return 0
		}
		return e.matrix.InMemorySize()
	case ValueScalar:
		const scalarFootprintBytes = 64
		return scalarFootprintBytes
	default:
		return 0
	}
}
