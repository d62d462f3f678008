// Package cache implements the lineage-driven computation reuse cache:
// lookup, insertion, placeholder coordination between concurrent
// computations, size accounting, cost-based eviction, and spill-to-disk
// rehydration.
package cache

import (
	"container/list"
	"fmt"
	"sync"

	"github.com/phaniarnab/lineagecache/internal/lineage"
	"go.uber.org/zap"
)

// Engine is an explicit value owned by the runtime and threaded through
// the execution context, rather than a package-level global, so multiple
// runtimes (and tests) can each hold their own instead of sharing
// process-wide state.
//
// A single coarse mutex guards the index, the LRU list, the spill index,
// and bytes_resident. The value inside an Entry is guarded by its own
// per-entry monitor so producers can release this lock while computing.
type Engine struct {
	mu sync.Mutex

	cfg Config

	oracle     *Oracle
	costModel  *CostModel
	spillStore *SpillStore
	rewrite    RewriteEngine // optional; nil disables partial reuse even if configured
	stats      *Stats
	log        *zap.SugaredLogger

	index      *liIndex[*Entry]
	lru        *list.List // elements hold *Entry
	spillIndex *liIndex[SpillRecord]
	removedSet *liIndex[struct{}]

	bytesResident int64
	closed        bool
}

// NewEngine constructs an Engine. localMaxMemoryBytes is the runtime's
// own notion of its maximum resident memory; when cfg.CacheLimitBytes is
// zero it is derived as a fixed fraction (DefaultCacheLimitFraction,
// default 5%) of localMaxMemoryBytes, computed once at construction.
func NewEngine(cfg Config, localMaxMemoryBytes int64, oracle *Oracle, costModel *CostModel, spillStore *SpillStore, rewrite RewriteEngine, stats *Stats, log *zap.SugaredLogger) (*Engine, error) {
	if cfg.CacheLimitBytes == 0 {
		cfg.CacheLimitBytes = int64(float64(localMaxMemoryBytes) * DefaultCacheLimitFraction)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.OutDir != "" && spillStore != nil {
		spillStore.base = cfg.OutDir
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Engine{
		cfg:        cfg,
		oracle:     oracle,
		costModel:  costModel,
		spillStore: spillStore,
		rewrite:    rewrite,
		stats:      stats,
		log:        log,
		index:      newLIIndex[*Entry](),
		lru:        list.New(),
		spillIndex: newLIIndex[SpillRecord](),
		removedSet: newLIIndex[struct{}](),
	}, nil
}

// Reuse is the instruction-level probe. On a hit it binds the cached
// value to the instruction's output variable and returns true.
// On a miss it installs a placeholder (when the instruction is marked for
// caching) and, when partial reuse is configured, falls through to the
// external rewrite engine before giving up. The cache is best-effort: any
// internal failure here is logged and treated as a miss rather than
// propagated, so it never aborts the host computation.
func (e *Engine) Reuse(instr Instruction, ctx ExecutionContext) bool {
	if !e.cfg.CacheType.Has(FullReuse) || !e.oracle.IsReusable(instr) {
		return e.tryPartialReuse(instr, ctx)
	}

	li, err := instr.LineageItem(ctx)
	if err != nil {
		e.log.Debugw("lineage construction failed, treating as miss", "opcode", instr.Opcode(), "error", err)
		return e.tryPartialReuse(instr, ctx)
	}

	entry, hit := e.reuseLI(li, e.oracle.IsMarkedForCaching(instr))
	if !hit {
		return e.tryPartialReuse(instr, ctx)
	}

	if err := bindEntryToContext(entry, instr.OutputVarName(), ctx); err != nil {
		e.log.Warnw("failed to bind cached value, treating as miss", "opcode", instr.Opcode(), "error", err)
		return e.tryPartialReuse(instr, ctx)
	}
	e.stats.InstructionHits.Inc()
	return true
}

func (e *Engine) tryPartialReuse(instr Instruction, ctx ExecutionContext) bool {
	if !e.cfg.CacheType.Has(PartialReuse) || e.rewrite == nil {
		return false
	}
	ok, err := e.rewrite.TryReuse(instr, ctx)
	if err != nil {
		e.log.Debugw("partial-reuse rewrite failed", "opcode", instr.Opcode(), "error", err)
		return false
	}
	if ok {
		e.stats.InstructionHits.Inc()
	}
	return ok
}

func bindEntryToContext(entry *Entry, outVar string, ctx ExecutionContext) error {
	switch entry.Kind() {
	case ValueMatrix:
		ctx.SetMatrixOutput(outVar, entry.Matrix())
	case ValueScalar:
		ctx.SetScalarOutput(outVar, entry.Scalar())
	default:
		return fmt.Errorf("cache entry for %q has no value", outVar)
	}
	ctx.SetLineage(outVar, entry.Key)
	return nil
}

// reuseLI is the lower-level probe, used directly by the multi-level
// protocol and internally by the instruction-level Reuse. On a hit it
// blocks (outside the engine lock) until the entry is valued if a
// producer is still in flight. On a miss it installs a placeholder when
// install is true.
func (e *Engine) reuseLI(li *lineage.Item, install bool) (*Entry, bool) {
	e.mu.Lock()
	if entry, ok := e.index.Get(li); ok {
		e.touchLocked(entry)
		e.mu.Unlock()
		entry.AwaitValue()
		e.recordHit(entry)
		return entry, true
	}

	if rec, ok := e.spillIndex.Get(li); ok {
		// rehydrateLocked leaves the entry PINNED (see the comment inside
		// it); the caller must Unpin(li, StatusReloaded) once done with
		// the value so it becomes evictable again.
		entry, err := e.rehydrateLocked(li, rec)
		if err != nil {
			e.mu.Unlock()
			e.log.Warnw("rehydrate failed", "li", li.ID(), "error", err)
			return nil, false
		}
		e.mu.Unlock()
		return entry, true
	}

	deleteHit := e.removedSet.Has(li)
	var placeholder *Entry
	if install {
		placeholder = NewPlaceholder(li)
		_ = e.admitLocked(placeholder)
	}
	e.mu.Unlock()
	if deleteHit {
		e.stats.DeleteHits.Inc()
	}
	return placeholder, false
}

func (e *Engine) recordHit(entry *Entry) {
	if entry.Status() == StatusReloaded {
		e.stats.DiskHits.Inc()
	} else {
		e.stats.MemoryHits.Inc()
	}
}

// Put inserts a completed matrix or scalar result. It pre-allocates the
// entry's size, evicts as necessary, and pushes it to
// the LRU head. Best-effort: a failure here is logged, not propagated.
func (e *Engine) Put(li *lineage.Item, kind ValueKind, matrix MatrixValue, scalar float64, execTimeNS int64) {
	entry := NewValued(li, kind, matrix, scalar, execTimeNS, StatusCached)
	e.mu.Lock()
	defer e.mu.Unlock()
	if existing, ok := e.index.Get(li); ok && existing.Status() == StatusEmpty {
		// An in-flight placeholder for this key: fill it instead of
		// inserting a second entry, matching the at-most-one-producer
		// invariant.
		size := entry.Size()
		if size > e.cfg.CacheLimitBytes {
			e.removeFromIndexAndListLocked(existing)
			existing.SetValue(kind, matrix, scalar, execTimeNS, StatusCached)
			return
		}
		if err := e.makeSpaceLocked(size); err != nil {
			e.log.Debugw("make_space failed", "error", err)
		}
		existing.SetValue(kind, matrix, scalar, execTimeNS, StatusCached)
		e.bytesResident += size
		e.stats.MemoryWrites.Inc()
		return
	}
	if err := e.admitLocked(entry); err != nil {
		e.log.Debugw("admission failed", "li", li.ID(), "error", err)
	}
}

// PutValue fills a previously-installed placeholder and wakes any
// goroutines blocked awaiting it.
func (e *Engine) PutValue(li *lineage.Item, kind ValueKind, matrix MatrixValue, scalar float64, execTimeNS int64) {
	e.mu.Lock()
	entry, ok := e.index.Get(li)
	if !ok {
		e.mu.Unlock()
		e.Put(li, kind, matrix, scalar, execTimeNS)
		return
	}
	size := func() int64 {
		tmp := NewValued(li, kind, matrix, scalar, execTimeNS, StatusCached)
		return tmp.Size()
	}()
	if size > e.cfg.CacheLimitBytes {
		e.removeFromIndexAndListLocked(entry)
		e.mu.Unlock()
		entry.SetValue(kind, matrix, scalar, execTimeNS, StatusCached)
		return
	}
	if err := e.makeSpaceLocked(size); err != nil {
		e.log.Debugw("make_space failed", "error", err)
	}
	e.bytesResident += size
	e.stats.MemoryWrites.Inc()
	e.mu.Unlock()
	entry.SetValue(kind, matrix, scalar, execTimeNS, StatusCached)
}

// Remove drops li's entry (resident or spilled) without recording it as
// an eviction — used by the multi-level protocol's all-or-nothing undo
// path.
func (e *Engine) Remove(li *lineage.Item) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if entry, ok := e.index.Get(li); ok {
		e.removeFromIndexAndListLocked(entry)
		// Any status other than StatusEmpty releases AwaitValue's wait
		// loop; StatusCached with a ValueNone kind tells the waiter there
		// is nothing usable here rather than leaving it parked forever.
		entry.SetValue(ValueNone, nil, 0, 0, StatusCached)
	}
	e.spillIndex.Delete(li)
}

// WasEvicted reports whether li was previously dropped outright.
func (e *Engine) WasEvicted(li *lineage.Item) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.removedSet.Has(li)
}

// Pin/Unpin mark an entry PINNED (not evictable) around active
// function-body execution.
func (e *Engine) Pin(li *lineage.Item) {
	e.mu.Lock()
	entry, ok := e.index.Get(li)
	e.mu.Unlock()
	if ok {
		entry.SetStatus(StatusPinned)
	}
}

func (e *Engine) Unpin(li *lineage.Item, status Status) {
	e.mu.Lock()
	entry, ok := e.index.Get(li)
	e.mu.Unlock()
	if ok {
		entry.SetStatus(status)
	}
}

// Reset clears the index, spill list, LRU list, and resident byte count.
// Calling it while producers still hold placeholders is undefined
// behavior — callers are responsible for quiescing the cache first.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.index.Reset()
	e.spillIndex.Reset()
	e.removedSet.Reset()
	e.lru = list.New()
	e.bytesResident = 0
}

// Close marks the engine closed and deletes any transient spill files.
// Safe to call more than once.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()
	if e.spillStore != nil {
		return e.spillStore.Close()
	}
	return nil
}

func (e *Engine) touchLocked(entry *Entry) {
	if entry.listElem != nil {
		e.lru.MoveToFront(entry.listElem)
	}
}

// admitLocked runs the admission path: oversize entries are dropped (never
// resident), otherwise make_space runs before bytes_resident is increased
// and the entry is pushed to the LRU head.
func (e *Engine) admitLocked(entry *Entry) error {
	size := entry.Size()
	if size > e.cfg.CacheLimitBytes {
		e.log.Debugw("entry exceeds cache_limit_bytes, not admitted", "li", entry.Key.ID(), "size", size)
		return nil
	}
	if err := e.makeSpaceLocked(size); err != nil {
		return err
	}
	elem := e.lru.PushFront(entry)
	entry.listElem = elem
	e.index.Put(entry.Key, entry)
	e.bytesResident += size
	e.stats.MemoryWrites.Inc()
	return nil
}

func (e *Engine) removeFromIndexAndListLocked(entry *Entry) {
	size := entry.Size()
	e.index.Delete(entry.Key)
	if entry.listElem != nil {
		e.lru.Remove(entry.listElem)
		entry.listElem = nil
	}
	e.bytesResident -= size
}

func (e *Engine) rehydrateLocked(li *lineage.Item, rec SpillRecord) (*Entry, error) {
	value, err := e.spillStore.Rehydrate(rec)
	if err != nil {
		return nil, err
	}
	e.spillIndex.Delete(li)
	e.stats.FSReadCount.Inc()
	dims := DimsOf(value)
	e.stats.FSReadTimeMS.Observe(e.costModel.FSReadTimeMS(dims))

	entry := NewValued(li, ValueMatrix, value, 0, rec.ExecTimeNS, StatusReloaded)
	// Running the regular admission path here can immediately re-evict
	// what was just loaded under memory pressure; pin it as soon as it
	// is admitted and let the caller downgrade the status once it's done
	// with the value.
	if err := e.admitLocked(entry); err != nil {
		return nil, err
	}
	entry.SetStatus(StatusPinned)
	e.stats.DiskHits.Inc()
	return entry, nil
}
