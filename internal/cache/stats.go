package cache

import "github.com/prometheus/client_golang/prometheus"

/*
Stats tracks the counters diagnostics and tests care about.

PURPOSE

Instruction-level hit/miss accounting alone can't explain a policy's
behavior: this structure separately tracks where a hit was satisfied
(resident memory vs. rehydrated from spill vs. a previously-evicted
delete-hit), write/delete volume, spill I/O latency, cost-model
evaluation latency, and a per-opcode breakdown of recomputations.

	hit_ratio = InstructionHits / (InstructionHits + total misses)

DESIGN

A simpler cache might keep a single plain Stats{Hits, Misses, Evictions}
struct under the engine's lock. Here each counter is a prometheus metric
instead: the same numbers stay readable in-process (via testutil in
tests) and are scrapable from a running process without any extra
plumbing, matching how the rest of this corpus exposes operational
metrics.

CONCURRENCY

Every field is a prometheus.Collector, which is safe for concurrent
Inc()/Observe() calls on its own; Stats itself holds no lock.
*/
type Stats struct {
	InstructionHits prometheus.Counter
	MemoryHits      prometheus.Counter
	DiskHits        prometheus.Counter
	DeleteHits      prometheus.Counter
	MemoryDeletes   prometheus.Counter
	MemoryWrites    prometheus.Counter

	FSReadCount  prometheus.Counter
	FSWriteCount prometheus.Counter
	FSReadTimeMS  prometheus.Histogram
	FSWriteTimeMS prometheus.Histogram

	CostingTimeMS prometheus.Histogram

	// RecomputesByOpcode is a per-opcode count of recomputations, so a
	// named heavy-hitter opcode's recompute count can be compared across
	// policies instead of only a global total.
	RecomputesByOpcode *prometheus.CounterVec
}

// NewStats registers the cache's metrics against reg and returns the
// handle used to record them. Passing prometheus.NewRegistry() isolates a
// test's counters; passing prometheus.DefaultRegisterer wires the engine
// into the process-wide /metrics endpoint.
func NewStats(reg prometheus.Registerer) *Stats {
	s := &Stats{
		InstructionHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lineagecache_instruction_hits_total",
			Help: "Instructions whose result was bound from the cache instead of executed.",
		}),
		MemoryHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lineagecache_memory_hits_total",
			Help: "Cache probes satisfied by a resident entry.",
		}),
		DiskHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lineagecache_disk_hits_total",
			Help: "Cache probes satisfied by rehydrating a spilled entry.",
		}),
		DeleteHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lineagecache_delete_hits_total",
			Help: "Cache probes for a key that was previously evicted outright.",
		}),
		MemoryDeletes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lineagecache_memory_deletes_total",
			Help: "Entries dropped outright (no spill) by the eviction engine.",
		}),
		MemoryWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lineagecache_memory_writes_total",
			Help: "Entries admitted into the resident index.",
		}),
		FSReadCount: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lineagecache_fs_reads_total",
			Help: "Spill-store rehydration reads.",
		}),
		FSWriteCount: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lineagecache_fs_writes_total",
			Help: "Spill-store writes.",
		}),
		FSReadTimeMS: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "lineagecache_fs_read_time_ms",
			Help:    "Spill-store read latency in milliseconds.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		FSWriteTimeMS: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "lineagecache_fs_write_time_ms",
			Help:    "Spill-store write latency in milliseconds.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		CostingTimeMS: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "lineagecache_costing_time_ms",
			Help:    "Time spent evaluating the cost model per decision.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		RecomputesByOpcode: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lineagecache_recomputes_by_opcode_total",
			Help: "Recomputations (cache misses that proceeded to execute) by opcode.",
		}, []string{"opcode"}),
	}

	for _, c := range []prometheus.Collector{
		s.InstructionHits, s.MemoryHits, s.DiskHits, s.DeleteHits,
		s.MemoryDeletes, s.MemoryWrites, s.FSReadCount, s.FSWriteCount,
		s.FSReadTimeMS, s.FSWriteTimeMS, s.CostingTimeMS, s.RecomputesByOpcode,
	} {
		if reg != nil {
			reg.MustRegister(c)
		}
	}
	return s
}

func (s *Stats) RecordRecompute(opcode string) {
	s.RecomputesByOpcode.WithLabelValues(opcode).Inc()
}
