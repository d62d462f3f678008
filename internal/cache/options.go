package cache

/*
Option is a functional configuration modifier for Config.

DESIGN PATTERN

This file implements the functional-options pattern: NewConfig accepts a
variadic list of Option functions instead of a long positional parameter
list or a half-populated struct literal.

	cfg := NewConfig(
		WithPolicy(PolicyCostAndSize),
		WithCacheLimitBytes(256<<20),
	)

Each Option mutates a Config in place before Engine construction reads it.

BENEFITS

1. API stability: NewConfig's signature never changes as the
   configuration surface grows (new With* functions are additive).

2. Readability: each call site spells out only the knobs it cares about;
   everything else is the documented default.

3. Extensibility: options can validate or interact with each other
   without every caller needing to know about it.
*/
type Option func(*Config)

// WithCacheType sets the cache_type bitmask (full/partial/multilevel reuse).
func WithCacheType(t CacheType) Option {
	return func(c *Config) { c.CacheType = t }
}

// WithPolicy sets the eviction-scoring policy.
func WithPolicy(p Policy) Option {
	return func(c *Config) { c.Policy = p }
}

// WithSpillEnabled toggles whether eviction may spill to disk instead of
// dropping outright.
func WithSpillEnabled(enabled bool) Option {
	return func(c *Config) { c.SpillEnabled = enabled }
}

// WithCompAssistedRW toggles the compiler-assisted-rewrite admission gate.
func WithCompAssistedRW(enabled bool) Option {
	return func(c *Config) { c.CompAssistedRW = enabled }
}

// WithReusableOpcodes overrides the oracle's opcode allow-list; an empty
// list falls back to DefaultReusableOpcodes at Oracle construction time.
func WithReusableOpcodes(opcodes []string) Option {
	return func(c *Config) { c.ReusableOpcodes = opcodes }
}

// WithCacheLimitBytes sets an explicit cache size budget, overriding the
// default-fraction-of-process-memory derivation.
func WithCacheLimitBytes(n int64) Option {
	return func(c *Config) { c.CacheLimitBytes = n }
}

// WithHybridWeights sets the linear-combination weights the hybrid policy
// scores entries with.
func WithHybridWeights(w HybridWeights) Option {
	return func(c *Config) { c.HybridWeights = w }
}

// WithOutDir sets the spill store's working-directory root.
func WithOutDir(dir string) Option {
	return func(c *Config) { c.OutDir = dir }
}

// NewConfig builds a Config from defaults (LRU policy, spilling enabled,
// default hybrid weights) plus any number of Options.
func NewConfig(opts ...Option) Config {
	cfg := Config{
		Policy:        PolicyLRU,
		SpillEnabled:  true,
		HybridWeights: DefaultHybridWeights(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
