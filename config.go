package core

// Config holds the construction-time configuration for a State.
//
// All fields have sensible defaults (see DefaultConfig); WorkerCount
// of 0 disables parallel system dispatch entirely.
type Config struct {
	// WorkerCount is the number of additional goroutines the default
	// worker pool may use for a parallel system, on top of the main
	// goroutine. 0 disables parallelism.
	WorkerCount int

	// ScratchCapacityBytes bounds the per-tick scratch arena. Exceeding
	// it during pack materialization is a fatal configuration error.
	ScratchCapacityBytes int

	// MinEntitiesPerWorker is the minimum slice size a parallel
	// system's partial pack must retain per worker; the scheduler
	// reduces worker count to respect it.
	MinEntitiesPerWorker int
}

// DefaultConfig returns the configuration used when a zero-value
// Config (or no Config at all) is supplied to NewState.
func DefaultConfig() Config {
	return Config{
		WorkerCount:          0,
		ScratchCapacityBytes: 1 << 20,
		MinEntitiesPerWorker: 256,
	}
}

// withDefaults fills zero fields with DefaultConfig's values, so a
// caller can supply a partially populated Config.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ScratchCapacityBytes <= 0 {
		c.ScratchCapacityBytes = d.ScratchCapacityBytes
	}
	if c.MinEntitiesPerWorker <= 0 {
		c.MinEntitiesPerWorker = d.MinEntitiesPerWorker
	}
	// WorkerCount's zero value (0) is itself meaningful (parallelism
	// disabled), so it is never defaulted away.
	return c
}
