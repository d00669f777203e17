package util

import "runtime"

// GetOptimalPoolSize returns the pool size for CPU-bound engine work.
//
// Formula: min(max(runtime.NumCPU() * 2, 4), 32)
//
// Parsing runs in cgo, so twice the core count keeps goroutines busy while
// others are blocked in tree-sitter. The same number bounds both the parser
// pool per language and the number of concurrent batch transformations, so
// batch workers never wait on a parser.
func GetOptimalPoolSize() int {
	poolSize := runtime.NumCPU() * 2

	if poolSize < 4 {
		poolSize = 4
	}
	if poolSize > 32 {
		poolSize = 32
	}

	return poolSize
}

// GetOptimalPoolSizeWithOverride returns override when positive,
// otherwise GetOptimalPoolSize().
func GetOptimalPoolSizeWithOverride(override int) int {
	if override > 0 {
		return override
	}
	return GetOptimalPoolSize()
}
