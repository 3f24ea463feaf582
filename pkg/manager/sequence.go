package manager

import "sync/atomic"

// nextNonZero atomically increments counter and returns the result,
// skipping over a wrap to zero, spec §4.4 "both increment atomically and
// skip zero."
func nextNonZero(counter *uint32) uint32 {
	v := atomic.AddUint32(counter, 1)
	if v == 0 {
		v = atomic.AddUint32(counter, 1)
	}
	return v
}
