//go:build !unix

package stdport

import "time"

// monotonicMicros falls back to the standard library's monotonic clock
// reading on targets without a CLOCK_MONOTONIC syscall (x/sys/unix is
// Unix-only); stdport itself is a hosted reference Port, never a deeply
// embedded one, so this fallback only needs to be monotonic, not exact.
var monotonicOrigin = time.Now()

func monotonicMicros() uint64 {
	return uint64(time.Since(monotonicOrigin).Microseconds())
}
