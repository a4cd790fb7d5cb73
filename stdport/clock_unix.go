//go:build unix

package stdport

import "golang.org/x/sys/unix"

// monotonicMicros reads CLOCK_MONOTONIC in whole microseconds: the
// hosted stand-in for a free-running hardware counter, immune to
// wall-clock adjustment.
func monotonicMicros() uint64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		panic(err)
	}
	return uint64(ts.Sec)*1_000_000 + uint64(ts.Nsec)/1000
}
