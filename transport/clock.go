package transport

import (
	"time"

	"golang.org/x/sys/unix"
)

// MonotonicNow returns elapsed time since an arbitrary fixed point using
// CLOCK_MONOTONIC, unaffected by wall-clock adjustments (NTP step, leap
// seconds) during a long-lived radio link session. Used by FOP-1's 1Hz
// retransmit loop to detect and log ticker drift; the ticker itself is
// a time.Ticker.
func MonotonicNow() (time.Duration, error) {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return 0, err
	}
	return time.Duration(ts.Sec)*time.Second + time.Duration(ts.Nsec), nil
}
