// Package ratelimit decides whether a run submission is far enough from the
// previous live run of the same user and subtask.
package ratelimit

import "time"

// Check compares the client timestamp with the last live run timestamp, both
// in milliseconds. It returns the remaining wait, or zero when submission is
// allowed. A missing previous run is passed as last = 0, so timestamps close
// to the epoch are refused as replays.
func Check(timestamp, last int64, window time.Duration) time.Duration {
	windowMS := window.Milliseconds()
	if windowMS <= 0 {
		return 0
	}
	delta := distance(timestamp, last)
	if delta >= uint64(windowMS) {
		return 0
	}
	return time.Duration(windowMS-int64(delta)) * time.Millisecond
}

// distance is |a-b| computed without int64 overflow.
func distance(a, b int64) uint64 {
	if a >= b {
		return uint64(a) - uint64(b)
	}
	return uint64(b) - uint64(a)
}
