package service

import "time"

// BackoffDelay is linear in the failure count and capped at max.
func BackoffDelay(failures int, base, max time.Duration) time.Duration {
	if failures < 1 {
		failures = 1
	}
	d := time.Duration(failures) * base
	if d > max || d <= 0 {
		return max
	}
	return d
}
