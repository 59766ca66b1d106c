package connection

import "time"

// Delay returns the wait before reconnect attempt n (1-based):
// base·2^(n-1), capped at ceiling.
func Delay(base, ceiling time.Duration, n int) time.Duration {
	if n < 1 {
		n = 1
	}
	d := base
	for i := 1; i < n; i++ {
		d *= 2
		if d >= ceiling || d <= 0 {
			return ceiling
		}
	}
	if d > ceiling {
		return ceiling
	}
	return d
}
