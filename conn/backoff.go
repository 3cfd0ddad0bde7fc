package conn

import (
	"math"
	"time"
)

// Backoff returns the delay before reconnect attempt n: base × 2^n.
// The result saturates instead of overflowing.
func Backoff(base time.Duration, n int) time.Duration {
	if base <= 0 {
		return 0
	}
	d := base
	for range max(n, 0) {
		if d > math.MaxInt64/2 {
			return math.MaxInt64
		}
		d *= 2
	}
	return d
}
