package collector

import "time"

// Backoff decides how long to wait after a failed attempt (1-based).
type Backoff interface {
	Delay(attempt int) time.Duration
}

// LinearBackoff waits attempt × Base.
type LinearBackoff struct {
	Base time.Duration
}

func (b LinearBackoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return time.Duration(attempt) * b.Base
}
