package delivery

import (
	"math/rand/v2"
	"time"
)

const maxBackoffBase = 60

// Backoff returns the delay before retrying after a retryable response on
// the given attempt. Half of min(attempt², 60) seconds is guaranteed and up
// to the other half is random, so the delay never exceeds 60s.
func Backoff(attempt int) time.Duration {
	return backoffWith(attempt, rand.IntN)
}

// MaxBackoff is the longest delay Backoff can return for attempt.
func MaxBackoff(attempt int) time.Duration {
	return backoffWith(attempt, func(n int) int { return n - 1 })
}

// MaxDuration bounds how long one delivery can block when every request runs
// up to requestTimeout and is answered with a retryable status: MaxAttempts
// requests plus the longest backoff after each of them.
func MaxDuration(requestTimeout time.Duration) time.Duration {
	d := time.Duration(MaxAttempts) * requestTimeout
	for n := 1; n <= MaxAttempts; n++ {
		d += MaxBackoff(n)
	}
	return d
}

// backoffWith computes the delay using intn, which must return a uniform
// integer in [0, n).
func backoffWith(attempt int, intn func(n int) int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := maxBackoffBase
	if attempt < 8 && attempt*attempt < maxBackoffBase {
		base = attempt * attempt
	}
	jitter := intn(base + 1)
	secs := base/2 + jitter/2
	return time.Duration(secs) * time.Second
}
