package progress

import (
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Reconnect schedule: 1s, 2s, 4s, ... capped at 30s, each delay
// jittered by ±10%. After maxDialAttempts the client gives up on
// redialing and falls back to polling.
const (
	defaultBackoffInitial = 1 * time.Second
	defaultBackoffMax     = 30 * time.Second
	backoffMultiplier     = 2
	backoffJitter         = 0.1

	maxDialAttempts = 10
)

func newBackoffPolicy(initial, max time.Duration) *backoff.ExponentialBackOff {
	if initial <= 0 {
		initial = defaultBackoffInitial
	}
	if max <= 0 {
		max = defaultBackoffMax
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.MaxInterval = max
	b.Multiplier = backoffMultiplier
	b.RandomizationFactor = backoffJitter
	b.Reset()
	return b
}
