package chat

import (
	"math"
	"math/rand/v2"
	"time"
)

// backoff yields bounded, optionally jittered, exponential reconnect delays.
// After maxAttempts consecutive failures it refuses further attempts.
type backoff struct {
	base        time.Duration
	max         time.Duration
	factor      float64
	jitter      float64
	maxAttempts int
	attempt     int
}

func newBackoff(cfg Config) *backoff {
	b := &backoff{
		base:        cfg.ReconnectDelay,
		max:         cfg.ReconnectMaxDelay,
		factor:      cfg.ReconnectFactor,
		jitter:      0.25,
		maxAttempts: cfg.MaxReconnectAttempts,
	}
	if cfg.DisableJitter {
		b.jitter = 0
	}
	return b
}

func (b *backoff) next() (time.Duration, bool) {
	if b.attempt >= b.maxAttempts {
		return 0, false
	}
	d := float64(b.base) * math.Pow(b.factor, float64(b.attempt))
	if b.jitter > 0 {
		d += d * b.jitter * rand.Float64()
	}
	d = math.Min(d, float64(b.max))
	b.attempt++
	return time.Duration(d), true
}

func (b *backoff) reset() {
	b.attempt = 0
}
