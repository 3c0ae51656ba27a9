package transport

import (
	"math/rand"
	"time"
)

// BackoffConfig defines dial retry backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Delay returns the pause before retry attempt n (1-based). The first
// attempt waits InitialDelay unmodified; later attempts grow geometrically
// and clamp at MaxDelay. With Jitter set the result is scaled by a factor
// in [0.5, 1.5) drawn from rng.
func (cfg BackoffConfig) Delay(n int, rng *rand.Rand) time.Duration {
	if cfg.InitialDelay <= 0 {
		return 0
	}
	mult := cfg.Multiplier
	if mult < 1.0 {
		mult = 1.0
	}
	d := float64(cfg.InitialDelay)
	for i := 1; i < n; i++ {
		d *= mult
		if cfg.MaxDelay > 0 && d >= float64(cfg.MaxDelay) {
			d = float64(cfg.MaxDelay)
			break
		}
	}
	if cfg.Jitter && n > 1 {
		f := 0.5
		if rng != nil {
			f += rng.Float64()
		}
		d *= f
	}
	return time.Duration(d)
}
