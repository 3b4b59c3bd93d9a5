package qcache

import (
	"math"
	"math/rand"
	"time"
)

// RetryDelayFn computes the delay before the next attempt, given the number
// of consecutive failures so far and the error that just occurred.
type RetryDelayFn func(failureCount int, err error) time.Duration

// DefaultRetryDelay implements spec §4.4's literal formula:
// min(1000ms * 2^failureCount, 30s).
func DefaultRetryDelay(failureCount int, _ error) time.Duration {
	d := time.Duration(float64(DefaultBaseRetryDelay) * math.Pow(2, float64(failureCount)))
	if d > DefaultMaxRetryDelay || d <= 0 {
		return DefaultMaxRetryDelay
	}
	return d
}

// BackoffConfig parameterizes JitteredRetryDelay, adapted from the teacher's
// exponential-backoff-with-jitter retrier (goutils/retry): a base delay that
// doubles every failure up to a cap, with a symmetric jitter band applied
// around the computed value.
type BackoffConfig struct {
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	Multiplier   float64 // defaults to 2 if zero
	JitterFactor float64 // in [0,1]; fraction of the grown, capped delay to jitter by
}

// JitteredRetryDelay returns a RetryDelayFn that grows exponentially from
// cfg.BaseDelay up to cfg.MaxDelay, with +/-JitterFactor times that grown,
// capped delay applied as jitter,
// clamped to be non-negative. It is a drop-in alternative to
// DefaultRetryDelay for callers that want jitter to avoid retry storms across
// many clients hitting the same failure at once.
func JitteredRetryDelay(cfg BackoffConfig) RetryDelayFn {
	multiplier := cfg.Multiplier
	if multiplier <= 0 {
		multiplier = 2
	}
	return func(failureCount int, _ error) time.Duration {
		base := time.Duration(float64(cfg.BaseDelay) * math.Pow(multiplier, float64(failureCount)))
		if base > cfg.MaxDelay {
			base = cfg.MaxDelay
		}
		if cfg.JitterFactor <= 0 {
			return base
		}
		offset := (rand.Float64()*2 - 1) * cfg.JitterFactor * float64(base)
		delay := base + time.Duration(offset)
		if delay < 0 {
			delay = 0
		}
		return delay
	}
}
