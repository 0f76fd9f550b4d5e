package webhook

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// BackoffStrategy maps the number of the attempt that just failed to the wait
// before the next one. Implementations must be pure: the same attempt always
// yields the same finite, non-negative duration. It is only consulted for
// attempts 1..maxAttempts-1.
type BackoffStrategy interface {
	NextInterval(attempt int) time.Duration
}

// BackoffFunc adapts a plain function to BackoffStrategy.
type BackoffFunc func(attempt int) time.Duration

func (f BackoffFunc) NextInterval(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	if d := f(attempt); d > 0 {
		return d
	}
	return 0
}

// ExponentialBackoff waits InitialInterval * Multiplier^(attempt-1), capped at MaxInterval.
// There is no jitter: a rehydrated job must compute the same delay.
type ExponentialBackoff struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
}

// NextInterval walks a non-randomized cenkalti exponential backoff to the given attempt.
func (e ExponentialBackoff) NextInterval(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	initial := e.InitialInterval
	if initial <= 0 {
		initial = time.Second
	}

	maxInterval := e.MaxInterval
	if maxInterval <= 0 {
		maxInterval = time.Hour
	}

	multiplier := e.Multiplier
	if multiplier < 1 {
		multiplier = 2
	}

	b := &backoff.ExponentialBackOff{
		InitialInterval:     initial,
		RandomizationFactor: 0,
		Multiplier:          multiplier,
		MaxInterval:         maxInterval,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	b.Reset()

	var next time.Duration
	for i := 0; i < attempt; i++ {
		next = b.NextBackOff()
		if next >= maxInterval {
			return maxInterval
		}
	}
	return next
}

// LinearBackoff waits Interval * attempt, capped at MaxInterval.
type LinearBackoff struct {
	Interval    time.Duration
	MaxInterval time.Duration
}

func (l LinearBackoff) NextInterval(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	interval := l.Interval
	if interval <= 0 {
		interval = time.Second
	}

	maxInterval := l.MaxInterval
	if maxInterval <= 0 {
		maxInterval = time.Hour
	}

	// Divide first so large attempt numbers cannot overflow.
	if time.Duration(attempt) > maxInterval/interval {
		return maxInterval
	}
	return interval * time.Duration(attempt)
}

// FixedBackoff waits the same Interval after every attempt.
type FixedBackoff struct {
	Interval time.Duration
}

func (f FixedBackoff) NextInterval(attempt int) time.Duration {
	if attempt <= 0 || f.Interval < 0 {
		return 0
	}
	return f.Interval
}

// DefaultBackoffStrategy is the strategy registered under DefaultBackoffName:
// 1s, 2s, 4s, ... capped at one hour.
func DefaultBackoffStrategy() BackoffStrategy {
	return ExponentialBackoff{
		InitialInterval: time.Second,
		MaxInterval:     time.Hour,
		Multiplier:      2,
	}
}
