// Package util contains misc internal utilities.
package util

import "time"

// Limiter imposes software travel limits.  A zero Limiter allows only zero.
type Limiter struct {
	Min float64 `yaml:"Min" koanf:"Min"`
	Max float64 `yaml:"Max" koanf:"Max"`
}

// Check returns true if Min <= x <= Max
func (l Limiter) Check(x float64) bool {
	return x >= l.Min && x <= l.Max
}

// Clamp limits x to [l.Min, l.Max]
func (l Limiter) Clamp(x float64) float64 {
	return Clamp(x, l.Min, l.Max)
}

// Clamp limits input to [low, high]
func Clamp(input, low, high float64) float64 {
	if input < low {
		return low
	}
	if input > high {
		return high
	}
	return input
}

// MillisToDuration converts an integer number of milliseconds, as found in
// config files, to a Duration
func MillisToDuration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
