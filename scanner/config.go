package scanner

import "time"

// Config holds the wave scheduler's tunables (spec §4.4, §6).
type Config struct {
	PerIPTimeout time.Duration
	MaxRetries   int
	RetryDelay   time.Duration
	MaxWaves     int
	WaveDelay    time.Duration
	// Port is the TCP port probed on every candidate IP. Zero defaults to 15740,
	// the PTP/IP standard port (spec §1); tests override it to talk to an
	// ephemeral-port mock responder.
	Port int
}

// DefaultConfig returns defaults inside spec §6's enumerated ranges: the midpoint
// for the per-IP timeout and the wave delay, and 300ms for the retry delay.
func DefaultConfig() Config {
	return Config{
		PerIPTimeout: 1500 * time.Millisecond,
		MaxRetries:   3,
		RetryDelay:   300 * time.Millisecond,
		MaxWaves:     3,
		WaveDelay:    1500 * time.Millisecond,
		Port:         ptpipPort,
	}
}
