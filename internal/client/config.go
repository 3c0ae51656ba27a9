package client

import "time"

// Config defines protocol client defaults.
type Config struct {
	// Channel selects the receiver channel addressed by tuning commands.
	Channel uint8
	// SampleBitWidth is the packed width of one IQ sample on the data channel.
	SampleBitWidth int
	// AckTimeout bounds a correlated request waiting for its reply.
	AckTimeout time.Duration
	// SampleBuffer is the decoded sample-block channel depth; blocks past it
	// are dropped, matching the datagram channel's unreliable contract.
	SampleBuffer int
}

func DefaultConfig() Config {
	return Config{
		Channel:        0,
		SampleBitWidth: 16,
		AckTimeout:     5 * time.Second,
		SampleBuffer:   64,
	}
}

func (c Config) WithDefaults() Config {
	if c.SampleBitWidth == 0 {
		c.SampleBitWidth = 16
	}
	if c.AckTimeout <= 0 {
		c.AckTimeout = 5 * time.Second
	}
	if c.SampleBuffer <= 0 {
		c.SampleBuffer = 64
	}
	return c
}
