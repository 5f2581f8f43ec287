package sse

import "time"

// Config holds the settings of an event stream connection.
type Config struct {
	// KeepAliveInterval is how often a comment line is written while no
	// events flow, so proxies don't close an idle stream.
	KeepAliveInterval time.Duration

	// ChunkDelay paces content events. Zero sends them as fast as they
	// are generated.
	ChunkDelay time.Duration
}

// DefaultConfig returns the settings used by the dev server.
func DefaultConfig() *Config {
	return &Config{
		KeepAliveInterval: 15 * time.Second,
		ChunkDelay:        25 * time.Millisecond,
	}
}
