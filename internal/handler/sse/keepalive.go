package sse

import (
	"log/slog"
	"time"
)

// KeepAliveWriter writes one keep-alive comment.
type KeepAliveWriter interface {
	WriteKeepAlive() error
}

// TickerKeepAlive writes keep-alives at a fixed interval until stopped or
// until a write fails.
type TickerKeepAlive struct {
	interval time.Duration
	done     chan struct{}
	stopped  chan struct{}
}

// NewTickerKeepAlive creates a keep-alive that ticks every interval.
func NewTickerKeepAlive(interval time.Duration) *TickerKeepAlive {
	return &TickerKeepAlive{
		interval: interval,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

// Start runs the ticker in a goroutine. The returned channel closes when
// the goroutine exits.
func (k *TickerKeepAlive) Start(writer KeepAliveWriter, logger *slog.Logger) <-chan struct{} {
	go func() {
		defer close(k.stopped)

		ticker := time.NewTicker(k.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := writer.WriteKeepAlive(); err != nil {
					logger.Warn("keep-alive write failed, stopping", "error", err)
					return
				}
			case <-k.done:
				return
			}
		}
	}()
	return k.stopped
}

// Stop ends the ticker. Safe to call more than once.
func (k *TickerKeepAlive) Stop() {
	select {
	case <-k.done:
	default:
		close(k.done)
	}
}
