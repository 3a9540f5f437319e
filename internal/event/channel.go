package event

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"TradeGate/internal/observability"
)

// Channel carries events from gateway callback threads to the single
// engine consumer. Enqueue never blocks the producer: when the buffer
// is full the event is dropped and counted.
type Channel struct {
	ch        chan Event
	logger    zerolog.Logger
	enqueued  atomic.Uint64
	dropped   atomic.Uint64
	closeOnce sync.Once
}

func NewChannel(capacity int) *Channel {
	if capacity <= 0 {
		capacity = 1024
	}
	return &Channel{
		ch:     make(chan Event, capacity),
		logger: observability.NewLogger("event_channel"),
	}
}

// Enqueue offers an event to the consumer. Safe to call from any
// goroutine. Returns false when the event was dropped.
func (c *Channel) Enqueue(ev Event) bool {
	select {
	case c.ch <- ev:
		c.enqueued.Add(1)
		return true
	default:
		n := c.dropped.Add(1)
		c.logger.Warn().
			Str("event_type", ev.EventType().String()).
			Uint64("total_dropped", n).
			Msg("event channel full, dropping event")
		return false
	}
}

// Events exposes the receive side for the single consumer.
func (c *Channel) Events() <-chan Event {
	return c.ch
}

// Close ends the stream. Producers must have stopped before Close.
func (c *Channel) Close() {
	c.closeOnce.Do(func() { close(c.ch) })
}

func (c *Channel) Enqueued() uint64 { return c.enqueued.Load() }
func (c *Channel) Dropped() uint64  { return c.dropped.Load() }
