package testutil

import (
	"sync"
	"testing"
	"time"

	"TradeGate/internal/config"
	"TradeGate/internal/event"
	"TradeGate/internal/gateway"
)

// FastConfig returns a valid configuration with short timings so
// handshake, sweep, and reconnect paths complete quickly in unit tests.
func FastConfig() config.Config {
	cfg := config.Default()
	cfg.Credentials = config.Credentials{
		BrokerID: "9999",
		UserID:   "test",
		Password: "test",
		AppID:    "test_app",
		AuthCode: "0000000000000000",
	}
	cfg.Fronts = config.Fronts{
		Trade:  "tcp://127.0.0.1:10201",
		Market: "tcp://127.0.0.1:10211",
	}
	cfg.Timeouts = config.Timeouts{
		Request:   200 * time.Millisecond,
		Sweep:     5 * time.Millisecond,
		Handshake: 300 * time.Millisecond,
	}
	cfg.Reconnect = config.Reconnect{
		InitialBackoff: 5 * time.Millisecond,
		MaxBackoff:     20 * time.Millisecond,
		MaxAttempts:    10,
	}
	cfg.EventBufferSize = 1024
	cfg.QueryRatePerSec = 1000
	return cfg
}

// Tick builds a minimal market tick.
func Tick(instrument string, price float64, volume int64) gateway.Tick {
	return gateway.Tick{
		InstrumentID: instrument,
		LastPrice:    price,
		Volume:       volume,
		UpdateTime:   time.Now(),
	}
}

// EventCollector drains an event stream into memory so tests can
// assert on what was emitted.
type EventCollector struct {
	mu     sync.Mutex
	events []event.Event
	done   chan struct{}
}

// Collect starts draining ch until it closes.
func Collect(ch <-chan event.Event) *EventCollector {
	c := &EventCollector{done: make(chan struct{})}
	go func() {
		defer close(c.done)
		for ev := range ch {
			c.mu.Lock()
			c.events = append(c.events, ev)
			c.mu.Unlock()
		}
	}()
	return c
}

// Snapshot returns the events recorded so far.
func (c *EventCollector) Snapshot() []event.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]event.Event, len(c.events))
	copy(out, c.events)
	return out
}

// CountType counts recorded events of one type.
func (c *EventCollector) CountType(t event.Type) int {
	n := 0
	for _, ev := range c.Snapshot() {
		if ev.EventType() == t {
			n++
		}
	}
	return n
}

// WaitFor polls until an event satisfying pred has been recorded.
func (c *EventCollector) WaitFor(t *testing.T, timeout time.Duration, pred func(event.Event) bool) event.Event {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		for _, ev := range c.Snapshot() {
			if pred(ev) {
				return ev
			}
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out after %v waiting for event", timeout)
	return nil
}

// WaitForType polls until an event of the given type has been recorded.
func (c *EventCollector) WaitForType(t *testing.T, timeout time.Duration, typ event.Type) event.Event {
	t.Helper()
	return c.WaitFor(t, timeout, func(ev event.Event) bool { return ev.EventType() == typ })
}

// Eventually polls cond until it holds or the timeout expires.
func Eventually(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out after %v: %s", timeout, msg)
}
