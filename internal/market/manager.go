package market

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"TradeGate/internal/gateway"
	"TradeGate/internal/observability"
)

// Subscription is the tracked state for one instrument. Desired means
// the application wants it; confirmed means the gateway has
// acknowledged it this connection. Undesired entries exist only to
// keep the tick cache coherent for instruments that tick anyway.
type Subscription struct {
	InstrumentID string
	Desired      bool
	Confirmed    bool
	Priority     int
	LastTick     *gateway.Tick
}

// Stats are cumulative tick counters since process start.
type Stats struct {
	Received int64
	Filtered int64
	Emitted  int64
}

// Manager tracks subscriptions and the last-tick cache, and runs the
// filter chain. Writes come from the engine goroutine; reads may come
// from any goroutine.
type Manager struct {
	mu      sync.RWMutex
	subs    map[string]*Subscription
	filters []Filter
	stats   Stats
	logger  zerolog.Logger
	metrics *observability.Metrics
}

func NewManager(metrics *observability.Metrics, filters ...Filter) *Manager {
	return &Manager{
		subs:    make(map[string]*Subscription),
		filters: filters,
		logger:  observability.NewLogger("market_manager"),
		metrics: metrics,
	}
}

// Want marks instruments as desired. Returns the ones not already
// desired, in input order, so the caller knows what to send to the
// gateway.
func (m *Manager) Want(instruments []string, priority int) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var added []string
	for _, id := range instruments {
		if id == "" {
			continue
		}
		if sub, exists := m.subs[id]; exists {
			if sub.Desired {
				continue
			}
			// Promote a cache-only entry created by an unsolicited tick.
			sub.Desired = true
			sub.Priority = priority
			added = append(added, id)
			continue
		}
		m.subs[id] = &Subscription{InstrumentID: id, Desired: true, Priority: priority}
		added = append(added, id)
	}
	m.updateGaugesLocked()
	return added
}

// Drop removes instruments from the desired set. Returns the ones that
// were actually tracked.
func (m *Manager) Drop(instruments []string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var removed []string
	for _, id := range instruments {
		if sub, exists := m.subs[id]; exists && sub.Desired {
			delete(m.subs, id)
			removed = append(removed, id)
		}
	}
	m.updateGaugesLocked()
	return removed
}

// Confirm records a gateway subscription ack.
func (m *Manager) Confirm(instrumentID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sub, exists := m.subs[instrumentID]; exists {
		sub.Confirmed = true
	} else {
		m.logger.Warn().Str("instrument", instrumentID).Msg("ack for instrument not desired")
	}
	m.updateGaugesLocked()
}

// ResetConfirmed clears every confirmed flag. Called on disconnect:
// the new connection has no subscriptions until re-acked.
func (m *Manager) ResetConfirmed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sub := range m.subs {
		sub.Confirmed = false
	}
	m.updateGaugesLocked()
}

// Desired returns all desired instruments, highest priority first,
// ties in lexical order. Used to replay subscriptions after reconnect.
// Cache-only entries are excluded.
func (m *Manager) Desired() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	subs := make([]*Subscription, 0, len(m.subs))
	for _, sub := range m.subs {
		if sub.Desired {
			subs = append(subs, sub)
		}
	}
	sort.Slice(subs, func(i, j int) bool {
		if subs[i].Priority != subs[j].Priority {
			return subs[i].Priority > subs[j].Priority
		}
		return subs[i].InstrumentID < subs[j].InstrumentID
	})
	out := make([]string, len(subs))
	for i, sub := range subs {
		out[i] = sub.InstrumentID
	}
	return out
}

// OnTick runs the filter chain and updates the cache. The cache is
// updated even when the tick is suppressed, so filters always compare
// against the latest data. Returns true when the tick should be
// emitted to consumers.
func (m *Manager) OnTick(tick gateway.Tick) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stats.Received++
	if m.metrics != nil {
		m.metrics.TicksReceived.WithLabelValues(tick.InstrumentID).Inc()
	}

	sub, exists := m.subs[tick.InstrumentID]
	if !exists {
		// Tick for an instrument we never asked for. Track it so the
		// cache stays coherent, but not as desired.
		sub = &Subscription{InstrumentID: tick.InstrumentID}
		m.subs[tick.InstrumentID] = sub
		m.logger.Debug().Str("instrument", tick.InstrumentID).Msg("tick for undesired instrument")
	}

	prev := sub.LastTick
	for _, f := range m.filters {
		if !f.Accepts(prev, tick) {
			t := tick
			sub.LastTick = &t
			m.stats.Filtered++
			if m.metrics != nil {
				m.metrics.TicksFiltered.WithLabelValues(tick.InstrumentID, f.Name()).Inc()
			}
			return false
		}
	}

	t := tick
	sub.LastTick = &t
	m.stats.Emitted++
	if m.metrics != nil {
		m.metrics.TicksEmitted.WithLabelValues(tick.InstrumentID).Inc()
	}
	return true
}

// LastTick returns the cached tick for an instrument, filtered or not.
func (m *Manager) LastTick(instrumentID string) (gateway.Tick, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sub, exists := m.subs[instrumentID]
	if !exists || sub.LastTick == nil {
		return gateway.Tick{}, false
	}
	return *sub.LastTick, true
}

// AllTicks returns the whole last-tick cache, keyed by instrument.
func (m *Manager) AllTicks() map[string]gateway.Tick {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]gateway.Tick, len(m.subs))
	for id, sub := range m.subs {
		if sub.LastTick != nil {
			out[id] = *sub.LastTick
		}
	}
	return out
}

// Snapshot returns a copy of one subscription.
func (m *Manager) Snapshot(instrumentID string) (Subscription, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sub, exists := m.subs[instrumentID]
	if !exists {
		return Subscription{}, false
	}
	out := *sub
	if sub.LastTick != nil {
		t := *sub.LastTick
		out.LastTick = &t
	}
	return out, true
}

// Stats returns a copy of the tick counters.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stats
}

func (m *Manager) updateGaugesLocked() {
	if m.metrics == nil {
		return
	}
	desired, confirmed := 0, 0
	for _, sub := range m.subs {
		if sub.Desired {
			desired++
		}
		if sub.Confirmed {
			confirmed++
		}
	}
	m.metrics.SubscriptionsWant.Set(float64(desired))
	m.metrics.SubscriptionsAcked.Set(float64(confirmed))
}
