package order

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"TradeGate/internal/errs"
	"TradeGate/internal/gateway"
	"TradeGate/internal/observability"
)

// Order is one tracked order: the latest gateway snapshot plus local
// bookkeeping. RequestID is the submit request; CancelRequestID is set
// once a cancel has been sent.
type Order struct {
	Snapshot        gateway.OrderSnapshot
	RequestID       int
	CancelRequestID int
	SubmittedAt     time.Time
	UpdatedAt       time.Time

	acked       bool
	cancelAcked bool
}

// Stats are cumulative since process start. Terminal counters move
// exactly once per order.
type Stats struct {
	Submitted int
	Filled    int
	Canceled  int
	Rejected  int
	Trades    int
	Turnover  float64
}

// Manager tracks the order book from the session's point of view.
// Writes come from the engine goroutine; snapshot reads may come from
// any goroutine.
type Manager struct {
	mu        sync.RWMutex
	orders    map[gateway.OrderKey]*Order
	trades    map[gateway.OrderKey][]gateway.Trade
	positions *PositionBook
	stats     Stats
	logger    zerolog.Logger
	metrics   *observability.Metrics
}

func NewManager(metrics *observability.Metrics) *Manager {
	return &Manager{
		orders:    make(map[gateway.OrderKey]*Order),
		trades:    make(map[gateway.OrderKey][]gateway.Trade),
		positions: NewPositionBook(),
		logger:    observability.NewLogger("order_manager"),
		metrics:   metrics,
	}
}

// Validate checks a request before it is handed to the gateway.
func Validate(req gateway.OrderRequest) error {
	if req.InstrumentID == "" {
		return &errs.ValidationError{Reason: "instrument id is empty"}
	}
	if req.Volume <= 0 {
		return &errs.ValidationError{Reason: fmt.Sprintf("volume %d must be positive", req.Volume)}
	}
	if req.Type == gateway.OrderTypeLimit && req.Price <= 0 {
		return &errs.ValidationError{Reason: fmt.Sprintf("limit price %v must be positive", req.Price)}
	}
	return nil
}

// Track registers a freshly submitted order under its composite key.
// The key must be new for this session. requestID correlates the first
// status callback back to the submitter; zero for adopted flows.
func (m *Manager) Track(req gateway.OrderRequest, key gateway.OrderKey, requestID int) error {
	if err := Validate(req); err != nil {
		if m.metrics != nil {
			m.metrics.OrdersRejected.WithLabelValues(req.InstrumentID, "validation").Inc()
		}
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.orders[key]; exists {
		return &errs.StateError{Reason: "order " + key.String() + " already tracked"}
	}

	now := time.Now()
	m.orders[key] = &Order{
		Snapshot: gateway.OrderSnapshot{
			Key:          key,
			InstrumentID: req.InstrumentID,
			Direction:    req.Direction,
			Offset:       req.Offset,
			Price:        req.Price,
			Volume:       req.Volume,
			Status:       gateway.StatusPendingSubmit,
		},
		RequestID:   requestID,
		SubmittedAt: now,
		UpdatedAt:   now,
	}
	m.stats.Submitted++
	if m.metrics != nil {
		m.metrics.OrdersSubmitted.WithLabelValues(req.InstrumentID).Inc()
		m.metrics.OrdersActive.Set(float64(m.activeLocked()))
	}
	return nil
}

// Discard removes an order that was never handed to the gateway, such
// as when the transport refuses the submit call. No callback will ever
// arrive for it, so it must not linger in the active index.
func (m *Manager) Discard(key gateway.OrderKey) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.orders[key]; !exists {
		return
	}
	delete(m.orders, key)
	delete(m.trades, key)
	m.stats.Submitted--
	if m.metrics != nil {
		m.metrics.OrdersActive.Set(float64(m.activeLocked()))
	}
}

// MarkCancelRequested records the request id of an in-flight cancel so
// the terminal status that answers it can be correlated back.
func (m *Manager) MarkCancelRequested(key gateway.OrderKey, requestID int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, exists := m.orders[key]; exists {
		o.CancelRequestID = requestID
		o.cancelAcked = false
	}
}

// OnStatus applies an order status callback. Unknown keys are adopted:
// orders can predate this process or belong to another session of the
// same investor. Returns the request ids this update acknowledges: the
// submit request on the first status seen, and the cancel request on
// the terminal status.
func (m *Manager) OnStatus(snap gateway.OrderSnapshot) []int {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, exists := m.orders[snap.Key]
	if !exists {
		o = &Order{SubmittedAt: time.Now()}
		m.orders[snap.Key] = o
		m.logger.Info().
			Str("order_key", snap.Key.String()).
			Str("instrument", snap.InstrumentID).
			Msg("adopting externally submitted order")
	}

	var acked []int
	if o.RequestID != 0 && !o.acked {
		o.acked = true
		acked = append(acked, o.RequestID)
	}
	if o.CancelRequestID != 0 && !o.cancelAcked && snap.Status.Terminal() {
		o.cancelAcked = true
		acked = append(acked, o.CancelRequestID)
	}

	wasTerminal := o.Snapshot.Status.Terminal()
	o.Snapshot = snap
	o.UpdatedAt = time.Now()

	if snap.Status.Terminal() && !wasTerminal {
		switch snap.Status {
		case gateway.StatusAllTraded:
			m.stats.Filled++
		case gateway.StatusCanceled:
			m.stats.Canceled++
		case gateway.StatusRejected:
			m.stats.Rejected++
			m.logger.Warn().
				Str("order_key", snap.Key.String()).
				Str("instrument", snap.InstrumentID).
				Str("status_msg", snap.StatusMsg).
				Msg("order rejected by exchange")
		}
		if m.metrics != nil {
			m.metrics.OrdersTerminal.WithLabelValues(snap.InstrumentID, snap.Status.String()).Inc()
			if snap.Status == gateway.StatusRejected {
				m.metrics.OrdersRejected.WithLabelValues(snap.InstrumentID, "exchange").Inc()
			}
		}
	}
	if m.metrics != nil {
		m.metrics.OrdersActive.Set(float64(m.activeLocked()))
	}
	return acked
}

// OnTrade records a fill against its order. Trades for unknown orders
// are kept in the ledger anyway.
func (m *Manager) OnTrade(tr gateway.Trade) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.orders[tr.OrderKey]; !exists {
		m.logger.Warn().
			Str("trade_id", tr.TradeID).
			Str("order_key", tr.OrderKey.String()).
			Msg("trade for untracked order")
	}
	m.trades[tr.OrderKey] = append(m.trades[tr.OrderKey], tr)
	m.stats.Trades++
	m.stats.Turnover += tr.Price * float64(tr.Volume)
	m.positions.Apply(tr)
	if m.metrics != nil {
		m.metrics.TradesRecorded.WithLabelValues(tr.InstrumentID).Inc()
		m.metrics.TurnoverTotal.WithLabelValues(tr.InstrumentID).Add(tr.Price * float64(tr.Volume))
	}
}

// Positions exposes the local position view built from fills.
func (m *Manager) Positions() *PositionBook {
	return m.positions
}

// CancelEligible checks that a cancel may be sent for the key.
func (m *Manager) CancelEligible(key gateway.OrderKey) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, exists := m.orders[key]
	if !exists {
		return &errs.StateError{Reason: "order " + key.String() + " not tracked"}
	}
	if o.Snapshot.Status.Terminal() {
		return &errs.StateError{Reason: "order " + key.String() + " already " + o.Snapshot.Status.String()}
	}
	return nil
}

// Get returns a copy of one tracked order.
func (m *Manager) Get(key gateway.OrderKey) (Order, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, exists := m.orders[key]
	if !exists {
		return Order{}, false
	}
	return *o, true
}

// ActiveOrders returns copies of every non-terminal order.
func (m *Manager) ActiveOrders() []Order {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Order
	for _, o := range m.orders {
		if !o.Snapshot.Status.Terminal() {
			out = append(out, *o)
		}
	}
	return out
}

// TradesFor returns the fills recorded for one order key.
func (m *Manager) TradesFor(key gateway.OrderKey) []gateway.Trade {
	m.mu.RLock()
	defer m.mu.RUnlock()
	src := m.trades[key]
	out := make([]gateway.Trade, len(src))
	copy(out, src)
	return out
}

// Stats returns a copy of the cumulative counters.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stats
}

// EvictExpired drops terminal orders not updated within retention,
// together with their fills. Active orders are never evicted. Returns
// how many orders were removed.
func (m *Manager) EvictExpired(retention time.Duration) int {
	cutoff := time.Now().Add(-retention)

	m.mu.Lock()
	defer m.mu.Unlock()
	evicted := 0
	for key, o := range m.orders {
		if o.Snapshot.Status.Terminal() && !o.UpdatedAt.After(cutoff) {
			delete(m.orders, key)
			delete(m.trades, key)
			evicted++
		}
	}
	if evicted > 0 {
		m.logger.Debug().Int("evicted", evicted).Msg("evicted terminal orders")
	}
	return evicted
}

func (m *Manager) activeLocked() int {
	n := 0
	for _, o := range m.orders {
		if !o.Snapshot.Status.Terminal() {
			n++
		}
	}
	return n
}
