package session

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"TradeGate/internal/errs"
	"TradeGate/internal/observability"
)

// Kind labels what a pending request is waiting for.
type Kind int

const (
	KindAuthenticate Kind = iota
	KindLogin
	KindSettlementConfirm
	KindOrderInsert
	KindOrderCancel
	KindQueryAccount
	KindQueryPositions
	KindQueryTrades
	KindQueryOrders
	KindQuerySettlement
)

func (k Kind) String() string {
	switch k {
	case KindAuthenticate:
		return "authenticate"
	case KindLogin:
		return "login"
	case KindSettlementConfirm:
		return "settlement_confirm"
	case KindOrderInsert:
		return "order_insert"
	case KindOrderCancel:
		return "order_cancel"
	case KindQueryAccount:
		return "query_account"
	case KindQueryPositions:
		return "query_positions"
	case KindQueryTrades:
		return "query_trades"
	case KindQueryOrders:
		return "query_orders"
	case KindQuerySettlement:
		return "query_settlement"
	}
	return "unknown"
}

// Result carries the outcome delivered to an awaiting caller.
type Result struct {
	Payload interface{}
	Err     error
}

// Ticket is the caller's handle for one in-flight request. The result
// channel is buffered so resolution never blocks on an abandoned
// caller.
type Ticket struct {
	ID          int
	Kind        Kind
	SubmittedAt time.Time

	ch chan Result
}

// Await blocks until the request resolves, times out via Sweep, or the
// context ends.
func (t *Ticket) Await(ctx context.Context) (interface{}, error) {
	select {
	case res := <-t.ch:
		return res.Payload, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Correlator tracks in-flight request IDs and matches responses back to
// their tickets. Each ID resolves at most once; responses for unknown
// IDs are dropped as stale.
type Correlator struct {
	mu      sync.Mutex
	pending map[int]*Ticket
	logger  zerolog.Logger
	metrics *observability.Metrics
}

func NewCorrelator(metrics *observability.Metrics) *Correlator {
	return &Correlator{
		pending: make(map[int]*Ticket),
		logger:  observability.NewLogger("correlator"),
		metrics: metrics,
	}
}

// Submit registers a request ID. A duplicate ID is a programming error
// upstream and is refused.
func (c *Correlator) Submit(id int, kind Kind) (*Ticket, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.pending[id]; exists {
		return nil, &errs.StateError{Reason: "request id " + strconv.Itoa(id) + " already pending"}
	}
	t := &Ticket{
		ID:          id,
		Kind:        kind,
		SubmittedAt: time.Now(),
		ch:          make(chan Result, 1),
	}
	c.pending[id] = t
	if c.metrics != nil {
		c.metrics.PendingRequests.Set(float64(len(c.pending)))
	}
	return t, nil
}

// Resolve completes the request, delivering the result to its ticket.
// Returns false when the ID is not pending (already resolved, swept,
// or never submitted).
func (c *Correlator) Resolve(id int, res Result) bool {
	c.mu.Lock()
	t, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	n := len(c.pending)
	c.mu.Unlock()

	if !ok {
		c.logger.Debug().Int("request_id", id).Msg("dropping stale response")
		if c.metrics != nil {
			c.metrics.StaleResponses.Inc()
		}
		return false
	}
	if c.metrics != nil {
		c.metrics.PendingRequests.Set(float64(n))
	}
	t.ch <- res
	return true
}

// Sweep removes every request older than timeout, delivering a
// TimeoutError to each, and returns the expired tickets.
func (c *Correlator) Sweep(timeout time.Duration) []*Ticket {
	now := time.Now()

	c.mu.Lock()
	var expired []*Ticket
	for id, t := range c.pending {
		if now.Sub(t.SubmittedAt) >= timeout {
			expired = append(expired, t)
			delete(c.pending, id)
		}
	}
	n := len(c.pending)
	c.mu.Unlock()

	for _, t := range expired {
		c.logger.Warn().
			Int("request_id", t.ID).
			Str("kind", t.Kind.String()).
			Dur("age", now.Sub(t.SubmittedAt)).
			Msg("request timed out")
		t.ch <- Result{Err: &errs.TimeoutError{RequestID: t.ID}}
		if c.metrics != nil {
			c.metrics.RequestTimeouts.WithLabelValues(t.Kind.String()).Inc()
		}
	}
	if c.metrics != nil {
		c.metrics.PendingRequests.Set(float64(n))
	}
	return expired
}

// SweepAll drains every pending request with the given error. Used on
// disconnect, when no response can arrive for the old session.
func (c *Correlator) SweepAll(err error) []*Ticket {
	c.mu.Lock()
	var drained []*Ticket
	for id, t := range c.pending {
		drained = append(drained, t)
		delete(c.pending, id)
	}
	c.mu.Unlock()

	for _, t := range drained {
		t.ch <- Result{Err: err}
	}
	if c.metrics != nil {
		c.metrics.PendingRequests.Set(0)
	}
	return drained
}

// PendingCount returns in-flight requests.
func (c *Correlator) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
