package core

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"TradeGate/internal/config"
	"TradeGate/internal/errs"
	"TradeGate/internal/event"
	"TradeGate/internal/gateway"
	"TradeGate/internal/market"
	"TradeGate/internal/observability"
	"TradeGate/internal/order"
	"TradeGate/internal/session"
)

// Client is the application-facing session handle. One Client owns one
// gateway session: it runs the handshake, tracks orders and
// subscriptions, and surfaces everything as an event stream.
type Client struct {
	id      string
	cfg     config.Config
	api     gateway.API
	ch      *event.Channel
	eng     *engine
	sess    *session.Session
	corr    *session.Correlator
	orders  *order.Manager
	market  *market.Manager
	limiter *rate.Limiter
	logger  zerolog.Logger
	metrics *observability.Metrics
	health  *observability.HealthChecker
}

// New wires a client around a gateway implementation. metrics may be
// nil in tests.
func New(cfg config.Config, api gateway.API, metrics *observability.Metrics, health *observability.HealthChecker) *Client {
	if health == nil {
		health = observability.NewHealthChecker()
	}
	ch := event.NewChannel(cfg.EventBufferSize)
	sess := session.New()
	corr := session.NewCorrelator(metrics)
	orders := order.NewManager(metrics)

	var filters []market.Filter
	if cfg.Filters.PriceChangeMin > 0 {
		filters = append(filters, market.PriceChangeFilter{MinChange: cfg.Filters.PriceChangeMin})
	}
	if cfg.Filters.VolumeMinDelta > 0 {
		filters = append(filters, market.VolumeFilter{MinDelta: cfg.Filters.VolumeMinDelta})
	}
	mkt := market.NewManager(metrics, filters...)

	api.SetHandler(newCallbackBridge(ch, metrics))

	id := uuid.NewString()
	return &Client{
		id:      id,
		cfg:     cfg,
		api:     api,
		ch:      ch,
		eng:     newEngine(cfg, api, ch, sess, corr, orders, mkt, metrics, health),
		sess:    sess,
		corr:    corr,
		orders:  orders,
		market:  mkt,
		limiter: rate.NewLimiter(rate.Limit(cfg.QueryRatePerSec), 1),
		logger:  observability.NewLogger("client").With().Str("client_id", id).Logger(),
		metrics: metrics,
		health:  health,
	}
}

// Connect starts the session. The handshake runs asynchronously; watch
// Events for LoginSuccess and SettlementConfirmed, or poll State.
func (c *Client) Connect() error {
	return c.eng.start()
}

// Shutdown stops the engine and releases the gateway. Idempotent.
func (c *Client) Shutdown() {
	c.eng.stop()
}

// Events is the application event stream. Closed on Shutdown.
func (c *Client) Events() <-chan event.Event {
	return c.eng.out
}

// State returns the current session state.
func (c *Client) State() session.ConnectionState {
	return c.sess.State()
}

// ID returns the unique identifier of this client instance.
func (c *Client) ID() string {
	return c.id
}

// Session exposes session identity and counters.
func (c *Client) Session() *session.Session {
	return c.sess
}

// SubmitOrder validates, registers, and sends an order. The returned
// key identifies the order in all later status and trade events. The
// acknowledgment arrives asynchronously; use SubmitOrderWait to block
// for it.
func (c *Client) SubmitOrder(req gateway.OrderRequest) (gateway.OrderKey, error) {
	key, _, err := c.submit(req)
	return key, err
}

// SubmitOrderWait submits and blocks until the gateway acknowledges the
// order with its first status, the request is swept as timed out, or
// ctx ends.
func (c *Client) SubmitOrderWait(ctx context.Context, req gateway.OrderRequest) (gateway.OrderSnapshot, gateway.OrderKey, error) {
	key, ticket, err := c.submit(req)
	if err != nil {
		return gateway.OrderSnapshot{}, gateway.OrderKey{}, err
	}
	payload, err := ticket.Await(ctx)
	if err != nil {
		return gateway.OrderSnapshot{}, key, err
	}
	snap, _ := payload.(gateway.OrderSnapshot)
	return snap, key, nil
}

func (c *Client) submit(req gateway.OrderRequest) (gateway.OrderKey, *session.Ticket, error) {
	if !c.sess.State().Usable() {
		return gateway.OrderKey{}, nil, &errs.StateError{
			Reason: "cannot submit order in state " + c.sess.State().String(),
		}
	}

	frontID, sessionID := c.sess.Identity()
	key := gateway.OrderKey{
		FrontID:   frontID,
		SessionID: sessionID,
		OrderRef:  c.sess.NextOrderRef(),
	}
	reqID := c.sess.NextRequestID()
	if err := c.orders.Track(req, key, reqID); err != nil {
		return gateway.OrderKey{}, nil, err
	}
	ticket, err := c.corr.Submit(reqID, session.KindOrderInsert)
	if err != nil {
		c.orders.Discard(key)
		return gateway.OrderKey{}, nil, err
	}
	if err := c.api.SubmitOrder(req, key, reqID); err != nil {
		// The gateway never saw the order: drop it from the book and
		// release the pending request.
		c.orders.Discard(key)
		sendErr := &errs.ConnectionError{Reason: err.Error()}
		c.corr.Resolve(reqID, session.Result{Err: sendErr})
		return gateway.OrderKey{}, nil, sendErr
	}
	c.logger.Info().
		Str("order_key", key.String()).
		Str("instrument", req.InstrumentID).
		Str("direction", req.Direction.String()).
		Float64("price", req.Price).
		Int("volume", req.Volume).
		Msg("order submitted")
	return key, ticket, nil
}

// CancelOrder requests cancellation of a tracked, non-terminal order.
func (c *Client) CancelOrder(key gateway.OrderKey) error {
	if !c.sess.State().Usable() {
		return &errs.StateError{Reason: "cannot cancel order in state " + c.sess.State().String()}
	}
	if err := c.orders.CancelEligible(key); err != nil {
		return err
	}
	reqID := c.sess.NextRequestID()
	if _, err := c.corr.Submit(reqID, session.KindOrderCancel); err != nil {
		return err
	}
	c.orders.MarkCancelRequested(key, reqID)
	if err := c.api.CancelOrder(key, reqID); err != nil {
		sendErr := &errs.ConnectionError{Reason: err.Error()}
		c.corr.Resolve(reqID, session.Result{Err: sendErr})
		return sendErr
	}
	if c.metrics != nil {
		c.metrics.CancelsRequested.Inc()
	}
	return nil
}

// Subscribe marks instruments as desired and, when the session is
// ready, asks the gateway for them. Desired instruments survive
// reconnects and are replayed automatically.
func (c *Client) Subscribe(instruments ...string) error {
	return c.SubscribeWithPriority(0, instruments...)
}

// SubscribeWithPriority also sets the replay priority used after a
// reconnect; higher goes first.
func (c *Client) SubscribeWithPriority(priority int, instruments ...string) error {
	added := c.market.Want(instruments, priority)
	if len(added) == 0 || !c.sess.State().Usable() {
		return nil
	}
	if err := c.api.Subscribe(added); err != nil {
		return &errs.ConnectionError{Reason: err.Error()}
	}
	return nil
}

// Unsubscribe removes instruments from the desired set.
func (c *Client) Unsubscribe(instruments ...string) error {
	removed := c.market.Drop(instruments)
	if len(removed) == 0 || !c.sess.State().Usable() {
		return nil
	}
	if err := c.api.Unsubscribe(removed); err != nil {
		return &errs.ConnectionError{Reason: err.Error()}
	}
	return nil
}

// Orders exposes the order book view.
func (c *Client) Orders() *order.Manager {
	return c.orders
}

// Market exposes subscriptions and the tick cache.
func (c *Client) Market() *market.Manager {
	return c.market
}

// QueryAccount fetches the trading account. Rate limited: gateways
// throttle queries, so callers queue behind the flow limit.
func (c *Client) QueryAccount(ctx context.Context) (gateway.AccountInfo, error) {
	payload, err := c.query(ctx, session.KindQueryAccount, func(reqID int) error {
		return c.api.QueryAccount(reqID)
	})
	if err != nil {
		return gateway.AccountInfo{}, err
	}
	account, _ := payload.(gateway.AccountInfo)
	return account, nil
}

// QueryPositions fetches open positions.
func (c *Client) QueryPositions(ctx context.Context) ([]gateway.Position, error) {
	payload, err := c.query(ctx, session.KindQueryPositions, func(reqID int) error {
		return c.api.QueryPositions(reqID)
	})
	if err != nil {
		return nil, err
	}
	positions, _ := payload.([]gateway.Position)
	return positions, nil
}

// QueryTrades fetches today's fills, optionally limited to one
// instrument.
func (c *Client) QueryTrades(ctx context.Context, instrumentID string) ([]gateway.Trade, error) {
	payload, err := c.query(ctx, session.KindQueryTrades, func(reqID int) error {
		return c.api.QueryTrades(instrumentID, reqID)
	})
	if err != nil {
		return nil, err
	}
	trades, _ := payload.([]gateway.Trade)
	return trades, nil
}

// QueryOrders fetches today's orders, optionally limited to one
// instrument.
func (c *Client) QueryOrders(ctx context.Context, instrumentID string) ([]gateway.OrderSnapshot, error) {
	payload, err := c.query(ctx, session.KindQueryOrders, func(reqID int) error {
		return c.api.QueryOrders(instrumentID, reqID)
	})
	if err != nil {
		return nil, err
	}
	orders, _ := payload.([]gateway.OrderSnapshot)
	return orders, nil
}

// QuerySettlement fetches the settlement statement for a trading day,
// empty string for the latest.
func (c *Client) QuerySettlement(ctx context.Context, tradingDay string) (string, error) {
	payload, err := c.query(ctx, session.KindQuerySettlement, func(reqID int) error {
		return c.api.QuerySettlement(tradingDay, reqID)
	})
	if err != nil {
		return "", err
	}
	content, _ := payload.(string)
	return content, nil
}

func (c *Client) query(ctx context.Context, kind session.Kind, send func(reqID int) error) (interface{}, error) {
	if !c.sess.State().Usable() {
		return nil, &errs.StateError{Reason: "cannot query in state " + c.sess.State().String()}
	}

	if !c.limiter.Allow() {
		if c.metrics != nil {
			c.metrics.QueryThrottled.Inc()
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	reqID := c.sess.NextRequestID()
	ticket, err := c.corr.Submit(reqID, kind)
	if err != nil {
		return nil, err
	}
	if err := send(reqID); err != nil {
		// Resolve locally so Await returns the transport error at once.
		c.corr.Resolve(reqID, session.Result{Err: &errs.ConnectionError{Reason: err.Error()}})
	}

	payload, err := ticket.Await(ctx)
	if c.metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		c.metrics.QueryRequests.WithLabelValues(kind.String(), status).Inc()
		c.metrics.QueryDuration.WithLabelValues(kind.String()).Observe(time.Since(start).Seconds())
	}
	return payload, err
}
