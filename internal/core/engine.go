package core

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"TradeGate/internal/config"
	"TradeGate/internal/errs"
	"TradeGate/internal/event"
	"TradeGate/internal/gateway"
	"TradeGate/internal/market"
	"TradeGate/internal/observability"
	"TradeGate/internal/order"
	"TradeGate/internal/session"
)

// engine is the single consumer of the event channel. All session
// state transitions happen on its goroutine, so the handshake sequence
// needs no locking.
type engine struct {
	cfg     config.Config
	api     gateway.API
	ch      *event.Channel
	out     chan event.Event
	sess    *session.Session
	corr    *session.Correlator
	orders  *order.Manager
	market  *market.Manager
	logger  zerolog.Logger
	metrics *observability.Metrics
	health  *observability.HealthChecker

	// Handshake bookkeeping, engine goroutine only.
	handshakeStart time.Time
	authReqID      int
	loginReqID     int
	settleReqID    int
	backoff        time.Duration
	reconnectAt    time.Time
	lastEvict      time.Time
	fatalEmitted   bool

	started  atomic.Bool
	done     chan struct{}
	stopOnce sync.Once
	stopped  chan struct{}
}

func newEngine(
	cfg config.Config,
	api gateway.API,
	ch *event.Channel,
	sess *session.Session,
	corr *session.Correlator,
	orders *order.Manager,
	mkt *market.Manager,
	metrics *observability.Metrics,
	health *observability.HealthChecker,
) *engine {
	return &engine{
		cfg:     cfg,
		api:     api,
		ch:      ch,
		out:     make(chan event.Event, cfg.EventBufferSize),
		sess:    sess,
		corr:    corr,
		orders:  orders,
		market:  mkt,
		logger:  observability.NewLogger("engine"),
		metrics: metrics,
		health:  health,
		backoff: cfg.Reconnect.InitialBackoff,
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// start begins the connection attempt and the consume loop.
func (e *engine) start() error {
	if e.sess.State() != session.StateDisconnected {
		return &errs.StateError{Reason: "session already started"}
	}
	e.transition(session.StateConnecting)
	e.handshakeStart = time.Now()
	if err := e.api.Connect(e.cfg.Fronts.Trade, e.cfg.Fronts.Market); err != nil {
		e.transition(session.StateDisconnected)
		return &errs.ConnectionError{Reason: err.Error()}
	}
	e.started.Store(true)
	go e.run()
	return nil
}

func (e *engine) stop() {
	e.stopOnce.Do(func() { close(e.done) })
	if !e.started.Load() {
		e.api.Release()
		return
	}
	<-e.stopped
}

func (e *engine) run() {
	defer close(e.stopped)
	defer close(e.out)

	sweep := time.NewTicker(e.cfg.Timeouts.Sweep)
	defer sweep.Stop()

	for {
		select {
		case <-e.done:
			e.drainShutdown()
			return
		case ev, ok := <-e.ch.Events():
			if !ok {
				return
			}
			e.apply(ev)
		case <-sweep.C:
			e.onSweepTick()
		}
	}
}

func (e *engine) drainShutdown() {
	e.health.SetReady(false)
	e.corr.SweepAll(&errs.ConnectionError{Reason: "session shut down"})
	e.api.Release()
}

func (e *engine) apply(ev event.Event) {
	start := time.Now()

	switch v := ev.(type) {
	case event.FrontConnected:
		e.onFrontConnected()
	case event.FrontDisconnected:
		e.onFrontDisconnected(v.Reason)
	case event.AuthResult:
		e.onAuthResult(v)
	case event.LoginResult:
		e.onLoginResult(v)
	case event.SettlementConfirmResult:
		e.onSettlementConfirm(v)
	case event.OrderUpdate:
		for _, reqID := range e.orders.OnStatus(v.Snapshot) {
			e.corr.Resolve(reqID, session.Result{Payload: v.Snapshot})
		}
		e.emit(v)
	case event.TradeUpdate:
		e.orders.OnTrade(v.Trade)
		e.emit(v)
	case event.MarketData:
		if e.market.OnTick(v.Tick) {
			e.emit(v)
		}
	case event.SubscribeAck:
		e.onSubscribeAck(v)
	case event.UnsubscribeAck:
		if !v.Rsp.OK() {
			e.emit(event.Error{Err: errs.FromGatewayCode(v.Rsp.Code, v.Rsp.Message)})
		}
	case event.AccountUpdate:
		e.corr.Resolve(v.RequestID, session.Result{Payload: v.Account})
		e.emit(v)
	case event.PositionUpdate:
		e.orders.Positions().Seed(v.Positions)
		e.corr.Resolve(v.RequestID, session.Result{Payload: v.Positions})
		e.emit(v)
	case event.TradesQueryResult:
		e.corr.Resolve(v.RequestID, session.Result{Payload: v.Trades})
		e.emit(v)
	case event.OrdersQueryResult:
		e.corr.Resolve(v.RequestID, session.Result{Payload: v.Orders})
		e.emit(v)
	case event.SettlementInfo:
		e.corr.Resolve(v.RequestID, session.Result{Payload: v.Content})
		e.emit(v)
	case event.RspError:
		e.onRspError(v)
	default:
		e.logger.Warn().Str("event_type", ev.EventType().String()).Msg("unhandled event")
	}

	if e.metrics != nil {
		e.metrics.EventsApplied.WithLabelValues(ev.EventType().String()).Inc()
		e.metrics.EventDuration.WithLabelValues(ev.EventType().String()).Observe(time.Since(start).Seconds())
	}
}

// --- Handshake ---

func (e *engine) onFrontConnected() {
	st := e.sess.State()
	if st != session.StateConnecting && st != session.StateReconnecting {
		e.logger.Warn().Str("state", st.String()).Msg("dropping FrontConnected outside connect phase")
		return
	}
	e.emit(event.Connected{})
	e.emit(event.LoginRequired{})
	e.transition(session.StateAuthenticating)

	e.authReqID = e.sess.NextRequestID()
	if _, err := e.corr.Submit(e.authReqID, session.KindAuthenticate); err != nil {
		e.fail(err)
		return
	}
	creds := e.cfg.Credentials
	if err := e.api.Authenticate(creds.BrokerID, creds.UserID, creds.AppID, creds.AuthCode, e.authReqID); err != nil {
		e.corr.Resolve(e.authReqID, session.Result{Err: err})
		e.fail(&errs.ConnectionError{Reason: err.Error()})
	}
}

func (e *engine) onAuthResult(v event.AuthResult) {
	if e.sess.State() != session.StateAuthenticating || v.RequestID != e.authReqID {
		e.logger.Warn().
			Int("request_id", v.RequestID).
			Str("state", e.sess.State().String()).
			Msg("dropping stale authenticate response")
		return
	}
	e.corr.Resolve(v.RequestID, session.Result{Err: rspErr(v.Rsp)})
	if !v.Rsp.OK() {
		if e.metrics != nil {
			e.metrics.LoginFailures.Inc()
		}
		e.fail(errs.FromGatewayCode(v.Rsp.Code, v.Rsp.Message))
		return
	}
	e.transition(session.StateLoggingIn)

	e.loginReqID = e.sess.NextRequestID()
	if _, err := e.corr.Submit(e.loginReqID, session.KindLogin); err != nil {
		e.fail(err)
		return
	}
	creds := e.cfg.Credentials
	if err := e.api.Login(creds.BrokerID, creds.UserID, creds.Password, e.loginReqID); err != nil {
		e.corr.Resolve(e.loginReqID, session.Result{Err: err})
		e.fail(&errs.ConnectionError{Reason: err.Error()})
	}
}

func (e *engine) onLoginResult(v event.LoginResult) {
	if e.sess.State() != session.StateLoggingIn || v.RequestID != e.loginReqID {
		e.logger.Warn().
			Int("request_id", v.RequestID).
			Str("state", e.sess.State().String()).
			Msg("dropping stale login response")
		return
	}
	e.corr.Resolve(v.RequestID, session.Result{Payload: v.Login, Err: rspErr(v.Rsp)})
	if !v.Rsp.OK() {
		if e.metrics != nil {
			e.metrics.LoginFailures.Inc()
		}
		e.emit(event.LoginFailed{Reason: v.Rsp.Message})
		e.fail(errs.FromGatewayCode(v.Rsp.Code, v.Rsp.Message))
		return
	}

	e.sess.ApplyLogin(v.Login)
	e.logger.Info().
		Str("trading_day", v.Login.TradingDay).
		Int("front_id", v.Login.FrontID).
		Int("session_id", v.Login.SessionID).
		Int("max_order_ref", v.Login.MaxOrderRef).
		Msg("login accepted")
	e.emit(event.LoginSuccess{Login: v.Login})
	e.emit(event.SettlementRequired{})
	e.transition(session.StateConfirmingSettlement)

	e.settleReqID = e.sess.NextRequestID()
	if _, err := e.corr.Submit(e.settleReqID, session.KindSettlementConfirm); err != nil {
		e.fail(err)
		return
	}
	creds := e.cfg.Credentials
	if err := e.api.ConfirmSettlement(creds.BrokerID, creds.UserID, e.settleReqID); err != nil {
		e.corr.Resolve(e.settleReqID, session.Result{Err: err})
		e.fail(&errs.ConnectionError{Reason: err.Error()})
	}
}

func (e *engine) onSettlementConfirm(v event.SettlementConfirmResult) {
	if e.sess.State() != session.StateConfirmingSettlement || v.RequestID != e.settleReqID {
		e.logger.Warn().
			Int("request_id", v.RequestID).
			Str("state", e.sess.State().String()).
			Msg("dropping stale settlement confirm response")
		return
	}
	e.corr.Resolve(v.RequestID, session.Result{Err: rspErr(v.Rsp)})
	if !v.Rsp.OK() {
		if e.metrics != nil {
			e.metrics.LoginFailures.Inc()
		}
		e.fail(errs.FromGatewayCode(v.Rsp.Code, v.Rsp.Message))
		return
	}
	e.sess.SetSettlementConfirmed(true)
	e.emit(event.SettlementConfirmed{})
	e.becomeReady()
}

func (e *engine) becomeReady() {
	e.transition(session.StateReady)
	e.sess.ResetReconnects()
	e.backoff = e.cfg.Reconnect.InitialBackoff
	e.health.SetReady(true)
	if e.metrics != nil {
		e.metrics.HandshakeDuration.Observe(time.Since(e.handshakeStart).Seconds())
	}
	e.logger.Info().
		Dur("handshake", time.Since(e.handshakeStart)).
		Str("trading_day", e.sess.TradingDay()).
		Msg("session ready")

	// Replay subscriptions lost with the previous connection.
	if desired := e.market.Desired(); len(desired) > 0 {
		if err := e.api.Subscribe(desired); err != nil {
			e.emit(event.Error{Err: &errs.ConnectionError{Reason: err.Error()}})
		}
	}
}

// --- Disconnect and reconnection ---

func (e *engine) onFrontDisconnected(reason int) {
	st := e.sess.State()
	if st == session.StateDisconnectedFatal || st == session.StateDisconnected {
		return
	}
	e.logger.Warn().
		Int("reason", reason).
		Str("state", st.String()).
		Msg("front disconnected")
	if e.metrics != nil {
		e.metrics.Disconnects.WithLabelValues(fmt.Sprintf("0x%x", reason)).Inc()
	}

	e.health.SetReady(false)
	e.sess.SetSettlementConfirmed(false)
	e.market.ResetConfirmed()
	e.corr.SweepAll(&errs.ConnectionError{Reason: fmt.Sprintf("front disconnected (0x%x)", reason)})
	e.emit(event.Disconnected{Reason: reason})
	e.scheduleReconnect(&errs.ConnectionError{Reason: fmt.Sprintf("front disconnected (0x%x)", reason)})
}

// fail routes a handshake or session error: retryable errors feed the
// reconnection loop, everything else ends the session.
func (e *engine) fail(err error) {
	e.sess.SetLastError(err)
	e.health.SetReady(false)
	if errs.Retryable(err) {
		e.emit(event.Error{Err: err})
		e.scheduleReconnect(err)
		return
	}
	e.fatal(err)
}

func (e *engine) fatal(err error) {
	e.transition(session.StateDisconnectedFatal)
	e.corr.SweepAll(err)
	if !e.fatalEmitted {
		e.fatalEmitted = true
		e.emit(event.Error{Err: err})
	}
	e.logger.Error().Err(err).Msg("session failed permanently")
}

func (e *engine) scheduleReconnect(cause error) {
	attempt := e.sess.RecordReconnect()
	if e.cfg.Reconnect.MaxAttempts > 0 && attempt > e.cfg.Reconnect.MaxAttempts {
		e.fatal(&errs.ConnectionError{
			Reason: fmt.Sprintf("gave up after %d reconnect attempts: %v", attempt-1, cause),
		})
		return
	}
	e.transition(session.StateReconnecting)
	e.reconnectAt = time.Now().Add(e.backoff)
	e.logger.Info().
		Int("attempt", attempt).
		Dur("backoff", e.backoff).
		Msg("reconnect scheduled")
	if e.metrics != nil {
		e.metrics.ReconnectAttempts.Inc()
	}
	e.backoff *= 2
	if e.backoff > e.cfg.Reconnect.MaxBackoff {
		e.backoff = e.cfg.Reconnect.MaxBackoff
	}
}

// onSweepTick runs periodic maintenance: request timeouts, the pending
// reconnect, the handshake deadline, and order eviction.
func (e *engine) onSweepTick() {
	for _, t := range e.corr.Sweep(e.cfg.Timeouts.Request) {
		e.emit(event.Error{Err: &errs.TimeoutError{RequestID: t.ID}})
	}

	st := e.sess.State()

	if st == session.StateReconnecting && !e.reconnectAt.IsZero() && time.Now().After(e.reconnectAt) {
		e.reconnectAt = time.Time{}
		e.handshakeStart = time.Now()
		// Re-enter Connecting so the handshake deadline below covers a
		// transport that accepts the dial but never calls back.
		e.transition(session.StateConnecting)
		st = session.StateConnecting
		if err := e.api.Connect(e.cfg.Fronts.Trade, e.cfg.Fronts.Market); err != nil {
			e.scheduleReconnect(&errs.ConnectionError{Reason: err.Error()})
			return
		}
	}

	inHandshake := st == session.StateConnecting || st == session.StateAuthenticating ||
		st == session.StateLoggingIn || st == session.StateConfirmingSettlement
	if inHandshake && time.Since(e.handshakeStart) > e.cfg.Timeouts.Handshake {
		e.logger.Warn().
			Str("state", st.String()).
			Dur("elapsed", time.Since(e.handshakeStart)).
			Msg("handshake deadline exceeded")
		e.corr.SweepAll(&errs.TimeoutError{})
		e.fail(&errs.NetworkError{Reason: "handshake timed out"})
	}

	if e.cfg.OrderRetention > 0 && time.Since(e.lastEvict) > e.cfg.OrderRetention/4 {
		e.lastEvict = time.Now()
		e.orders.EvictExpired(e.cfg.OrderRetention)
	}
}

// --- Miscellaneous inbound ---

func (e *engine) onSubscribeAck(v event.SubscribeAck) {
	if v.Rsp.OK() {
		e.market.Confirm(v.InstrumentID)
		return
	}
	e.logger.Warn().
		Str("instrument", v.InstrumentID).
		Int("code", v.Rsp.Code).
		Str("message", v.Rsp.Message).
		Msg("subscribe rejected")
	e.emit(event.Error{Err: errs.FromGatewayCode(v.Rsp.Code, v.Rsp.Message)})
}

func (e *engine) onRspError(v event.RspError) {
	err := errs.FromGatewayCode(v.Rsp.Code, v.Rsp.Message)
	if v.RequestID != 0 && e.corr.Resolve(v.RequestID, session.Result{Err: err}) {
		return
	}
	e.emit(event.Error{Err: err})
}

// --- Plumbing ---

func (e *engine) transition(next session.ConnectionState) {
	prev := e.sess.State()
	e.sess.SetState(next)
	e.logger.Info().
		Str("from", prev.String()).
		Str("to", next.String()).
		Msg("state transition")
	if e.metrics != nil {
		e.metrics.ConnectionState.Set(float64(next))
	}
}

// emit offers an event to the application stream without blocking the
// engine.
func (e *engine) emit(ev event.Event) {
	select {
	case e.out <- ev:
	default:
		e.logger.Warn().Str("event_type", ev.EventType().String()).Msg("application stream full, dropping event")
		if e.metrics != nil {
			e.metrics.PublishDrops.Inc()
		}
	}
}

func rspErr(rsp gateway.RspInfo) error {
	if rsp.OK() {
		return nil
	}
	return errs.FromGatewayCode(rsp.Code, rsp.Message)
}
