package core

import (
	"TradeGate/internal/event"
	"TradeGate/internal/gateway"
	"TradeGate/internal/observability"
)

// callbackBridge implements gateway.Handler by translating each
// callback into an event on the channel. It runs on gateway threads
// and must never block, so every enqueue is the channel's non-blocking
// offer.
type callbackBridge struct {
	ch      *event.Channel
	metrics *observability.Metrics
}

var _ gateway.Handler = (*callbackBridge)(nil)

func newCallbackBridge(ch *event.Channel, metrics *observability.Metrics) *callbackBridge {
	return &callbackBridge{ch: ch, metrics: metrics}
}

func (b *callbackBridge) enqueue(ev event.Event) {
	ok := b.ch.Enqueue(ev)
	if b.metrics == nil {
		return
	}
	if ok {
		b.metrics.EventsEnqueued.WithLabelValues(ev.EventType().String()).Inc()
	} else {
		b.metrics.EventsDropped.WithLabelValues(ev.EventType().String()).Inc()
	}
}

func (b *callbackBridge) OnFrontConnected() {
	b.enqueue(event.FrontConnected{})
}

func (b *callbackBridge) OnFrontDisconnected(reason int) {
	b.enqueue(event.FrontDisconnected{Reason: reason})
}

func (b *callbackBridge) OnRspAuthenticate(rsp gateway.RspInfo, requestID int) {
	b.enqueue(event.AuthResult{RequestID: requestID, Rsp: rsp})
}

func (b *callbackBridge) OnRspLogin(login gateway.LoginResponse, rsp gateway.RspInfo, requestID int) {
	b.enqueue(event.LoginResult{RequestID: requestID, Login: login, Rsp: rsp})
}

func (b *callbackBridge) OnRspSettlementConfirm(rsp gateway.RspInfo, requestID int) {
	b.enqueue(event.SettlementConfirmResult{RequestID: requestID, Rsp: rsp})
}

func (b *callbackBridge) OnRtnOrder(snapshot gateway.OrderSnapshot) {
	b.enqueue(event.OrderUpdate{Snapshot: snapshot})
}

func (b *callbackBridge) OnRtnTrade(trade gateway.Trade) {
	b.enqueue(event.TradeUpdate{Trade: trade})
}

func (b *callbackBridge) OnTick(tick gateway.Tick) {
	b.enqueue(event.MarketData{Tick: tick})
}

func (b *callbackBridge) OnRspSubscribe(instrumentID string, rsp gateway.RspInfo) {
	b.enqueue(event.SubscribeAck{InstrumentID: instrumentID, Rsp: rsp})
}

func (b *callbackBridge) OnRspUnsubscribe(instrumentID string, rsp gateway.RspInfo) {
	b.enqueue(event.UnsubscribeAck{InstrumentID: instrumentID, Rsp: rsp})
}

func (b *callbackBridge) OnRspQryAccount(account gateway.AccountInfo, rsp gateway.RspInfo, requestID int) {
	if !rsp.OK() {
		b.enqueue(event.RspError{RequestID: requestID, Rsp: rsp})
		return
	}
	b.enqueue(event.AccountUpdate{RequestID: requestID, Account: account})
}

func (b *callbackBridge) OnRspQryPositions(positions []gateway.Position, rsp gateway.RspInfo, requestID int) {
	if !rsp.OK() {
		b.enqueue(event.RspError{RequestID: requestID, Rsp: rsp})
		return
	}
	b.enqueue(event.PositionUpdate{RequestID: requestID, Positions: positions})
}

func (b *callbackBridge) OnRspQryTrades(trades []gateway.Trade, rsp gateway.RspInfo, requestID int) {
	if !rsp.OK() {
		b.enqueue(event.RspError{RequestID: requestID, Rsp: rsp})
		return
	}
	b.enqueue(event.TradesQueryResult{RequestID: requestID, Trades: trades})
}

func (b *callbackBridge) OnRspQryOrders(orders []gateway.OrderSnapshot, rsp gateway.RspInfo, requestID int) {
	if !rsp.OK() {
		b.enqueue(event.RspError{RequestID: requestID, Rsp: rsp})
		return
	}
	b.enqueue(event.OrdersQueryResult{RequestID: requestID, Orders: orders})
}

func (b *callbackBridge) OnRspQrySettlement(content string, rsp gateway.RspInfo, requestID int) {
	if !rsp.OK() {
		b.enqueue(event.RspError{RequestID: requestID, Rsp: rsp})
		return
	}
	b.enqueue(event.SettlementInfo{RequestID: requestID, Content: content})
}

func (b *callbackBridge) OnRspError(rsp gateway.RspInfo, requestID int) {
	b.enqueue(event.RspError{RequestID: requestID, Rsp: rsp})
}
