package core_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"TradeGate/internal/core"
	"TradeGate/internal/errs"
	"TradeGate/internal/event"
	"TradeGate/internal/gateway"
	"TradeGate/internal/session"
	"TradeGate/internal/testutil"
)

func newClient(t *testing.T, mutate func(*gateway.Mock)) (*core.Client, *gateway.Mock, *testutil.EventCollector) {
	t.Helper()
	mock := gateway.NewMock(zerolog.Nop())
	if mutate != nil {
		mutate(mock)
	}
	client := core.New(testutil.FastConfig(), mock, nil, nil)
	collector := testutil.Collect(client.Events())
	t.Cleanup(client.Shutdown)
	return client, mock, collector
}

func waitReady(t *testing.T, client *core.Client) {
	t.Helper()
	testutil.Eventually(t, 2*time.Second, func() bool {
		return client.State() == session.StateReady
	}, "session did not reach Ready")
}

// failingSubmitGateway refuses every order at the transport layer.
type failingSubmitGateway struct {
	*gateway.Mock
}

func (g *failingSubmitGateway) SubmitOrder(req gateway.OrderRequest, key gateway.OrderKey, requestID int) error {
	return errors.New("transport down")
}

// silentConnectGateway accepts the dial but never calls back.
type silentConnectGateway struct {
	*gateway.Mock
}

func (g *silentConnectGateway) Connect(tradingFront, marketFront string) error {
	return nil
}

// ============================================================================
// Test: handshake
// ============================================================================

func TestClient_HandshakeToReady(t *testing.T) {
	client, _, collector := newClient(t, nil)
	if err := client.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	waitReady(t, client)

	if !client.Session().SettlementConfirmed() {
		t.Fatal("settlement not marked confirmed after handshake")
	}

	collector.WaitForType(t, time.Second, event.TypeConnected)
	collector.WaitForType(t, time.Second, event.TypeLoginSuccess)
	collector.WaitForType(t, time.Second, event.TypeSettlementConfirmed)

	// Handshake events arrive in protocol order.
	var order []event.Type
	for _, ev := range collector.Snapshot() {
		switch ev.EventType() {
		case event.TypeConnected, event.TypeLoginSuccess,
			event.TypeSettlementRequired, event.TypeSettlementConfirmed:
			order = append(order, ev.EventType())
		}
	}
	want := []event.Type{
		event.TypeConnected,
		event.TypeLoginSuccess,
		event.TypeSettlementRequired,
		event.TypeSettlementConfirmed,
	}
	if len(order) != len(want) {
		t.Fatalf("handshake events: got %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("handshake order: got %v, want %v", order, want)
		}
	}
}

func TestClient_StaleHandshakeResponsesDropped(t *testing.T) {
	client, mock, collector := newClient(t, nil)
	if err := client.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	waitReady(t, client)
	frontID, sessionID := client.Session().Identity()

	// Late handshake responses for requests that are no longer pending.
	mock.InjectLoginResponse(gateway.LoginResponse{
		TradingDay:  "19700101",
		FrontID:     99,
		SessionID:   99,
		MaxOrderRef: 500,
	}, gateway.RspInfo{}, 999)
	mock.InjectAuthResponse(gateway.RspInfo{Code: -3, Message: "stale"}, 999)

	// A tick flushes the queue: once it surfaces, the stale responses
	// have been applied (and dropped) ahead of it.
	mock.InjectTick(testutil.Tick("rb2405", 100, 1))
	collector.WaitForType(t, time.Second, event.TypeMarketData)

	if got := client.State(); got != session.StateReady {
		t.Fatalf("state after stale responses: got %s, want Ready", got)
	}
	gotFront, gotSession := client.Session().Identity()
	if gotFront != frontID || gotSession != sessionID {
		t.Errorf("identity rewritten by stale login: got %d/%d, want %d/%d",
			gotFront, gotSession, frontID, sessionID)
	}
	if got := collector.CountType(event.TypeLoginSuccess); got != 1 {
		t.Errorf("login success events: got %d, want 1", got)
	}
}

func TestClient_ConnectTwiceRefused(t *testing.T) {
	client, _, _ := newClient(t, nil)
	if err := client.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	err := client.Connect()
	if _, ok := err.(*errs.StateError); !ok {
		t.Fatalf("second connect: got %T, want *StateError", err)
	}
}

func TestClient_LoginRejectionIsFatal(t *testing.T) {
	client, _, collector := newClient(t, func(m *gateway.Mock) {
		m.LoginRsp = gateway.RspInfo{Code: -3, Message: "invalid password"}
	})
	if err := client.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}

	collector.WaitForType(t, 2*time.Second, event.TypeLoginFailed)
	testutil.Eventually(t, 2*time.Second, func() bool {
		return client.State() == session.StateDisconnectedFatal
	}, "login rejection should end the session")

	// Exactly one fatal error surfaces, and it is an auth error.
	fatals := 0
	for _, ev := range collector.Snapshot() {
		e, ok := ev.(event.Error)
		if !ok {
			continue
		}
		if _, isAuth := e.Err.(*errs.AuthenticationError); isAuth {
			fatals++
		}
	}
	if fatals != 1 {
		t.Errorf("auth errors surfaced: got %d, want 1", fatals)
	}
}

func TestClient_OperationsRefusedBeforeReady(t *testing.T) {
	client, _, _ := newClient(t, nil)

	_, err := client.SubmitOrder(gateway.OrderRequest{InstrumentID: "rb2405", Volume: 1, Price: 1})
	if _, ok := err.(*errs.StateError); !ok {
		t.Errorf("submit before ready: got %T, want *StateError", err)
	}

	_, err = client.QueryAccount(context.Background())
	if _, ok := err.(*errs.StateError); !ok {
		t.Errorf("query before ready: got %T, want *StateError", err)
	}

	if err := client.CancelOrder(gateway.OrderKey{}); err == nil {
		t.Error("cancel before ready should fail")
	}
}

// ============================================================================
// Test: orders end to end
// ============================================================================

func TestClient_OrderFillLifecycle(t *testing.T) {
	client, _, collector := newClient(t, func(m *gateway.Mock) {
		m.AutoFill = true
	})
	if err := client.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	waitReady(t, client)

	key, err := client.SubmitOrder(gateway.OrderRequest{
		InstrumentID: "rb2405",
		Direction:    gateway.DirectionBuy,
		Offset:       gateway.OffsetOpen,
		Type:         gateway.OrderTypeLimit,
		Price:        3500,
		Volume:       1,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if key.OrderRef == "" {
		t.Fatal("submit must assign an order ref")
	}

	collector.WaitFor(t, 2*time.Second, func(ev event.Event) bool {
		ou, ok := ev.(event.OrderUpdate)
		return ok && ou.Snapshot.Key == key && ou.Snapshot.Status == gateway.StatusAllTraded
	})

	testutil.Eventually(t, time.Second, func() bool {
		return client.Orders().Stats().Filled == 1
	}, "fill not recorded")

	stats := client.Orders().Stats()
	if stats.Turnover != 3500 {
		t.Errorf("turnover: got %v, want 3500", stats.Turnover)
	}
	if stats.Trades != 1 {
		t.Errorf("trades: got %d, want 1", stats.Trades)
	}
	if active := client.Orders().ActiveOrders(); len(active) != 0 {
		t.Errorf("active orders: got %d, want 0", len(active))
	}
	if fills := client.Orders().TradesFor(key); len(fills) != 1 {
		t.Errorf("fills for %s: got %d, want 1", key, len(fills))
	}
}

func TestClient_SubmitOrderWaitReturnsFirstAck(t *testing.T) {
	client, _, _ := newClient(t, func(m *gateway.Mock) {
		m.AutoFill = true
	})
	if err := client.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	waitReady(t, client)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	snap, key, err := client.SubmitOrderWait(ctx, gateway.OrderRequest{
		InstrumentID: "rb2405",
		Direction:    gateway.DirectionBuy,
		Offset:       gateway.OffsetOpen,
		Type:         gateway.OrderTypeLimit,
		Price:        3500,
		Volume:       1,
	})
	if err != nil {
		t.Fatalf("submit wait: %v", err)
	}
	if snap.Key != key {
		t.Errorf("ack key: got %s, want %s", snap.Key, key)
	}
	if snap.Status != gateway.StatusNoTradeQueueing {
		t.Errorf("first ack status: got %s, want noTradeQueueing", snap.Status)
	}
}

func TestClient_FailedSubmitLeavesNoOrphanOrder(t *testing.T) {
	gw := &failingSubmitGateway{Mock: gateway.NewMock(zerolog.Nop())}
	client := core.New(testutil.FastConfig(), gw, nil, nil)
	t.Cleanup(client.Shutdown)
	if err := client.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	waitReady(t, client)

	_, err := client.SubmitOrder(gateway.OrderRequest{
		InstrumentID: "rb2405",
		Type:         gateway.OrderTypeLimit,
		Price:        3500,
		Volume:       1,
	})
	if _, ok := err.(*errs.ConnectionError); !ok {
		t.Fatalf("failed submit: got %T, want *ConnectionError", err)
	}

	// The gateway never saw the order, so nothing may linger in the book.
	if active := client.Orders().ActiveOrders(); len(active) != 0 {
		t.Fatalf("active orders after failed submit: got %d, want 0", len(active))
	}
	if got := client.Orders().Stats().Submitted; got != 0 {
		t.Errorf("submitted counter: got %d, want 0", got)
	}
}

func TestClient_OrderRefsAreUnique(t *testing.T) {
	client, _, _ := newClient(t, nil)
	if err := client.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	waitReady(t, client)

	seen := make(map[string]bool)
	for i := 0; i < 10; i++ {
		key, err := client.SubmitOrder(gateway.OrderRequest{
			InstrumentID: "rb2405",
			Type:         gateway.OrderTypeLimit,
			Price:        3500,
			Volume:       1,
		})
		if err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
		if seen[key.OrderRef] {
			t.Fatalf("order ref %s reused", key.OrderRef)
		}
		seen[key.OrderRef] = true
	}
}

func TestClient_CancelOrder(t *testing.T) {
	client, _, collector := newClient(t, nil)
	if err := client.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	waitReady(t, client)

	key, err := client.SubmitOrder(gateway.OrderRequest{
		InstrumentID: "rb2405",
		Type:         gateway.OrderTypeLimit,
		Price:        3500,
		Volume:       1,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	collector.WaitFor(t, time.Second, func(ev event.Event) bool {
		ou, ok := ev.(event.OrderUpdate)
		return ok && ou.Snapshot.Key == key
	})

	if err := client.CancelOrder(key); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	collector.WaitFor(t, time.Second, func(ev event.Event) bool {
		ou, ok := ev.(event.OrderUpdate)
		return ok && ou.Snapshot.Key == key && ou.Snapshot.Status == gateway.StatusCanceled
	})

	testutil.Eventually(t, time.Second, func() bool {
		return client.Orders().Stats().Canceled == 1
	}, "cancel not recorded")
}

// ============================================================================
// Test: market data end to end
// ============================================================================

func TestClient_SubscribeAndFilterTicks(t *testing.T) {
	mock := gateway.NewMock(zerolog.Nop())
	cfg := testutil.FastConfig()
	cfg.Filters.PriceChangeMin = 0.001
	client := core.New(cfg, mock, nil, nil)
	collector := testutil.Collect(client.Events())
	t.Cleanup(client.Shutdown)

	if err := client.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	waitReady(t, client)

	if err := client.Subscribe("rb2405"); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	testutil.Eventually(t, time.Second, func() bool {
		sub, ok := client.Market().Snapshot("rb2405")
		return ok && sub.Confirmed
	}, "subscription not confirmed")

	mock.InjectTick(testutil.Tick("rb2405", 100.00, 1))
	mock.InjectTick(testutil.Tick("rb2405", 100.05, 2))
	mock.InjectTick(testutil.Tick("rb2405", 100.20, 3))

	// 100.00 and 100.20 pass; 100.05 is under the 0.1% threshold.
	collector.WaitFor(t, time.Second, func(ev event.Event) bool {
		md, ok := ev.(event.MarketData)
		return ok && md.Tick.LastPrice == 100.20
	})
	emitted := 0
	for _, ev := range collector.Snapshot() {
		if _, ok := ev.(event.MarketData); ok {
			emitted++
		}
	}
	if emitted != 2 {
		t.Errorf("emitted ticks: got %d, want 2", emitted)
	}

	cached, ok := client.Market().LastTick("rb2405")
	if !ok || cached.LastPrice != 100.20 {
		t.Errorf("cache: got %v, want 100.20", cached.LastPrice)
	}
}

// ============================================================================
// Test: queries
// ============================================================================

func TestClient_QueryAccountRoundTrip(t *testing.T) {
	client, _, _ := newClient(t, nil)
	if err := client.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	waitReady(t, client)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	account, err := client.QueryAccount(ctx)
	if err != nil {
		t.Fatalf("query account: %v", err)
	}
	if account.Balance != 1_000_000 {
		t.Errorf("balance: got %v, want 1000000", account.Balance)
	}
}

// ============================================================================
// Test: reconnection
// ============================================================================

func TestClient_ReconnectAndResubscribe(t *testing.T) {
	client, mock, collector := newClient(t, nil)
	if err := client.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	waitReady(t, client)

	if err := client.Subscribe("rb2405"); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	testutil.Eventually(t, time.Second, func() bool {
		sub, ok := client.Market().Snapshot("rb2405")
		return ok && sub.Confirmed
	}, "subscription not confirmed")

	mock.InjectDisconnect(0x1001)
	collector.WaitForType(t, 2*time.Second, event.TypeDisconnected)

	// Confirmation is connection-scoped and must clear immediately.
	testutil.Eventually(t, time.Second, func() bool {
		sub, _ := client.Market().Snapshot("rb2405")
		return !sub.Confirmed || client.State() == session.StateReady
	}, "confirmed flag did not reset")

	waitReady(t, client)

	// The desired set is replayed and re-acked on the new connection.
	testutil.Eventually(t, 2*time.Second, func() bool {
		sub, ok := client.Market().Snapshot("rb2405")
		return ok && sub.Confirmed
	}, "subscription not replayed after reconnect")
}

func TestClient_ReconnectGivesUpAfterMaxAttempts(t *testing.T) {
	mock := gateway.NewMock(zerolog.Nop())
	mock.FailConnects = 100
	cfg := testutil.FastConfig()
	cfg.Reconnect.MaxAttempts = 2
	client := core.New(cfg, mock, nil, nil)
	collector := testutil.Collect(client.Events())
	t.Cleanup(client.Shutdown)

	if err := client.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}

	testutil.Eventually(t, 2*time.Second, func() bool {
		return client.State() == session.StateDisconnectedFatal
	}, "session should give up after bounded attempts")

	// Exactly one terminal error is surfaced.
	time.Sleep(50 * time.Millisecond)
	fatals := 0
	for _, ev := range collector.Snapshot() {
		if e, ok := ev.(event.Error); ok {
			if _, isConn := e.Err.(*errs.ConnectionError); isConn {
				fatals++
			}
		}
	}
	if fatals != 1 {
		t.Errorf("terminal errors: got %d, want 1", fatals)
	}
}

func TestClient_SilentTransportExhaustsReconnectBound(t *testing.T) {
	gw := &silentConnectGateway{Mock: gateway.NewMock(zerolog.Nop())}
	cfg := testutil.FastConfig()
	cfg.Timeouts.Handshake = 50 * time.Millisecond
	cfg.Reconnect.MaxAttempts = 1
	client := core.New(cfg, gw, nil, nil)
	collector := testutil.Collect(client.Events())
	t.Cleanup(client.Shutdown)

	if err := client.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}

	// Every attempt dials fine but no callback ever arrives. Each must
	// time out via the handshake deadline, and the attempt bound must
	// end the session instead of parking it in Reconnecting.
	testutil.Eventually(t, 3*time.Second, func() bool {
		return client.State() == session.StateDisconnectedFatal
	}, "silent transport should exhaust the reconnect bound")

	time.Sleep(50 * time.Millisecond)
	fatals := 0
	for _, ev := range collector.Snapshot() {
		if e, ok := ev.(event.Error); ok {
			if _, isConn := e.Err.(*errs.ConnectionError); isConn {
				fatals++
			}
		}
	}
	if fatals != 1 {
		t.Errorf("terminal errors: got %d, want 1", fatals)
	}
}

func TestClient_HandshakeStallTimesOutAndRetries(t *testing.T) {
	mock := gateway.NewMock(zerolog.Nop())
	mock.MuteSettlement = true
	cfg := testutil.FastConfig()
	cfg.Timeouts.Handshake = 50 * time.Millisecond
	cfg.Reconnect.MaxAttempts = 1
	client := core.New(cfg, mock, nil, nil)
	collector := testutil.Collect(client.Events())
	t.Cleanup(client.Shutdown)

	if err := client.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}

	// Stuck in ConfirmingSettlement, the handshake deadline fires, the
	// retry stalls the same way, and the attempt bound ends the session.
	testutil.Eventually(t, 3*time.Second, func() bool {
		return client.State() == session.StateDisconnectedFatal
	}, "stalled handshake should exhaust reconnect attempts")

	collector.WaitFor(t, time.Second, func(ev event.Event) bool {
		e, ok := ev.(event.Error)
		if !ok {
			return false
		}
		_, isNet := e.Err.(*errs.NetworkError)
		return isNet
	})
}
