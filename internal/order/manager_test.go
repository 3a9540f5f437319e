package order_test

import (
	"testing"
	"time"

	"TradeGate/internal/errs"
	"TradeGate/internal/gateway"
	"TradeGate/internal/order"
)

func key(ref string) gateway.OrderKey {
	return gateway.OrderKey{FrontID: 1, SessionID: 7, OrderRef: ref}
}

func limitBuy(instrument string, price float64, volume int) gateway.OrderRequest {
	return gateway.OrderRequest{
		InstrumentID: instrument,
		Direction:    gateway.DirectionBuy,
		Offset:       gateway.OffsetOpen,
		Type:         gateway.OrderTypeLimit,
		Price:        price,
		Volume:       volume,
	}
}

// ============================================================================
// Test: validation and tracking
// ============================================================================

func TestManager_TrackValidOrder(t *testing.T) {
	m := order.NewManager(nil)
	if err := m.Track(limitBuy("rb2405", 3500, 1), key("1"), 0); err != nil {
		t.Fatalf("track: %v", err)
	}

	o, ok := m.Get(key("1"))
	if !ok {
		t.Fatal("order should be tracked")
	}
	if o.Snapshot.Status != gateway.StatusPendingSubmit {
		t.Errorf("status: got %s, want PendingSubmit", o.Snapshot.Status)
	}
	if got := m.Stats().Submitted; got != 1 {
		t.Errorf("submitted: got %d, want 1", got)
	}
}

func TestManager_RejectsInvalidRequests(t *testing.T) {
	m := order.NewManager(nil)

	cases := []gateway.OrderRequest{
		limitBuy("", 3500, 1),       // no instrument
		limitBuy("rb2405", 3500, 0), // zero volume
		limitBuy("rb2405", 3500, -1),
		limitBuy("rb2405", 0, 1), // limit without price
	}
	for i, req := range cases {
		err := m.Track(req, key("x"), 0)
		if _, ok := err.(*errs.ValidationError); !ok {
			t.Errorf("case %d: got %T, want *ValidationError", i, err)
		}
	}

	// Market orders need no price.
	req := limitBuy("rb2405", 0, 1)
	req.Type = gateway.OrderTypeMarket
	if err := m.Track(req, key("1"), 0); err != nil {
		t.Errorf("market order without price: %v", err)
	}
}

func TestManager_DuplicateKeyRefused(t *testing.T) {
	m := order.NewManager(nil)
	if err := m.Track(limitBuy("rb2405", 3500, 1), key("1"), 0); err != nil {
		t.Fatalf("track: %v", err)
	}
	err := m.Track(limitBuy("rb2405", 3501, 1), key("1"), 0)
	if _, ok := err.(*errs.StateError); !ok {
		t.Fatalf("duplicate: got %T, want *StateError", err)
	}
}

func TestManager_DiscardRemovesUnsentOrder(t *testing.T) {
	m := order.NewManager(nil)
	if err := m.Track(limitBuy("rb2405", 3500, 1), key("1"), 11); err != nil {
		t.Fatalf("track: %v", err)
	}

	m.Discard(key("1"))

	if _, ok := m.Get(key("1")); ok {
		t.Fatal("discarded order should be gone")
	}
	if got := len(m.ActiveOrders()); got != 0 {
		t.Errorf("active: got %d, want 0", got)
	}
	if got := m.Stats().Submitted; got != 0 {
		t.Errorf("submitted: got %d, want 0", got)
	}
	// The key can be reused once discarded.
	if err := m.Track(limitBuy("rb2405", 3500, 1), key("1"), 12); err != nil {
		t.Errorf("re-track after discard: %v", err)
	}
}

// ============================================================================
// Test: status transitions
// ============================================================================

func snapshot(k gateway.OrderKey, status gateway.OrderStatusType) gateway.OrderSnapshot {
	return gateway.OrderSnapshot{
		Key:          k,
		InstrumentID: "rb2405",
		Price:        3500,
		Volume:       1,
		Status:       status,
	}
}

func TestManager_TerminalCountedOnce(t *testing.T) {
	m := order.NewManager(nil)
	m.Track(limitBuy("rb2405", 3500, 1), key("1"), 0)

	m.OnStatus(snapshot(key("1"), gateway.StatusNoTradeQueueing))
	m.OnStatus(snapshot(key("1"), gateway.StatusAllTraded))
	// Duplicate terminal callback must not double-count.
	m.OnStatus(snapshot(key("1"), gateway.StatusAllTraded))

	if got := m.Stats().Filled; got != 1 {
		t.Errorf("filled: got %d, want 1", got)
	}
	if got := len(m.ActiveOrders()); got != 0 {
		t.Errorf("active: got %d, want 0", got)
	}
}

func TestManager_OnStatusAcksSubmitAndCancelRequests(t *testing.T) {
	m := order.NewManager(nil)
	m.Track(limitBuy("rb2405", 3500, 1), key("1"), 11)

	if acked := m.OnStatus(snapshot(key("1"), gateway.StatusNoTradeQueueing)); len(acked) != 1 || acked[0] != 11 {
		t.Fatalf("first status ack: got %v, want [11]", acked)
	}
	// Only the first status acknowledges the submit request.
	if acked := m.OnStatus(snapshot(key("1"), gateway.StatusPartTradedQueueing)); len(acked) != 0 {
		t.Fatalf("second status ack: got %v, want none", acked)
	}

	m.MarkCancelRequested(key("1"), 12)
	// Non-terminal updates do not answer the cancel.
	if acked := m.OnStatus(snapshot(key("1"), gateway.StatusPartTradedQueueing)); len(acked) != 0 {
		t.Fatalf("pre-terminal ack: got %v, want none", acked)
	}
	if acked := m.OnStatus(snapshot(key("1"), gateway.StatusCanceled)); len(acked) != 1 || acked[0] != 12 {
		t.Fatalf("cancel ack: got %v, want [12]", acked)
	}
	if acked := m.OnStatus(snapshot(key("1"), gateway.StatusCanceled)); len(acked) != 0 {
		t.Fatalf("duplicate terminal ack: got %v, want none", acked)
	}
}

func TestManager_AdoptsUnknownOrder(t *testing.T) {
	m := order.NewManager(nil)
	m.OnStatus(snapshot(key("77"), gateway.StatusNoTradeQueueing))

	o, ok := m.Get(key("77"))
	if !ok {
		t.Fatal("unknown order should be adopted")
	}
	if o.Snapshot.Status != gateway.StatusNoTradeQueueing {
		t.Errorf("status: got %s", o.Snapshot.Status)
	}
	if got := len(m.ActiveOrders()); got != 1 {
		t.Errorf("active: got %d, want 1", got)
	}
}

func TestManager_RejectionCounted(t *testing.T) {
	m := order.NewManager(nil)
	m.Track(limitBuy("rb2405", 3500, 1), key("1"), 0)
	m.OnStatus(snapshot(key("1"), gateway.StatusRejected))
	if got := m.Stats().Rejected; got != 1 {
		t.Errorf("rejected: got %d, want 1", got)
	}
}

// ============================================================================
// Test: trades
// ============================================================================

func TestManager_TradeLedgerAndTurnover(t *testing.T) {
	m := order.NewManager(nil)
	m.Track(limitBuy("rb2405", 3500, 1), key("1"), 0)

	m.OnTrade(gateway.Trade{
		TradeID:      "T1",
		OrderKey:     key("1"),
		InstrumentID: "rb2405",
		Price:        3500,
		Volume:       1,
		TradeTime:    time.Now(),
	})

	stats := m.Stats()
	if stats.Trades != 1 {
		t.Errorf("trades: got %d, want 1", stats.Trades)
	}
	if stats.Turnover != 3500 {
		t.Errorf("turnover: got %v, want 3500", stats.Turnover)
	}

	fills := m.TradesFor(key("1"))
	if len(fills) != 1 || fills[0].TradeID != "T1" {
		t.Errorf("fills: got %+v", fills)
	}

	// The fill also lands in the position book.
	side, ok := m.Positions().Get("rb2405", gateway.DirectionBuy)
	if !ok || side.Volume != 1 {
		t.Errorf("position: got %+v", side)
	}
}

func TestManager_TradeForUntrackedOrderStillRecorded(t *testing.T) {
	m := order.NewManager(nil)
	m.OnTrade(gateway.Trade{TradeID: "T9", OrderKey: key("9"), InstrumentID: "rb2405", Price: 100, Volume: 2})
	if got := m.Stats().Turnover; got != 200 {
		t.Errorf("turnover: got %v, want 200", got)
	}
}

// ============================================================================
// Test: cancel eligibility
// ============================================================================

func TestManager_CancelEligibility(t *testing.T) {
	m := order.NewManager(nil)

	if err := m.CancelEligible(key("1")); err == nil {
		t.Fatal("cancel of untracked order must fail")
	}

	m.Track(limitBuy("rb2405", 3500, 1), key("1"), 0)
	if err := m.CancelEligible(key("1")); err != nil {
		t.Fatalf("cancel of active order: %v", err)
	}

	m.OnStatus(snapshot(key("1"), gateway.StatusCanceled))
	err := m.CancelEligible(key("1"))
	if _, ok := err.(*errs.StateError); !ok {
		t.Fatalf("cancel of terminal order: got %T, want *StateError", err)
	}
}

// ============================================================================
// Test: eviction
// ============================================================================

func TestManager_EvictsOnlyTerminalOrders(t *testing.T) {
	m := order.NewManager(nil)
	m.Track(limitBuy("rb2405", 3500, 1), key("1"), 0)
	m.Track(limitBuy("rb2405", 3501, 1), key("2"), 0)
	m.OnStatus(snapshot(key("1"), gateway.StatusAllTraded))
	m.OnTrade(gateway.Trade{TradeID: "T1", OrderKey: key("1"), InstrumentID: "rb2405", Price: 3500, Volume: 1})

	if got := m.EvictExpired(0); got != 1 {
		t.Fatalf("evicted: got %d, want 1", got)
	}
	if _, ok := m.Get(key("1")); ok {
		t.Error("terminal order should be gone")
	}
	if _, ok := m.Get(key("2")); !ok {
		t.Error("active order must survive eviction")
	}
	if fills := m.TradesFor(key("1")); len(fills) != 0 {
		t.Errorf("fills for evicted order: got %d, want 0", len(fills))
	}
	// Cumulative stats survive eviction.
	if got := m.Stats().Turnover; got != 3500 {
		t.Errorf("turnover after eviction: got %v, want 3500", got)
	}
}

func TestManager_RetentionKeepsRecentTerminals(t *testing.T) {
	m := order.NewManager(nil)
	m.Track(limitBuy("rb2405", 3500, 1), key("1"), 0)
	m.OnStatus(snapshot(key("1"), gateway.StatusAllTraded))

	if got := m.EvictExpired(time.Hour); got != 0 {
		t.Errorf("evicted: got %d, want 0", got)
	}
}
