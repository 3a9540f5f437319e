package gateway

import (
	"fmt"
	"time"
)

// Direction is the order side.
type Direction uint8

const (
	DirectionBuy Direction = iota
	DirectionSell
)

func (d Direction) String() string {
	switch d {
	case DirectionBuy:
		return "buy"
	case DirectionSell:
		return "sell"
	}
	return "unknown"
}

func (d Direction) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

// OffsetFlag says whether an order opens a new position or closes an
// existing one.
type OffsetFlag uint8

const (
	OffsetOpen OffsetFlag = iota
	OffsetClose
	OffsetCloseToday
	OffsetCloseYesterday
)

func (o OffsetFlag) String() string {
	switch o {
	case OffsetOpen:
		return "open"
	case OffsetClose:
		return "close"
	case OffsetCloseToday:
		return "closeToday"
	case OffsetCloseYesterday:
		return "closeYesterday"
	}
	return "unknown"
}

func (o OffsetFlag) MarshalJSON() ([]byte, error) {
	return []byte(`"` + o.String() + `"`), nil
}

// OrderType distinguishes limit from market orders.
type OrderType uint8

const (
	OrderTypeLimit OrderType = iota
	OrderTypeMarket
)

func (t OrderType) String() string {
	if t == OrderTypeMarket {
		return "market"
	}
	return "limit"
}

func (t OrderType) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.String() + `"`), nil
}

// OrderStatusType mirrors the gateway's order status codes.
type OrderStatusType uint8

const (
	StatusUnknown OrderStatusType = iota
	StatusPendingSubmit
	StatusNoTradeQueueing
	StatusNoTradeNotQueueing
	StatusPartTradedQueueing
	StatusPartTradedNotQueueing
	StatusAllTraded
	StatusCanceled
	StatusRejected
)

// Terminal reports whether no further status or trade updates are
// expected for an order in this status.
func (s OrderStatusType) Terminal() bool {
	switch s {
	case StatusAllTraded, StatusCanceled, StatusRejected:
		return true
	}
	return false
}

func (s OrderStatusType) String() string {
	switch s {
	case StatusPendingSubmit:
		return "pendingSubmit"
	case StatusNoTradeQueueing:
		return "noTradeQueueing"
	case StatusNoTradeNotQueueing:
		return "noTradeNotQueueing"
	case StatusPartTradedQueueing:
		return "partTradedQueueing"
	case StatusPartTradedNotQueueing:
		return "partTradedNotQueueing"
	case StatusAllTraded:
		return "allTraded"
	case StatusCanceled:
		return "canceled"
	case StatusRejected:
		return "rejected"
	}
	return "unknown"
}

func (s OrderStatusType) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// OrderKey identifies an order across the session. FrontID and SessionID
// are assigned by the gateway at login; OrderRef is generated locally at
// submission. The triple is globally unique.
type OrderKey struct {
	FrontID   int    `json:"front_id"`
	SessionID int    `json:"session_id"`
	OrderRef  string `json:"order_ref"`
}

func (k OrderKey) String() string {
	return fmt.Sprintf("%d/%d/%s", k.FrontID, k.SessionID, k.OrderRef)
}

// OrderRequest is the outbound order intent.
type OrderRequest struct {
	InstrumentID string     `json:"instrument_id"`
	Direction    Direction  `json:"direction"`
	Offset       OffsetFlag `json:"offset"`
	Type         OrderType  `json:"type"`
	Price        float64    `json:"price"`
	Volume       int        `json:"volume"`
}

// OrderSnapshot is the gateway's view of an order, delivered with every
// status callback.
type OrderSnapshot struct {
	Key          OrderKey        `json:"key"`
	OrderSysID   string          `json:"order_sys_id"`
	InstrumentID string          `json:"instrument_id"`
	Direction    Direction       `json:"direction"`
	Offset       OffsetFlag      `json:"offset"`
	Price        float64         `json:"price"`
	Volume       int             `json:"volume"`
	VolumeTraded int             `json:"volume_traded"`
	Status       OrderStatusType `json:"status"`
	StatusMsg    string          `json:"status_msg"`
}

// Trade is an immutable fill fact.
type Trade struct {
	TradeID      string     `json:"trade_id"`
	OrderKey     OrderKey   `json:"order_key"`
	InstrumentID string     `json:"instrument_id"`
	Direction    Direction  `json:"direction"`
	Offset       OffsetFlag `json:"offset"`
	Price        float64    `json:"price"`
	Volume       int        `json:"volume"`
	TradeTime    time.Time  `json:"trade_time"`
}

// Tick is the latest market snapshot for one instrument.
type Tick struct {
	InstrumentID string    `json:"instrument_id"`
	LastPrice    float64   `json:"last_price"`
	Volume       int64     `json:"volume"`
	Turnover     float64   `json:"turnover"`
	OpenInterest int64     `json:"open_interest"`
	BidPrice     float64   `json:"bid_price"`
	BidVolume    int       `json:"bid_volume"`
	AskPrice     float64   `json:"ask_price"`
	AskVolume    int       `json:"ask_volume"`
	UpdateTime   time.Time `json:"update_time"`
}

// LoginResponse carries the session identity assigned at login. FrontID
// and SessionID must be echoed on every later order reference;
// MaxOrderRef seeds the local order-ref counter.
type LoginResponse struct {
	TradingDay  string `json:"trading_day"`
	FrontID     int    `json:"front_id"`
	SessionID   int    `json:"session_id"`
	MaxOrderRef int    `json:"max_order_ref"`
}

// AccountInfo is a fund-account query result.
type AccountInfo struct {
	AccountID      string  `json:"account_id"`
	Balance        float64 `json:"balance"`
	Available      float64 `json:"available"`
	Margin         float64 `json:"margin"`
	FrozenMargin   float64 `json:"frozen_margin"`
	CloseProfit    float64 `json:"close_profit"`
	PositionProfit float64 `json:"position_profit"`
	RiskRatio      float64 `json:"risk_ratio"`
}

// Position is an investor-position query result.
type Position struct {
	InstrumentID  string    `json:"instrument_id"`
	Direction     Direction `json:"direction"`
	TotalPosition int       `json:"total_position"`
	TodayPosition int       `json:"today_position"`
	PositionCost  float64   `json:"position_cost"`
	Margin        float64   `json:"margin"`
	UnrealizedPnL float64   `json:"unrealized_pnl"`
	RealizedPnL   float64   `json:"realized_pnl"`
}

// RspInfo is the result header attached to every response callback.
// Code 0 means success.
type RspInfo struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// OK reports a successful response.
func (r RspInfo) OK() bool { return r.Code == 0 }
