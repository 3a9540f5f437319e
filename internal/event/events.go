package event

import (
	"encoding/json"

	"TradeGate/internal/gateway"
)

// Type discriminator for event payloads.
type Type int32

const (
	TypeUnknown Type = iota

	// Inbound gateway lifecycle.
	TypeFrontConnected
	TypeFrontDisconnected
	TypeAuthResult
	TypeLoginResult
	TypeSettlementConfirmResult

	// Inbound order / market traffic.
	TypeOrderUpdate
	TypeTradeUpdate
	TypeMarketData
	TypeSubscribeAck
	TypeUnsubscribeAck

	// Inbound query results.
	TypeAccountUpdate
	TypePositionUpdate
	TypeTradesQueryResult
	TypeOrdersQueryResult
	TypeSettlementInfo

	// Application-visible lifecycle.
	TypeConnected
	TypeDisconnected
	TypeLoginRequired
	TypeLoginSuccess
	TypeLoginFailed
	TypeSettlementRequired
	TypeSettlementConfirmed
	TypeError
)

func (t Type) String() string {
	switch t {
	case TypeFrontConnected:
		return "FrontConnected"
	case TypeFrontDisconnected:
		return "FrontDisconnected"
	case TypeAuthResult:
		return "AuthResult"
	case TypeLoginResult:
		return "LoginResult"
	case TypeSettlementConfirmResult:
		return "SettlementConfirmResult"
	case TypeOrderUpdate:
		return "OrderUpdate"
	case TypeTradeUpdate:
		return "TradeUpdate"
	case TypeMarketData:
		return "MarketData"
	case TypeSubscribeAck:
		return "SubscribeAck"
	case TypeUnsubscribeAck:
		return "UnsubscribeAck"
	case TypeAccountUpdate:
		return "AccountUpdate"
	case TypePositionUpdate:
		return "PositionUpdate"
	case TypeTradesQueryResult:
		return "TradesQueryResult"
	case TypeOrdersQueryResult:
		return "OrdersQueryResult"
	case TypeSettlementInfo:
		return "SettlementInfo"
	case TypeConnected:
		return "Connected"
	case TypeDisconnected:
		return "Disconnected"
	case TypeLoginRequired:
		return "LoginRequired"
	case TypeLoginSuccess:
		return "LoginSuccess"
	case TypeLoginFailed:
		return "LoginFailed"
	case TypeSettlementRequired:
		return "SettlementRequired"
	case TypeSettlementConfirmed:
		return "SettlementConfirmed"
	case TypeError:
		return "Error"
	}
	return "Unknown"
}

// Event is the interface all payloads implement.
type Event interface {
	EventType() Type
}

// --- Inbound events (callback thread → engine) ---

type FrontConnected struct{}

func (FrontConnected) EventType() Type { return TypeFrontConnected }

type FrontDisconnected struct {
	Reason int `json:"reason"`
}

func (FrontDisconnected) EventType() Type { return TypeFrontDisconnected }

type AuthResult struct {
	RequestID int             `json:"request_id"`
	Rsp       gateway.RspInfo `json:"rsp"`
}

func (AuthResult) EventType() Type { return TypeAuthResult }

type LoginResult struct {
	RequestID int                   `json:"request_id"`
	Login     gateway.LoginResponse `json:"login"`
	Rsp       gateway.RspInfo       `json:"rsp"`
}

func (LoginResult) EventType() Type { return TypeLoginResult }

type SettlementConfirmResult struct {
	RequestID int             `json:"request_id"`
	Rsp       gateway.RspInfo `json:"rsp"`
}

func (SettlementConfirmResult) EventType() Type { return TypeSettlementConfirmResult }

type OrderUpdate struct {
	Snapshot gateway.OrderSnapshot `json:"snapshot"`
}

func (OrderUpdate) EventType() Type { return TypeOrderUpdate }

type TradeUpdate struct {
	Trade gateway.Trade `json:"trade"`
}

func (TradeUpdate) EventType() Type { return TypeTradeUpdate }

type MarketData struct {
	Tick gateway.Tick `json:"tick"`
}

func (MarketData) EventType() Type { return TypeMarketData }

type SubscribeAck struct {
	InstrumentID string          `json:"instrument_id"`
	Rsp          gateway.RspInfo `json:"rsp"`
}

func (SubscribeAck) EventType() Type { return TypeSubscribeAck }

type UnsubscribeAck struct {
	InstrumentID string          `json:"instrument_id"`
	Rsp          gateway.RspInfo `json:"rsp"`
}

func (UnsubscribeAck) EventType() Type { return TypeUnsubscribeAck }

type AccountUpdate struct {
	RequestID int                 `json:"request_id"`
	Account   gateway.AccountInfo `json:"account"`
}

func (AccountUpdate) EventType() Type { return TypeAccountUpdate }

type PositionUpdate struct {
	RequestID int                `json:"request_id"`
	Positions []gateway.Position `json:"positions"`
}

func (PositionUpdate) EventType() Type { return TypePositionUpdate }

type TradesQueryResult struct {
	RequestID int             `json:"request_id"`
	Trades    []gateway.Trade `json:"trades"`
}

func (TradesQueryResult) EventType() Type { return TypeTradesQueryResult }

type OrdersQueryResult struct {
	RequestID int                     `json:"request_id"`
	Orders    []gateway.OrderSnapshot `json:"orders"`
}

func (OrdersQueryResult) EventType() Type { return TypeOrdersQueryResult }

type SettlementInfo struct {
	RequestID int    `json:"request_id"`
	Content   string `json:"content"`
}

func (SettlementInfo) EventType() Type { return TypeSettlementInfo }

// RspError is the gateway's generic error callback, correlated by
// request ID when one was attached.
type RspError struct {
	RequestID int             `json:"request_id"`
	Rsp       gateway.RspInfo `json:"rsp"`
}

func (RspError) EventType() Type { return TypeError }

// --- Application-visible events (engine → consumers) ---

type Connected struct{}

func (Connected) EventType() Type { return TypeConnected }

type Disconnected struct {
	Reason int `json:"reason"`
}

func (Disconnected) EventType() Type { return TypeDisconnected }

type LoginRequired struct{}

func (LoginRequired) EventType() Type { return TypeLoginRequired }

type LoginSuccess struct {
	Login gateway.LoginResponse `json:"login"`
}

func (LoginSuccess) EventType() Type { return TypeLoginSuccess }

type LoginFailed struct {
	Reason string `json:"reason"`
}

func (LoginFailed) EventType() Type { return TypeLoginFailed }

type SettlementRequired struct{}

func (SettlementRequired) EventType() Type { return TypeSettlementRequired }

type SettlementConfirmed struct{}

func (SettlementConfirmed) EventType() Type { return TypeSettlementConfirmed }

// Error carries an error surfaced to the application.
type Error struct {
	Err error `json:"-"`
}

func (Error) EventType() Type { return TypeError }

func (e Error) Error() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

func (e Error) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{"error": e.Error()})
}
