package gateway

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Mock is an in-process gateway used by tests and the dry-run binary.
// Callbacks are delivered from a dedicated goroutine, preserving the
// per-connection ordering a real front provides while still arriving on
// a thread the application does not control.
type Mock struct {
	log     zerolog.Logger
	handler Handler

	mu        sync.Mutex
	cb        chan func()
	done      chan struct{}
	released  bool
	connected bool

	// Scripted outcomes. Zero values mean success.
	AuthRsp    RspInfo
	LoginRsp   RspInfo
	ConfirmRsp RspInfo

	// FailConnects makes the first N Connect calls report an immediate
	// front disconnect instead of front-connected.
	FailConnects int32

	// MuteSettlement drops settlement-confirm requests without any
	// response callback, for sweep/timeout tests.
	MuteSettlement bool

	// AutoFill answers each accepted order with a queueing status, a
	// full fill and a terminal all-traded status.
	AutoFill bool

	frontID   int
	sessionID int
	orderSeq  atomic.Int64
	tradeSeq  atomic.Int64
}

var _ API = (*Mock)(nil)

// NewMock creates a mock gateway with successful default responses.
func NewMock(log zerolog.Logger) *Mock {
	m := &Mock{
		log:       log,
		cb:        make(chan func(), 256),
		done:      make(chan struct{}),
		frontID:   1,
		sessionID: int(time.Now().Unix() & 0x7fffffff),
	}
	go m.dispatch()
	return m
}

// SetHandler registers the callback sink. Must be called before Connect.
func (m *Mock) SetHandler(h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = h
}

func (m *Mock) dispatch() {
	for {
		select {
		case <-m.done:
			return
		case fn := <-m.cb:
			fn()
		}
	}
}

func (m *Mock) emit(fn func()) {
	m.mu.Lock()
	released := m.released
	m.mu.Unlock()
	if released {
		return
	}
	select {
	case m.cb <- fn:
	case <-m.done:
	}
}

func (m *Mock) Connect(tradingFront, marketFront string) error {
	m.mu.Lock()
	h := m.handler
	m.mu.Unlock()
	if h == nil {
		return fmt.Errorf("mock: no handler registered")
	}

	if atomic.AddInt32(&m.FailConnects, -1) >= 0 {
		m.log.Debug().Msg("mock: scripted connect failure")
		m.emit(func() { h.OnFrontDisconnected(0x1001) })
		return nil
	}
	atomic.StoreInt32(&m.FailConnects, 0)

	m.mu.Lock()
	m.connected = true
	m.mu.Unlock()
	m.emit(h.OnFrontConnected)
	return nil
}

// InjectDisconnect simulates the front dropping the connection.
func (m *Mock) InjectDisconnect(reason int) {
	m.mu.Lock()
	h := m.handler
	m.connected = false
	m.mu.Unlock()
	if h != nil {
		m.emit(func() { h.OnFrontDisconnected(reason) })
	}
}

// InjectAuthResponse delivers an unsolicited authenticate response, for
// exercising stale and out-of-state callback handling.
func (m *Mock) InjectAuthResponse(rsp RspInfo, requestID int) {
	m.mu.Lock()
	h := m.handler
	m.mu.Unlock()
	if h != nil {
		m.emit(func() { h.OnRspAuthenticate(rsp, requestID) })
	}
}

// InjectLoginResponse delivers an unsolicited login response.
func (m *Mock) InjectLoginResponse(login LoginResponse, rsp RspInfo, requestID int) {
	m.mu.Lock()
	h := m.handler
	m.mu.Unlock()
	if h != nil {
		m.emit(func() { h.OnRspLogin(login, rsp, requestID) })
	}
}

// InjectTick feeds one market tick through the callback path.
func (m *Mock) InjectTick(tick Tick) {
	m.mu.Lock()
	h := m.handler
	m.mu.Unlock()
	if h != nil {
		m.emit(func() { h.OnTick(tick) })
	}
}

func (m *Mock) Authenticate(brokerID, userID, appID, authCode string, requestID int) error {
	rsp := m.AuthRsp
	m.emit(func() { m.handler.OnRspAuthenticate(rsp, requestID) })
	return nil
}

func (m *Mock) Login(brokerID, userID, password string, requestID int) error {
	rsp := m.LoginRsp
	login := LoginResponse{
		TradingDay:  time.Now().Format("20060102"),
		FrontID:     m.frontID,
		SessionID:   m.sessionID,
		MaxOrderRef: 1,
	}
	m.emit(func() { m.handler.OnRspLogin(login, rsp, requestID) })
	return nil
}

func (m *Mock) ConfirmSettlement(brokerID, investorID string, requestID int) error {
	if m.MuteSettlement {
		m.log.Debug().Int("request_id", requestID).Msg("mock: settlement confirm muted")
		return nil
	}
	rsp := m.ConfirmRsp
	m.emit(func() { m.handler.OnRspSettlementConfirm(rsp, requestID) })
	return nil
}

func (m *Mock) SubmitOrder(req OrderRequest, key OrderKey, requestID int) error {
	sysID := fmt.Sprintf("%012d", m.orderSeq.Add(1))
	snap := OrderSnapshot{
		Key:          key,
		OrderSysID:   sysID,
		InstrumentID: req.InstrumentID,
		Direction:    req.Direction,
		Offset:       req.Offset,
		Price:        req.Price,
		Volume:       req.Volume,
		Status:       StatusNoTradeQueueing,
	}
	m.emit(func() { m.handler.OnRtnOrder(snap) })

	if m.AutoFill {
		trade := Trade{
			TradeID:      uuid.NewString(),
			OrderKey:     key,
			InstrumentID: req.InstrumentID,
			Direction:    req.Direction,
			Offset:       req.Offset,
			Price:        req.Price,
			Volume:       req.Volume,
			TradeTime:    time.Now(),
		}
		filled := snap
		filled.VolumeTraded = req.Volume
		filled.Status = StatusAllTraded
		m.emit(func() { m.handler.OnRtnTrade(trade) })
		m.emit(func() { m.handler.OnRtnOrder(filled) })
		m.tradeSeq.Add(1)
	}
	return nil
}

func (m *Mock) CancelOrder(key OrderKey, requestID int) error {
	snap := OrderSnapshot{
		Key:    key,
		Status: StatusCanceled,
	}
	m.emit(func() { m.handler.OnRtnOrder(snap) })
	return nil
}

func (m *Mock) Subscribe(instruments []string) error {
	for _, id := range instruments {
		id := id
		m.emit(func() { m.handler.OnRspSubscribe(id, RspInfo{}) })
	}
	return nil
}

func (m *Mock) Unsubscribe(instruments []string) error {
	for _, id := range instruments {
		id := id
		m.emit(func() { m.handler.OnRspUnsubscribe(id, RspInfo{}) })
	}
	return nil
}

func (m *Mock) QueryAccount(requestID int) error {
	acct := AccountInfo{
		AccountID: "mock",
		Balance:   1_000_000,
		Available: 980_000,
		Margin:    20_000,
	}
	m.emit(func() { m.handler.OnRspQryAccount(acct, RspInfo{}, requestID) })
	return nil
}

func (m *Mock) QueryPositions(requestID int) error {
	m.emit(func() { m.handler.OnRspQryPositions(nil, RspInfo{}, requestID) })
	return nil
}

func (m *Mock) QueryTrades(instrumentID string, requestID int) error {
	m.emit(func() { m.handler.OnRspQryTrades(nil, RspInfo{}, requestID) })
	return nil
}

func (m *Mock) QueryOrders(instrumentID string, requestID int) error {
	m.emit(func() { m.handler.OnRspQryOrders(nil, RspInfo{}, requestID) })
	return nil
}

func (m *Mock) QuerySettlement(tradingDay string, requestID int) error {
	m.emit(func() { m.handler.OnRspQrySettlement("", RspInfo{}, requestID) })
	return nil
}

func (m *Mock) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.released {
		return
	}
	m.released = true
	close(m.done)
}
