package session

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"TradeGate/internal/gateway"
)

// Session holds the identity a login grants and the counters derived
// from it. State writes come only from the engine goroutine; reads may
// come from any goroutine.
type Session struct {
	state atomic.Int32

	reqID    atomic.Int64
	orderRef atomic.Int64

	mu             sync.RWMutex
	tradingDay     string
	frontID        int
	sessionID      int
	connectedAt    time.Time
	reconnectCount int
	settlementOK   bool
	lastErr        error
}

func New() *Session {
	s := &Session{}
	s.state.Store(int32(StateDisconnected))
	return s
}

// State returns the current connection state.
func (s *Session) State() ConnectionState {
	return ConnectionState(s.state.Load())
}

// SetState records a transition. The caller is responsible for
// validating it.
func (s *Session) SetState(next ConnectionState) {
	s.state.Store(int32(next))
}

// NextRequestID returns a process-unique request identifier. The first
// call returns 1.
func (s *Session) NextRequestID() int {
	return int(s.reqID.Add(1))
}

// NextOrderRef returns a fresh order reference, strictly increasing
// within the session. Seeded from the login's max order ref so refs
// never collide with orders placed before a reconnect.
func (s *Session) NextOrderRef() string {
	return strconv.FormatInt(s.orderRef.Add(1), 10)
}

// ApplyLogin installs the identity granted by a successful login.
func (s *Session) ApplyLogin(login gateway.LoginResponse) {
	s.mu.Lock()
	s.tradingDay = login.TradingDay
	s.frontID = login.FrontID
	s.sessionID = login.SessionID
	s.connectedAt = time.Now()
	s.mu.Unlock()

	// Seed past every ref the exchange has seen from this investor.
	for {
		cur := s.orderRef.Load()
		if cur >= int64(login.MaxOrderRef) {
			return
		}
		if s.orderRef.CompareAndSwap(cur, int64(login.MaxOrderRef)) {
			return
		}
	}
}

// Identity returns the front/session pair from the last login.
func (s *Session) Identity() (frontID, sessionID int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frontID, s.sessionID
}

// TradingDay returns the trading day reported at login.
func (s *Session) TradingDay() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tradingDay
}

// RecordReconnect bumps the reconnect counter and returns the new
// attempt number.
func (s *Session) RecordReconnect() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reconnectCount++
	return s.reconnectCount
}

// ResetReconnects clears the attempt counter after a successful
// handshake.
func (s *Session) ResetReconnects() {
	s.mu.Lock()
	s.reconnectCount = 0
	s.mu.Unlock()
}

// ReconnectCount returns consecutive failed attempts so far.
func (s *Session) ReconnectCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reconnectCount
}

// SetSettlementConfirmed records whether today's settlement statement has
// been confirmed on the current connection.
func (s *Session) SetSettlementConfirmed(ok bool) {
	s.mu.Lock()
	s.settlementOK = ok
	s.mu.Unlock()
}

// SettlementConfirmed reports whether settlement is confirmed on the
// current connection.
func (s *Session) SettlementConfirmed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settlementOK
}

// SetLastError records the most recent session-level error.
func (s *Session) SetLastError(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}

// LastError returns the most recent session-level error, nil if none.
func (s *Session) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// Uptime returns how long the session has been logged in, zero when
// never logged in.
func (s *Session) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.connectedAt.IsZero() {
		return 0
	}
	return time.Since(s.connectedAt)
}
