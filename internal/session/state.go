package session

// ConnectionState is the session lifecycle state. Transitions are
// driven only by the engine goroutine.
type ConnectionState int32

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateAuthenticating
	StateLoggingIn
	StateConfirmingSettlement
	StateReady
	StateReconnecting
	StateDisconnectedFatal
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "Disconnected"
	case StateConnecting:
		return "Connecting"
	case StateAuthenticating:
		return "Authenticating"
	case StateLoggingIn:
		return "LoggingIn"
	case StateConfirmingSettlement:
		return "ConfirmingSettlement"
	case StateReady:
		return "Ready"
	case StateReconnecting:
		return "Reconnecting"
	case StateDisconnectedFatal:
		return "DisconnectedFatal"
	}
	return "Unknown"
}

// Terminal reports whether no further transitions are possible.
func (s ConnectionState) Terminal() bool {
	return s == StateDisconnectedFatal
}

// Usable reports whether order and query traffic is accepted.
func (s ConnectionState) Usable() bool {
	return s == StateReady
}
