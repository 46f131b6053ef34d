package core

import "time"

// SessionStatus is the lifecycle state of the authenticated session
type SessionStatus int

const (
	StatusDisconnected SessionStatus = iota
	StatusConnecting
	StatusConnected
)

func (s SessionStatus) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Session binds a verified chain address to the connected state.
// It is handed out by value; only the authenticator mutates its own copy.
type Session struct {
	Address     string        // Address recovered from the challenge signature
	Status      SessionStatus // Current lifecycle state
	ConnectedAt time.Time     // When the session reached StatusConnected
}

// Connected reports whether the session may be used for authenticated operations
func (s Session) Connected() bool {
	return s.Status == StatusConnected && s.Address != ""
}

// ChallengePayload is the signed proof of key possession.
// The timestamp keeps messages distinct across attempts; replay rejection is
// left to whoever consumes the payload server-side.
type ChallengePayload struct {
	Address   string // Address claimed by the wallet provider
	Message   string // Exact string that was signed
	Signature string // 0x-prefixed 65-byte signature
	Timestamp int64  // Unix milliseconds embedded in Message
}

// AccessGrant is a gateway-issued credential for a connected session
type AccessGrant struct {
	ID        string    // Unique grant identifier, used for revocation
	Address   string    // Address of the connected session
	IssuedAt  time.Time // When the grant was issued
	ExpiresAt time.Time // When the grant stops being accepted
}
