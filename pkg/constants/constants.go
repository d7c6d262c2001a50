package constants

import "time"

// WebSocket settings
const (
	// WebSocketPingInterval is the read deadline and ping cadence for
	// signaling connections
	WebSocketPingInterval = 60 * time.Second

	// WebSocketWriteTimeout bounds a single frame write
	WebSocketWriteTimeout = 10 * time.Second

	// WebSocketSendBuffer is the per-client outbound queue size
	WebSocketSendBuffer = 256

	// MaxSignalingMessageSize bounds inbound signaling frames; SDP
	// payloads are the largest messages and stay well under this
	MaxSignalingMessageSize = 64 * 1024
)

// Call session settings
const (
	// CallRingTimeout is how long an initiated call may ring before it
	// is marked missed
	CallRingTimeout = 30 * time.Second

	// PresenceSweepInterval is the cadence of the orphaned-presence
	// reconciliation sweep
	PresenceSweepInterval = 5 * time.Minute

	// PresenceTTL is the Redis presence key TTL
	PresenceTTL = 5 * time.Minute

	// MembershipCacheTTL bounds staleness of chat-membership lookups
	MembershipCacheTTL = 5 * time.Minute
)

// Pagination defaults for the call ledger API
const (
	DefaultCallHistoryLimit = 50
	DefaultRecentCallsLimit = 20
)
