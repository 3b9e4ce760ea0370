package ws

import "time"

// ConnInfo carries the identity and tracing context of one session.
type ConnInfo struct {
	SessionID   string
	UserID      int
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}
