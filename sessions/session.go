package sessions

import "time"

// Session is a snapshot of an authenticated session. The registry owns the
// live record; callers only ever see copies.
type Session struct {
	ID         string    // Opaque, unpredictable token carried by the session cookie
	Principal  string    // Username the session was issued to
	CreatedAt  time.Time // When the session was registered
	LastSeenAt time.Time // Last successful validation
}

// LimitPolicy decides what happens when a principal already holds the
// maximum number of sessions.
type LimitPolicy string

const (
	// EvictOldest admits the new login and invalidates the principal's
	// oldest session.
	EvictOldest LimitPolicy = "evict-oldest"
	// RejectNew refuses the new login and leaves existing sessions alone.
	RejectNew LimitPolicy = "reject-new"
)

func (p LimitPolicy) Valid() bool {
	return p == EvictOldest || p == RejectNew
}
