package model

// SessionState is the outcome of a validity check on the cached session.
type SessionState string

const (
	SessionNone    SessionState = "none"    // No credential cached.
	SessionActive  SessionState = "active"  // Credential cached and not expired.
	SessionExpired SessionState = "expired" // Credential was stale and has just been cleared.
)
