package model

import "time"

// SessionRetention is how long a persisted login stays valid
const SessionRetention = 7 * 24 * time.Hour

// UserProfile describes the logged in account
type UserProfile struct {
	Name      string `json:"name"`
	Avatar    string `json:"avatar"`
	MID       uint64 `json:"mid"`
	VIPStatus int    `json:"vip_type"`
}

// IsVIP reports whether the account has an active premium membership
func (p *UserProfile) IsVIP() bool {
	return p != nil && p.VIPStatus == 1
}

// Session is the in-memory authentication state.
// LoggedIn implies a non-empty Credential.
type Session struct {
	LoggedIn   bool
	Profile    *UserProfile
	Credential string
}

// Valid reports whether the session satisfies its invariant
func (s Session) Valid() bool {
	return !s.LoggedIn || s.Credential != ""
}

// StoredSession is the persisted form of a session
type StoredSession struct {
	Credential string       `json:"cookies"`
	Profile    *UserProfile `json:"user_profile,omitempty"`
	LoginTime  int64        `json:"login_time"` // epoch millis
}

// LoginAt returns the login time as time.Time
func (s *StoredSession) LoginAt() time.Time {
	return time.UnixMilli(s.LoginTime)
}

// Expired reports whether the record is older than SessionRetention at now
func (s *StoredSession) Expired(now time.Time) bool {
	return now.Sub(s.LoginAt()) > SessionRetention
}
