package domain

import "time"

// Session is the human-facing record of one login instance: which device,
// from where, and when it was last active. Session identity is distinct from
// refresh-token identity; the two are correlated at creation time through the
// session cookie.
type Session struct {
	ID         string    `json:"id"`
	AccountID  string    `json:"account_id"`
	UserAgent  string    `json:"user_agent"`
	IP         string    `json:"ip"`
	LastSeenAt time.Time `json:"last_seen_at"`
	CreatedAt  time.Time `json:"created_at"`
}
