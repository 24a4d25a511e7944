package domain

import (
	"time"
)

// User represents one end user of the assistant, identified the same way
// across transports (Slack user ID or anonymous browser identity).
type User struct {
	UserID     string    `json:"user_id"`
	Username   string    `json:"username"`
	LastSeenAt time.Time `json:"last_seen_at"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
