package types

import "time"

// Group is a named set of members sharing one conversation.
type Group struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedBy UserID    `json:"created_by"`
	Members   []UserID  `json:"members"`
	CreatedAt time.Time `json:"created_at"`
}

// HasMember reports whether user belongs to the group.
func (g Group) HasMember(user UserID) bool {
	for _, m := range g.Members {
		if m == user {
			return true
		}
	}
	return false
}
