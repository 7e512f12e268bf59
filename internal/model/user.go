package model

import "time"

// User is an account that owns archives.
//
// Archives reference users by ID only. A user comes from one of two identity
// sources: GitHub OAuth (GitHubID != 0) or a local login/password account
// (PasswordHash != ""). We generate our own xid for both so primary keys never
// depend on a third party's numbering.
type User struct {
	ID           string    `json:"id"`
	GitHubID     int64     `json:"githubId,omitempty"` // 0 for local accounts
	Login        string    `json:"login"`
	Email        string    `json:"email"`
	AvatarURL    string    `json:"avatarUrl"`
	PasswordHash string    `json:"-"` // bcrypt; empty for GitHub accounts
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
