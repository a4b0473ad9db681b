package models

import "time"

type User struct {
	ID              string  `json:"id"`
	Avatar          string  `json:"avatar"`
	Username        string  `json:"username"`
	Email           string  `json:"email"`
	FullName        *string `json:"fullName,omitempty"`
	PasswordHash    string  `json:"-"`
	IsEmailVerified bool    `json:"isEmailVerified"`
	Role            string  `json:"role"`

	// Current live refresh token, mirrored from the last mint so a presented
	// token can be compared by exact equality. Empty means no session.
	RefreshToken *string `json:"-"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Public strips everything a response is allowed to carry. The password hash
// is already excluded from JSON; this also drops the refresh token mirror.
func (u *User) Public() *User {
	out := *u
	out.RefreshToken = nil
	return &out
}
