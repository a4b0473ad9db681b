package models

import "time"

// TokenPurpose keys a pending single-use token. Keeping purposes in separate
// records means a pending email verification cannot be clobbered by a
// password-reset request or the other way around.
type TokenPurpose string

const (
	PurposeEmailVerification TokenPurpose = "email_verification"
	PurposePasswordReset     TokenPurpose = "password_reset"
)

// SingleUseToken is the stored half of a verification/reset token: only the
// SHA-256 digest is persisted, the plaintext goes out by email.
type SingleUseToken struct {
	UserID    string       `json:"user_id"`
	Purpose   TokenPurpose `json:"purpose"`
	Digest    string       `json:"-"`
	ExpiresAt time.Time    `json:"expires_at"`
	CreatedAt time.Time    `json:"created_at"`
}
