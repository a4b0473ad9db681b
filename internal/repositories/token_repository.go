package repositories

import (
	"database/sql"
	"time"

	"authhub/internal/models"
)

// TokenRepository stores pending single-use tokens keyed by (user, purpose).
// Only one token per purpose is live at a time: upserting replaces the
// previous one, which is exactly the implicit-invalidation the resend flows
// rely on.
type TokenRepository interface {
	Upsert(userID string, purpose models.TokenPurpose, digest string, expiresAt time.Time) error
	FindUserByToken(purpose models.TokenPurpose, digest string, now time.Time) (*models.User, error)
	Delete(userID string, purpose models.TokenPurpose) error
}

type tokenRepository struct {
	DB *sql.DB
}

func NewTokenRepository(db *sql.DB) TokenRepository {
	return &tokenRepository{DB: db}
}

func (r *tokenRepository) Upsert(userID string, purpose models.TokenPurpose, digest string, expiresAt time.Time) error {
	const q = `
		INSERT INTO user_tokens (user_id, purpose, token_hash, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, purpose)
		DO UPDATE SET token_hash = EXCLUDED.token_hash,
		              expires_at = EXCLUDED.expires_at,
		              created_at = NOW()
	`
	_, err := r.DB.Exec(q, userID, purpose, digest, expiresAt)
	return err
}

func (r *tokenRepository) FindUserByToken(purpose models.TokenPurpose, digest string, now time.Time) (*models.User, error) {
	const q = `
		SELECT u.id, u.avatar, u.username, u.email, u.full_name, u.password_hash,
		       u.is_email_verified, u.role, u.refresh_token, u.created_at, u.updated_at
		FROM users u
		JOIN user_tokens t ON t.user_id = u.id
		WHERE t.purpose = $1 AND t.token_hash = $2 AND t.expires_at > $3
	`
	return scanUser(r.DB.QueryRow(q, purpose, digest, now))
}

func (r *tokenRepository) Delete(userID string, purpose models.TokenPurpose) error {
	_, err := r.DB.Exec(`
		DELETE FROM user_tokens WHERE user_id = $1 AND purpose = $2
	`, userID, purpose)
	return err
}
