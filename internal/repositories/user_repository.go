package repositories

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"authhub/internal/models"
)

type UserRepository interface {
	Create(user *models.User) error
	GetByID(id string) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	GetByColumn(column, value string) (*models.User, error)

	// refresh helpers
	UpdateRefreshToken(userID, token string) error
	ClearRefreshToken(userID string) error

	// verification / password helpers
	MarkEmailVerified(userID string) error
	UpdatePassword(userID, passwordHash string) error
}

// allowed lookup columns for GetByColumn; anything else is rejected so the
// column name can be spliced into SQL safely.
var userColumns = map[string]string{
	"id":        "id",
	"email":     "email",
	"username":  "username",
	"full_name": "full_name",
}

const userSelect = `
	SELECT id, avatar, username, email, full_name, password_hash,
	       is_email_verified, role, refresh_token, created_at, updated_at
	FROM users
`

type userRepository struct {
	DB *sql.DB
}

func NewUserRepository(db *sql.DB) UserRepository {
	return &userRepository{DB: db}
}

// IsUniqueViolation reports whether err is a Postgres unique-constraint
// failure (duplicate email or username).
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

func (r *userRepository) Create(user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	const q = `
		INSERT INTO users (id, username, email, full_name, password_hash, role)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING avatar, is_email_verified, created_at, updated_at
	`
	return r.DB.QueryRow(q,
		user.ID,
		user.Username,
		user.Email,
		user.FullName,
		user.PasswordHash,
		user.Role,
	).Scan(&user.Avatar, &user.IsEmailVerified, &user.CreatedAt, &user.UpdatedAt)
}

func scanUser(row *sql.Row) (*models.User, error) {
	u := &models.User{}
	var (
		fullName sql.NullString
		rt       sql.NullString
	)
	err := row.Scan(
		&u.ID, &u.Avatar, &u.Username, &u.Email, &fullName, &u.PasswordHash,
		&u.IsEmailVerified, &u.Role, &rt, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if fullName.Valid {
		s := fullName.String
		u.FullName = &s
	}
	if rt.Valid {
		s := rt.String
		u.RefreshToken = &s
	}
	return u, nil
}

func (r *userRepository) GetByID(id string) (*models.User, error) {
	return scanUser(r.DB.QueryRow(userSelect+`WHERE id = $1`, id))
}

func (r *userRepository) GetByEmail(email string) (*models.User, error) {
	return scanUser(r.DB.QueryRow(userSelect+`WHERE email = $1`, email))
}

func (r *userRepository) GetByColumn(column, value string) (*models.User, error) {
	col, ok := userColumns[column]
	if !ok {
		return nil, fmt.Errorf("users: lookup by column %q not allowed", column)
	}
	return scanUser(r.DB.QueryRow(userSelect+`WHERE `+col+` = $1 LIMIT 1`, value))
}

// ===== refresh helpers =====

func (r *userRepository) UpdateRefreshToken(userID, token string) error {
	const q = `
		UPDATE users
		SET refresh_token = $1, updated_at = NOW()
		WHERE id = $2
	`
	_, err := r.DB.Exec(q, token, userID)
	return err
}

func (r *userRepository) ClearRefreshToken(userID string) error {
	res, err := r.DB.Exec(`
		UPDATE users
		SET refresh_token = NULL, updated_at = NOW()
		WHERE id = $1
	`, userID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ===== verification / password helpers =====

func (r *userRepository) MarkEmailVerified(userID string) error {
	_, err := r.DB.Exec(`
		UPDATE users
		SET is_email_verified = TRUE, updated_at = NOW()
		WHERE id = $1
	`, userID)
	return err
}

func (r *userRepository) UpdatePassword(userID, passwordHash string) error {
	_, err := r.DB.Exec(`
		UPDATE users
		SET password_hash = $1, updated_at = NOW()
		WHERE id = $2
	`, passwordHash, userID)
	return err
}
