package services

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"authhub/internal/apierr"
	"authhub/internal/models"
	"authhub/internal/repositories"
)

// TokenPair is what login and refresh hand back to the HTTP layer, which
// mirrors both values into cookies and the response body.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type AuthService interface {
	Register(req models.RegisterRequest, verifyURLBase string) (*models.User, error)
	Login(email, password string) (*models.User, *TokenPair, error)
	Logout(userID string) error
	VerifyEmail(plainToken string) error
	ResendEmailVerification(userID, verifyURLBase string) error
	RefreshTokens(presentedRefreshToken string) (*models.User, *TokenPair, error)
	ForgotPassword(email string) error
	ResetForgotPassword(plainToken, newPassword string) error
	ChangePassword(userID, oldPassword, newPassword string) error
}

type authService struct {
	users        repositories.UserRepository
	tokens       repositories.TokenRepository
	passwords    PasswordService
	minter       TokenService
	emails       EmailService
	resetURLBase string
}

func NewAuthService(
	users repositories.UserRepository,
	tokens repositories.TokenRepository,
	passwords PasswordService,
	minter TokenService,
	emails EmailService,
	resetURLBase string,
) AuthService {
	return &authService{
		users:        users,
		tokens:       tokens,
		passwords:    passwords,
		minter:       minter,
		emails:       emails,
		resetURLBase: resetURLBase,
	}
}

func (s *authService) Register(req models.RegisterRequest, verifyURLBase string) (*models.User, error) {
	email := strings.TrimSpace(strings.ToLower(req.Email))

	_, err := s.users.GetByColumn("email", email)
	if err == nil {
		return nil, apierr.Conflict("user with this email already exists")
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("register: lookup email: %w", err)
	}

	hash, err := s.passwords.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	role := req.Role
	if role == "" {
		role = "user"
	}
	user := &models.User{
		Email:        email,
		Username:     req.Username,
		PasswordHash: hash,
		Role:         role,
	}
	if name := strings.TrimSpace(req.FullName); name != "" {
		user.FullName = &name
	}

	if err := s.users.Create(user); err != nil {
		if repositories.IsUniqueViolation(err) {
			return nil, apierr.Conflict("email or username already taken")
		}
		return nil, fmt.Errorf("register: create user: %w", err)
	}

	// From here on failures leave the account unverified but recoverable via
	// the resend-verification flow. No rollback.
	if err := s.issueVerification(user, verifyURLBase); err != nil {
		return nil, err
	}

	log.Printf("[auth][register] user created id=%s email=%q", user.ID, user.Email)
	return user.Public(), nil
}

func (s *authService) issueVerification(user *models.User, verifyURLBase string) error {
	plain, digest, expiry, err := s.minter.MintSingleUseToken()
	if err != nil {
		return apierr.Internal("could not generate verification token")
	}
	if err := s.tokens.Upsert(user.ID, models.PurposeEmailVerification, digest, expiry); err != nil {
		return fmt.Errorf("store verification token: %w", err)
	}
	verifyURL := verifyURLBase + "/" + plain
	if err := s.emails.SendVerificationEmail(user.Email, user.Username, verifyURL); err != nil {
		return apierr.Internal("could not send verification email")
	}
	return nil
}

func (s *authService) Login(email, password string) (*models.User, *TokenPair, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return nil, nil, apierr.BadRequest("email is required")
	}

	user, err := s.users.GetByEmail(email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, apierr.NotFound("user does not exist")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("login: lookup email: %w", err)
	}

	// a blank password is a failed credential check, not a malformed request
	if strings.TrimSpace(password) == "" {
		return nil, nil, apierr.Unauthorized("invalid credentials")
	}
	if err := s.passwords.ComparePassword(password, user.PasswordHash); err != nil {
		if errors.Is(err, ErrPasswordMismatch) {
			return nil, nil, apierr.Unauthorized("invalid credentials")
		}
		return nil, nil, err
	}

	pair, err := s.issueTokens(user)
	if err != nil {
		return nil, nil, err
	}

	log.Printf("[auth][login] success id=%s", user.ID)
	return user.Public(), pair, nil
}

// issueTokens mints a fresh access/refresh pair and persists the refresh
// token on the account, overwriting (and so revoking) any prior session.
func (s *authService) issueTokens(user *models.User) (*TokenPair, error) {
	access, err := s.minter.MintAccessToken(user.ID, user.Email, user.Username)
	if err != nil {
		return nil, apierr.Internal("could not generate access token")
	}
	refresh, err := s.minter.MintRefreshToken(user.ID)
	if err != nil {
		return nil, apierr.Internal("could not generate refresh token")
	}
	if err := s.users.UpdateRefreshToken(user.ID, refresh); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (s *authService) Logout(userID string) error {
	err := s.users.ClearRefreshToken(userID)
	if errors.Is(err, sql.ErrNoRows) {
		return apierr.NotFound("user not found")
	}
	if err != nil {
		return fmt.Errorf("logout: clear refresh token: %w", err)
	}
	log.Printf("[auth][logout] session cleared id=%s", userID)
	return nil
}

func (s *authService) VerifyEmail(plainToken string) error {
	plainToken = strings.TrimSpace(plainToken)
	if plainToken == "" {
		return apierr.BadRequest("email verification token is missing")
	}

	digest := s.passwords.Digest(plainToken)
	user, err := s.tokens.FindUserByToken(models.PurposeEmailVerification, digest, time.Now())
	if errors.Is(err, sql.ErrNoRows) {
		return apierr.BadRequest("token is invalid or expired")
	}
	if err != nil {
		return fmt.Errorf("verify email: lookup token: %w", err)
	}

	if err := s.users.MarkEmailVerified(user.ID); err != nil {
		return fmt.Errorf("verify email: mark verified: %w", err)
	}
	// single use: the token is gone after a successful verification
	if err := s.tokens.Delete(user.ID, models.PurposeEmailVerification); err != nil {
		return fmt.Errorf("verify email: clear token: %w", err)
	}
	log.Printf("[auth][verify-email] verified id=%s", user.ID)
	return nil
}

func (s *authService) ResendEmailVerification(userID, verifyURLBase string) error {
	user, err := s.users.GetByID(userID)
	if errors.Is(err, sql.ErrNoRows) {
		return apierr.NotFound("user does not exist")
	}
	if err != nil {
		return fmt.Errorf("resend verification: lookup user: %w", err)
	}
	if user.IsEmailVerified {
		return apierr.Conflict("email is already verified")
	}
	return s.issueVerification(user, verifyURLBase)
}

func (s *authService) RefreshTokens(presentedRefreshToken string) (*models.User, *TokenPair, error) {
	presentedRefreshToken = strings.TrimSpace(presentedRefreshToken)
	if presentedRefreshToken == "" {
		return nil, nil, apierr.Unauthorized("unauthorized access")
	}

	claims, err := s.minter.VerifyRefreshToken(presentedRefreshToken)
	if err != nil {
		return nil, nil, apierr.Unauthorized("invalid refresh token")
	}

	user, err := s.users.GetByID(claims.UserID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, apierr.Unauthorized("invalid refresh token")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("refresh: lookup user: %w", err)
	}

	// Exact-match against the stored token catches replay of a rotated or
	// revoked refresh token even when its signature still verifies.
	if user.RefreshToken == nil || *user.RefreshToken != presentedRefreshToken {
		return nil, nil, apierr.Unauthorized("refresh token has been rotated or revoked")
	}

	pair, err := s.issueTokens(user)
	if err != nil {
		return nil, nil, err
	}
	log.Printf("[auth][refresh] rotated id=%s", user.ID)
	return user.Public(), pair, nil
}

func (s *authService) ForgotPassword(email string) error {
	email = strings.TrimSpace(strings.ToLower(email))

	user, err := s.users.GetByEmail(email)
	if errors.Is(err, sql.ErrNoRows) {
		return apierr.NotFound("user does not exist")
	}
	if err != nil {
		return fmt.Errorf("forgot password: lookup email: %w", err)
	}

	plain, digest, expiry, err := s.minter.MintSingleUseToken()
	if err != nil {
		return apierr.Internal("could not generate reset token")
	}
	if err := s.tokens.Upsert(user.ID, models.PurposePasswordReset, digest, expiry); err != nil {
		return fmt.Errorf("forgot password: store token: %w", err)
	}

	resetURL := s.resetURLBase + "/" + plain
	if err := s.emails.SendPasswordResetEmail(user.Email, user.Username, resetURL); err != nil {
		return apierr.Internal("could not send password reset email")
	}
	log.Printf("[auth][forgot-password] reset mail queued id=%s", user.ID)
	return nil
}

func (s *authService) ResetForgotPassword(plainToken, newPassword string) error {
	plainToken = strings.TrimSpace(plainToken)
	if plainToken == "" {
		return apierr.BadRequest("password reset token is missing")
	}

	digest := s.passwords.Digest(plainToken)
	user, err := s.tokens.FindUserByToken(models.PurposePasswordReset, digest, time.Now())
	if errors.Is(err, sql.ErrNoRows) {
		return apierr.BadRequest("token is invalid or expired")
	}
	if err != nil {
		return fmt.Errorf("reset password: lookup token: %w", err)
	}

	hash, err := s.passwords.HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePassword(user.ID, hash); err != nil {
		return fmt.Errorf("reset password: update password: %w", err)
	}
	if err := s.tokens.Delete(user.ID, models.PurposePasswordReset); err != nil {
		return fmt.Errorf("reset password: clear token: %w", err)
	}
	log.Printf("[auth][reset-password] password reset id=%s", user.ID)
	return nil
}

func (s *authService) ChangePassword(userID, oldPassword, newPassword string) error {
	user, err := s.users.GetByID(userID)
	if errors.Is(err, sql.ErrNoRows) {
		return apierr.NotFound("user does not exist")
	}
	if err != nil {
		return fmt.Errorf("change password: lookup user: %w", err)
	}

	if err := s.passwords.ComparePassword(oldPassword, user.PasswordHash); err != nil {
		if errors.Is(err, ErrPasswordMismatch) {
			return apierr.BadRequest("invalid old password")
		}
		return err
	}

	// the new password is always stored hashed
	hash, err := s.passwords.HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePassword(userID, hash); err != nil {
		return fmt.Errorf("change password: update password: %w", err)
	}
	log.Printf("[auth][change-password] password changed id=%s", userID)
	return nil
}
