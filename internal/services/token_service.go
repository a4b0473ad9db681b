package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"authhub/internal/config"
	"authhub/internal/utils"
)

var (
	ErrTokenInvalid = errors.New("token is invalid")
	ErrTokenExpired = errors.New("token is expired")
)

// single-use verification/reset tokens live for a fixed 20 minutes
const singleUseTokenTTL = 20 * time.Minute

type AccessClaims struct {
	UserID   string `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

type RefreshClaims struct {
	UserID string `json:"id"`
	jwt.RegisteredClaims
}

type TokenService interface {
	MintAccessToken(userID, email, username string) (string, error)
	MintRefreshToken(userID string) (string, error)
	VerifyAccessToken(token string) (*AccessClaims, error)
	VerifyRefreshToken(token string) (*RefreshClaims, error)

	// MintSingleUseToken returns the plaintext for the email link and the
	// digest for storage. The plaintext is never persisted.
	MintSingleUseToken() (plain, digest string, expiresAt time.Time, err error)
}

type tokenService struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	passwords     PasswordService
}

func NewTokenService(cfg *config.AuthConfig, passwords PasswordService) TokenService {
	return &tokenService{
		accessSecret:  []byte(cfg.AccessTokenSecret),
		refreshSecret: []byte(cfg.RefreshTokenSecret),
		accessTTL:     time.Duration(cfg.AccessTokenExpiry) * time.Second,
		refreshTTL:    time.Duration(cfg.RefreshTokenExpiry) * time.Second,
		passwords:     passwords,
	}
}

func (s *tokenService) MintAccessToken(userID, email, username string) (string, error) {
	claims := &AccessClaims{
		UserID:   userID,
		Email:    email,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.accessTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.accessSecret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return tok, nil
}

func (s *tokenService) MintRefreshToken(userID string) (string, error) {
	// jti makes every mint distinct even within the same second; rotation
	// relies on the new token never equalling the one it replaces
	claims := &RefreshClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.refreshTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.refreshSecret)
	if err != nil {
		return "", fmt.Errorf("sign refresh token: %w", err)
	}
	return tok, nil
}

func (s *tokenService) VerifyAccessToken(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := parseSigned(token, claims, s.accessSecret); err != nil {
		return nil, err
	}
	return claims, nil
}

func (s *tokenService) VerifyRefreshToken(token string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := parseSigned(token, claims, s.refreshSecret); err != nil {
		return nil, err
	}
	return claims, nil
}

func parseSigned(token string, claims jwt.Claims, secret []byte) error {
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		// HMAC only, keeps an RS256 token from being verified with the
		// shared secret as a public key
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrTokenExpired
		}
		return ErrTokenInvalid
	}
	if !parsed.Valid {
		return ErrTokenInvalid
	}
	return nil
}

func (s *tokenService) MintSingleUseToken() (string, string, time.Time, error) {
	plain, err := utils.NewRandomToken(20)
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("generate single-use token: %w", err)
	}
	return plain, s.passwords.Digest(plain), time.Now().Add(singleUseTokenTTL), nil
}
