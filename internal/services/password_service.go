package services

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"authhub/internal/apierr"
)

var ErrPasswordMismatch = errors.New("password does not match")

type PasswordService interface {
	HashPassword(plain string) (string, error)
	ComparePassword(plain, hash string) error
	Digest(plain string) string
}

type passwordService struct {
	cost int
}

func NewPasswordService(cost int) PasswordService {
	if cost < bcrypt.MinCost {
		cost = bcrypt.DefaultCost
	}
	return &passwordService{cost: cost}
}

func (s *passwordService) HashPassword(plain string) (string, error) {
	if strings.TrimSpace(plain) == "" {
		return "", apierr.BadRequest("password is required")
	}
	h, err := bcrypt.GenerateFromPassword([]byte(plain), s.cost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

func (s *passwordService) ComparePassword(plain, hash string) error {
	if strings.TrimSpace(plain) == "" || strings.TrimSpace(hash) == "" {
		return apierr.BadRequest("password is required")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrPasswordMismatch
		}
		return err
	}
	return nil
}

// Digest is a fast deterministic hash used ONLY for single-use tokens, whose
// 160-bit random input already resists brute force. Never used for passwords.
func (s *passwordService) Digest(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return hex.EncodeToString(sum[:])
}
