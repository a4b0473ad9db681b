package services

import (
	"database/sql"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"authhub/internal/apierr"
	"authhub/internal/models"
)

// ===== in-memory fakes =====

type fakeUserRepo struct {
	byID map[string]*models.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{byID: map[string]*models.User{}}
}

func (r *fakeUserRepo) Create(user *models.User) error {
	for _, u := range r.byID {
		if u.Email == user.Email || u.Username == user.Username {
			return &pq.Error{Code: "23505"}
		}
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.Avatar == "" {
		user.Avatar = "https://placehold.co/200x200"
	}
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	r.byID[user.ID] = user
	return nil
}

func (r *fakeUserRepo) GetByID(id string) (*models.User, error) {
	if u, ok := r.byID[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (r *fakeUserRepo) GetByEmail(email string) (*models.User, error) {
	return r.GetByColumn("email", email)
}

func (r *fakeUserRepo) GetByColumn(column, value string) (*models.User, error) {
	for _, u := range r.byID {
		switch column {
		case "id":
			if u.ID == value {
				return u, nil
			}
		case "email":
			if u.Email == value {
				return u, nil
			}
		case "username":
			if u.Username == value {
				return u, nil
			}
		case "full_name":
			if u.FullName != nil && *u.FullName == value {
				return u, nil
			}
		}
	}
	return nil, sql.ErrNoRows
}

func (r *fakeUserRepo) UpdateRefreshToken(userID, token string) error {
	u, ok := r.byID[userID]
	if !ok {
		return sql.ErrNoRows
	}
	u.RefreshToken = &token
	return nil
}

func (r *fakeUserRepo) ClearRefreshToken(userID string) error {
	u, ok := r.byID[userID]
	if !ok {
		return sql.ErrNoRows
	}
	u.RefreshToken = nil
	return nil
}

func (r *fakeUserRepo) MarkEmailVerified(userID string) error {
	u, ok := r.byID[userID]
	if !ok {
		return sql.ErrNoRows
	}
	u.IsEmailVerified = true
	return nil
}

func (r *fakeUserRepo) UpdatePassword(userID, passwordHash string) error {
	u, ok := r.byID[userID]
	if !ok {
		return sql.ErrNoRows
	}
	u.PasswordHash = passwordHash
	return nil
}

type tokenKey struct {
	userID  string
	purpose models.TokenPurpose
}

type fakeTokenRepo struct {
	users  *fakeUserRepo
	tokens map[tokenKey]*models.SingleUseToken
}

func newFakeTokenRepo(users *fakeUserRepo) *fakeTokenRepo {
	return &fakeTokenRepo{users: users, tokens: map[tokenKey]*models.SingleUseToken{}}
}

func (r *fakeTokenRepo) Upsert(userID string, purpose models.TokenPurpose, digest string, expiresAt time.Time) error {
	r.tokens[tokenKey{userID, purpose}] = &models.SingleUseToken{
		UserID:    userID,
		Purpose:   purpose,
		Digest:    digest,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now(),
	}
	return nil
}

func (r *fakeTokenRepo) FindUserByToken(purpose models.TokenPurpose, digest string, now time.Time) (*models.User, error) {
	for _, tok := range r.tokens {
		if tok.Purpose == purpose && tok.Digest == digest && tok.ExpiresAt.After(now) {
			return r.users.GetByID(tok.UserID)
		}
	}
	return nil, sql.ErrNoRows
}

func (r *fakeTokenRepo) Delete(userID string, purpose models.TokenPurpose) error {
	delete(r.tokens, tokenKey{userID, purpose})
	return nil
}

type sentMail struct {
	kind     string
	to       string
	username string
	url      string
}

type fakeEmailService struct {
	sent []sentMail
}

func (s *fakeEmailService) SendVerificationEmail(to, username, verifyURL string) error {
	s.sent = append(s.sent, sentMail{kind: "verify", to: to, username: username, url: verifyURL})
	return nil
}

func (s *fakeEmailService) SendPasswordResetEmail(to, username, resetURL string) error {
	s.sent = append(s.sent, sentMail{kind: "reset", to: to, username: username, url: resetURL})
	return nil
}

// ===== harness =====

type authFixture struct {
	auth      AuthService
	users     *fakeUserRepo
	tokens    *fakeTokenRepo
	emails    *fakeEmailService
	passwords PasswordService
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	users := newFakeUserRepo()
	tokens := newFakeTokenRepo(users)
	emails := &fakeEmailService{}
	passwords := NewPasswordService(bcrypt.MinCost)
	minter := NewTokenService(testAuthConfig(), passwords)
	auth := NewAuthService(users, tokens, passwords, minter, emails, "https://app.example.com/reset-password")
	return &authFixture{auth: auth, users: users, tokens: tokens, emails: emails, passwords: passwords}
}

const verifyBase = "https://api.example.com/api/v1/auth/verify-email"

func (f *authFixture) register(t *testing.T, email, username string) *models.User {
	t.Helper()
	user, err := f.auth.Register(models.RegisterRequest{
		Email:    email,
		Username: username,
		Password: "Secret123!",
		Role:     "user",
	}, verifyBase)
	require.NoError(t, err)
	return user
}

func (f *authFixture) lastMail(t *testing.T) sentMail {
	t.Helper()
	require.NotEmpty(t, f.emails.sent)
	return f.emails.sent[len(f.emails.sent)-1]
}

func tokenFromURL(url string) string {
	parts := strings.Split(url, "/")
	return parts[len(parts)-1]
}

func requireStatus(t *testing.T, err error, status int) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, status, apierr.Status(err))
}

// ===== register =====

func TestRegister_CreatesUnverifiedAccountAndSendsMail(t *testing.T) {
	f := newAuthFixture(t)

	user, err := f.auth.Register(models.RegisterRequest{
		Email:    "a@x.com",
		Username: "alice",
		Password: "Secret123!",
		Role:     "user",
	}, verifyBase)
	require.NoError(t, err)

	assert.NotEmpty(t, user.ID)
	assert.False(t, user.IsEmailVerified)
	assert.Nil(t, user.RefreshToken)

	mail := f.lastMail(t)
	assert.Equal(t, "verify", mail.kind)
	assert.Equal(t, "a@x.com", mail.to)
	require.True(t, strings.HasPrefix(mail.url, verifyBase+"/"))
	assert.Len(t, tokenFromURL(mail.url), 40)

	// plaintext is never stored: only the digest is
	stored := f.tokens.tokens[tokenKey{user.ID, models.PurposeEmailVerification}]
	require.NotNil(t, stored)
	assert.NotEqual(t, tokenFromURL(mail.url), stored.Digest)
	assert.Equal(t, f.passwords.Digest(tokenFromURL(mail.url)), stored.Digest)
}

func TestRegister_DuplicateEmailConflicts(t *testing.T) {
	f := newAuthFixture(t)
	f.register(t, "a@x.com", "alice")

	_, err := f.auth.Register(models.RegisterRequest{
		Email:    "a@x.com",
		Username: "completely-different",
		Password: "Another123!",
	}, verifyBase)
	requireStatus(t, err, http.StatusConflict)
}

func TestRegister_NeverStoresPlaintextPassword(t *testing.T) {
	f := newAuthFixture(t)
	user := f.register(t, "a@x.com", "alice")

	stored := f.users.byID[user.ID]
	assert.NotEqual(t, "Secret123!", stored.PasswordHash)
	require.NoError(t, f.passwords.ComparePassword("Secret123!", stored.PasswordHash))
}

// ===== email verification =====

func TestVerifyEmail_SucceedsExactlyOnce(t *testing.T) {
	f := newAuthFixture(t)
	user := f.register(t, "a@x.com", "alice")
	token := tokenFromURL(f.lastMail(t).url)

	require.NoError(t, f.auth.VerifyEmail(token))
	assert.True(t, f.users.byID[user.ID].IsEmailVerified)
	assert.Empty(t, f.tokens.tokens)

	// single use: the same token must never verify twice
	err := f.auth.VerifyEmail(token)
	requireStatus(t, err, http.StatusBadRequest)
	assert.True(t, f.users.byID[user.ID].IsEmailVerified)
}

func TestVerifyEmail_ExpiredTokenFails(t *testing.T) {
	f := newAuthFixture(t)
	user := f.register(t, "a@x.com", "alice")
	token := tokenFromURL(f.lastMail(t).url)

	f.tokens.tokens[tokenKey{user.ID, models.PurposeEmailVerification}].ExpiresAt = time.Now().Add(-1 * time.Second)

	err := f.auth.VerifyEmail(token)
	requireStatus(t, err, http.StatusBadRequest)
	assert.False(t, f.users.byID[user.ID].IsEmailVerified)
}

func TestVerifyEmail_MissingToken(t *testing.T) {
	f := newAuthFixture(t)
	requireStatus(t, f.auth.VerifyEmail(""), http.StatusBadRequest)
	requireStatus(t, f.auth.VerifyEmail("   "), http.StatusBadRequest)
}

func TestResendEmailVerification(t *testing.T) {
	f := newAuthFixture(t)
	user := f.register(t, "a@x.com", "alice")
	firstToken := tokenFromURL(f.lastMail(t).url)

	require.NoError(t, f.auth.ResendEmailVerification(user.ID, verifyBase))
	secondToken := tokenFromURL(f.lastMail(t).url)
	require.NotEqual(t, firstToken, secondToken)

	// only one pending token per purpose; the first one died with the resend
	requireStatus(t, f.auth.VerifyEmail(firstToken), http.StatusBadRequest)
	require.NoError(t, f.auth.VerifyEmail(secondToken))

	// already verified now
	err := f.auth.ResendEmailVerification(user.ID, verifyBase)
	requireStatus(t, err, http.StatusConflict)
}

func TestResendEmailVerification_UnknownUser(t *testing.T) {
	f := newAuthFixture(t)
	err := f.auth.ResendEmailVerification(uuid.NewString(), verifyBase)
	requireStatus(t, err, http.StatusNotFound)
}

// ===== login =====

func TestLogin_BeforeVerificationSucceeds(t *testing.T) {
	f := newAuthFixture(t)
	user := f.register(t, "a@x.com", "alice")

	// verification is not a login precondition
	got, pair, err := f.auth.Login("a@x.com", "Secret123!")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)

	stored := f.users.byID[user.ID]
	require.NotNil(t, stored.RefreshToken)
	assert.Equal(t, pair.RefreshToken, *stored.RefreshToken)
}

func TestLogin_WrongPasswordMutatesNothing(t *testing.T) {
	f := newAuthFixture(t)
	user := f.register(t, "a@x.com", "alice")

	_, pair, err := f.auth.Login("a@x.com", "WrongPassword1")
	requireStatus(t, err, http.StatusUnauthorized)
	assert.Nil(t, pair)
	assert.Nil(t, f.users.byID[user.ID].RefreshToken)
}

func TestLogin_UnknownEmail(t *testing.T) {
	f := newAuthFixture(t)
	_, _, err := f.auth.Login("nobody@x.com", "whatever1")
	requireStatus(t, err, http.StatusNotFound)
}

func TestLogin_EmptyPasswordUnauthorized(t *testing.T) {
	f := newAuthFixture(t)
	user := f.register(t, "a@x.com", "alice")

	// a blank password is a failed credential check, same as a wrong one
	_, _, err := f.auth.Login("a@x.com", "")
	requireStatus(t, err, http.StatusUnauthorized)
	_, _, err = f.auth.Login("a@x.com", "   ")
	requireStatus(t, err, http.StatusUnauthorized)
	assert.Nil(t, f.users.byID[user.ID].RefreshToken)
}

func TestLogin_MissingEmail(t *testing.T) {
	f := newAuthFixture(t)
	_, _, err := f.auth.Login("", "whatever1")
	requireStatus(t, err, http.StatusBadRequest)
}

func TestLogin_OverwritesPriorSession(t *testing.T) {
	f := newAuthFixture(t)
	f.register(t, "a@x.com", "alice")

	_, first, err := f.auth.Login("a@x.com", "Secret123!")
	require.NoError(t, err)
	_, second, err := f.auth.Login("a@x.com", "Secret123!")
	require.NoError(t, err)

	// the earlier session's refresh token was implicitly revoked
	_, _, err = f.auth.RefreshTokens(first.RefreshToken)
	requireStatus(t, err, http.StatusUnauthorized)

	_, rotated, err := f.auth.RefreshTokens(second.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, second.RefreshToken, rotated.RefreshToken)
}

// ===== refresh rotation =====

func TestRefreshTokens_RotationInvalidatesPriorToken(t *testing.T) {
	f := newAuthFixture(t)
	f.register(t, "a@x.com", "alice")
	_, pairA, err := f.auth.Login("a@x.com", "Secret123!")
	require.NoError(t, err)

	_, pairB, err := f.auth.RefreshTokens(pairA.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, pairA.RefreshToken, pairB.RefreshToken)

	// replaying the rotated-out token is a hard 401
	_, _, err = f.auth.RefreshTokens(pairA.RefreshToken)
	requireStatus(t, err, http.StatusUnauthorized)

	// the new token still works
	_, _, err = f.auth.RefreshTokens(pairB.RefreshToken)
	require.NoError(t, err)
}

func TestRefreshTokens_MissingToken(t *testing.T) {
	f := newAuthFixture(t)
	_, _, err := f.auth.RefreshTokens("")
	requireStatus(t, err, http.StatusUnauthorized)
}

func TestRefreshTokens_GarbageToken(t *testing.T) {
	f := newAuthFixture(t)
	_, _, err := f.auth.RefreshTokens("not.a.jwt")
	requireStatus(t, err, http.StatusUnauthorized)
}

func TestRefreshTokens_ValidSignatureButLoggedOut(t *testing.T) {
	f := newAuthFixture(t)
	user := f.register(t, "a@x.com", "alice")
	_, pair, err := f.auth.Login("a@x.com", "Secret123!")
	require.NoError(t, err)

	require.NoError(t, f.auth.Logout(user.ID))

	// the JWT still verifies, but the stored mirror is gone
	_, _, err = f.auth.RefreshTokens(pair.RefreshToken)
	requireStatus(t, err, http.StatusUnauthorized)
}

// ===== logout =====

func TestLogout(t *testing.T) {
	f := newAuthFixture(t)
	user := f.register(t, "a@x.com", "alice")
	_, _, err := f.auth.Login("a@x.com", "Secret123!")
	require.NoError(t, err)

	require.NoError(t, f.auth.Logout(user.ID))
	assert.Nil(t, f.users.byID[user.ID].RefreshToken)

	requireStatus(t, f.auth.Logout(uuid.NewString()), http.StatusNotFound)
}

// ===== forgot / reset password =====

func TestForgotPasswordAndReset(t *testing.T) {
	f := newAuthFixture(t)
	user := f.register(t, "a@x.com", "alice")

	require.NoError(t, f.auth.ForgotPassword("a@x.com"))
	mail := f.lastMail(t)
	assert.Equal(t, "reset", mail.kind)
	require.True(t, strings.HasPrefix(mail.url, "https://app.example.com/reset-password/"))
	token := tokenFromURL(mail.url)
	assert.Len(t, token, 40)

	require.NoError(t, f.auth.ResetForgotPassword(token, "NewSecret456!"))

	stored := f.users.byID[user.ID]
	assert.NotEqual(t, "NewSecret456!", stored.PasswordHash)
	require.NoError(t, f.passwords.ComparePassword("NewSecret456!", stored.PasswordHash))

	_, _, err := f.auth.Login("a@x.com", "Secret123!")
	requireStatus(t, err, http.StatusUnauthorized)
	_, _, err = f.auth.Login("a@x.com", "NewSecret456!")
	require.NoError(t, err)

	// reset token is single use
	requireStatus(t, f.auth.ResetForgotPassword(token, "Again789!xx"), http.StatusBadRequest)
}

func TestForgotPassword_UnknownEmail(t *testing.T) {
	f := newAuthFixture(t)
	requireStatus(t, f.auth.ForgotPassword("nobody@x.com"), http.StatusNotFound)
}

func TestResetForgotPassword_ExpiredToken(t *testing.T) {
	f := newAuthFixture(t)
	user := f.register(t, "a@x.com", "alice")
	require.NoError(t, f.auth.ForgotPassword("a@x.com"))
	token := tokenFromURL(f.lastMail(t).url)

	f.tokens.tokens[tokenKey{user.ID, models.PurposePasswordReset}].ExpiresAt = time.Now().Add(-1 * time.Second)

	requireStatus(t, f.auth.ResetForgotPassword(token, "NewSecret456!"), http.StatusBadRequest)
}

func TestPendingVerificationAndResetCoexist(t *testing.T) {
	f := newAuthFixture(t)
	f.register(t, "a@x.com", "alice")
	verifyToken := tokenFromURL(f.lastMail(t).url)

	require.NoError(t, f.auth.ForgotPassword("a@x.com"))
	resetToken := tokenFromURL(f.lastMail(t).url)

	// requesting a reset must not invalidate the pending verification token
	require.NoError(t, f.auth.VerifyEmail(verifyToken))
	require.NoError(t, f.auth.ResetForgotPassword(resetToken, "NewSecret456!"))
}

func TestVerificationTokenCannotResetPassword(t *testing.T) {
	f := newAuthFixture(t)
	f.register(t, "a@x.com", "alice")
	verifyToken := tokenFromURL(f.lastMail(t).url)

	// purposes are separate namespaces
	requireStatus(t, f.auth.ResetForgotPassword(verifyToken, "NewSecret456!"), http.StatusBadRequest)
}

// ===== change password =====

func TestChangePassword(t *testing.T) {
	f := newAuthFixture(t)
	user := f.register(t, "a@x.com", "alice")

	requireStatus(t, f.auth.ChangePassword(user.ID, "WrongOld1!", "NewSecret456!"), http.StatusBadRequest)

	require.NoError(t, f.auth.ChangePassword(user.ID, "Secret123!", "NewSecret456!"))

	// always stored hashed, never plaintext
	stored := f.users.byID[user.ID]
	assert.NotEqual(t, "NewSecret456!", stored.PasswordHash)
	require.NoError(t, f.passwords.ComparePassword("NewSecret456!", stored.PasswordHash))
}

func TestChangePassword_UnknownUser(t *testing.T) {
	f := newAuthFixture(t)
	requireStatus(t, f.auth.ChangePassword(uuid.NewString(), "a", "NewSecret456!"), http.StatusNotFound)
}
