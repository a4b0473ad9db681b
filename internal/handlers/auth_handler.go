package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"authhub/internal/apierr"
	"authhub/internal/config"
	"authhub/internal/middleware"
	"authhub/internal/models"
	"authhub/internal/services"
)

const refreshTokenCookie = "refreshToken"

type AuthHandler struct {
	auth services.AuthService
	cfg  *config.AuthConfig
}

func NewAuthHandler(auth services.AuthService, cfg *config.AuthConfig) *AuthHandler {
	return &AuthHandler{auth: auth, cfg: cfg}
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req models.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apierr.BadRequest("invalid request body"))
		return
	}
	if err := req.Validate(); err != nil {
		respondValidation(c, err)
		return
	}

	user, err := h.auth.Register(req, verifyURLBase(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, gin.H{"user": user}, "User registered successfully")
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apierr.BadRequest("invalid request body"))
		return
	}
	if err := req.Validate(); err != nil {
		respondValidation(c, err)
		return
	}

	user, pair, err := h.auth.Login(req.Email, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}

	h.setAuthCookies(c, pair)
	respond(c, http.StatusOK, gin.H{
		"user":         user,
		"accessToken":  pair.AccessToken,
		"refreshToken": pair.RefreshToken,
	}, "User logged in successfully")
}

func (h *AuthHandler) VerifyEmail(c *gin.Context) {
	if err := h.auth.VerifyEmail(c.Param("token")); err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"isEmailVerified": true}, "Email is verified")
}

func (h *AuthHandler) RefreshToken(c *gin.Context) {
	presented, _ := c.Cookie(refreshTokenCookie)
	if presented == "" {
		var req models.RefreshTokenRequest
		// body is optional; the cookie is the usual carrier
		_ = c.ShouldBindJSON(&req)
		presented = req.RefreshToken
	}

	_, pair, err := h.auth.RefreshTokens(presented)
	if err != nil {
		respondError(c, err)
		return
	}

	h.setAuthCookies(c, pair)
	respond(c, http.StatusOK, gin.H{
		"accessToken":  pair.AccessToken,
		"refreshToken": pair.RefreshToken,
	}, "Access token refreshed")
}

func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req models.ForgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apierr.BadRequest("invalid request body"))
		return
	}
	if err := req.Validate(); err != nil {
		respondValidation(c, err)
		return
	}

	if err := h.auth.ForgotPassword(req.Email); err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{}, "Password reset mail has been sent to your email")
}

func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req models.ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apierr.BadRequest("invalid request body"))
		return
	}
	if err := req.Validate(); err != nil {
		respondValidation(c, err)
		return
	}

	if err := h.auth.ResetForgotPassword(c.Param("token"), req.NewPassword); err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{}, "Password reset successfully")
}

// ===== protected (behind the auth middleware) =====

func (h *AuthHandler) Logout(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		respondError(c, apierr.Unauthorized("unauthorized request"))
		return
	}

	if err := h.auth.Logout(user.ID); err != nil {
		respondError(c, err)
		return
	}

	h.clearAuthCookies(c)
	respond(c, http.StatusOK, gin.H{}, "User logged out")
}

func (h *AuthHandler) CurrentUser(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		respondError(c, apierr.Unauthorized("unauthorized request"))
		return
	}
	respond(c, http.StatusOK, gin.H{"user": user.Public()}, "Current user fetched successfully")
}

func (h *AuthHandler) ChangePassword(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		respondError(c, apierr.Unauthorized("unauthorized request"))
		return
	}

	var req models.ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apierr.BadRequest("invalid request body"))
		return
	}
	if err := req.Validate(); err != nil {
		respondValidation(c, err)
		return
	}

	if err := h.auth.ChangePassword(user.ID, req.OldPassword, req.NewPassword); err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{}, "Password changed successfully")
}

func (h *AuthHandler) ResendEmailVerification(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		respondError(c, apierr.Unauthorized("unauthorized request"))
		return
	}

	if err := h.auth.ResendEmailVerification(user.ID, verifyURLBase(c)); err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{}, "Mail has been sent to your email ID")
}

// ===== cookie / url helpers =====

func (h *AuthHandler) setAuthCookies(c *gin.Context, pair *services.TokenPair) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.AccessTokenCookie, pair.AccessToken, h.cfg.AccessTokenExpiry, "/", "", true, true)
	c.SetCookie(refreshTokenCookie, pair.RefreshToken, h.cfg.RefreshTokenExpiry, "/", "", true, true)
}

func (h *AuthHandler) clearAuthCookies(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.AccessTokenCookie, "", -1, "/", "", true, true)
	c.SetCookie(refreshTokenCookie, "", -1, "/", "", true, true)
}

// verifyURLBase rebuilds the public origin of this request so the link in
// the verification email points back at this deployment.
func verifyURLBase(c *gin.Context) string {
	scheme := "http"
	if proto := c.GetHeader("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	} else if c.Request.TLS != nil {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/api/v1/auth/verify-email", scheme, c.Request.Host)
}
