package routes

import (
	"github.com/gin-gonic/gin"

	"authhub/internal/handlers"
)

func SetupRoutes(
	r *gin.Engine,
	authHandler *handlers.AuthHandler,
	healthHandler *handlers.HealthHandler,
	authGate gin.HandlerFunc,
) *gin.Engine {

	api := r.Group("/api/v1")

	api.GET("/healthcheck", healthHandler.Check)

	auth := api.Group("/auth")
	{
		// ---- public
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
		auth.GET("/verify-email/:token", authHandler.VerifyEmail)
		auth.POST("/refresh-token", authHandler.RefreshToken)
		auth.POST("/forgot-password", authHandler.ForgotPassword)
		auth.POST("/reset-password/:token", authHandler.ResetPassword)

		// ---- protected
		secured := auth.Group("", authGate)
		{
			secured.POST("/logout", authHandler.Logout)
			secured.POST("/current-user", authHandler.CurrentUser)
			secured.POST("/change-password", authHandler.ChangePassword)
			secured.POST("/resend-email-verification", authHandler.ResendEmailVerification)
		}
	}

	return r
}
