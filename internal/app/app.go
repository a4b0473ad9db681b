package app

import (
	"database/sql"
	"fmt"
	"log"
	"os"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"

	"authhub/internal/config"
	"authhub/internal/handlers"
	"authhub/internal/middleware"
	"authhub/internal/migrations"
	"authhub/internal/repositories"
	"authhub/internal/routes"
	"authhub/internal/services"
)

func Run() {
	cfg, err := config.LoadConfig(configPath())
	if err != nil {
		log.Fatal("failed to load config: ", err)
	}

	// === DB ===
	db, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		log.Fatal("failed to open database: ", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("failed to close database: %v", err)
		}
	}()

	if err := runMigrations(db); err != nil {
		log.Fatal("failed to run migrations: ", err)
	}

	// === Repos ===
	userRepo := repositories.NewUserRepository(db)
	tokenRepo := repositories.NewTokenRepository(db)

	// === Services ===
	passwordService := services.NewPasswordService(cfg.Auth.BcryptCost)
	tokenService := services.NewTokenService(&cfg.Auth, passwordService)
	emailService := services.NewEmailService(&cfg.Email)
	authService := services.NewAuthService(
		userRepo,
		tokenRepo,
		passwordService,
		tokenService,
		emailService,
		cfg.Auth.ForgotPasswordRedirectURL,
	)

	// === Handlers ===
	authHandler := handlers.NewAuthHandler(authService, &cfg.Auth)
	healthHandler := handlers.NewHealthHandler()

	// === Gin ===
	router := gin.Default()
	router.Use(corsMiddleware(cfg.CORS.AllowedOrigins))

	routes.SetupRoutes(
		router,
		authHandler,
		healthHandler,
		middleware.AuthMiddleware(tokenService, userRepo),
	)

	// === Run ===
	listenAddr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Printf("server listening on %s", listenAddr)
	if err := router.Run(listenAddr); err != nil {
		log.Fatal("server failed: ", err)
	}
}

func configPath() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	// env-only configuration is fine when no file is present
	const fallback = "config/config.yaml"
	if _, err := os.Stat(fallback); err != nil {
		return ""
	}
	return fallback
}

func runMigrations(db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.Up(db, ".")
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if allowed[origin] {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		}
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
