package server

import (
	"net/http"

	"timeline/internal/config"
	"timeline/internal/middleware"
	"timeline/internal/modules/auth"
	"timeline/internal/modules/user"
	"timeline/internal/pkg/jwt"
	"timeline/internal/pkg/metrics"
	"timeline/internal/pkg/ratelimit"
	"timeline/internal/pkg/response"
	"timeline/internal/repository"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Deps is everything the router needs. Google may be nil.
type Deps struct {
	Config  *config.Config
	Users   *repository.UserRepository
	Tokens  *jwt.Service
	Limiter ratelimit.Limiter
	Google  auth.GoogleVerifier
	Logger  *zap.Logger
}

func NewRouter(d Deps) *gin.Engine {
	if d.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(middleware.RequestLogger(d.Logger))
	r.Use(middleware.CORS(d.Config.CORS.AllowedOrigins))
	r.Use(middleware.Authenticate(d.Tokens, d.Users, middleware.AuthOptions{
		PublicPrefixes: d.Config.Auth.PublicPrefixes,
		PublicPaths:    []string{"/error", "/metrics"},
		Logger:         d.Logger,
	}))

	limit := func(operation string) gin.HandlerFunc {
		return middleware.RateLimit(d.Limiter, d.Config.Policy(operation), d.Logger)
	}

	r.GET("/public/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})
	if d.Config.Metrics.Enabled {
		r.GET("/metrics", gin.WrapH(metrics.Handler()))
	}

	api := r.Group("/api")

	authService := auth.NewService(d.Users, d.Tokens, d.Google, d.Logger)
	auth.NewHandler(authService).RegisterRoutes(api, limit)

	userService := user.NewService(d.Users)
	user.NewHandler(userService).RegisterRoutes(api, limit("upgrade"))

	r.NoRoute(func(c *gin.Context) {
		response.Error(c, http.StatusNotFound, "NOT_FOUND", "Route not found")
	})

	return r
}
