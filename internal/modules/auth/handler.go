package auth

import (
	"errors"
	"net/http"

	"timeline/internal/middleware"
	"timeline/internal/pkg/response"
	"timeline/internal/pkg/validator"

	"github.com/gin-gonic/gin"
)

// RateLimitFunc returns the limiter for a named operation.
type RateLimitFunc func(operation string) gin.HandlerFunc

// Handler manages all HTTP interactions for authentication
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(api *gin.RouterGroup, limit RateLimitFunc) {
	authGroup := api.Group("/auth")
	{
		authGroup.POST("/login", limit("login"), h.Login)
		authGroup.POST("/registro", limit("register"), h.Register)
		authGroup.POST("/google", limit("google"), h.Google)
		authGroup.GET("/verificar", limit("verify"), h.Verify)
		authGroup.POST("/refresh", limit("refresh"), h.Refresh)
		authGroup.POST("/logout", h.Logout)
	}
}

func bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return false
	}
	if errs := validator.Validate(req); errs != nil {
		response.ErrorWithDetails(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body", errs)
		return false
	}
	return true
}

func loginResponse(res *LoginResult) TokenResponse {
	user := toUserPublic(res.User)
	return TokenResponse{
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(res.ExpiresIn.Seconds()),
		User:         &user,
	}
}

// Login checks email and password and returns a token pair.
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if !bindJSON(c, &req) {
		return
	}

	res, err := h.service.Login(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			response.Error(c, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Email or password is incorrect")
			return
		}
		_ = c.Error(err)
		response.Error(c, http.StatusInternalServerError, "LOGIN_FAILED", "Failed to log in")
		return
	}

	response.Success(c, http.StatusOK, loginResponse(res))
}

func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if !bindJSON(c, &req) {
		return
	}

	res, err := h.service.Register(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, ErrEmailAlreadyExists) {
			response.Error(c, http.StatusConflict, "EMAIL_EXISTS", "This email is already registered")
			return
		}
		_ = c.Error(err)
		response.Error(c, http.StatusInternalServerError, "REGISTRATION_FAILED", "Failed to register user")
		return
	}

	response.Success(c, http.StatusCreated, loginResponse(res))
}

func (h *Handler) Google(c *gin.Context) {
	var req GoogleLoginRequest
	if !bindJSON(c, &req) {
		return
	}

	res, err := h.service.GoogleLogin(c.Request.Context(), req.IDToken)
	if err != nil {
		switch {
		case errors.Is(err, ErrGoogleDisabled):
			response.Error(c, http.StatusServiceUnavailable, "GOOGLE_DISABLED", "Google sign-in is not available")
		case errors.Is(err, ErrInvalidGoogleToken):
			response.Error(c, http.StatusUnauthorized, "INVALID_GOOGLE_TOKEN", "Google token is invalid")
		default:
			_ = c.Error(err)
			response.Error(c, http.StatusInternalServerError, "LOGIN_FAILED", "Failed to log in with Google")
		}
		return
	}

	response.Success(c, http.StatusOK, loginResponse(res))
}

// Verify reads the token itself because /api/auth is not behind the gate.
func (h *Handler) Verify(c *gin.Context) {
	raw := middleware.ExtractToken(c.Request)

	res, err := h.service.Verify(c.Request.Context(), raw)
	if err != nil {
		response.Error(c, http.StatusUnauthorized, "INVALID_TOKEN", "Token is invalid or expired")
		return
	}

	response.Success(c, http.StatusOK, VerifyResponse{
		Valid:       true,
		User:        toUserPublic(res.User),
		RemainingMs: res.Remaining.Milliseconds(),
	})
}

func (h *Handler) Refresh(c *gin.Context) {
	var req RefreshRequest
	if !bindJSON(c, &req) {
		return
	}

	res, err := h.service.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, ErrInvalidRefreshToken) {
			response.Error(c, http.StatusUnauthorized, "INVALID_REFRESH_TOKEN", "Refresh token is invalid or expired")
			return
		}
		_ = c.Error(err)
		response.Error(c, http.StatusInternalServerError, "REFRESH_FAILED", "Failed to refresh token")
		return
	}

	response.Success(c, http.StatusOK, TokenResponse{
		AccessToken: res.AccessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int64(res.ExpiresIn.Seconds()),
	})
}

// Logout accepts an optional body; the access token comes from the header.
func (h *Handler) Logout(c *gin.Context) {
	var req LogoutRequest
	_ = c.ShouldBindJSON(&req)

	if err := h.service.Logout(c.Request.Context(), middleware.ExtractToken(c.Request), req.RefreshToken); err != nil {
		_ = c.Error(err)
		response.Error(c, http.StatusInternalServerError, "LOGOUT_FAILED", "Failed to log out")
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "Logged out"})
}
