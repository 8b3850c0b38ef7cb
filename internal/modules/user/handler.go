package user

import (
	"errors"
	"net/http"
	"strconv"

	"timeline/internal/domain"
	"timeline/internal/middleware"
	"timeline/internal/pkg/response"
	"timeline/internal/repository"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type profileResponse struct {
	ID          int64    `json:"id"`
	Email       string   `json:"email"`
	Name        string   `json:"nombre"`
	Role        string   `json:"rol"`
	Plan        string   `json:"plan"`
	Authorities []string `json:"authorities"`
	CreatedAt   string   `json:"createdAt"`
}

func toProfile(u *domain.User) profileResponse {
	return profileResponse{
		ID:          u.ID,
		Email:       u.Email,
		Name:        u.Name,
		Role:        string(u.Role),
		Plan:        string(u.Plan),
		Authorities: u.Authorities(),
		CreatedAt:   u.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
}

// RegisterRoutes mounts the profile endpoints; upgrade is wrapped by the
// supplied rate limiter.
func (h *Handler) RegisterRoutes(api *gin.RouterGroup, upgradeLimit gin.HandlerFunc) {
	users := api.Group("/usuarios", middleware.RequireAuth())
	{
		users.GET("/perfil", h.GetProfile)
		users.POST("/upgrade-premium", upgradeLimit, h.UpgradePremium)
		users.GET("/premium", middleware.RequirePremiumOrAdmin(), h.GetProfile)
	}

	admin := api.Group("/admin", middleware.AdminOnly())
	{
		admin.GET("/usuarios", h.ListUsers)
	}
}

func (h *Handler) GetProfile(c *gin.Context) {
	current, _ := middleware.CurrentUser(c)

	u, err := h.service.Profile(c.Request.Context(), current.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, toProfile(u))
}

func (h *Handler) UpgradePremium(c *gin.Context) {
	current, _ := middleware.CurrentUser(c)

	u, err := h.service.UpgradePremium(c.Request.Context(), current.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, toProfile(u))
}

func (h *Handler) ListUsers(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))

	users, total, err := h.service.List(c.Request.Context(), page, size)
	if err != nil {
		h.fail(c, err)
		return
	}

	items := make([]profileResponse, 0, len(users))
	for _, u := range users {
		items = append(items, toProfile(u))
	}
	response.Success(c, http.StatusOK, gin.H{
		"items": items,
		"total": total,
	})
}

func (h *Handler) fail(c *gin.Context, err error) {
	if errors.Is(err, repository.ErrUserNotFound) {
		response.Error(c, http.StatusNotFound, "USER_NOT_FOUND", "User not found")
		return
	}
	_ = c.Error(err)
	response.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Request failed")
}
