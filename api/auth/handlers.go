package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/killallgit/annotation-api/api/types"
	"github.com/killallgit/annotation-api/internal/models"
	authService "github.com/killallgit/annotation-api/internal/services/auth"
	"github.com/killallgit/annotation-api/internal/services/users"
	apperrors "github.com/killallgit/annotation-api/pkg/errors"
)

// Handler manages auth endpoints
type Handler struct {
	authService *authService.Service
	users       users.Service
}

// NewHandler creates a new auth handler
func NewHandler(auth *authService.Service, userService users.Service) *Handler {
	return &Handler{
		authService: auth,
		users:       userService,
	}
}

// RegisterRequest is the body of POST /auth/register
type RegisterRequest struct {
	Username string `json:"username" binding:"required" example:"alice"`
	Email    string `json:"email" binding:"required" example:"alice@example.com"`
	Password string `json:"password" binding:"required" example:"correct horse battery"`
}

// LoginRequest is the body of POST /auth/login
type LoginRequest struct {
	Username string `json:"username" binding:"required" example:"alice"`
	Password string `json:"password" binding:"required"`
}

// TokenResponse carries an issued bearer token
type TokenResponse struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	ExpiresAt   time.Time    `json:"expires_at"`
	User        *models.User `json:"user"`
}

// Register creates an annotator account
// @Summary Register
// @Description Create an annotator account
// @Tags auth
// @Accept json
// @Produce json
// @Param body body RegisterRequest true "Account"
// @Success 201 {object} models.User
// @Failure 400 {object} types.ErrorResponse
// @Failure 409 {object} types.ErrorResponse
// @Router /api/v1/auth/register [post]
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if !types.BindJSONOrError(c, &req) {
		return
	}

	user, err := h.users.Register(c.Request.Context(), users.CreateInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		types.SendError(c, err)
		return
	}

	types.SendCreated(c, user)
}

// Login exchanges credentials for a bearer token
// @Summary Login
// @Description Exchange username and password for a bearer token
// @Tags auth
// @Accept json
// @Produce json
// @Param body body LoginRequest true "Credentials"
// @Success 200 {object} TokenResponse
// @Failure 401 {object} types.ErrorResponse
// @Router /api/v1/auth/login [post]
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if !types.BindJSONOrError(c, &req) {
		return
	}

	user, err := h.users.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		types.SendError(c, err)
		return
	}

	token, expiresAt, err := h.authService.IssueToken(user)
	if err != nil {
		types.SendError(c, err)
		return
	}

	c.JSON(http.StatusOK, TokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresAt:   expiresAt,
		User:        user,
	})
}

// Me returns the current user
// @Summary Get current user
// @Tags auth
// @Security BearerAuth
// @Produce json
// @Success 200 {object} models.User
// @Failure 401 {object} types.ErrorResponse
// @Router /api/v1/auth/me [get]
func (h *Handler) Me(c *gin.Context) {
	identity, ok := types.CurrentIdentity(c)
	if !ok {
		types.SendError(c, apperrors.Unauthenticated("missing identity"))
		return
	}

	user, err := h.users.GetByID(c.Request.Context(), identity.UserID)
	if err != nil {
		types.SendError(c, err)
		return
	}
	types.SendSuccess(c, user)
}

// AuthMiddleware requires a valid bearer token and attaches the caller's
// current identity to the request
func (h *Handler) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			types.SendError(c, apperrors.Unauthenticated("authorization header required"))
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			types.SendError(c, apperrors.Unauthenticated("invalid authorization header format"))
			return
		}

		identity, err := h.authService.Authenticate(c.Request.Context(), parts[1])
		if err != nil {
			types.SendError(c, err)
			return
		}

		c.Set(types.IdentityKey, identity)
		c.Next()
	}
}
