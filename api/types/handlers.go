package types

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/killallgit/annotation-api/internal/services/auth"
	"github.com/killallgit/annotation-api/internal/services/authz"
	apperrors "github.com/killallgit/annotation-api/pkg/errors"
)

// Context keys set by middleware
const (
	RequestIDKey = "request_id"
	IdentityKey  = "identity"
)

// Handler utility functions to reduce duplication across handlers

// ParseUintParam extracts and parses a URL parameter as uint
// Returns the parsed value and sends error response if parsing fails
func ParseUintParam(c *gin.Context, paramName string) (uint, bool) {
	value, err := strconv.ParseUint(c.Param(paramName), 10, 32)
	if err != nil || value == 0 {
		SendError(c, apperrors.ValidationError(paramName, "must be a positive integer"))
		return 0, false
	}
	return uint(value), true
}

// QueryUint parses an optional positive integer query parameter
func QueryUint(c *gin.Context, name string) (*uint, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	value, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || value == 0 {
		SendError(c, apperrors.ValidationError(name, "must be a positive integer"))
		return nil, false
	}
	id := uint(value)
	return &id, true
}

// Page reads skip and limit. Range checks are left to the services.
func Page(c *gin.Context) (skip, limit int, ok bool) {
	skip, err := strconv.Atoi(c.DefaultQuery("skip", "0"))
	if err != nil {
		SendError(c, apperrors.ValidationError("skip", "must be an integer"))
		return 0, 0, false
	}
	limit, err = strconv.Atoi(c.DefaultQuery("limit", "0"))
	if err != nil {
		SendError(c, apperrors.ValidationError("limit", "must be an integer"))
		return 0, 0, false
	}
	return skip, limit, true
}

// BindJSONOrError attempts to bind JSON request body to target struct
// Returns false and sends error response if binding fails
func BindJSONOrError(c *gin.Context, target interface{}) bool {
	if err := c.ShouldBindJSON(target); err != nil {
		SendError(c, apperrors.Wrap(err, apperrors.ErrCodeValidation, "Invalid request body").
			WithDetail("reason", err.Error()))
		return false
	}
	return true
}

// CurrentIdentity returns the caller set by the auth middleware
func CurrentIdentity(c *gin.Context) (*auth.Identity, bool) {
	v, ok := c.Get(IdentityKey)
	if !ok {
		return nil, false
	}
	identity, ok := v.(*auth.Identity)
	return identity, ok
}

// Subject returns the authz subject of the caller. Handlers behind the auth
// middleware always have one.
func Subject(c *gin.Context) authz.Subject {
	identity, ok := CurrentIdentity(c)
	if !ok {
		return authz.Subject{}
	}
	return authz.Subject{UserID: identity.UserID, Role: identity.Role}
}

// SendSuccess sends a standardized success response with data
func SendSuccess(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

// SendCreated sends a standardized created response with data
func SendCreated(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, data)
}

// SendList sends one page of results
func SendList(c *gin.Context, items any, total int64, skip, limit int) {
	c.JSON(http.StatusOK, ListResponse{
		BaseResponse: BaseResponse{Status: StatusOK},
		Items:        items,
		Total:        total,
		Skip:         skip,
		Limit:        limit,
	})
}
