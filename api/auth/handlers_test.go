package auth_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/killallgit/annotation-api/api/apitest"
	"github.com/killallgit/annotation-api/api/auth"
	"github.com/killallgit/annotation-api/api/types"
	"github.com/killallgit/annotation-api/internal/models"
	"github.com/killallgit/annotation-api/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthMiddleware(t *testing.T) {
	env := apitest.New(t)
	user := testutil.CreateUser(t, env.DB, "alice", models.RoleReviewer)
	valid := env.Token(t, user)

	handler := auth.NewHandler(env.App.Auth, env.App.Users)
	router := gin.New()
	router.GET("/whoami", handler.AuthMiddleware(), func(c *gin.Context) {
		identity, ok := types.CurrentIdentity(c)
		require.True(t, ok)
		c.JSON(http.StatusOK, identity)
	})

	tests := []struct {
		name           string
		header         string
		expectedStatus int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + valid, http.StatusUnauthorized},
		{"empty token", "Bearer ", http.StatusUnauthorized},
		{"garbage token", "Bearer abc.def.ghi", http.StatusUnauthorized},
		{"valid token", "Bearer " + valid, http.StatusOK},
		{"scheme is case insensitive", "bearer " + valid, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			router.ServeHTTP(w, req)
			assert.Equal(t, tt.expectedStatus, w.Code, w.Body.String())
		})
	}
}

func TestAuthMiddleware_RoleComesFromUserRow(t *testing.T) {
	env := apitest.New(t)
	user := testutil.CreateUser(t, env.DB, "alice", models.RoleAnnotator)
	token := env.Token(t, user)

	require.NoError(t, env.DB.Model(user).Update("role", models.RoleReviewer).Error)

	rec := env.Do(t, http.MethodGet, "/api/v1/auth/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var me models.User
	apitest.Decode(t, rec, &me)
	assert.Equal(t, models.RoleReviewer, me.Role)
}

func TestRegister_Validation(t *testing.T) {
	env := apitest.New(t)
	testutil.CreateUser(t, env.DB, "taken", models.RoleAnnotator)

	tests := []struct {
		name           string
		body           map[string]string
		expectedStatus int
	}{
		{"missing fields", map[string]string{"username": "x"}, http.StatusBadRequest},
		{"short password", map[string]string{"username": "new", "email": "new@example.com", "password": "short"}, http.StatusBadRequest},
		{"duplicate username", map[string]string{"username": "taken", "email": "other@example.com", "password": "long enough password"}, http.StatusConflict},
		{"ok", map[string]string{"username": "new", "email": "new@example.com", "password": "long enough password"}, http.StatusCreated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.Do(t, http.MethodPost, "/api/v1/auth/register", "", tt.body)
			assert.Equal(t, tt.expectedStatus, rec.Code, rec.Body.String())
		})
	}
}

func TestRegister_NeverGrantsElevatedRole(t *testing.T) {
	env := apitest.New(t)

	rec := env.Do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"username": "mallory", "email": "m@example.com", "password": "long enough password", "role": "admin",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var user models.User
	apitest.Decode(t, rec, &user)
	assert.Equal(t, models.RoleAnnotator, user.Role)
}
