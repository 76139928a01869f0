package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/killallgit/annotation-api/api/types"
	"github.com/killallgit/annotation-api/internal/database"
	"github.com/killallgit/annotation-api/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name           string
		setupDeps      func(t *testing.T) *types.Dependencies
		expectedStatus int
		expectedState  string
		expectedDB     string
	}{
		{
			name: "healthy with database",
			setupDeps: func(t *testing.T) *types.Dependencies {
				return &types.Dependencies{DB: &database.DB{DB: testutil.NewDB(t)}}
			},
			expectedStatus: http.StatusOK,
			expectedState:  "ok",
			expectedDB:     "healthy",
		},
		{
			name: "closed database",
			setupDeps: func(t *testing.T) *types.Dependencies {
				db := &database.DB{DB: testutil.NewDB(t)}
				require.NoError(t, db.Close())
				return &types.Dependencies{DB: db}
			},
			expectedStatus: http.StatusServiceUnavailable,
			expectedState:  "degraded",
			expectedDB:     "unhealthy",
		},
		{
			name:           "no database",
			setupDeps:      func(t *testing.T) *types.Dependencies { return &types.Dependencies{} },
			expectedStatus: http.StatusOK,
			expectedState:  "ok",
			expectedDB:     "not configured",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			RegisterRoutes(router, tt.setupDeps(t))

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)

			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.expectedState, body["status"])
			assert.NotEmpty(t, body["timestamp"])

			db, ok := body["database"].(map[string]interface{})
			require.True(t, ok)
			assert.Equal(t, tt.expectedDB, db["status"])
		})
	}
}
