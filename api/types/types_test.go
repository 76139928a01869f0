package types

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	apperrors "github.com/killallgit/annotation-api/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name         string
		err          error
		expectedCode int
		expectedBody ErrorResponse
	}{
		{
			name:         "not found",
			err:          apperrors.NotFound("media", 7),
			expectedCode: http.StatusNotFound,
			expectedBody: ErrorResponse{Status: StatusError, Code: "NOT_FOUND"},
		},
		{
			name:         "forbidden",
			err:          apperrors.PermissionDenied("review", "annotation"),
			expectedCode: http.StatusForbidden,
			expectedBody: ErrorResponse{Status: StatusError, Code: "FORBIDDEN"},
		},
		{
			name:         "validation",
			err:          apperrors.ValidationError("confidence", "must be between 0 and 1"),
			expectedCode: http.StatusBadRequest,
			expectedBody: ErrorResponse{Status: StatusError, Code: "VALIDATION"},
		},
		{
			name:         "upstream",
			err:          apperrors.UpstreamFailure("ffmpeg", errors.New("exit 1")),
			expectedCode: http.StatusBadGateway,
			expectedBody: ErrorResponse{Status: StatusError, Code: "EXTERNAL_SERVICE"},
		},
		{
			name:         "plain error is internal",
			err:          errors.New("connection reset"),
			expectedCode: http.StatusInternalServerError,
			expectedBody: ErrorResponse{Status: StatusError, Code: "INTERNAL", Message: "Internal server error"},
		},
		{
			name:         "body too large",
			err:          &http.MaxBytesError{Limit: 10},
			expectedCode: http.StatusRequestEntityTooLarge,
			expectedBody: ErrorResponse{Status: StatusError, Code: "PAYLOAD_TOO_LARGE"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)

			SendError(c, tt.err)

			assert.Equal(t, tt.expectedCode, w.Code)
			assert.True(t, c.IsAborted())

			var body ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.expectedBody.Status, body.Status)
			assert.Equal(t, tt.expectedBody.Code, body.Code)
			if tt.expectedBody.Message != "" {
				assert.Equal(t, tt.expectedBody.Message, body.Message)
			}
			// internal causes never leak to clients
			assert.NotContains(t, w.Body.String(), "connection reset")
		})
	}
}

func TestParseUintParam(t *testing.T) {
	gin.SetMode(gin.TestMode)

	for _, raw := range []string{"abc", "0", "-1"} {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Params = gin.Params{{Key: "id", Value: raw}}

		_, ok := ParseUintParam(c, "id")
		assert.False(t, ok, raw)
		assert.Equal(t, http.StatusBadRequest, w.Code, raw)
	}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Params = gin.Params{{Key: "id", Value: "42"}}
	id, ok := ParseUintParam(c, "id")
	assert.True(t, ok)
	assert.Equal(t, uint(42), id)
}

func TestBindJSONOrError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var target struct {
		Name string `json:"name" binding:"required"`
	}
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
	c.Request.Header.Set("Content-Type", "application/json")

	assert.False(t, BindJSONOrError(c, &target))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "VALIDATION")
}
