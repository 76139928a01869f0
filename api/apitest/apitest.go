// Package apitest runs the full HTTP stack on a throwaway sqlite database.
package apitest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/killallgit/annotation-api/api"
	"github.com/killallgit/annotation-api/api/version"
	"github.com/killallgit/annotation-api/internal/app"
	"github.com/killallgit/annotation-api/internal/database"
	"github.com/killallgit/annotation-api/internal/models"
	"github.com/killallgit/annotation-api/internal/testutil"
	"github.com/killallgit/annotation-api/pkg/config"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// Env is a running API with direct database access for fixtures
type Env struct {
	App    *app.App
	DB     *gorm.DB
	Engine *gin.Engine
	Events *testutil.EventRecorder
}

// Config returns settings suitable for tests. Rate limiting is off.
func Config(t testing.TB) *config.Config {
	t.Helper()
	queue := func(name string) config.QueueConfig {
		return config.QueueConfig{Name: name, Workers: 1, SoftLimit: 5 * time.Second, HardLimit: 10 * time.Second}
	}
	return &config.Config{
		Environment: "test",
		Server:      config.ServerConfig{Host: "127.0.0.1", Port: 0, MaxHeaderBytes: 1 << 20},
		Auth:        config.AuthConfig{JWTSecret: "test-secret", TokenTTL: 30 * time.Minute, Issuer: "annotation-api-test"},
		Upload: config.UploadConfig{
			MaxSize:         1 << 20,
			VideoExtensions: []string{".mp4", ".mov"},
			AudioExtensions: []string{".wav", ".mp3"},
		},
		Storage: config.StorageConfig{
			Backend:   "local",
			LocalPath: t.TempDir(),
			TempDir:   t.TempDir(),
		},
		Processing: config.ProcessingConfig{FrameFPS: 1, PollInterval: 10 * time.Millisecond},
		Queues:     config.QueuesConfig{Media: queue("media"), Annotation: queue("annotation")},
		Security:   config.SecurityConfig{EnableRequestID: true},
		Monitoring: config.MonitoringConfig{MetricsEnabled: true, MetricsPath: "/metrics"},
	}
}

// New starts the API on a fresh database. mutate may adjust the config.
func New(t testing.TB, mutate ...func(*config.Config)) *Env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := Config(t)
	for _, m := range mutate {
		m(cfg)
	}

	db := testutil.NewDB(t)
	recorder := &testutil.EventRecorder{}
	a, err := app.New(context.Background(), cfg, &database.DB{DB: db}, nil, app.WithPublisher(recorder))
	require.NoError(t, err)

	server := api.NewServer(a.Dependencies(), version.Info{Version: "test"}, nil)
	require.NoError(t, server.Initialize())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	})

	return &Env{App: a, DB: db, Engine: server.Engine(), Events: recorder}
}

// Token issues a bearer token for user
func (e *Env) Token(t testing.TB, user *models.User) string {
	t.Helper()
	token, _, err := e.App.Auth.IssueToken(user)
	require.NoError(t, err)
	return token
}

// Do sends a JSON request. body may be nil; token may be empty.
func (e *Env) Do(t testing.TB, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return e.serve(req, token)
}

// Upload posts a multipart media upload
func (e *Env) Upload(t testing.TB, token string, projectID uint, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("project_id", itoa(projectID)))
	part, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/media/upload", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return e.serve(req, token)
}

func (e *Env) serve(req *http.Request, token string) *httptest.ResponseRecorder {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.Engine.ServeHTTP(rec, req)
	return rec
}

// Decode unmarshals a response body into v
func Decode(t testing.TB, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func itoa(v uint) string {
	return strconv.FormatUint(uint64(v), 10)
}
