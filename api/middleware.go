package api

import (
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/killallgit/annotation-api/api/types"
	"github.com/killallgit/annotation-api/internal/metrics"
	"github.com/killallgit/annotation-api/pkg/config"
	apperrors "github.com/killallgit/annotation-api/pkg/errors"
	"golang.org/x/time/rate"
)

const (
	requestIDHeader   = "X-Request-ID"
	limiterSweepEvery = 5 * time.Minute
	limiterIdleAfter  = 10 * time.Minute
)

// CORS builds the CORS middleware from the security settings
func CORS(cfg config.SecurityConfig) gin.HandlerFunc {
	corsConfig := cors.Config{
		AllowOrigins:  cfg.CORSOrigins,
		AllowMethods:  cfg.CORSMethods,
		AllowHeaders:  cfg.CORSHeaders,
		ExposeHeaders: []string{"Content-Length", requestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	if len(cfg.CORSOrigins) == 0 || (len(cfg.CORSOrigins) == 1 && cfg.CORSOrigins[0] == "*") {
		corsConfig.AllowOrigins = nil
		corsConfig.AllowAllOrigins = true
	}
	return cors.New(corsConfig)
}

// RequestID tags every request with an id, reusing the caller's when given
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(types.RequestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func RequestSizeLimitWithSize(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodPost ||
			c.Request.Method == http.MethodPut ||
			c.Request.Method == http.MethodPatch {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}

// RequestSizeLimitFor applies defaultMax to every body except routes listed in
// overrides, keyed by route template
func RequestSizeLimitFor(defaultMax int64, overrides map[string]int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		maxBytes := defaultMax
		if v, ok := overrides[c.FullPath()]; ok {
			maxBytes = v
		}
		RequestSizeLimitWithSize(maxBytes)(c)
	}
}

// Metrics records request counts and latency by route template
func Metrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.RecordHTTPRequest(c.Request.Method, path, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}

// clientLimiter holds a rate limiter and its last accessed time
type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiters hands out per-client token buckets. One bucket exists per
// client and limit name, so stricter groups do not share budget with the
// default group.
type RateLimiters struct {
	limiters sync.Map
	stop     chan struct{}
	once     sync.Once
	stopOnce sync.Once
}

// NewRateLimiters creates an empty limiter set
func NewRateLimiters() *RateLimiters {
	return &RateLimiters{stop: make(chan struct{})}
}

// PerClient limits each client IP to rps requests per second under name
func (r *RateLimiters) PerClient(name string, rps, burst int) gin.HandlerFunc {
	r.once.Do(func() {
		go r.sweep()
	})
	if burst < 1 {
		burst = 1
	}

	return func(c *gin.Context) {
		if rps <= 0 {
			c.Next()
			return
		}
		key := name + "|" + c.ClientIP()

		limiterInterface, _ := r.limiters.LoadOrStore(key, &clientLimiter{
			limiter:  rate.NewLimiter(rate.Every(time.Second/time.Duration(rps)), burst),
			lastSeen: time.Now(),
		})

		cl := limiterInterface.(*clientLimiter)
		cl.lastSeen = time.Now()

		if !cl.limiter.Allow() {
			types.SendError(c, apperrors.RateLimitError(name, fmt.Sprintf("%d req/s", rps)))
			return
		}
		c.Next()
	}
}

// Stop ends the idle limiter sweep
func (r *RateLimiters) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
}

func (r *RateLimiters) sweep() {
	ticker := time.NewTicker(limiterSweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now := time.Now()
			r.limiters.Range(func(key, value interface{}) bool {
				cl := value.(*clientLimiter)
				if now.Sub(cl.lastSeen) > limiterIdleAfter {
					r.limiters.Delete(key)
				}
				return true
			})
		case <-r.stop:
			return
		}
	}
}
