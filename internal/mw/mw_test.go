package mw

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"production-tracker-backend/internal/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(r *gin.Engine, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestCache_ByRequestURI(t *testing.T) {
	calls := 0
	r := gin.New()
	r.Use(Cache(cache.New(time.Minute, time.Minute), time.Minute, ByRequestURI))
	r.GET("/graph", func(c *gin.Context) {
		calls++
		c.JSON(http.StatusOK, gin.H{"calls": calls})
	})
	r.GET("/missing", func(c *gin.Context) {
		calls++
		c.Status(http.StatusNotFound)
	})

	first := serve(r, http.MethodGet, "/graph", nil)
	second := serve(r, http.MethodGet, "/graph", nil)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "true", second.Header().Get(ReplayHeader))
	assert.Equal(t, 1, calls)

	serve(r, http.MethodGet, "/graph?x=1", nil)
	assert.Equal(t, 2, calls, "a different URI is a different entry")

	serve(r, http.MethodGet, "/missing", nil)
	serve(r, http.MethodGet, "/missing", nil)
	assert.Equal(t, 4, calls, "errors are never cached")
}

func TestCache_ByIdempotencyKey(t *testing.T) {
	calls := 0
	r := gin.New()
	r.Use(Cache(cache.New(time.Minute, time.Minute), time.Minute, ByIdempotencyKey))
	r.POST("/movements", func(c *gin.Context) {
		calls++
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	serve(r, http.MethodPost, "/movements", nil)
	serve(r, http.MethodPost, "/movements", nil)
	assert.Equal(t, 2, calls, "requests without a key always run")

	key := map[string]string{"Idempotency-Key": "scan-1", ActorHeader: "U1"}
	serve(r, http.MethodPost, "/movements", key)
	replay := serve(r, http.MethodPost, "/movements", key)
	assert.Equal(t, 3, calls)
	assert.Equal(t, http.StatusOK, replay.Code)
	assert.Equal(t, "true", replay.Header().Get(ReplayHeader))

	serve(r, http.MethodPost, "/movements", map[string]string{"Idempotency-Key": "scan-1", ActorHeader: "U2"})
	assert.Equal(t, 4, calls, "keys are scoped per actor")
}

func TestRateLimiter(t *testing.T) {
	r := gin.New()
	r.Use(RateLimiter(rate.Limit(1), 2))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/", nil).Code)
	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(r, http.MethodGet, "/", nil).Code)

	// Another operator on the same station IP has its own bucket.
	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/", map[string]string{ActorHeader: "U9"}).Code)
}

func TestKeyedRateLimiter_ReusesBucket(t *testing.T) {
	l := NewKeyedRateLimiter(rate.Limit(1), 1, time.Minute)
	require.Same(t, l.GetLimiter("a"), l.GetLimiter("a"))
	assert.NotSame(t, l.GetLimiter("a"), l.GetLimiter("b"))
}

func TestRequestIDAndLogger(t *testing.T) {
	r := gin.New()
	r.Use(RequestID(), Logger(logger.Nop()))
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, GetRequestID(c)) })

	w := serve(r, http.MethodGet, "/", nil)
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
	assert.Equal(t, w.Header().Get(RequestIDHeader), w.Body.String())

	w = serve(r, http.MethodGet, "/", map[string]string{RequestIDHeader: "abc"})
	assert.Equal(t, "abc", w.Body.String())
}
