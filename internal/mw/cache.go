package mw

import (
	"bytes"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
)

// ReplayHeader marks a response served from the cache.
const ReplayHeader = "X-Cache-Replay"

type cachedResponse struct {
	status  int
	headers http.Header
	body    []byte
}

type bodyCacheWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w bodyCacheWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w bodyCacheWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// KeyFunc derives the cache key of a request. ok=false bypasses the cache.
type KeyFunc func(c *gin.Context) (key string, ok bool)

// ByRequestURI caches GET requests by their full URI.
func ByRequestURI(c *gin.Context) (string, bool) {
	if c.Request.Method != http.MethodGet {
		return "", false
	}
	return c.Request.URL.RequestURI(), true
}

// ByIdempotencyKey caches requests that carry an Idempotency-Key header, scoped
// to the actor and path so two stations cannot collide.
func ByIdempotencyKey(c *gin.Context) (string, bool) {
	key := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
	if key == "" {
		return "", false
	}
	return strings.Join([]string{c.Request.Method, c.Request.URL.Path, c.GetHeader(ActorHeader), key}, "|"), true
}

// Cache stores successful responses for duration and replays them for
// requests with the same key.
func Cache(store *cache.Cache, duration time.Duration, keyFn KeyFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		key, ok := keyFn(c)
		if !ok {
			c.Next()
			return
		}

		if resp, found := store.Get(key); found {
			cached := resp.(cachedResponse)
			for k, v := range cached.headers {
				c.Writer.Header()[k] = v
			}
			c.Writer.Header().Set(ReplayHeader, "true")
			c.Writer.WriteHeader(cached.status)
			c.Writer.Write(cached.body)
			c.Abort()
			return
		}

		blw := &bodyCacheWriter{body: bytes.NewBuffer(nil), ResponseWriter: c.Writer}
		c.Writer = blw

		c.Next()

		// Only cache successful responses
		if blw.Status() >= 200 && blw.Status() < 300 {
			headers := blw.Header().Clone()
			headers.Del(RequestIDHeader)
			store.Set(key, cachedResponse{
				status:  blw.Status(),
				headers: headers,
				body:    blw.body.Bytes(),
			}, duration)
		}
	}
}
