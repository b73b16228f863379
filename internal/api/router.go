package api

import (
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"production-tracker-backend/config"
	"production-tracker-backend/internal/logger"
	"production-tracker-backend/internal/metrics"
	"production-tracker-backend/internal/movement"
	"production-tracker-backend/internal/mw"
	"production-tracker-backend/internal/store"
)

// Deps are the collaborators the router wires into handlers.
type Deps struct {
	Store   store.Store
	Engine  *movement.Engine
	WebPush *webpush.Options
	Metrics *metrics.Collector
	Log     *logger.Logger
	Server  config.ServerConfig
}

// NewRouter creates and configures a new Gin router.
func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), mw.RequestID(), mw.Logger(d.Log))

	handler := NewHandler(d.Store, d.Engine, d.WebPush, d.Log)

	rateLimiter := mw.RateLimiter(rate.Limit(d.Server.RateLimitPerSec), d.Server.RateLimitBurst)

	cacheTTL := time.Duration(d.Server.CacheTTLSeconds) * time.Second
	graphCache := cache.New(cacheTTL, 2*cacheTTL)
	caching := mw.Cache(graphCache, cacheTTL, mw.ByRequestURI)
	invalidate := flushOnSuccess(graphCache)

	dedupTTL := time.Duration(d.Server.DedupTTLSeconds) * time.Second
	dedup := mw.Cache(cache.New(dedupTTL, 2*dedupTTL), dedupTTL, mw.ByIdempotencyKey)

	r.GET("/healthz", handler.Health)
	if d.Metrics != nil {
		r.GET("/metrics", gin.WrapH(d.Metrics.Handler()))
	}

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.POST("/movements", dedup, handler.PostMovement)

		api.GET("/products/:product_id/graph", caching, handler.GetProductGraph)
		api.GET("/objects/:full_sn", handler.GetObject)
		api.GET("/objects/:full_sn/logs", handler.GetObjectLogs)

		api.POST("/products", invalidate, handler.CreateProduct)
		api.POST("/processes", invalidate, handler.CreateProcess)
		api.POST("/edges", invalidate, handler.CreateEdge)
		api.POST("/places", handler.CreatePlace)
		api.GET("/places/:place_id/kill_flag", handler.GetKillFlag)
		api.POST("/objects", handler.RegisterObject)
		api.POST("/objects/mother", handler.RegisterMother)

		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	return r
}

// flushOnSuccess drops cached graph responses after a successful catalog change.
func flushOnSuccess(c *cache.Cache) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		ctx.Next()
		if s := ctx.Writer.Status(); s >= 200 && s < 300 {
			c.Flush()
		}
	}
}
