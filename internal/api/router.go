package api

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"slotswap-backend/internal/mw"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(mw.Logger(), gin.Recovery())

	if origins := d.Server.AllowedOrigins(); len(origins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     origins,
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	handler := NewHandler(d)

	rateLimiter := mw.RateLimiter(rate.Limit(d.Server.RateLimitPerSec), d.Server.RateLimitBurst)
	caching := mw.Cache(handler.icsCache, handler.cacheTTL, mw.PerUserKey)

	r.GET("/health", handler.Health)

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.POST("/auth/register", handler.Register)
		api.POST("/auth/login", handler.Login)
		api.GET("/push/vapid_public_key", handler.GetVAPIDPublicKey)

		private := api.Group("", mw.Auth(d.Issuer))
		private.GET("/auth/me", handler.Me)

		private.GET("/events", handler.ListEvents)
		private.POST("/events", handler.CreateEvent)
		private.PUT("/events/:id", handler.UpdateEvent)
		private.DELETE("/events/:id", handler.DeleteEvent)
		private.PATCH("/events/:id/status", handler.UpdateEventStatus)

		private.GET("/swappable-slots", handler.ListSwappableSlots)
		private.POST("/swap-request", handler.CreateSwapRequest)
		private.GET("/swap-requests", handler.ListSwapRequests)
		private.POST("/swap-response/:requestId", handler.RespondToSwapRequest)

		private.GET("/push/subscriptions", handler.GetSubscription)
		private.PUT("/push/subscriptions", handler.PutSubscription)
		private.DELETE("/push/subscriptions", handler.DeleteSubscription)

		// EventSource and calendar clients cannot set headers.
		feeds := api.Group("", mw.Auth(d.Issuer, mw.AllowQueryToken()))
		feeds.GET("/calendar.ics", caching, handler.GetCalendar)
		feeds.GET("/notifications/stream", handler.StreamNotifications)
	}

	return r
}
