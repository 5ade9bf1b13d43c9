package api

import (
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/patrickmn/go-cache"

	"slotswap-backend/config"
	"slotswap-backend/internal/auth"
	"slotswap-backend/internal/ledger"
	"slotswap-backend/internal/mw"
	"slotswap-backend/internal/notification"
	"slotswap-backend/internal/store"
	"slotswap-backend/internal/swap"
)

const calendarPath = "/api/calendar.ics"

// Handler holds shared dependencies for API handlers.
type Handler struct {
	ledger    *ledger.Ledger
	engine    *swap.Engine
	auth      *auth.Service
	store     store.Store
	hub       *notification.Hub
	webpush   *webpush.Options
	heartbeat time.Duration
	icsCache  *cache.Cache
	cacheTTL  time.Duration
}

// Deps are the services the router exposes over HTTP.
type Deps struct {
	Store     store.Store
	Ledger    *ledger.Ledger
	Engine    *swap.Engine
	Auth      *auth.Service
	Issuer    *auth.Issuer
	Hub       *notification.Hub
	WebPush   *webpush.Options // nil when push is disabled
	Server    config.ServerConfig
	Heartbeat time.Duration
}

// NewHandler creates a new API handler.
func NewHandler(d Deps) *Handler {
	heartbeat := d.Heartbeat
	if heartbeat <= 0 {
		heartbeat = 25 * time.Second
	}
	ttl := time.Duration(d.Server.CacheTTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Handler{
		ledger:    d.Ledger,
		engine:    d.Engine,
		auth:      d.Auth,
		store:     d.Store,
		hub:       d.Hub,
		webpush:   d.WebPush,
		heartbeat: heartbeat,
		icsCache:  cache.New(ttl, 2*ttl),
		cacheTTL:  ttl,
	}
}

// invalidateCalendars drops cached calendar exports of the given users.
func (h *Handler) invalidateCalendars(userIDs ...int64) {
	for _, id := range userIDs {
		mw.InvalidateUser(h.icsCache, id, calendarPath)
	}
}
