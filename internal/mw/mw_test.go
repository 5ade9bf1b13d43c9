package mw

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"slotswap-backend/internal/auth"
)

const secret = "0123456789abcdef0123456789abcdef"

func init() {
	gin.SetMode(gin.TestMode)
}

func TestAuth(t *testing.T) {
	iss := auth.NewIssuer(secret, time.Hour)
	tok, err := iss.Issue(auth.Identity{ID: 3, Name: "Carol", Email: "carol@example.com"})
	require.NoError(t, err)

	whoami := func(c *gin.Context) {
		id, ok := Identity(c)
		require.True(t, ok)
		c.JSON(http.StatusOK, id)
	}
	r := gin.New()
	r.GET("/me", Auth(iss), whoami)
	r.GET("/feed", Auth(iss, AllowQueryToken()), whoami)

	testCases := []struct {
		name   string
		target string
		header string
		status int
	}{
		{"bearer header", "/me", "Bearer " + tok, http.StatusOK},
		{"query token ignored by default", "/me?token=" + tok, "", http.StatusUnauthorized},
		{"query token where allowed", "/feed?token=" + tok, "", http.StatusOK},
		{"header where query allowed", "/feed", "Bearer " + tok, http.StatusOK},
		{"bad query token", "/feed?token=nope", "", http.StatusUnauthorized},
		{"missing", "/me", "", http.StatusUnauthorized},
		{"bad token", "/me", "Bearer nope", http.StatusUnauthorized},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req, _ := http.NewRequest(http.MethodGet, tc.target, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.status, w.Code)
			if tc.status == http.StatusOK {
				assert.JSONEq(t, `{"id":3,"name":"Carol","email":"carol@example.com"}`, w.Body.String())
			}
		})
	}
}

func TestCache_PerUser(t *testing.T) {
	iss := auth.NewIssuer(secret, time.Hour)
	store := cache.New(time.Minute, time.Minute)
	var calls atomic.Int32

	r := gin.New()
	r.GET("/feed", Auth(iss), Cache(store, time.Minute, PerUserKey), func(c *gin.Context) {
		calls.Add(1)
		id, _ := Identity(c)
		c.Header("Content-Type", "text/plain")
		c.String(http.StatusOK, id.Name)
	})

	get := func(id auth.Identity) *httptest.ResponseRecorder {
		tok, err := iss.Issue(id)
		require.NoError(t, err)
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodGet, "/feed?token="+tok, nil)
		r.ServeHTTP(w, req)
		return w
	}

	alice := auth.Identity{ID: 1, Name: "alice"}
	bob := auth.Identity{ID: 2, Name: "bob"}

	assert.Equal(t, "alice", get(alice).Body.String())
	assert.Equal(t, "alice", get(alice).Body.String())
	assert.Equal(t, int32(1), calls.Load())

	assert.Equal(t, "bob", get(bob).Body.String())
	assert.Equal(t, int32(2), calls.Load())

	InvalidateUser(store, alice.ID, "/feed")
	w := get(alice)
	assert.Equal(t, "alice", w.Body.String())
	assert.Equal(t, "text/plain", w.Header().Get("Content-Type"))
	assert.Equal(t, int32(3), calls.Load())
}

func TestIPRateLimiter(t *testing.T) {
	l := NewIPRateLimiter(rate.Limit(1), 2)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("1.1.1.1"))
	assert.True(t, l.Allow("1.1.1.1"))
	assert.False(t, l.Allow("1.1.1.1"))
	assert.True(t, l.Allow("2.2.2.2"), "buckets are per IP")

	now = now.Add(time.Hour)
	assert.True(t, l.Allow("3.3.3.3"))
	assert.Len(t, l.visitors, 1, "idle buckets are swept")
}

func TestRateLimiterMiddleware(t *testing.T) {
	r := gin.New()
	r.GET("/", RateLimiter(rate.Limit(0.001), 1), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	codes := make([]int, 2)
	for i := range codes {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		r.ServeHTTP(w, req)
		codes[i] = w.Code
	}
	assert.Equal(t, []int{http.StatusNoContent, http.StatusTooManyRequests}, codes)
}

func TestRedactPath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/api/events", "/api/events"},
		{"/api/calendar.ics?token=abc.def.ghi", "/api/calendar.ics?token=REDACTED"},
		{"/api/notifications/stream?lang=en&token=abc", "/api/notifications/stream?lang=en&token=REDACTED"},
		{"/api/push/subscriptions?endpoint=x", "/api/push/subscriptions?endpoint=x"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, RedactPath(tt.path))
		})
	}
}

func TestLogger_OmitsQueryToken(t *testing.T) {
	var buf bytes.Buffer
	prev := gin.DefaultWriter
	gin.DefaultWriter = &buf
	defer func() { gin.DefaultWriter = prev }()

	r := gin.New()
	r.Use(Logger())
	r.GET("/feed", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/feed?token=secret-jwt-value", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Contains(t, buf.String(), "/feed?token=REDACTED")
	assert.NotContains(t, buf.String(), "secret-jwt-value")
}
