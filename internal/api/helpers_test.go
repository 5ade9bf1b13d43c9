package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"slotswap-backend/config"
	"slotswap-backend/internal/auth"
	"slotswap-backend/internal/db/dbtest"
	"slotswap-backend/internal/ledger"
	"slotswap-backend/internal/notification"
	"slotswap-backend/internal/store"
	"slotswap-backend/internal/swap"
)

const (
	testSecret = "0123456789abcdef0123456789abcdef"
	testOrigin = "http://localhost:5173"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	router *gin.Engine
	store  store.Store
	hub    *notification.Hub
}

func newTestServer(t *testing.T, opts *webpush.Options) *testServer {
	t.Helper()
	s := store.NewGormStore(dbtest.Open(t))
	hub := notification.NewHub(8)
	issuer := auth.NewIssuer(testSecret, time.Hour)

	router := NewRouter(Deps{
		Store:     s,
		Ledger:    ledger.New(s, hub),
		Engine:    swap.NewEngine(s, hub),
		Auth:      auth.NewService(s, issuer, bcrypt.MinCost),
		Issuer:    issuer,
		Hub:       hub,
		WebPush:   opts,
		Server: config.ServerConfig{
			RateLimitPerSec: 1000,
			RateLimitBurst:  1000,
			CacheTTLSeconds: 60,
			FrontendURL:     testOrigin,
		},
		Heartbeat: time.Hour,
	})
	return &testServer{router: router, store: s, hub: hub}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

type sessionBody struct {
	User  auth.Identity `json:"user"`
	Token string        `json:"token"`
}

func (s *testServer) register(t *testing.T, name string) sessionBody {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/auth/register", "", gin.H{
		"name":     name,
		"email":    name + "@example.com",
		"password": "secret123",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var out sessionBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}
