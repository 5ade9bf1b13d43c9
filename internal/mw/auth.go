package mw

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"slotswap-backend/internal/auth"
)

const identityKey = "identity"

type authOptions struct {
	queryToken bool
}

// AuthOption configures Auth.
type AuthOption func(*authOptions)

// AllowQueryToken also accepts the token as the token query parameter.
func AllowQueryToken() AuthOption {
	return func(o *authOptions) { o.queryToken = true }
}

// Auth requires a valid bearer token in the Authorization header.
func Auth(issuer *auth.Issuer, opts ...AuthOption) gin.HandlerFunc {
	var o authOptions
	for _, opt := range opts {
		opt(&o)
	}

	return func(c *gin.Context) {
		raw := ""
		if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
			raw = strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
		} else if o.queryToken {
			raw = c.Query("token")
		}
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		id, err := issuer.Verify(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}
		c.Set(identityKey, id)
		c.Next()
	}
}

// Identity returns the caller set by Auth.
func Identity(c *gin.Context) (auth.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return auth.Identity{}, false
	}
	id, ok := v.(auth.Identity)
	return id, ok
}
