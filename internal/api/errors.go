package api

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"slotswap-backend/internal/apperr"
	"slotswap-backend/internal/auth"
	"slotswap-backend/internal/mw"
)

func statusOf(kind apperr.Kind) int {
	switch kind {
	case apperr.Validation:
		return http.StatusBadRequest
	case apperr.Unauthenticated:
		return http.StatusUnauthorized
	case apperr.Authorization:
		return http.StatusForbidden
	case apperr.NotFound:
		return http.StatusNotFound
	case apperr.Conflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as {"error": message}. Internal causes are logged,
// never returned to the client.
func respondError(c *gin.Context, err error) {
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		log.Printf("%s %s: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	status := statusOf(ae.Kind)
	if status == http.StatusInternalServerError {
		log.Printf("%s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	body := gin.H{"error": ae.Message}
	if len(ae.Details) > 0 {
		body["details"] = ae.Details
	}
	c.JSON(status, body)
}

// badRequest reports a malformed request body or parameter.
func badRequest(c *gin.Context, message string, err error) {
	body := gin.H{"error": message}
	if err != nil {
		body["details"] = err.Error()
	}
	c.JSON(http.StatusBadRequest, body)
}

// caller returns the authenticated identity. Routes using it are behind mw.Auth.
func caller(c *gin.Context) auth.Identity {
	id, _ := mw.Identity(c)
	return id
}
