package mw

import (
	"bytes"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
)

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

// KeyFunc derives the cache key of a request. An empty key skips the cache.
type KeyFunc func(c *gin.Context) string

// PerUserKey keys responses by the authenticated caller and request path,
// so one user never receives another user's cached body.
func PerUserKey(c *gin.Context) string {
	id, ok := Identity(c)
	if !ok {
		return ""
	}
	return strconv.FormatInt(id.ID, 10) + ":" + c.Request.URL.Path
}

// Cache is a middleware for in-memory caching of GET responses.
func Cache(store *cache.Cache, duration time.Duration, key KeyFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		k := key(c)
		if k == "" {
			c.Next()
			return
		}
		if resp, found := store.Get(k); found {
			cached := resp.(cachedResponse)
			for name, v := range cached.headers {
				c.Writer.Header()[name] = v
			}
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
			store.Set(k, cachedResponse{
				status:  blw.Status(),
				headers: blw.Header().Clone(),
				body:    blw.body.Bytes(),
			}, duration)
		}
	}
}

// InvalidateUser drops the cached path for userID.
func InvalidateUser(store *cache.Cache, userID int64, path string) {
	store.Delete(strconv.FormatInt(userID, 10) + ":" + path)
}
