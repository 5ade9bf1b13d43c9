package mw

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// redactedParams are query parameters never written to the access log.
var redactedParams = []string{"token"}

// Logger is gin's access logger with credentials removed from logged paths.
func Logger() gin.HandlerFunc {
	return gin.LoggerWithFormatter(func(p gin.LogFormatterParams) string {
		if p.Latency > time.Minute {
			p.Latency = p.Latency.Truncate(time.Second)
		}
		return fmt.Sprintf("[GIN] %v | %3d | %13v | %15s | %-7s %#v\n%s",
			p.TimeStamp.Format("2006/01/02 - 15:04:05"),
			p.StatusCode,
			p.Latency,
			p.ClientIP,
			p.Method,
			RedactPath(p.Path),
			p.ErrorMessage,
		)
	})
}

// RedactPath replaces the values of credential query parameters in path.
func RedactPath(path string) string {
	i := strings.IndexByte(path, '?')
	if i < 0 {
		return path
	}
	query, err := url.ParseQuery(path[i+1:])
	if err != nil {
		return path[:i] + "?REDACTED"
	}
	changed := false
	for _, key := range redactedParams {
		if _, ok := query[key]; ok {
			query.Set(key, "REDACTED")
			changed = true
		}
	}
	if !changed {
		return path
	}
	return path[:i] + "?" + query.Encode()
}
