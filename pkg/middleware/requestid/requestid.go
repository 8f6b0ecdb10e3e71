package requestid

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// Header carries the request id across service boundaries.
	Header = "X-Request-ID"

	contextKey = "request_id"
)

// Middleware propagates an inbound X-Request-ID or mints a new one, storing
// it in the gin context and echoing it on the response.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(Header)
		if id == "" {
			id = uuid.NewString()
		}

		c.Set(contextKey, id)
		c.Writer.Header().Set(Header, id)
		c.Next()
	}
}

// Value returns the request id for the current request, or an empty string
// when the middleware did not run.
func Value(c *gin.Context) string {
	return c.GetString(contextKey)
}
