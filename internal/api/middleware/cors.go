package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// CORSConfig holds CORS configuration for the review API.
type CORSConfig struct {
	AllowedOrigins []string // empty allows any origin
}

// CORS returns a middleware that lets a review UI on another origin read
// the annotation endpoints. The API is read-only, so only GET is advertised
// and credentials are never allowed.
func CORS(config CORSConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			c.Next()
			return
		}

		allowed := "*"
		if len(config.AllowedOrigins) > 0 {
			if !IsOriginAllowed(origin, config) {
				c.Next()
				return
			}
			allowed = origin
			c.Writer.Header().Add("Vary", "Origin")
		}

		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", allowed)
		h.Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Accept, Cache-Control, X-Requested-With")
		h.Set("Access-Control-Expose-Headers", "Content-Length, X-Request-ID")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// IsOriginAllowed reports whether origin matches the configured list.
func IsOriginAllowed(origin string, config CORSConfig) bool {
	if len(config.AllowedOrigins) == 0 {
		return true
	}
	for _, o := range config.AllowedOrigins {
		if o == "*" || strings.EqualFold(origin, o) {
			return true
		}
	}
	return false
}
