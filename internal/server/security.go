package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// SecurityConfig controls the security headers, CORS and request limits of
// the status API.
type SecurityConfig struct {
	// EnableCORS adds CORS headers for allowed origins.
	EnableCORS bool
	// AllowedOrigins lists the origins allowed by CORS; "*" allows any.
	AllowedOrigins []string
	// AllowedMethods lists the methods announced in preflight responses.
	AllowedMethods []string
	// MaxBodyBytes bounds request bodies.
	MaxBodyBytes int64
}

// DefaultSecurityConfig returns the configuration used by New.
func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		EnableCORS:     true,
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		MaxBodyBytes:   64 << 10,
	}
}

func (c SecurityConfig) originAllowed(origin string) (string, bool) {
	for _, o := range c.AllowedOrigins {
		if o == "*" {
			return "*", true
		}
		if strings.EqualFold(o, origin) {
			return origin, true
		}
	}
	return "", false
}

// SecurityMiddleware sets the security headers on every response, answers
// CORS preflight requests and limits request bodies.
func SecurityMiddleware(config SecurityConfig) gin.HandlerFunc {
	methods := strings.Join(config.AllowedMethods, ", ")
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-XSS-Protection", "1; mode=block")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")

		if origin := c.GetHeader("Origin"); config.EnableCORS && origin != "" {
			if allowed, ok := config.originAllowed(origin); ok {
				h.Set("Access-Control-Allow-Origin", allowed)
				h.Set("Access-Control-Allow-Methods", methods)
				h.Set("Access-Control-Allow-Headers", "Content-Type")
				h.Set("Access-Control-Max-Age", "86400")
				if allowed != "*" {
					h.Add("Vary", "Origin")
				}
			}
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		if config.MaxBodyBytes > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, config.MaxBodyBytes)
		}
		c.Next()
	}
}
