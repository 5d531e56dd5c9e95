package middleware

import (
	"fmt"

	"github.com/gin-gonic/gin"
)

// CacheControl sets a private Cache-Control header, for course material that rarely changes.
func CacheControl(maxAgeSeconds int) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", fmt.Sprintf("private, max-age=%d", maxAgeSeconds))
		c.Next()
	}
}

// NoStore disables caching for per-learner responses such as assessment payloads and results.
func NoStore() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-store")
		c.Next()
	}
}
