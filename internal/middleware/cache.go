package middleware

import (
	"github.com/gin-gonic/gin"
)

// NoStore disables caching for responses carrying signed URLs or session
// state, so an expired link is never served from a shared cache.
func NoStore() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-store")
		c.Next()
	}
}
