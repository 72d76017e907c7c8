package middlewares

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// AllowMethods rejects any other HTTP method with 405. It is meant for
// routes registered with Any.
func AllowMethods(methods ...string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(methods))
	for _, m := range methods {
		allowed[m] = true
	}
	return func(c *gin.Context) {
		if !allowed[c.Request.Method] {
			c.AbortWithStatusJSON(http.StatusMethodNotAllowed, gin.H{"error": "Method not allowed"})
			return
		}
		c.Next()
	}
}
