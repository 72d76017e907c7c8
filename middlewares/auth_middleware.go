package middlewares

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/chopchop-backend/utils"
)

// Context keys set by VendorAuth.
const (
	ContextVendorID    = "vendorID"
	ContextVendorEmail = "vendorEmail"
)

// requestKey returns the x-api-key header, or the bearer token when the
// header is absent.
func requestKey(c *gin.Context) string {
	if key := c.GetHeader("x-api-key"); key != "" {
		return key
	}
	return strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
}

func keyMatches(got, want string) bool {
	if want == "" || got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

// WebhookAuth accepts requests carrying the shared webhook secret. An unset
// secret rejects every request.
func WebhookAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !keyMatches(requestKey(c), secret) {
			utils.InfoLogger.WithField("ip", c.ClientIP()).Warn("Unauthorized webhook attempt")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.Next()
	}
}

func AdminAuth(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !keyMatches(requestKey(c), apiKey) {
			utils.RespondError(c, http.StatusUnauthorized, errors.New("invalid admin key"))
			c.Abort()
			return
		}
		c.Next()
	}
}

// VendorAuth validates a dashboard token. When the route has a :vendorId
// parameter it must match the token's vendor.
func VendorAuth(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			utils.RespondError(c, http.StatusUnauthorized, errors.New("Authorization header missing"))
			c.Abort()
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		claims, err := utils.ParseVendorToken(secret, tokenString)
		if err != nil {
			utils.RespondError(c, http.StatusUnauthorized, err)
			c.Abort()
			return
		}

		if id := c.Param("vendorId"); id != "" && id != claims.VendorID {
			utils.RespondError(c, http.StatusForbidden, errors.New("token does not belong to this vendor"))
			c.Abort()
			return
		}

		c.Set(ContextVendorID, claims.VendorID)
		c.Set(ContextVendorEmail, claims.Email)
		c.Next()
	}
}
