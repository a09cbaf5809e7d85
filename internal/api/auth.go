package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Criminal-Justice-Comps/Fairness/internal/logging"
)

// bearerToken extracts the credential of an "Authorization: Bearer <token>"
// header. The scheme is matched case-insensitively.
func bearerToken(header string) (string, bool) {
	scheme, credential, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	credential = strings.TrimSpace(credential)
	return credential, credential != ""
}

// AuthMiddleware guards the routes that start evaluations. With an empty token
// every request passes, which is only meant for local runs.
func AuthMiddleware(token string) gin.HandlerFunc {
	if token == "" && gin.Mode() == gin.ReleaseMode {
		logging.Component("api").Warn("no API auth token configured; evaluate and scan routes are open")
	}
	expected := []byte(token)

	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}

		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
			return
		}
		credential, ok := bearerToken(header)
		if !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "expected a bearer token"})
			return
		}
		if subtle.ConstantTimeCompare([]byte(credential), expected) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "token rejected"})
			return
		}
		c.Next()
	}
}
