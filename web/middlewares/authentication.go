package middlewares

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"axiapac.com/attendance/security"
	"axiapac.com/attendance/web/common"
	"github.com/gin-gonic/gin"
)

const (
	identityKey          = "identity"
	ApplicationCookie    = "attendance.ApplicationCookie"
	SchedulerTokenHeader = "X-Scheduler-Token"
)

// Authentication checks for a valid Bearer token, or the application cookie,
// and stores the employee identity on the context.
func Authentication(jwtSecret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := ""

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			cookie, err := c.Cookie(ApplicationCookie)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusUnauthorized, common.NewErrorResponse("missing token"))
				return
			}
			tokenStr = cookie
		} else {
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				c.AbortWithStatusJSON(http.StatusUnauthorized, common.NewErrorResponse("malformed authorization header"))
				return
			}
			tokenStr = parts[1]
		}

		identity, err := security.ParseIdentityToken(tokenStr, jwtSecret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, common.NewErrorResponse("invalid or expired token"))
			return
		}

		c.Set(identityKey, identity)
		c.Next()
	}
}

// GetIdentity returns the identity stored by Authentication.
func GetIdentity(c *gin.Context) (*security.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return nil, false
	}
	identity, ok := v.(*security.Identity)
	return identity, ok
}

// SchedulerToken guards internal endpoints called by the job scheduler. An
// empty token disables the endpoints.
func SchedulerToken(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		presented := c.GetHeader(SchedulerTokenHeader)
		if token == "" || subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, common.NewErrorResponse("invalid scheduler token"))
			return
		}
		c.Next()
	}
}
