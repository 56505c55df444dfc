package middleware

import (
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
)

const (
	UserContextKey = "userID"
	RoleContextKey = "role"
)

// ManagerRoles may change a store's discount tree.
var ManagerRoles = []string{"admin", "owner", "manager"}

// AuthMiddleware trusts the identity forwarded by the API gateway. The
// user id may also come from the gateway's user_id cookie, which browsers
// send on the websocket upgrade where custom headers cannot be set. The
// role comes from the gateway header only.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader("X-User-ID")
		if userID == "" {
			if v, err := c.Cookie("user_id"); err == nil {
				userID = v
			}
		}
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		c.Set(UserContextKey, userID)
		c.Set(RoleContextKey, c.GetHeader("X-User-Role"))
		c.Next()
	}
}

func HasRole(c *gin.Context, roles ...string) bool {
	role := c.GetString(RoleContextKey)
	return role != "" && slices.Contains(roles, role)
}

// IsManager reports whether the caller may edit discounts. Viewers of the
// same tree get no delete affordance.
func IsManager(c *gin.Context) bool {
	return HasRole(c, ManagerRoles...)
}

func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if HasRole(c, roles...) {
			c.Next()
			return
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Insufficient role"})
	}
}
