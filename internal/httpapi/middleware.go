// Package httpapi implements the Web REST surface (spec §6): auth,
// binding, history, conversations, and admin endpoints, each a thin gin
// handler delegating to internal/identity and internal/history.
package httpapi

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"relay/internal/identity"
)

const claimsKey = "relay.claims"

// AuthMiddleware grounds every authenticated route in the bearer JWT
// internal/identity issues, the way orris-inc-orris's AuthMiddleware
// consults its own JWTService before delegating to the handler.
func AuthMiddleware(svc *identity.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			errorResponse(c, http.StatusUnauthorized, "missing or malformed authorization header")
			c.Abort()
			return
		}

		claims, err := svc.VerifyToken(parts[1])
		if err != nil {
			errorResponse(c, http.StatusUnauthorized, "invalid or expired token")
			c.Abort()
			return
		}

		c.Set(claimsKey, claims)
		c.Next()
	}
}

// RequireAdmin gates a route on the caller's JWT carrying the admin role.
// Must run after AuthMiddleware.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := claimsFromContext(c)
		if claims == nil || claims.Role != identity.RoleAdmin {
			errorResponse(c, http.StatusForbidden, "administrator access required")
			c.Abort()
			return
		}
		c.Next()
	}
}

func claimsFromContext(c *gin.Context) *identity.Claims {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil
	}
	claims, _ := v.(*identity.Claims)
	return claims
}

type errorBody struct {
	Error string `json:"error"`
}

func errorResponse(c *gin.Context, status int, message string) {
	c.JSON(status, errorBody{Error: message})
}
