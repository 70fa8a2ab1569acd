package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"relay/internal/identity"
	"relay/internal/relayerr"
)

type userSummary struct {
	Email                 string `json:"email"`
	Role                   identity.Role `json:"role"`
	RequirePasswordChange  bool   `json:"require_password_change"`
}

type loginResponse struct {
	Token string      `json:"token"`
	User  userSummary `json:"user"`
}

func handleLogin(svc *identity.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := bindJSON(c, &req); err != nil {
			errorResponse(c, http.StatusBadRequest, err.Error())
			return
		}

		result, err := svc.Login(c.Request.Context(), req.Email, req.Password)
		if err != nil {
			writeServiceError(c, err)
			return
		}

		c.JSON(http.StatusOK, loginResponse{
			Token: result.Token,
			User: userSummary{
				Email:                 req.Email,
				Role:                  result.Role,
				RequirePasswordChange: result.RequirePasswordChange,
			},
		})
	}
}

// handleLogout is a no-op beyond a 200: sessions are stateless JWTs with no
// server-side revocation list, so "logging out" is purely a client-side
// token discard.
func handleLogout() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Status(http.StatusOK)
	}
}

func handleChangePassword(svc *identity.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req changePasswordRequest
		if err := bindJSON(c, &req); err != nil {
			errorResponse(c, http.StatusBadRequest, err.Error())
			return
		}

		claims := claimsFromContext(c)
		if err := svc.ChangePassword(c.Request.Context(), claims.Email, req.CurrentPassword, req.NewPassword); err != nil {
			writeServiceError(c, err)
			return
		}
		c.Status(http.StatusOK)
	}
}

func handleMe() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := claimsFromContext(c)
		c.JSON(http.StatusOK, userSummary{Email: claims.Email, Role: claims.Role})
	}
}

// writeServiceError maps a relayerr.Error onto its HTTP status and
// channel-facing message; unclassified errors fall back to 500.
func writeServiceError(c *gin.Context, err error) {
	status := relayerr.HTTPStatus(err)
	errorResponse(c, status, relayerr.UserMessage(err))
}
