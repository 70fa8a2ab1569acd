package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"relay/internal/identity"
)

func handleCreateUser(svc *identity.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createUserRequest
		if err := bindJSON(c, &req); err != nil {
			errorResponse(c, http.StatusBadRequest, err.Error())
			return
		}
		role := identity.RoleUser
		if req.Role == string(identity.RoleAdmin) {
			role = identity.RoleAdmin
		}

		u, err := svc.CreateWebUser(c.Request.Context(), req.Email, req.Password, role)
		if err != nil {
			writeServiceError(c, err)
			return
		}
		c.JSON(http.StatusCreated, userSummary{Email: u.Email, Role: u.Role, RequirePasswordChange: u.RequirePasswordChange})
	}
}

func handleListUsers(svc *identity.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		users, err := svc.ListWebUsers(c.Request.Context())
		if err != nil {
			writeServiceError(c, err)
			return
		}
		out := make([]userSummary, 0, len(users))
		for _, u := range users {
			out = append(out, userSummary{Email: u.Email, Role: u.Role, RequirePasswordChange: u.RequirePasswordChange})
		}
		c.JSON(http.StatusOK, out)
	}
}

func handleSetUserPassword(svc *identity.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req setPasswordRequest
		if err := bindJSON(c, &req); err != nil {
			errorResponse(c, http.StatusBadRequest, err.Error())
			return
		}
		if err := svc.SetWebUserPassword(c.Request.Context(), c.Param("email"), req.Password); err != nil {
			writeServiceError(c, err)
			return
		}
		c.Status(http.StatusOK)
	}
}

func handleSetUserRole(svc *identity.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req setRoleRequest
		if err := bindJSON(c, &req); err != nil {
			errorResponse(c, http.StatusBadRequest, err.Error())
			return
		}
		role := identity.RoleUser
		if req.Role == string(identity.RoleAdmin) {
			role = identity.RoleAdmin
		}
		if err := svc.SetWebUserRole(c.Request.Context(), c.Param("email"), role); err != nil {
			writeServiceError(c, err)
			return
		}
		c.Status(http.StatusOK)
	}
}

func handleListBindings(svc *identity.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		bindings, err := svc.ListBindings(c.Request.Context())
		if err != nil {
			writeServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, bindings)
	}
}
