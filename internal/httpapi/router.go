package httpapi

import (
	"github.com/gin-gonic/gin"

	"relay/internal/history"
	"relay/internal/identity"
)

// RegisterRoutes mounts the full REST surface (spec §6) onto an existing
// gin engine or group, under the given path prefix group.
func RegisterRoutes(r gin.IRouter, identitySvc *identity.Service, historySvc *history.Service) {
	auth := r.Group("/auth")
	auth.POST("/login", handleLogin(identitySvc))
	auth.POST("/logout", handleLogout())
	auth.POST("/change-password", AuthMiddleware(identitySvc), handleChangePassword(identitySvc))
	auth.GET("/me", AuthMiddleware(identitySvc), handleMe())

	binding := r.Group("/binding", AuthMiddleware(identitySvc))
	binding.POST("/generate-code", handleGenerateCode(identitySvc))
	binding.GET("/status", handleBindingStatus(identitySvc))

	hist := r.Group("/history", AuthMiddleware(identitySvc))
	hist.GET("", handleListHistory(identitySvc, historySvc))
	hist.GET("/export", handleExportHistory(identitySvc, historySvc))
	hist.GET("/stats", handleHistoryStats(identitySvc, historySvc))

	conv := r.Group("/conversations", AuthMiddleware(identitySvc))
	conv.GET("", handleListConversations(identitySvc, historySvc))
	conv.POST("", handleCreateConversation(identitySvc, historySvc))
	conv.GET("/:id/messages", handleGetConversationMessages(identitySvc, historySvc))
	conv.PUT("/:id", handleRenameConversation(identitySvc, historySvc))
	conv.PUT("/:id/pin", handleSetPinned(identitySvc, historySvc))
	conv.DELETE("/:id", handleDeleteConversation(identitySvc, historySvc))

	admin := r.Group("/admin", AuthMiddleware(identitySvc), RequireAdmin())
	admin.POST("/users", handleCreateUser(identitySvc))
	admin.GET("/users", handleListUsers(identitySvc))
	admin.PUT("/users/:email/password", handleSetUserPassword(identitySvc))
	admin.PUT("/users/:email/role", handleSetUserRole(identitySvc))
	admin.GET("/bindings", handleListBindings(identitySvc))
}
