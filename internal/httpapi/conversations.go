package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"relay/internal/history"
	"relay/internal/identity"
)

func handleListConversations(identitySvc *identity.Service, historySvc *history.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, err := unifiedUserID(c, identitySvc)
		if err != nil {
			writeServiceError(c, err)
			return
		}
		page, err := historySvc.ListConversations(c.Request.Context(), uid, c.Query("last_key"))
		if err != nil {
			writeServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, history.GroupByBucket(append(append([]history.Conversation{}, page.Pinned...), page.Recent...), time.Now()))
	}
}

func handleCreateConversation(identitySvc *identity.Service, historySvc *history.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, err := unifiedUserID(c, identitySvc)
		if err != nil {
			writeServiceError(c, err)
			return
		}
		var req createConversationRequest
		_ = bindJSON(c, &req)

		conv, err := historySvc.StartNew(c.Request.Context(), uid, req.Title, time.Now().UTC())
		if err != nil {
			writeServiceError(c, err)
			return
		}
		c.JSON(http.StatusCreated, conv)
	}
}

func handleGetConversationMessages(identitySvc *identity.Service, historySvc *history.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, err := unifiedUserID(c, identitySvc)
		if err != nil {
			writeServiceError(c, err)
			return
		}
		convID := c.Param("id")
		limit := queryInt(c, "limit", defaultHistoryLimit)

		messages, err := historySvc.ListMessages(c.Request.Context(), uid, convID, c.Query("last_key"), limit)
		if err != nil {
			writeServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, messages)
	}
}

func handleRenameConversation(identitySvc *identity.Service, historySvc *history.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, err := unifiedUserID(c, identitySvc)
		if err != nil {
			writeServiceError(c, err)
			return
		}
		var req renameConversationRequest
		if err := bindJSON(c, &req); err != nil {
			errorResponse(c, http.StatusBadRequest, err.Error())
			return
		}
		if err := historySvc.Rename(c.Request.Context(), uid, c.Param("id"), req.Title); err != nil {
			writeServiceError(c, err)
			return
		}
		c.Status(http.StatusOK)
	}
}

func handleSetPinned(identitySvc *identity.Service, historySvc *history.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, err := unifiedUserID(c, identitySvc)
		if err != nil {
			writeServiceError(c, err)
			return
		}
		var req setPinnedRequest
		if err := bindJSON(c, &req); err != nil {
			errorResponse(c, http.StatusBadRequest, err.Error())
			return
		}
		if err := historySvc.SetPinned(c.Request.Context(), uid, c.Param("id"), req.Pinned); err != nil {
			writeServiceError(c, err)
			return
		}
		c.Status(http.StatusOK)
	}
}

func handleDeleteConversation(identitySvc *identity.Service, historySvc *history.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, err := unifiedUserID(c, identitySvc)
		if err != nil {
			writeServiceError(c, err)
			return
		}
		if err := historySvc.SoftDelete(c.Request.Context(), uid, c.Param("id"), time.Now().UTC()); err != nil {
			writeServiceError(c, err)
			return
		}
		c.Status(http.StatusOK)
	}
}
