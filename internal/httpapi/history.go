package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"relay/internal/history"
	"relay/internal/identity"
	"relay/internal/relayerr"
)

const defaultHistoryLimit = 50

func handleListHistory(identitySvc *identity.Service, historySvc *history.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, err := unifiedUserID(c, identitySvc)
		if err != nil {
			writeServiceError(c, err)
			return
		}

		limit := queryInt(c, "limit", defaultHistoryLimit)
		lastKey := c.Query("last_key")
		channel := c.Query("channel")

		page, err := historySvc.ListHistory(c.Request.Context(), uid, lastKey, channel, limit)
		if err != nil {
			writeServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, page)
	}
}

func handleExportHistory(identitySvc *identity.Service, historySvc *history.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, err := unifiedUserID(c, identitySvc)
		if err != nil {
			writeServiceError(c, err)
			return
		}

		format := c.DefaultQuery("format", "json")
		switch format {
		case "markdown":
			md, err := historySvc.ExportMarkdown(c.Request.Context(), uid)
			if err != nil {
				writeServiceError(c, err)
				return
			}
			c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(md))
		case "json":
			data, err := historySvc.ExportJSON(c.Request.Context(), uid)
			if err != nil {
				writeServiceError(c, err)
				return
			}
			c.Data(http.StatusOK, "application/json; charset=utf-8", data)
		default:
			errorResponse(c, http.StatusBadRequest, "format must be json or markdown")
		}
	}
}

func handleHistoryStats(identitySvc *identity.Service, historySvc *history.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, err := unifiedUserID(c, identitySvc)
		if err != nil {
			writeServiceError(c, err)
			return
		}
		stats, err := historySvc.Stats(c.Request.Context(), uid)
		if err != nil {
			writeServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, stats)
	}
}

// unifiedUserID resolves the caller's web identity onto the unified
// identity graph, the join every history and conversation route needs
// since history is keyed by unified_user_id, not email.
func unifiedUserID(c *gin.Context, svc *identity.Service) (string, error) {
	claims := claimsFromContext(c)
	if claims == nil {
		return "", relayerr.New(relayerr.KindUnauthorized, "missing credentials")
	}
	u, err := svc.ResolveOrCreateWebUnifiedUser(c.Request.Context(), claims.Email)
	if err != nil {
		return "", err
	}
	return u.UnifiedUserID, nil
}

func queryInt(c *gin.Context, key string, def int) int {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
