package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"relay/internal/identity"
)

type generateCodeResponse struct {
	Code      string `json:"code"`
	ExpiresAt string `json:"expires_at"`
	ExpiresIn int    `json:"expires_in"`
}

func handleGenerateCode(svc *identity.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := claimsFromContext(c)
		bc, err := svc.GenerateCode(c.Request.Context(), claims.Email)
		if err != nil {
			writeServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, generateCodeResponse{
			Code:      bc.Code,
			ExpiresAt: bc.ExpiresAt.Format(timeFormat),
			ExpiresIn: int(identity.BindingCodeTTL.Seconds()),
		})
	}
}

type bindingStatusResponse struct {
	Bound          bool   `json:"bound"`
	TelegramChatID string `json:"telegram_chat_id,omitempty"`
}

func handleBindingStatus(svc *identity.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := claimsFromContext(c)
		u, bound, err := svc.BindingStatus(c.Request.Context(), claims.Email)
		if err != nil {
			writeServiceError(c, err)
			return
		}
		resp := bindingStatusResponse{Bound: bound}
		if u != nil {
			resp.TelegramChatID = u.TelegramChatID
		}
		c.JSON(http.StatusOK, resp)
	}
}

const timeFormat = "2006-01-02T15:04:05Z07:00"
