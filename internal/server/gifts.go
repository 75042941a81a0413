package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	giftdomain "github.com/hilive/hilive/internal/gift/domain"
)

func (s *Server) ListGifts(c *gin.Context) {
	gifts, err := s.giftSvc.ListCatalog(c.Request.Context(), false)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"gifts": gifts}})
}

type sendGiftRequest struct {
	GiftCode string `json:"gift_code"`
	Count    int64  `json:"count"`
}

func (s *Server) SendGift(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	sessionID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req sendGiftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.Count == 0 {
		req.Count = 1
	}

	resp, err := s.giftSvc.Send(c.Request.Context(), giftdomain.SendGiftRequest{
		SessionID:    sessionID,
		SenderUserID: userID,
		GiftCode:     strings.TrimSpace(req.GiftCode),
		Count:        req.Count,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
