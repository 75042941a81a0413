package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	entitlementdomain "github.com/hilive/hilive/internal/entitlement/domain"
)

func (s *Server) ListEntitlements(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	grants, err := s.entitlementSvc.Get(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"entitlements": grants}})
}

type activateEntitlementRequest struct {
	Kind         string `json:"kind"`
	Tier         string `json:"tier"`
	Months       int    `json:"months"`
	TargetUserID string `json:"target_user_id"`
}

func (s *Server) ActivateEntitlement(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req activateEntitlementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	activateReq := entitlementdomain.ActivateRequest{
		UserID: userID,
		Kind:   entitlementdomain.Kind(strings.TrimSpace(req.Kind)),
		Tier:   strings.TrimSpace(req.Tier),
		Months: req.Months,
	}
	if target := strings.TrimSpace(req.TargetUserID); target != "" {
		targetID, ok := parseUserID(c, "target_user_id", target)
		if !ok {
			return
		}
		activateReq.TargetUserID = targetID
	}

	expiresAt, err := s.entitlementSvc.Activate(c.Request.Context(), activateReq)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"expires_at": expiresAt}})
}
