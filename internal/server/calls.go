package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

type offerCallRequest struct {
	CalleeUserID string `json:"callee_user_id"`
}

func (s *Server) OfferCall(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req offerCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	calleeID, ok := parseUserID(c, "callee_user_id", req.CalleeUserID)
	if !ok {
		return
	}

	offer, err := s.callSvc.Offer(c.Request.Context(), userID, calleeID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": offer})
}

func (s *Server) AnswerCall(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	offer, err := s.callSvc.Answer(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": offer})
}

type callTokenRequest struct {
	CalleeUserID string `json:"callee_user_id"`
	Token        string `json:"token"`
}

func (s *Server) CancelCall(c *gin.Context) {
	if _, ok := currentUserID(c); !ok {
		return
	}

	var req callTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	calleeID, ok := parseUserID(c, "callee_user_id", req.CalleeUserID)
	if !ok {
		return
	}

	if err := s.callSvc.Cancel(c.Request.Context(), calleeID, strings.TrimSpace(req.Token)); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) ExtendCall(c *gin.Context) {
	if _, ok := currentUserID(c); !ok {
		return
	}

	var req callTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	calleeID, ok := parseUserID(c, "callee_user_id", req.CalleeUserID)
	if !ok {
		return
	}

	if err := s.callSvc.Extend(c.Request.Context(), calleeID, strings.TrimSpace(req.Token)); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
