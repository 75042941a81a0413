package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	liveroomdomain "github.com/hilive/hilive/internal/liveroom/domain"
)

func (s *Server) JoinSeat(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	sessionID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	seatIdx, ok := parseSeatIdx(c)
	if !ok {
		return
	}

	seat, err := s.liveroomSvc.JoinSeat(c.Request.Context(), sessionID, seatIdx, userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": seat})
}

func (s *Server) LeaveSeat(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	sessionID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	seatIdx, ok := parseSeatIdx(c)
	if !ok {
		return
	}

	if err := s.liveroomSvc.LeaveSeat(c.Request.Context(), sessionID, seatIdx, userID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type hostActionRequest struct {
	TargetUserID string `json:"target_user_id"`
	SeatIdx      int    `json:"seat_idx"`
	Action       string `json:"action"`
}

func (s *Server) HostAction(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	sessionID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req hostActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	targetID, ok := parseUserID(c, "target_user_id", req.TargetUserID)
	if !ok {
		return
	}

	err := s.liveroomSvc.HostAction(c.Request.Context(), liveroomdomain.HostActionRequest{
		SessionID:    sessionID,
		ActorUserID:  userID,
		TargetUserID: targetID,
		SeatIdx:      req.SeatIdx,
		Action:       liveroomdomain.HostActionKind(strings.TrimSpace(req.Action)),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) JoinAsViewer(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	sessionID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	viewers, err := s.liveroomSvc.JoinAsViewer(c.Request.Context(), sessionID, userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"viewers": viewers}})
}

func (s *Server) LeaveAsViewer(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	sessionID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	if err := s.liveroomSvc.LeaveAsViewer(c.Request.Context(), sessionID, userID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func parseSeatIdx(c *gin.Context) (int, bool) {
	idx, err := strconv.Atoi(strings.TrimSpace(c.Param("idx")))
	if err != nil || idx < 0 {
		AbortWithError(c, newValidationError("idx", "invalid_seat", "invalid seat index"))
		return 0, false
	}
	return idx, true
}
