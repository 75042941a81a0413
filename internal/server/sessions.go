package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	liveroomdomain "github.com/hilive/hilive/internal/liveroom/domain"
	"github.com/hilive/hilive/pkg/db/pagination"
)

type createSessionRequest struct {
	Kind       string `json:"kind"`
	ChairCount int    `json:"chair_count"`
	IsPrivate  bool   `json:"is_private"`
}

func (s *Server) CreateSession(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.liveroomSvc.CreateSession(c.Request.Context(), liveroomdomain.CreateSessionRequest{
		HostUserID: userID,
		Kind:       liveroomdomain.SessionKind(strings.TrimSpace(req.Kind)),
		ChairCount: req.ChairCount,
		IsPrivate:  req.IsPrivate,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetSession(c *gin.Context) {
	sessionID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	resp, err := s.liveroomSvc.GetSession(c.Request.Context(), sessionID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListSessions(c *gin.Context) {
	var query struct {
		pagination.Pagination
		Kind string `form:"kind"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.liveroomSvc.ListSessions(c.Request.Context(), liveroomdomain.ListSessionsRequest{
		Pagination: query.Pagination,
		Kind:       strings.TrimSpace(query.Kind),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) Heartbeat(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	sessionID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	if err := s.liveroomSvc.Heartbeat(c.Request.Context(), sessionID, userID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) EndSession(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	sessionID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	if err := s.liveroomSvc.EndSession(c.Request.Context(), sessionID, userID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
