package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	walletdomain "github.com/hilive/hilive/internal/wallet/domain"
	"github.com/hilive/hilive/pkg/db/pagination"
)

func (s *Server) GetWallet(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	balance, err := s.walletSvc.Get(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": balance})
}

func (s *Server) ListWalletTransactions(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var query struct {
		pagination.Pagination
		Currency string `form:"currency"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.walletSvc.ListTransactions(c.Request.Context(), walletdomain.ListTransactionsRequest{
		Pagination: query.Pagination,
		UserID:     userID,
		Currency:   strings.TrimSpace(query.Currency),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
