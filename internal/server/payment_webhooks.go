package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	paymentdomain "github.com/hilive/hilive/internal/payment/domain"
)

// webhookEnvelope is the provider-agnostic shape every adapter normalizes
// to. The raw payload is still stored verbatim for later verification.
type webhookEnvelope struct {
	EventID  string `json:"event_id"`
	UserID   string `json:"user_id"`
	Coins    int64  `json:"coins"`
	Currency string `json:"currency"`
}

func (s *Server) HandlePaymentWebhook(c *gin.Context) {
	provider := strings.TrimSpace(c.Param("provider"))
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	var envelope webhookEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		AbortWithError(c, paymentdomain.ErrInvalidPayload)
		return
	}
	userID, err := snowflake.ParseString(strings.TrimSpace(envelope.UserID))
	if err != nil {
		userID = 0
	}

	event := paymentdomain.PaymentEvent{
		Provider:        provider,
		ProviderEventID: strings.TrimSpace(envelope.EventID),
		UserID:          userID,
		Coins:           envelope.Coins,
		Currency:        envelope.Currency,
	}
	if err := s.paymentSvc.ProcessEvent(c.Request.Context(), &event, payload); err != nil {
		// A replayed delivery already credited the user; acknowledge it so
		// the provider stops retrying.
		if errors.Is(err, paymentdomain.ErrDuplicateReference) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
			return
		}
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
