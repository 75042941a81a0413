package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/hilive/hilive/internal/callregistry"
	entitlementdomain "github.com/hilive/hilive/internal/entitlement/domain"
	giftdomain "github.com/hilive/hilive/internal/gift/domain"
	"github.com/hilive/hilive/internal/identity"
	liveroomdomain "github.com/hilive/hilive/internal/liveroom/domain"
	paymentdomain "github.com/hilive/hilive/internal/payment/domain"
	walletdomain "github.com/hilive/hilive/internal/wallet/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, identity.ErrInvalidToken):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, liveroomdomain.ErrNotHost),
		errors.Is(err, callregistry.ErrTokenMismatch):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case errors.Is(err, walletdomain.ErrInsufficientFunds):
		return http.StatusPaymentRequired, errorPayload{
			Type:    "insufficient_funds",
			Message: "insufficient funds",
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: conflictMessage(err),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, liveroomdomain.ErrInvalidKind),
		errors.Is(err, liveroomdomain.ErrInvalidChairCount),
		errors.Is(err, liveroomdomain.ErrInvalidSeat),
		errors.Is(err, liveroomdomain.ErrInvalidAction),
		errors.Is(err, liveroomdomain.ErrInvalidUser),
		errors.Is(err, liveroomdomain.ErrInvalidAmount),
		errors.Is(err, liveroomdomain.ErrInvalidPageToken),
		errors.Is(err, walletdomain.ErrInvalidUser),
		errors.Is(err, walletdomain.ErrInvalidCurrency),
		errors.Is(err, walletdomain.ErrInvalidAmount),
		errors.Is(err, walletdomain.ErrInvalidType),
		errors.Is(err, walletdomain.ErrInvalidPageToken),
		errors.Is(err, entitlementdomain.ErrInvalidUser),
		errors.Is(err, entitlementdomain.ErrInvalidKind),
		errors.Is(err, entitlementdomain.ErrInvalidTier),
		errors.Is(err, entitlementdomain.ErrInvalidDuration),
		errors.Is(err, entitlementdomain.ErrMissingTarget),
		errors.Is(err, giftdomain.ErrInvalidCount),
		errors.Is(err, giftdomain.ErrInvalidSender),
		errors.Is(err, paymentdomain.ErrInvalidEvent),
		errors.Is(err, paymentdomain.ErrInvalidProvider),
		errors.Is(err, paymentdomain.ErrInvalidPayload),
		errors.Is(err, callregistry.ErrInvalidCall):
		return true
	default:
		return false
	}
}

// isConflictError covers both true write conflicts and requests rejected
// because the target is in a state that forbids the operation.
func isConflictError(err error) bool {
	switch {
	case errors.Is(err, ErrConflict),
		errors.Is(err, liveroomdomain.ErrSeatOccupied),
		errors.Is(err, liveroomdomain.ErrSessionEnded),
		errors.Is(err, liveroomdomain.ErrUserRemoved),
		errors.Is(err, liveroomdomain.ErrNotInSeat),
		errors.Is(err, liveroomdomain.ErrSeatMismatch),
		errors.Is(err, liveroomdomain.ErrNotPartySession),
		errors.Is(err, giftdomain.ErrGiftInactive),
		errors.Is(err, paymentdomain.ErrDuplicateReference),
		errors.Is(err, paymentdomain.ErrPaymentNotVerified),
		errors.Is(err, paymentdomain.ErrAmountMismatch),
		errors.Is(err, callregistry.ErrCallExists):
		return true
	default:
		return false
	}
}

func conflictMessage(err error) string {
	switch {
	case errors.Is(err, liveroomdomain.ErrSeatOccupied):
		return "seat occupied"
	case errors.Is(err, liveroomdomain.ErrSessionEnded):
		return "session ended"
	case errors.Is(err, liveroomdomain.ErrUserRemoved):
		return "user removed from session"
	case errors.Is(err, callregistry.ErrCallExists):
		return "callee already ringing"
	default:
		return "conflict"
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, liveroomdomain.ErrSessionNotFound),
		errors.Is(err, giftdomain.ErrGiftNotFound),
		errors.Is(err, paymentdomain.ErrProviderNotFound),
		errors.Is(err, callregistry.ErrCallNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) string {
	if errors.Is(err, ErrInvalidRequest) {
		return "invalid_request"
	}
	return err.Error()
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	if strings.HasPrefix(code, "missing_") {
		return strings.TrimPrefix(code, "missing_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	default:
		return "invalid value"
	}
}
