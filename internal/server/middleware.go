package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/hilive/hilive/internal/usercontext"
)

// AuthRequired resolves the bearer token with the identity provider and
// installs the verified user ID on the request context. The token is never
// re-verified downstream.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		ident, err := s.verifier.Verify(c.Request.Context(), token)
		if err != nil {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		ctx := usercontext.WithUserID(c.Request.Context(), ident.UserID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func currentUserID(c *gin.Context) (snowflake.ID, bool) {
	userID, ok := usercontext.UserIDFromContext(c.Request.Context())
	if !ok || userID == 0 {
		AbortWithError(c, ErrUnauthorized)
		return 0, false
	}
	return userID, true
}
