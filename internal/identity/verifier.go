// Package identity is the boundary to the external identity provider. The
// core trusts the verifier's answer and never re-verifies credentials.
package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/hilive/hilive/internal/config"
)

var ErrInvalidToken = errors.New("invalid_token")

// Identity is the verified principal behind a bearer credential.
type Identity struct {
	UserID snowflake.ID
}

// Verifier validates a bearer credential with the identity provider.
type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// HashToken hashes a raw bearer token the same way tokens are provisioned.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// StaticVerifier resolves tokens from a fixed table. Used for development and
// tests; production deployments swap in the provider-backed implementation.
type StaticVerifier struct {
	byHash map[string]snowflake.ID
}

// NewStaticVerifier parses "userID:token" pairs separated by commas.
func NewStaticVerifier(cfg config.Config) *StaticVerifier {
	v := &StaticVerifier{byHash: make(map[string]snowflake.ID)}
	for _, pair := range strings.Split(cfg.IdentityTokens, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, ":", 2)
		if len(parts) != 2 {
			continue
		}
		userID, err := snowflake.ParseString(strings.TrimSpace(parts[0]))
		if err != nil || userID == 0 {
			continue
		}
		v.byHash[HashToken(strings.TrimSpace(parts[1]))] = userID
	}
	return v
}

func (v *StaticVerifier) Verify(ctx context.Context, token string) (Identity, error) {
	_ = ctx
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, ErrInvalidToken
	}
	userID, ok := v.byHash[HashToken(token)]
	if !ok {
		return Identity{}, ErrInvalidToken
	}
	return Identity{UserID: userID}, nil
}
