// Package callregistry holds in-flight call offers. An offer is a key with
// an owner token and a TTL: whoever holds the token may release or extend
// it, and an unanswered offer simply times out.
package callregistry

import (
	"context"
	"errors"
	"time"
)

// Store is the TTL keyspace behind call signaling. Put has set-if-absent
// semantics so two concurrent offers to the same callee cannot both win.
type Store interface {
	Put(ctx context.Context, key, token string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	// Release deletes the key only while the token matches, so a stale
	// caller cannot tear down someone else's newer offer.
	Release(ctx context.Context, key, token string) error
	Extend(ctx context.Context, key, token string, ttl time.Duration) error
}

var (
	ErrCallExists    = errors.New("call_exists")
	ErrCallNotFound  = errors.New("call_not_found")
	ErrTokenMismatch = errors.New("call_token_mismatch")
)
