package callregistry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/hilive/hilive/internal/clock"
	"github.com/hilive/hilive/internal/config"
	"go.uber.org/zap"
)

func setupCallService(t *testing.T) (*Service, *clock.FakeClock) {
	t.Helper()
	fakeClock := clock.NewFakeClock(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	svc := NewService(Params{
		Log:   zap.NewNop(),
		Cfg:   &config.Config{CallTTL: 45 * time.Second},
		Store: NewMemoryStore(fakeClock),
	})
	return svc, fakeClock
}

func TestOfferAnswerRoundTrip(t *testing.T) {
	svc, _ := setupCallService(t)

	offer, err := svc.Offer(context.Background(), 101, 202)
	if err != nil {
		t.Fatalf("offer: %v", err)
	}
	if offer.Token == "" {
		t.Fatalf("expected token")
	}

	answered, err := svc.Answer(context.Background(), 202)
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if answered.CallerUserID != 101 {
		t.Fatalf("expected caller 101, got %v", answered.CallerUserID)
	}

	if _, err := svc.Answer(context.Background(), 202); !errors.Is(err, ErrCallNotFound) {
		t.Fatalf("expected ErrCallNotFound after answer, got %v", err)
	}
}

func TestSecondOfferRejectedWhileRinging(t *testing.T) {
	svc, fakeClock := setupCallService(t)

	if _, err := svc.Offer(context.Background(), 101, 202); err != nil {
		t.Fatalf("offer: %v", err)
	}
	if _, err := svc.Offer(context.Background(), 303, 202); !errors.Is(err, ErrCallExists) {
		t.Fatalf("expected ErrCallExists, got %v", err)
	}

	// After the TTL lapses the callee is free again.
	fakeClock.Advance(46 * time.Second)
	if _, err := svc.Offer(context.Background(), 303, 202); err != nil {
		t.Fatalf("offer after expiry: %v", err)
	}
}

func TestCancelRequiresToken(t *testing.T) {
	svc, _ := setupCallService(t)

	offer, err := svc.Offer(context.Background(), 101, 202)
	if err != nil {
		t.Fatalf("offer: %v", err)
	}

	if err := svc.Cancel(context.Background(), 202, "101:wrong"); !errors.Is(err, ErrTokenMismatch) {
		t.Fatalf("expected ErrTokenMismatch, got %v", err)
	}
	if err := svc.Cancel(context.Background(), 202, offer.Token); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := svc.Cancel(context.Background(), 202, offer.Token); !errors.Is(err, ErrCallNotFound) {
		t.Fatalf("expected ErrCallNotFound after cancel, got %v", err)
	}
}

func TestExtendKeepsOfferAlive(t *testing.T) {
	svc, fakeClock := setupCallService(t)

	offer, err := svc.Offer(context.Background(), 101, 202)
	if err != nil {
		t.Fatalf("offer: %v", err)
	}

	fakeClock.Advance(40 * time.Second)
	if err := svc.Extend(context.Background(), 202, offer.Token); err != nil {
		t.Fatalf("extend: %v", err)
	}

	fakeClock.Advance(40 * time.Second)
	if _, err := svc.Answer(context.Background(), 202); err != nil {
		t.Fatalf("answer after extend: %v", err)
	}
}

func TestOfferValidation(t *testing.T) {
	svc, _ := setupCallService(t)

	if _, err := svc.Offer(context.Background(), 0, 202); !errors.Is(err, ErrInvalidCall) {
		t.Fatalf("expected ErrInvalidCall, got %v", err)
	}
	if _, err := svc.Offer(context.Background(), 101, 101); !errors.Is(err, ErrInvalidCall) {
		t.Fatalf("self-call should be rejected, got %v", err)
	}
}

func TestConcurrentOffersSingleWinner(t *testing.T) {
	svc, _ := setupCallService(t)

	const callers = 8
	var wg sync.WaitGroup
	results := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(caller int64) {
			defer wg.Done()
			_, err := svc.Offer(context.Background(), snowflake.ID(caller), 202)
			results <- err
		}(int64(1000 + i))
	}
	wg.Wait()
	close(results)

	winners := 0
	for err := range results {
		if err == nil {
			winners++
		} else if !errors.Is(err, ErrCallExists) {
			t.Fatalf("unexpected offer error: %v", err)
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly 1 winning offer, got %d", winners)
	}
}
