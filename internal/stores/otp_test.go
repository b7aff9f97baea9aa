package stores

import (
	"context"
	"crypto/sha256"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const kindEmailVerification uint8 = 1

func newOTPTestStore(t *testing.T) (*OTPStore, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return NewOTPStore(rdb, "qo"), mr
}

func challenge(code string, ttl time.Duration) *ChallengeRecord {
	return &ChallengeRecord{
		Kind:      kindEmailVerification,
		ExpiresAt: time.Now().Add(ttl).Unix(),
		CodeHash:  sha256.Sum256([]byte(code)),
	}
}

func TestVerifyMatchKeepsRecordForGraceWindow(t *testing.T) {
	store, _ := newOTPTestStore(t)
	ctx := context.Background()

	if err := store.Replace(ctx, "a@x.com", challenge("123456", 5*time.Minute), 35*time.Minute); err != nil {
		t.Fatalf("replace failed: %v", err)
	}

	hash := sha256.Sum256([]byte("123456"))
	rec, err := store.Verify(ctx, "a@x.com", kindEmailVerification, hash, 5)
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if !rec.Verified || rec.VerifiedAt == 0 {
		t.Fatalf("verification not recorded: %+v", rec)
	}

	// Re-verifying an already verified, unconsumed challenge succeeds again.
	if _, err := store.Verify(ctx, "a@x.com", kindEmailVerification, hash, 5); err != nil {
		t.Fatalf("re-verify failed: %v", err)
	}
}

func TestConsumeIsSingleUse(t *testing.T) {
	store, _ := newOTPTestStore(t)
	ctx := context.Background()

	if err := store.Replace(ctx, "a@x.com", challenge("123456", 5*time.Minute), 35*time.Minute); err != nil {
		t.Fatalf("replace failed: %v", err)
	}

	hash := sha256.Sum256([]byte("123456"))
	if _, err := store.Verify(ctx, "a@x.com", kindEmailVerification, hash, 5); err != nil {
		t.Fatalf("verify failed: %v", err)
	}

	if _, err := store.Consume(ctx, "a@x.com", kindEmailVerification, hash, 30*time.Minute); err != nil {
		t.Fatalf("first consume failed: %v", err)
	}
	if _, err := store.Consume(ctx, "a@x.com", kindEmailVerification, hash, 30*time.Minute); !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("second consume must fail not-found, got %v", err)
	}
}

func TestConsumeRequiresPriorVerification(t *testing.T) {
	store, _ := newOTPTestStore(t)
	ctx := context.Background()

	if err := store.Replace(ctx, "a@x.com", challenge("123456", 5*time.Minute), 35*time.Minute); err != nil {
		t.Fatalf("replace failed: %v", err)
	}

	hash := sha256.Sum256([]byte("123456"))
	if _, err := store.Consume(ctx, "a@x.com", kindEmailVerification, hash, 30*time.Minute); !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("unverified consume must fail not-found, got %v", err)
	}
}

func TestAttemptsAreCappedAndCapDeletesRecord(t *testing.T) {
	store, _ := newOTPTestStore(t)
	ctx := context.Background()

	if err := store.Replace(ctx, "a@x.com", challenge("123456", 5*time.Minute), 35*time.Minute); err != nil {
		t.Fatalf("replace failed: %v", err)
	}

	wrong := sha256.Sum256([]byte("000000"))
	right := sha256.Sum256([]byte("123456"))

	for i := 0; i < 4; i++ {
		if _, err := store.Verify(ctx, "a@x.com", kindEmailVerification, wrong, 5); !errors.Is(err, ErrCodeMismatch) {
			t.Fatalf("attempt %d: expected code mismatch, got %v", i, err)
		}
	}

	// Fifth wrong attempt hits the cap and invalidates the challenge.
	if _, err := store.Verify(ctx, "a@x.com", kindEmailVerification, wrong, 5); !errors.Is(err, ErrAttemptsExceeded) {
		t.Fatalf("expected attempts exceeded, got %v", err)
	}

	// The correct code is useless afterwards: the record is gone.
	if _, err := store.Verify(ctx, "a@x.com", kindEmailVerification, right, 5); !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("capped challenge must be not-found, got %v", err)
	}
}

func TestReplaceDiscardsPriorChallenge(t *testing.T) {
	store, _ := newOTPTestStore(t)
	ctx := context.Background()

	if err := store.Replace(ctx, "a@x.com", challenge("111111", 5*time.Minute), 35*time.Minute); err != nil {
		t.Fatalf("replace failed: %v", err)
	}
	if err := store.Replace(ctx, "a@x.com", challenge("222222", 5*time.Minute), 35*time.Minute); err != nil {
		t.Fatalf("replace failed: %v", err)
	}

	oldHash := sha256.Sum256([]byte("111111"))
	if _, err := store.Verify(ctx, "a@x.com", kindEmailVerification, oldHash, 5); !errors.Is(err, ErrCodeMismatch) {
		t.Fatalf("old code must no longer match, got %v", err)
	}

	newHash := sha256.Sum256([]byte("222222"))
	if _, err := store.Verify(ctx, "a@x.com", kindEmailVerification, newHash, 5); err != nil {
		t.Fatalf("new code must verify: %v", err)
	}
}

func TestExpiredChallengeFailsLazily(t *testing.T) {
	store, _ := newOTPTestStore(t)
	ctx := context.Background()

	rec := challenge("123456", -time.Minute) // already past expiry
	if err := store.Replace(ctx, "a@x.com", rec, 35*time.Minute); err != nil {
		t.Fatalf("replace failed: %v", err)
	}

	hash := sha256.Sum256([]byte("123456"))
	if _, err := store.Verify(ctx, "a@x.com", kindEmailVerification, hash, 5); !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("expired challenge must be not-found, got %v", err)
	}
}

func TestSweepRemovesExpiredUnconsumed(t *testing.T) {
	store, _ := newOTPTestStore(t)
	ctx := context.Background()

	expired := challenge("111111", -time.Minute)
	live := challenge("222222", 5*time.Minute)

	if err := store.Replace(ctx, "old@x.com", expired, 35*time.Minute); err != nil {
		t.Fatalf("replace failed: %v", err)
	}
	if err := store.Replace(ctx, "new@x.com", live, 35*time.Minute); err != nil {
		t.Fatalf("replace failed: %v", err)
	}

	removed, err := store.Sweep(ctx, time.Now())
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removal, got %d", removed)
	}

	hash := sha256.Sum256([]byte("222222"))
	if _, err := store.Verify(ctx, "new@x.com", kindEmailVerification, hash, 5); err != nil {
		t.Fatalf("live challenge must survive sweep: %v", err)
	}
}
