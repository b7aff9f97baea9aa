package refresh

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

var (
	errExpired = errors.New("access token expired")
	errBadSig  = errors.New("invalid signature")
	errServer  = errors.New("upstream unavailable")
)

func newTestCoordinator(t *testing.T, fn RefreshFunc) *Coordinator {
	t.Helper()
	c, err := NewCoordinator(Config{
		Refresh:         fn,
		IsExpired:       func(err error) bool { return errors.Is(err, errExpired) },
		IsUnrecoverable: func(err error) bool { return errors.Is(err, errBadSig) },
		Timeout:         2 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewCoordinator: %v", err)
	}
	c.SetTokens("access-1", "refresh-1")
	return c
}

func TestDoSuccessNoRefresh(t *testing.T) {
	var refreshes atomic.Int64
	c := newTestCoordinator(t, func(ctx context.Context, rt string) (string, error) {
		refreshes.Add(1)
		return "access-2", nil
	})

	var seen string
	err := c.Do(context.Background(), func(ctx context.Context, access string) error {
		seen = access
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if seen != "access-1" {
		t.Fatalf("ran with token %q, want access-1", seen)
	}
	if n := refreshes.Load(); n != 0 {
		t.Fatalf("refresh called %d times, want 0", n)
	}
}

func TestDoExpiredRefreshesAndRetriesOnce(t *testing.T) {
	var refreshes atomic.Int64
	c := newTestCoordinator(t, func(ctx context.Context, rt string) (string, error) {
		refreshes.Add(1)
		if rt != "refresh-1" {
			t.Errorf("refresh called with token %q, want refresh-1", rt)
		}
		return "access-2", nil
	})

	var attempts []string
	err := c.Do(context.Background(), func(ctx context.Context, access string) error {
		attempts = append(attempts, access)
		if access == "access-1" {
			return errExpired
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if len(attempts) != 2 || attempts[0] != "access-1" || attempts[1] != "access-2" {
		t.Fatalf("attempts = %v, want [access-1 access-2]", attempts)
	}
	if n := refreshes.Load(); n != 1 {
		t.Fatalf("refresh called %d times, want 1", n)
	}
	if got := c.State(); got != StateAuthenticated {
		t.Fatalf("state = %v, want authenticated", got)
	}
}

func TestConcurrentExpirySingleFlight(t *testing.T) {
	const callers = 20

	started := make(chan struct{})
	release := make(chan struct{})
	var refreshes atomic.Int64
	c := newTestCoordinator(t, func(ctx context.Context, rt string) (string, error) {
		refreshes.Add(1)
		close(started)
		<-release
		return "access-2", nil
	})

	var retried atomic.Int64
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = c.Do(context.Background(), func(ctx context.Context, access string) error {
				if access == "access-1" {
					return errExpired
				}
				retried.Add(1)
				return nil
			})
		}(i)
	}

	<-started
	// Give the remaining callers time to enqueue as waiters.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("caller %d: %v", i, err)
		}
	}
	if n := refreshes.Load(); n != 1 {
		t.Fatalf("refresh called %d times, want 1", n)
	}
	if n := retried.Load(); n != callers {
		t.Fatalf("%d callers retried, want %d", n, callers)
	}
}

func TestFailedFlightLogsOutAllWaiters(t *testing.T) {
	const callers = 8

	started := make(chan struct{})
	release := make(chan struct{})
	c := newTestCoordinator(t, func(ctx context.Context, rt string) (string, error) {
		close(started)
		<-release
		return "", errServer
	})

	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = c.Do(context.Background(), func(ctx context.Context, access string) error {
				return errExpired
			})
		}(i)
	}

	<-started
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i, err := range errs {
		if !errors.Is(err, ErrLoggedOut) {
			t.Fatalf("caller %d: err = %v, want ErrLoggedOut", i, err)
		}
	}
	if got := c.State(); got != StateLoggedOut {
		t.Fatalf("state = %v, want logged_out", got)
	}

	// Terminal state: further calls fail without touching the transport.
	err := c.Do(context.Background(), func(ctx context.Context, access string) error {
		t.Fatal("request ran after logout")
		return nil
	})
	if !errors.Is(err, ErrLoggedOut) {
		t.Fatalf("post-logout Do = %v, want ErrLoggedOut", err)
	}
}

func TestSecondExpiryAfterRetryIsHardLogout(t *testing.T) {
	var refreshes atomic.Int64
	c := newTestCoordinator(t, func(ctx context.Context, rt string) (string, error) {
		refreshes.Add(1)
		return "access-2", nil
	})

	err := c.Do(context.Background(), func(ctx context.Context, access string) error {
		return errExpired
	})
	if !errors.Is(err, ErrLoggedOut) {
		t.Fatalf("Do = %v, want ErrLoggedOut", err)
	}
	if n := refreshes.Load(); n != 1 {
		t.Fatalf("refresh called %d times, want exactly 1", n)
	}
	if got := c.State(); got != StateLoggedOut {
		t.Fatalf("state = %v, want logged_out", got)
	}
}

func TestUnrecoverableErrorBypassesRefresh(t *testing.T) {
	var refreshes atomic.Int64
	c := newTestCoordinator(t, func(ctx context.Context, rt string) (string, error) {
		refreshes.Add(1)
		return "access-2", nil
	})

	err := c.Do(context.Background(), func(ctx context.Context, access string) error {
		return errBadSig
	})
	if !errors.Is(err, ErrLoggedOut) {
		t.Fatalf("Do = %v, want ErrLoggedOut", err)
	}
	if n := refreshes.Load(); n != 0 {
		t.Fatalf("refresh called %d times, want 0", n)
	}
}

func TestNonAuthErrorPassesThrough(t *testing.T) {
	c := newTestCoordinator(t, func(ctx context.Context, rt string) (string, error) {
		t.Fatal("refresh should not run")
		return "", nil
	})

	err := c.Do(context.Background(), func(ctx context.Context, access string) error {
		return errServer
	})
	if !errors.Is(err, errServer) {
		t.Fatalf("Do = %v, want passthrough of transport error", err)
	}
	if got := c.State(); got != StateAuthenticated {
		t.Fatalf("state = %v, want authenticated", got)
	}
}

func TestWithoutClassifierNonExpiryErrorsPassThrough(t *testing.T) {
	c, err := NewCoordinator(Config{
		Refresh: func(ctx context.Context, rt string) (string, error) {
			t.Fatal("refresh should not run")
			return "", nil
		},
		IsExpired: func(err error) bool { return errors.Is(err, errExpired) },
		Timeout:   2 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewCoordinator: %v", err)
	}
	c.SetTokens("access-1", "refresh-1")

	// With no IsUnrecoverable classifier, a signature rejection is
	// indistinguishable from a transport failure and must pass through
	// without a logout.
	doErr := c.Do(context.Background(), func(ctx context.Context, access string) error {
		return errBadSig
	})
	if !errors.Is(doErr, errBadSig) {
		t.Fatalf("Do = %v, want passthrough of unclassified error", doErr)
	}
	if got := c.State(); got != StateAuthenticated {
		t.Fatalf("state = %v, want authenticated", got)
	}
}

func TestLateCallerSkipsFlightWhenTokenAlreadyRotated(t *testing.T) {
	var refreshes atomic.Int64
	c := newTestCoordinator(t, func(ctx context.Context, rt string) (string, error) {
		refreshes.Add(1)
		return "access-2", nil
	})

	// First caller rotates the token.
	if err := c.Do(context.Background(), func(ctx context.Context, access string) error {
		if access == "access-1" {
			return errExpired
		}
		return nil
	}); err != nil {
		t.Fatalf("first caller: %v", err)
	}

	// Second caller read access-1 before the rotation; awaitRefresh
	// must hand it the rotated token without a second flight.
	got, err := c.awaitRefresh(context.Background(), "access-1")
	if err != nil {
		t.Fatalf("awaitRefresh: %v", err)
	}
	if got != "access-2" {
		t.Fatalf("awaitRefresh returned %q, want access-2", got)
	}
	if n := refreshes.Load(); n != 1 {
		t.Fatalf("refresh called %d times, want 1", n)
	}
}

func TestWaiterContextCancellation(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	c := newTestCoordinator(t, func(ctx context.Context, rt string) (string, error) {
		close(started)
		<-release
		return "access-2", nil
	})

	leaderDone := make(chan error, 1)
	go func() {
		leaderDone <- c.Do(context.Background(), func(ctx context.Context, access string) error {
			if access == "access-1" {
				return errExpired
			}
			return nil
		})
	}()
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	waiterDone := make(chan error, 1)
	go func() {
		waiterDone <- c.Do(ctx, func(ctx context.Context, access string) error {
			if access == "access-1" {
				return errExpired
			}
			return nil
		})
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()

	if err := <-waiterDone; !errors.Is(err, context.Canceled) {
		t.Fatalf("waiter err = %v, want context.Canceled", err)
	}

	// The flight itself is unaffected by the waiter's cancellation.
	close(release)
	if err := <-leaderDone; err != nil {
		t.Fatalf("leader err = %v", err)
	}
	if got := c.State(); got != StateAuthenticated {
		t.Fatalf("state = %v, want authenticated", got)
	}
}

func TestNewCoordinatorValidation(t *testing.T) {
	if _, err := NewCoordinator(Config{IsExpired: func(error) bool { return false }}); err == nil {
		t.Fatal("expected error for missing Refresh")
	}
	if _, err := NewCoordinator(Config{Refresh: func(context.Context, string) (string, error) { return "", nil }}); err == nil {
		t.Fatal("expected error for missing IsExpired")
	}
	c, err := NewCoordinator(Config{
		Refresh:   func(context.Context, string) (string, error) { return "", nil },
		IsExpired: func(error) bool { return false },
	})
	if err != nil {
		t.Fatalf("NewCoordinator: %v", err)
	}
	if got := c.State(); got != StateLoggedOut {
		t.Fatalf("fresh coordinator state = %v, want logged_out until SetTokens", got)
	}
}
