package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// State describes the coordinator's position in its lifecycle.
type State uint8

const (
	// StateAuthenticated means the stored access token is presumed valid.
	StateAuthenticated State = iota

	// StateRefreshing means a refresh flight is running. New callers
	// that hit an expired token enqueue as waiters instead of starting
	// their own flight.
	StateRefreshing

	// StateLoggedOut is terminal. Every subsequent call fails with
	// ErrLoggedOut until SetTokens installs a fresh pair.
	StateLoggedOut
)

func (s State) String() string {
	switch s {
	case StateAuthenticated:
		return "authenticated"
	case StateRefreshing:
		return "refreshing"
	case StateLoggedOut:
		return "logged_out"
	default:
		return "unknown"
	}
}

// ErrLoggedOut reports that the coordinator has entered the terminal
// logged-out state. Callers unwrap it with errors.Is.
var ErrLoggedOut = errors.New("refresh: client logged out")

// defaultFlightTimeout bounds a refresh call when Config.Timeout is zero.
const defaultFlightTimeout = 10 * time.Second

// RefreshFunc exchanges the stored refresh token for a new access
// token. It runs on a detached context so one caller's cancellation
// cannot strand the waiters sharing the flight.
type RefreshFunc func(ctx context.Context, refreshToken string) (accessToken string, err error)

// Config wires a Coordinator to its host transport.
type Config struct {
	// Refresh performs the actual token exchange. Required.
	Refresh RefreshFunc

	// IsExpired classifies a request error as an access-token expiry,
	// the only error class that triggers a refresh. Required.
	IsExpired func(error) bool

	// IsUnrecoverable classifies a request error as one no refresh can
	// repair, such as a bad signature or wrong token class. Such errors
	// log the client out without attempting a flight. When unset, only
	// expiry triggers state transitions: every other error passes
	// through unchanged and the client stays authenticated. Hosts that
	// want hard logout on signature rejections must wire this.
	IsUnrecoverable func(error) bool

	// Timeout bounds each refresh flight. Zero means 10 seconds.
	Timeout time.Duration
}

type flightResult struct {
	accessToken string
	err         error
}

// Coordinator serializes refresh attempts across concurrent requests.
// The zero value is not usable; construct with NewCoordinator.
type Coordinator struct {
	cfg Config

	mu           sync.Mutex
	state        State
	accessToken  string
	refreshToken string
	waiters      []chan flightResult
}

// NewCoordinator validates cfg and returns a Coordinator in the
// logged-out state. Call SetTokens after the initial login.
func NewCoordinator(cfg Config) (*Coordinator, error) {
	if cfg.Refresh == nil {
		return nil, errors.New("refresh: Config.Refresh is required")
	}
	if cfg.IsExpired == nil {
		return nil, errors.New("refresh: Config.IsExpired is required")
	}
	if cfg.Timeout < 0 {
		return nil, errors.New("refresh: Config.Timeout must not be negative")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultFlightTimeout
	}
	return &Coordinator{cfg: cfg, state: StateLoggedOut}, nil
}

// SetTokens installs a token pair, typically right after login, and
// moves the coordinator to the authenticated state.
func (c *Coordinator) SetTokens(accessToken, refreshToken string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = accessToken
	c.refreshToken = refreshToken
	c.state = StateAuthenticated
}

// State returns the current lifecycle state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// AccessToken returns the currently stored access token.
func (c *Coordinator) AccessToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessToken
}

// Do runs fn with the current access token. If fn reports an expired
// token, Do joins or starts a single refresh flight and retries fn
// exactly once with the new token. A second expiry, an unrecoverable
// rejection, or a failed flight logs the client out.
func (c *Coordinator) Do(ctx context.Context, fn func(ctx context.Context, accessToken string) error) error {
	c.mu.Lock()
	if c.state == StateLoggedOut {
		c.mu.Unlock()
		return ErrLoggedOut
	}
	access := c.accessToken
	c.mu.Unlock()

	err := fn(ctx, access)
	if err == nil {
		return nil
	}
	if c.cfg.IsUnrecoverable != nil && c.cfg.IsUnrecoverable(err) {
		c.logout()
		return fmt.Errorf("%w: %v", ErrLoggedOut, err)
	}
	if !c.cfg.IsExpired(err) {
		return err
	}

	newAccess, rerr := c.awaitRefresh(ctx, access)
	if rerr != nil {
		return rerr
	}

	err = fn(ctx, newAccess)
	if err == nil {
		return nil
	}
	if c.cfg.IsExpired(err) || (c.cfg.IsUnrecoverable != nil && c.cfg.IsUnrecoverable(err)) {
		c.logout()
		return fmt.Errorf("%w: retry rejected: %v", ErrLoggedOut, err)
	}
	return err
}

// awaitRefresh returns a usable access token, either by leading a new
// flight, by waiting on the in-flight one, or by observing that another
// flight already replaced staleAccess since the caller read it.
func (c *Coordinator) awaitRefresh(ctx context.Context, staleAccess string) (string, error) {
	c.mu.Lock()
	switch c.state {
	case StateLoggedOut:
		c.mu.Unlock()
		return "", ErrLoggedOut

	case StateRefreshing:
		ch := make(chan flightResult, 1)
		c.waiters = append(c.waiters, ch)
		c.mu.Unlock()
		select {
		case res := <-ch:
			return res.accessToken, res.err
		case <-ctx.Done():
			return "", ctx.Err()
		}

	default:
		// A flight that completed between this caller's failed request
		// and now already produced a newer token.
		if c.accessToken != staleAccess {
			access := c.accessToken
			c.mu.Unlock()
			return access, nil
		}
		c.state = StateRefreshing
		refreshToken := c.refreshToken
		c.mu.Unlock()
		return c.lead(refreshToken)
	}
}

// lead runs the refresh flight and fans its outcome out to every
// waiter. The lock is never held across the network call.
func (c *Coordinator) lead(refreshToken string) (string, error) {
	fctx, cancel := context.WithTimeout(context.Background(), c.cfg.Timeout)
	access, err := c.cfg.Refresh(fctx, refreshToken)
	cancel()

	c.mu.Lock()
	waiters := c.waiters
	c.waiters = nil
	if err != nil {
		c.state = StateLoggedOut
		c.accessToken = ""
		c.refreshToken = ""
		c.mu.Unlock()
		err = fmt.Errorf("%w: refresh failed: %v", ErrLoggedOut, err)
		for _, w := range waiters {
			w <- flightResult{err: err}
		}
		return "", err
	}
	c.state = StateAuthenticated
	c.accessToken = access
	c.mu.Unlock()
	for _, w := range waiters {
		w <- flightResult{accessToken: access}
	}
	return access, nil
}

func (c *Coordinator) logout() {
	c.mu.Lock()
	c.state = StateLoggedOut
	c.accessToken = ""
	c.refreshToken = ""
	c.mu.Unlock()
}
