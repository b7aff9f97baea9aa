package authcore

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// memoryProvider is an in-memory UserProvider for engine tests.
type memoryProvider struct {
	mu      sync.Mutex
	byID    map[string]UserRecord
	byEmail map[string]string
	byPhone map[string]string

	createCalls int
}

func newMemoryProvider() *memoryProvider {
	return &memoryProvider{
		byID:    map[string]UserRecord{},
		byEmail: map[string]string{},
		byPhone: map[string]string{},
	}
}

func (p *memoryProvider) GetUserByEmail(_ context.Context, email string) (UserRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id, ok := p.byEmail[email]
	if !ok {
		return UserRecord{}, ErrUserNotFound
	}
	return p.byID[id], nil
}

func (p *memoryProvider) GetUserByPhone(_ context.Context, phone string) (UserRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id, ok := p.byPhone[phone]
	if !ok {
		return UserRecord{}, ErrUserNotFound
	}
	return p.byID[id], nil
}

func (p *memoryProvider) GetUserByID(_ context.Context, userID string) (UserRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	user, ok := p.byID[userID]
	if !ok {
		return UserRecord{}, ErrUserNotFound
	}
	return user, nil
}

func (p *memoryProvider) CreateUser(_ context.Context, input CreateUserInput) (UserRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.createCalls++
	if input.Email != "" {
		if _, dup := p.byEmail[input.Email]; dup {
			return UserRecord{}, ErrDuplicateIdentity
		}
	}
	if input.Phone != "" {
		if _, dup := p.byPhone[input.Phone]; dup {
			return UserRecord{}, ErrDuplicateIdentity
		}
	}
	user := UserRecord{
		UserID:       input.UserID,
		Email:        input.Email,
		Phone:        input.Phone,
		PasswordHash: input.PasswordHash,
		Role:         input.Role,
		FirstName:    input.FirstName,
		LastName:     input.LastName,
		CreatedAt:    time.Now().Unix(),
	}
	p.byID[user.UserID] = user
	if user.Email != "" {
		p.byEmail[user.Email] = user.UserID
	}
	if user.Phone != "" {
		p.byPhone[user.Phone] = user.UserID
	}
	return user, nil
}

func (p *memoryProvider) UpdatePasswordHash(_ context.Context, userID, newHash string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	user, ok := p.byID[userID]
	if !ok {
		return ErrUserNotFound
	}
	user.PasswordHash = newHash
	p.byID[userID] = user
	return nil
}

func (p *memoryProvider) DeleteUser(_ context.Context, userID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	user, ok := p.byID[userID]
	if !ok {
		return ErrUserNotFound
	}
	delete(p.byID, userID)
	delete(p.byEmail, user.Email)
	delete(p.byPhone, user.Phone)
	return nil
}

func (p *memoryProvider) userCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.byID)
}

// recordingNotifier captures delivered codes per identifier.
type recordingNotifier struct {
	mu    sync.Mutex
	codes map[string]string
	fail  bool
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{codes: map[string]string{}}
}

func (n *recordingNotifier) SendCode(_ context.Context, identifier string, kind ChallengeKind, code string, _ time.Time) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return context.DeadlineExceeded
	}
	n.codes[identifier+"/"+kind.String()] = code
	return nil
}

func (n *recordingNotifier) lastCode(identifier string, kind ChallengeKind) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.codes[identifier+"/"+kind.String()]
}

type testHarness struct {
	engine   *Engine
	redis    *miniredis.Miniredis
	provider *memoryProvider
	notifier *recordingNotifier
}

func newTestEngine(t *testing.T, mutate func(*Config)) *testHarness {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	accessPub, accessPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate access key: %v", err)
	}
	refreshPub, refreshPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate refresh key: %v", err)
	}

	cfg := defaultConfig()
	cfg.Token.AccessPrivateKey = accessPriv
	cfg.Token.AccessPublicKey = accessPub
	cfg.Token.RefreshPrivateKey = refreshPriv
	cfg.Token.RefreshPublicKey = refreshPub
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.OTP.SweepInterval = 0
	cfg.Audit.Enabled = false
	if mutate != nil {
		mutate(&cfg)
	}

	provider := newMemoryProvider()
	notifier := newRecordingNotifier()

	engine, err := New().
		WithConfig(cfg).
		WithRedis(client).
		WithUserProvider(provider).
		WithNotifier(notifier).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)

	return &testHarness{engine: engine, redis: mr, provider: provider, notifier: notifier}
}

// registerUser runs the full two-step registration and returns the
// login result.
func (h *testHarness) registerUser(t *testing.T, ctx context.Context, email, pass string) *LoginResult {
	t.Helper()

	if _, err := h.engine.RequestRegistration(ctx, email); err != nil {
		t.Fatalf("RequestRegistration: %v", err)
	}
	code := h.notifier.lastCode(email, KindEmailVerification)
	if code == "" {
		t.Fatal("no code delivered")
	}
	result, err := h.engine.CompleteRegistration(ctx, RegistrationInput{
		Email:    email,
		Password: pass,
		Code:     code,
	})
	if err != nil {
		t.Fatalf("CompleteRegistration: %v", err)
	}
	return result
}

func deviceCtx(device string) context.Context {
	ctx := WithClientIP(context.Background(), "203.0.113.7")
	ctx = WithUserAgent(ctx, "quickmeds-app/2.4 (iOS)")
	return WithDeviceFingerprint(ctx, device)
}
