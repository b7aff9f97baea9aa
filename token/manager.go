package token

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SigningMethod selects the signature algorithm for both token classes.
type SigningMethod string

const (
	// MethodEd25519 signs with Ed25519 key pairs (default).
	MethodEd25519 SigningMethod = "ed25519"
	// MethodHS256 signs with symmetric HMAC-SHA256 secrets.
	MethodHS256 SigningMethod = "hs256"
)

const (
	// TypeAccess is the type claim carried by access tokens.
	TypeAccess = "access"
	// TypeRefresh is the type claim carried by refresh tokens.
	TypeRefresh = "refresh"
)

var (
	// ErrExpired marks a structurally valid, correctly signed token whose
	// expiry has passed. This is the only failure that may drive a client
	// refresh attempt.
	ErrExpired = errors.New("token expired")
	// ErrInvalid marks signature failures, malformed tokens, and type
	// mismatches. Never retried.
	ErrInvalid = errors.New("token invalid")
)

// Config holds the issuance parameters and the per-class key material.
type Config struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	SigningMethod SigningMethod

	// Private keys sign; public keys verify (ed25519 only). HS256 uses the
	// private key for both directions.
	AccessPrivateKey  []byte
	AccessPublicKey   []byte
	RefreshPrivateKey []byte
	RefreshPublicKey  []byte

	Issuer string
	Leeway time.Duration
}

// Claims is the claim set carried by both token classes. Role is present
// on access tokens only; SessionID binds a refresh token to the session
// it was issued for.
type Claims struct {
	UserID    string `json:"id"`
	Email     string `json:"email"`
	Role      string `json:"role,omitempty"`
	SessionID string `json:"sid,omitempty"`
	TokenType string `json:"type"`
	jwt.RegisteredClaims
}

// Manager mints and verifies access and refresh tokens. Safe for
// concurrent use after construction.
type Manager struct {
	config Config
}

// NewManager validates the configuration and key material up front so
// that issuance never fails on malformed keys at request time.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.RefreshTTL <= cfg.AccessTTL {
		return nil, errors.New("refresh TTL must exceed access TTL")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}

	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.AccessPrivateKey) == 0 || len(cfg.RefreshPrivateKey) == 0 {
			return nil, errors.New("hs256 requires access and refresh secrets")
		}
		if string(cfg.AccessPrivateKey) == string(cfg.RefreshPrivateKey) {
			return nil, errors.New("access and refresh secrets must differ")
		}
	case MethodEd25519:
		for _, key := range [][]byte{cfg.AccessPrivateKey, cfg.RefreshPrivateKey} {
			if _, err := parseEdPrivateKey(key); err != nil {
				return nil, err
			}
		}
		for _, key := range [][]byte{cfg.AccessPublicKey, cfg.RefreshPublicKey} {
			if _, err := parseEdPublicKey(key); err != nil {
				return nil, err
			}
		}
	default:
		return nil, errors.New("unsupported signing method")
	}

	return &Manager{config: cfg}, nil
}

// IssueAccess mints a short-lived access token for the given principal.
func (m *Manager) IssueAccess(userID, email, role, sessionID string) (string, time.Time, error) {
	return m.issue(TypeAccess, userID, email, role, sessionID, m.config.AccessTTL, m.config.AccessPrivateKey)
}

// IssueRefresh mints a refresh token bound to sessionID. The caller is
// responsible for persisting its hash; the manager never stores tokens.
func (m *Manager) IssueRefresh(userID, email, sessionID string) (string, time.Time, error) {
	return m.issue(TypeRefresh, userID, email, "", sessionID, m.config.RefreshTTL, m.config.RefreshPrivateKey)
}

func (m *Manager) issue(tokenType, userID, email, role, sessionID string, ttl time.Duration, key []byte) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(ttl)

	claims := Claims{
		UserID:    userID,
		Email:     email,
		Role:      role,
		SessionID: sessionID,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			// Timestamps have second granularity and Ed25519 signatures
			// are deterministic; the jti keeps every issuance distinct so
			// persisting a new refresh hash always invalidates the prior
			// token.
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    m.config.Issuer,
		},
	}

	signKey, err := m.signKey(key)
	if err != nil {
		return "", time.Time{}, err
	}

	signed, err := jwt.NewWithClaims(m.method(), claims).SignedString(signKey)
	if err != nil {
		return "", time.Time{}, err
	}

	return signed, expiresAt, nil
}

// ParseAccess verifies an access token against the access key set.
// Expired-but-valid tokens fail with [ErrExpired]; everything else fails
// with [ErrInvalid].
func (m *Manager) ParseAccess(tokenStr string) (*Claims, error) {
	return m.parse(tokenStr, TypeAccess, m.config.AccessPrivateKey, m.config.AccessPublicKey)
}

// ParseRefresh verifies a refresh token against the refresh key set.
func (m *Manager) ParseRefresh(tokenStr string) (*Claims, error) {
	return m.parse(tokenStr, TypeRefresh, m.config.RefreshPrivateKey, m.config.RefreshPublicKey)
}

func (m *Manager) parse(tokenStr, wantType string, privateKey, publicKey []byte) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.method().Alg()}),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	parsed, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != m.method().Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return m.verifyKey(privateKey, publicKey)
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, ErrInvalid
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalid
	}
	if claims.TokenType != wantType {
		return nil, ErrInvalid
	}
	if claims.UserID == "" {
		return nil, ErrInvalid
	}

	return claims, nil
}

func (m *Manager) method() jwt.SigningMethod {
	switch m.config.SigningMethod {
	case MethodHS256:
		return jwt.SigningMethodHS256
	default:
		return jwt.SigningMethodEdDSA
	}
}

func (m *Manager) signKey(privateKey []byte) (interface{}, error) {
	switch m.config.SigningMethod {
	case MethodHS256:
		return privateKey, nil
	default:
		return parseEdPrivateKey(privateKey)
	}
}

func (m *Manager) verifyKey(privateKey, publicKey []byte) (interface{}, error) {
	switch m.config.SigningMethod {
	case MethodHS256:
		return privateKey, nil
	default:
		return parseEdPublicKey(publicKey)
	}
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
