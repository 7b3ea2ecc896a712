package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrInvalid covers malformed input, signature mismatch, unexpected algorithm or kid,
	// wrong issuer/audience and wrong token kind. Callers cannot tell these apart.
	ErrInvalid = errors.New("invalid token")
	// ErrExpired is returned by Verify for a well-signed token whose window has passed.
	ErrExpired = errors.New("token expired")
)

// SigningMethod selects the JWT algorithm.
type SigningMethod string

const (
	// MethodEd25519 signs with EdDSA over Ed25519 keys.
	MethodEd25519 SigningMethod = "ed25519"
	// MethodHS256 signs with HMAC-SHA256 over a shared secret.
	MethodHS256 SigningMethod = "hs256"
)

// Kind distinguishes access credentials from refresh credentials. The two kinds differ
// only in lifetime and in which operations accept them.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

// Config holds signing keys and lifetimes for a [Manager].
//
// Config instances are intended to be configured during initialization and then treated as immutable.
type Config struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	MaxFutureIAT  time.Duration
	KeyID         string
	VerifyKeys    map[string][]byte

	// Now overrides the clock. Nil means time.Now.
	Now func() time.Time
}

// Manager is the token codec: it mints credentials and recovers their claims.
//
// Manager is safe for concurrent use.
type Manager struct {
	config Config
}

// Claims is the signed payload of both credential kinds.
type Claims struct {
	Identity  string `json:"idn,omitempty"`
	Authority string `json:"auth,omitempty"`
	Kind      Kind   `json:"typ"`
	jwt.RegisteredClaims
}

// SubjectID returns the subject the credential was minted for.
func (c *Claims) SubjectID() string {
	if c == nil {
		return ""
	}
	return c.Subject
}

// ExpiresAtTime returns the embedded expiry, or the zero time when absent.
func (c *Claims) ExpiresAtTime() time.Time {
	if c == nil || c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// NewManager validates cfg and returns a Manager.
//
// NewManager may return an error when lifetimes are not positive, keys cannot be parsed,
// or the signing method is unsupported.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.RefreshTTL < cfg.AccessTTL {
		return nil, errors.New("refresh TTL must not be shorter than access TTL")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 10 * time.Minute
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("invalid MaxFutureIAT configuration")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)
	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) == 0 {
			return nil, errors.New("hs256 requires private key")
		}
	case MethodEd25519:
		if len(cfg.PrivateKey) > 0 {
			if _, err := parseEdPrivateKey(cfg.PrivateKey); err != nil {
				return nil, err
			}
		}
		if len(cfg.PublicKey) > 0 {
			if _, err := parseEdPublicKey(cfg.PublicKey); err != nil {
				return nil, err
			}
		}
		if len(cfg.VerifyKeys) == 0 && len(cfg.PublicKey) == 0 {
			return nil, errors.New("ed25519 requires public key or verify key set")
		}
		for kid, key := range cfg.VerifyKeys {
			if strings.TrimSpace(kid) == "" {
				return nil, errors.New("verify key map contains empty kid")
			}
			if _, err := parseEdPublicKey(key); err != nil {
				return nil, fmt.Errorf("invalid ed25519 verify key for kid %q: %w", kid, err)
			}
		}
	default:
		return nil, errors.New("unsupported signing method")
	}
	if cfg.KeyID != "" && len(cfg.VerifyKeys) > 0 {
		if _, ok := cfg.VerifyKeys[cfg.KeyID]; !ok {
			return nil, errors.New("KeyID is not present in VerifyKeys")
		}
	}

	return &Manager{config: cfg}, nil
}

// TTL returns the configured lifetime for kind.
func (j *Manager) TTL(kind Kind) time.Duration {
	if kind == KindRefresh {
		return j.config.RefreshTTL
	}
	return j.config.AccessTTL
}

// Now returns the manager's clock reading.
func (j *Manager) Now() time.Time {
	return j.config.Now()
}

// Mint signs a new credential of the given kind. issuedAt and expiresAt are computed from
// the manager clock and the kind's lifetime; every token carries a fresh random jti so two
// tokens minted within the same second never collide.
func (j *Manager) Mint(kind Kind, subjectID, identity, authority string) (string, error) {
	if kind != KindAccess && kind != KindRefresh {
		return "", fmt.Errorf("unknown token kind %q", kind)
	}
	if subjectID == "" {
		return "", errors.New("subject id required")
	}

	now := j.config.Now()
	claims := Claims{
		Identity:  identity,
		Authority: authority,
		Kind:      kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subjectID,
			Issuer:    j.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.TTL(kind))),
		},
	}
	if j.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{j.config.Audience}
	}

	token := jwt.NewWithClaims(j.getMethod(), claims)
	if j.config.KeyID != "" {
		token.Header["kid"] = j.config.KeyID
	}

	signKey, err := j.getSignKey()
	if err != nil {
		return "", err
	}

	return token.SignedString(signKey)
}

// Parse checks signature integrity and static claims (issuer, audience, kind, subject)
// without enforcing expiry. A well-signed expired token parses successfully; use
// [Manager.RemainingLifetime] to classify it.
//
// Every failure is reported as [ErrInvalid].
func (j *Manager) Parse(tokenStr string, kind Kind) (*Claims, error) {
	if tokenStr == "" {
		return nil, ErrInvalid
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{j.getMethod().Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != j.getMethod().Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}

		if len(j.config.VerifyKeys) > 0 {
			kid, _ := t.Header["kid"].(string)
			if kid == "" {
				return nil, errors.New("missing kid")
			}
			key, ok := j.config.VerifyKeys[kid]
			if !ok {
				return nil, errors.New("unknown kid")
			}
			return j.keyBytesToVerifyKey(key)
		}

		if j.config.KeyID != "" {
			kid, _ := t.Header["kid"].(string)
			if kid != j.config.KeyID {
				return nil, errors.New("unknown kid")
			}
		}

		return j.getVerifyKey()
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalid
	}
	if err := j.checkStatic(claims, kind); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	return claims, nil
}

// Verify is Parse plus the expiry check. For a well-signed but expired token it returns
// the recovered claims together with [ErrExpired].
func (j *Manager) Verify(tokenStr string, kind Kind) (*Claims, error) {
	claims, err := j.Parse(tokenStr, kind)
	if err != nil {
		return nil, err
	}
	if j.RemainingLifetime(claims) <= 0 {
		return claims, ErrExpired
	}
	return claims, nil
}

// RemainingLifetime returns expiresAt - now. The result is negative for expired claims.
func (j *Manager) RemainingLifetime(claims *Claims) time.Duration {
	return claims.ExpiresAtTime().Sub(j.config.Now())
}

func (j *Manager) checkStatic(claims *Claims, kind Kind) error {
	if claims.Kind != kind {
		return fmt.Errorf("token kind %q, want %q", claims.Kind, kind)
	}
	if claims.Subject == "" {
		return errors.New("missing subject")
	}
	if claims.ExpiresAt == nil {
		return errors.New("missing exp")
	}
	if claims.IssuedAt == nil {
		return errors.New("missing iat")
	}
	if claims.IssuedAt.Time.After(j.config.Now().Add(j.config.MaxFutureIAT)) {
		return errors.New("token iat too far in the future")
	}
	if j.config.Issuer != "" && claims.Issuer != j.config.Issuer {
		return errors.New("issuer mismatch")
	}
	if j.config.Audience != "" {
		found := false
		for _, aud := range claims.Audience {
			if aud == j.config.Audience {
				found = true
				break
			}
		}
		if !found {
			return errors.New("audience mismatch")
		}
	}
	return nil
}

func (j *Manager) getMethod() jwt.SigningMethod {
	switch j.config.SigningMethod {
	case MethodHS256:
		return jwt.SigningMethodHS256
	default:
		return jwt.SigningMethodEdDSA
	}
}

func (j *Manager) getSignKey() (interface{}, error) {
	switch j.config.SigningMethod {
	case MethodHS256:
		return j.config.PrivateKey, nil
	default:
		if len(j.config.PrivateKey) == 0 {
			return nil, errors.New("ed25519 private key not configured")
		}
		return parseEdPrivateKey(j.config.PrivateKey)
	}
}

func (j *Manager) getVerifyKey() (interface{}, error) {
	switch j.config.SigningMethod {
	case MethodHS256:
		return j.config.PrivateKey, nil
	default:
		return parseEdPublicKey(j.config.PublicKey)
	}
}

func (j *Manager) keyBytesToVerifyKey(key []byte) (interface{}, error) {
	switch j.config.SigningMethod {
	case MethodHS256:
		return key, nil
	default:
		return parseEdPublicKey(key)
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
