package security

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"eventmaster-auth/internal/model"
)

const (
	// MinSecretLength is the HS256 key size floor.
	MinSecretLength = 32

	refreshTokenBytes = 64
)

type TokenConfig struct {
	Secret    string
	Issuer    string
	Audience  string
	AccessTTL time.Duration
}

type accessClaims struct {
	jwt.RegisteredClaims
	Name  string   `json:"name"`
	Roles []string `json:"roles"`
}

// TokenIssuer signs access tokens, mints refresh tokens and verifies access
// tokens presented back to the API. Its configuration is fixed at
// construction.
type TokenIssuer struct {
	key       []byte
	issuer    string
	audience  string
	accessTTL time.Duration
	now       func() time.Time
}

type TokenOption func(*TokenIssuer)

func WithClock(now func() time.Time) TokenOption {
	return func(t *TokenIssuer) {
		if now != nil {
			t.now = now
		}
	}
}

func NewTokenIssuer(cfg TokenConfig, opts ...TokenOption) (*TokenIssuer, error) {
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, errors.New("token signing secret is required")
	}
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("token signing secret must be at least %d bytes", MinSecretLength)
	}
	if strings.TrimSpace(cfg.Issuer) == "" {
		return nil, errors.New("token issuer is required")
	}
	if strings.TrimSpace(cfg.Audience) == "" {
		return nil, errors.New("token audience is required")
	}
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("access token lifetime must be positive")
	}

	issuer := &TokenIssuer{
		key:       []byte(secret),
		issuer:    cfg.Issuer,
		audience:  cfg.Audience,
		accessTTL: cfg.AccessTTL,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(issuer)
	}

	return issuer, nil
}

func (t *TokenIssuer) AccessTTL() time.Duration {
	return t.accessTTL
}

func (t *TokenIssuer) GenerateAccessToken(claims ClaimSet) (string, error) {
	if claims.Subject == "" {
		return "", errors.New("access token subject is required")
	}

	now := t.now()
	roles := claims.Roles
	if roles == nil {
		roles = []string{}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, accessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   claims.Subject,
			Issuer:    t.issuer,
			Audience:  jwt.ClaimStrings{t.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.accessTTL)),
		},
		Name:  claims.Name,
		Roles: roles,
	})

	signed, err := token.SignedString(t.key)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// GenerateRefreshToken returns an opaque base64url string carrying 64 bytes
// of entropy.
func (t *TokenIssuer) GenerateRefreshToken() (string, error) {
	buf := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate refresh token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// ParseAccessToken verifies signature, algorithm, issuer, audience and
// lifetime, and returns the embedded claims.
func (t *TokenIssuer) ParseAccessToken(raw string) (ClaimSet, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ClaimSet{}, model.ErrInvalidToken
	}

	parsed, err := jwt.ParseWithClaims(raw, &accessClaims{}, func(token *jwt.Token) (any, error) {
		return t.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.issuer),
		jwt.WithAudience(t.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ClaimSet{}, model.ErrTokenExpired
		}
		return ClaimSet{}, fmt.Errorf("%w: %v", model.ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(*accessClaims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return ClaimSet{}, model.ErrInvalidToken
	}

	return ClaimSet{
		Subject: claims.Subject,
		Name:    claims.Name,
		Roles:   normalizeRoles(claims.Roles),
	}, nil
}
