package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Actor roles.
const (
	RoleAdmin  = "admin"  // compliance reviewers and marketplace moderators
	RoleSeller = "seller" // members of a company
)

const (
	devSecret  = "dev-secret"
	defaultTTL = 24 * time.Hour
)

// Claims is the identity carried by API bearer tokens. Subject is the actor id.
type Claims struct {
	Role      string `json:"role"`
	CompanyID string `json:"companyId,omitempty"`
	jwt.RegisteredClaims
}

var (
	ErrMissingSecret = errors.New("jwt secret not configured")
	ErrInvalidToken  = errors.New("invalid token")
	ErrTokenExpired  = errors.New("token has expired")
)

// Tokens signs and verifies HS256 bearer tokens.
type Tokens struct {
	secret []byte
	ttl    time.Duration
}

// NewTokens builds a token service. Outside production an empty secret falls
// back to a fixed development secret.
func NewTokens(secret string, production bool) (*Tokens, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		if production {
			return nil, fmt.Errorf("%w: JWT_SECRET required in production", ErrMissingSecret)
		}
		secret = devSecret
	}
	return &Tokens{secret: []byte(secret), ttl: defaultTTL}, nil
}

// Sign issues a token for actorID.
func (t *Tokens) Sign(actorID, role, companyID string) (string, error) {
	if strings.TrimSpace(actorID) == "" {
		return "", errors.New("actor id is required")
	}
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role:      role,
		CompanyID: companyID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actorID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
			ID:        uuid.NewString(),
		},
	})
	return token.SignedString(t.secret)
}

// Verify parses token and returns its claims.
func (t *Tokens) Verify(token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(tok *jwt.Token) (interface{}, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return t.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
