package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "concierge/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
)

// Resolver turns a bearer token into an Identity.
type Resolver interface {
	Resolve(ctx context.Context, token string) (*Identity, error)
}

type Claims struct {
	Establishments []string `json:"establishments"`
	jwt.RegisteredClaims
}

type JWTResolver struct {
	secret []byte
}

func NewJWTResolver(secret string) *JWTResolver {
	return &JWTResolver{secret: []byte(secret)}
}

func (r *JWTResolver) Resolve(_ context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, apperrors.Unauthorized("missing bearer token")
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return r.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperrors.Unauthorized("token expired")
		}
		return nil, apperrors.Unauthorized("invalid token")
	}

	if claims.Subject == "" {
		return nil, apperrors.Unauthorized("token has no subject")
	}

	return &Identity{
		Subject:          claims.Subject,
		EstablishmentIDs: claims.Establishments,
	}, nil
}

// IssueToken signs an HS256 token for subject acting for establishments.
func IssueToken(secret, subject string, establishments []string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		Establishments: establishments,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
