package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"ticketly/internal/apperror"
)

// Identity is what the rest of the system trusts unconditionally for
// authorization checks.
type Identity struct {
	UserID string
	Role   string
}

const (
	RoleCustomer  = "customer"
	RoleOrganizer = "organizer"
)

// TokenVerifier turns a bearer credential into an identity or fails with
// an unauthenticated error.
type TokenVerifier interface {
	Verify(tokenString string) (Identity, error)
}

// HMACVerifier verifies locally issued HS256 tokens carrying sub and role
// claims.
type HMACVerifier struct {
	secret []byte
}

func NewHMACVerifier(secret string) *HMACVerifier {
	return &HMACVerifier{secret: []byte(secret)}
}

func (v *HMACVerifier) Verify(tokenString string) (Identity, error) {
	if tokenString == "" {
		return Identity{}, apperror.New(apperror.KindUnauthenticated, "empty token")
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return Identity{}, apperror.Wrap(apperror.KindUnauthenticated, "invalid token", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, apperror.New(apperror.KindUnauthenticated, "invalid token claims")
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return Identity{}, apperror.New(apperror.KindUnauthenticated, "subject claim not found in token")
	}
	role, _ := claims["role"].(string)
	if role == "" {
		role = RoleCustomer
	}

	return Identity{UserID: sub, Role: role}, nil
}

// IssueToken signs an HS256 token for a user. Tokens normally come from
// the external identity provider; this is used by tests.
func IssueToken(secret, userID, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  userID,
		"role": role,
		"iat":  now.Unix(),
		"exp":  now.Add(ttl).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign token for %s: %w", userID, err)
	}
	return signed, nil
}
