package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"carebot-cloud/internal/apperr"
)

const (
	PrincipalTypeUser  = "user"
	PrincipalTypeRobot = "robot"
)

// Claims represents JWT claims used by this service. Subject is the user or robot id.
type Claims struct {
	PrincipalType string `json:"principal_type"`
	jwt.RegisteredClaims
}

// clockSkew tolerates small clock drift between robots and the server.
const clockSkew = 30 * time.Second

// ParseJWT validates an HS256 token and returns its claims.
func ParseJWT(tokenString string, secret []byte) (*Claims, error) {
	if tokenString == "" {
		return nil, errors.New("auth: empty token")
	}
	if len(secret) == 0 {
		return nil, errors.New("auth: empty secret")
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(clockSkew),
		jwt.WithIssuedAt(),
	)
	claims := &Claims{}
	if _, err := parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}); err != nil {
		return nil, fmt.Errorf("auth: %w", err)
	}
	if claims.Subject == "" {
		return nil, errors.New("auth: missing subject")
	}
	return claims, nil
}

// ResolvePrincipal verifies a bearer credential. Every failure is Unauthenticated.
func ResolvePrincipal(tokenString string, secret []byte) (Principal, error) {
	claims, err := ParseJWT(tokenString, secret)
	if err != nil {
		return Principal{}, apperr.Unauthenticated("invalid credential")
	}
	switch claims.PrincipalType {
	case PrincipalTypeUser:
		return Human(claims.Subject), nil
	case PrincipalTypeRobot:
		return Device(claims.Subject), nil
	default:
		return Principal{}, apperr.Unauthenticated("unknown principal type %q", claims.PrincipalType)
	}
}
