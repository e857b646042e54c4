// Package auth issues and validates bearer tokens and hashes passwords.
package auth

import (
	stderrors "errors"
	"fmt"
	"time"

	"todoapi/internal/domain/errors"

	"github.com/golang-jwt/jwt/v5"
)

const (
	DefaultTokenTTL = 30 * time.Minute
	DefaultIssuer   = "todoapi"
	TokenType       = "bearer"
)

var ErrExpiredToken = fmt.Errorf("%w: token has expired", errors.ErrUnauthorized)

type JWTConfig struct {
	SecretKey string
	TokenTTL  time.Duration
	Issuer    string
}

type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

type JWTManager struct {
	config JWTConfig
	now    func() time.Time
}

// NewJWTManager fills unset TTL and issuer with defaults. An empty secret is
// rejected.
func NewJWTManager(config JWTConfig) (*JWTManager, error) {
	if config.SecretKey == "" {
		return nil, fmt.Errorf("jwt: empty secret key")
	}
	if config.TokenTTL <= 0 {
		config.TokenTTL = DefaultTokenTTL
	}
	if config.Issuer == "" {
		config.Issuer = DefaultIssuer
	}
	return &JWTManager{config: config, now: time.Now}, nil
}

func (m *JWTManager) TokenTTL() time.Duration {
	return m.config.TokenTTL
}

func (m *JWTManager) Generate(userID string) (string, error) {
	now := m.now()
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.config.Issuer,
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.TokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(m.config.SecretKey))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Validate returns the claims of a well-signed, unexpired HS256 token. Every
// failure is an ErrUnauthorized.
func (m *JWTManager) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		return []byte(m.config.SecretKey), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if stderrors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, errors.ErrUnauthorized
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, errors.ErrUnauthorized
	}
	return claims, nil
}
