// Package auth issues and verifies the bearer tokens that guard project
// writes. There is a single configured admin credential.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"projectstore/internal/config"
)

const defaultTTL = 24 * time.Hour

var (
	// ErrInvalidCredentials is returned by Login for a wrong username or password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidToken is returned by Verify for malformed, expired or forged tokens.
	ErrInvalidToken = errors.New("invalid or expired token")
)

// Token is a signed bearer token and its expiry.
type Token struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Service signs HS256 tokens for the configured admin.
type Service struct {
	username string
	password string
	secret   []byte
	ttl      time.Duration
	now      func() time.Time
}

// NewService builds the auth service. An empty JWT secret is replaced with a
// random one, so tokens do not survive a restart. An empty password disables
// login.
func NewService(cfg config.AuthConfig, log *zap.Logger) (*Service, error) {
	if log == nil {
		log = zap.NewNop()
	}
	secret := []byte(cfg.JWTSecret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("generate jwt secret: %w", err)
		}
		log.Warn("jwt_secret_generated", zap.String("detail", "JWT_SECRET is empty; tokens are invalidated on restart"))
	}
	if cfg.Password == "" {
		log.Warn("admin_login_disabled", zap.String("detail", "AUTH_PASSWORD is empty"))
	}
	ttl := time.Duration(cfg.TokenTTLMinute) * time.Minute
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Service{
		username: cfg.Username,
		password: cfg.Password,
		secret:   secret,
		ttl:      ttl,
		now:      time.Now,
	}, nil
}

// Login checks the admin credential and returns a fresh token.
func (s *Service) Login(username, password string) (*Token, error) {
	if s.password == "" {
		return nil, ErrInvalidCredentials
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(s.password)) == 1
	if !userOK || !passOK {
		return nil, ErrInvalidCredentials
	}

	now := s.now()
	exp := now.Add(s.ttl)
	claims := jwt.RegisteredClaims{
		Subject:   username,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	return &Token{Token: signed, ExpiresAt: exp.UTC()}, nil
}

// Verify parses a token and returns its subject.
func (s *Service) Verify(raw string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
