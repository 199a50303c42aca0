package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const PrincipalContextKey ContextKey = "principal"

// DefaultTTL is the lifetime of minted tokens when none is given.
const DefaultTTL = 24 * time.Hour

// Principal identifies the caller behind a validated token.
type Principal struct {
	Subject string `json:"sub"`
	Name    string `json:"name,omitempty"`
}

type Claims struct {
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

var (
	authConfig *AuthConfig
)

type AuthConfig struct {
	JwtSecret []byte
	Enabled   bool
}

// InitializeAuth sets up the auth configuration
func InitializeAuth(jwtSecret string, enabled bool) {
	authConfig = &AuthConfig{
		JwtSecret: []byte(jwtSecret),
		Enabled:   enabled,
	}
}

// IsAuthEnabled returns whether authentication is enabled
func IsAuthEnabled() bool {
	if authConfig == nil {
		return false
	}
	return authConfig.Enabled
}

// GenerateJWT signs a token for subject. A non-positive ttl means DefaultTTL.
func GenerateJWT(subject, name string, ttl time.Duration) (string, error) {
	if authConfig == nil {
		return "", errors.New("auth not initialized")
	}
	if strings.TrimSpace(subject) == "" {
		return "", errors.New("subject is required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := time.Now()
	claims := Claims{
		Name: name,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Subject:   subject,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(authConfig.JwtSecret)
}

// ValidateJWT validates and parses a JWT token
func ValidateJWT(tokenString string) (*Principal, error) {
	if authConfig == nil {
		return nil, errors.New("auth not initialized")
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return authConfig.JwtSecret, nil
	})

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		if claims.Subject == "" {
			return nil, fmt.Errorf("token has no subject")
		}
		return &Principal{
			Subject: claims.Subject,
			Name:    claims.Name,
		}, nil
	}

	return nil, fmt.Errorf("invalid token")
}

// OptionalAuthMiddleware extracts and validates JWT from request if auth is enabled
// If auth is disabled, it allows all requests through
func OptionalAuthMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !IsAuthEnabled() {
			next.ServeHTTP(w, r)
			return
		}

		// Extract token from Authorization header or cookie
		var tokenString string

		authHeader := r.Header.Get("Authorization")
		if authHeader != "" && strings.HasPrefix(authHeader, "Bearer ") {
			tokenString = strings.TrimPrefix(authHeader, "Bearer ")
		} else if cookie, err := r.Cookie("auth_token"); err == nil {
			tokenString = cookie.Value
		}

		if tokenString == "" {
			http.Error(w, "Authentication required", http.StatusUnauthorized)
			return
		}

		p, err := ValidateJWT(tokenString)
		if err != nil {
			http.Error(w, "Invalid authentication token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), PrincipalContextKey, p)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

// GetPrincipalFromContext extracts the caller from request context
func GetPrincipalFromContext(r *http.Request) *Principal {
	if p, ok := r.Context().Value(PrincipalContextKey).(*Principal); ok {
		return p
	}
	return nil
}
