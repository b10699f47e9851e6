package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "chatwire"

// ErrMissingToken is returned when a connection or request carries no
// bearer credential at all.
var ErrMissingToken = errors.New("missing bearer token")

// Claims is the payload inside every JWT token.
//
// The same token authenticates REST calls and the real-time socket, so the
// claims carry only what both need: who the user is.
type Claims struct {
	UserID uuid.UUID `json:"user_id"`
	Email  string    `json:"email"`
	jwt.RegisteredClaims
}

// GenerateToken creates a signed JWT for a given user.
//
// Parameters:
//   - userID, email: who this token represents.
//   - secret: the HMAC key to sign with (config.JWTSecret).
//   - ttl: how long until the token expires (config.TokenTTL).
//
// Why HS256 (HMAC-SHA256)?
//   - One shared secret, no key pair to distribute.
//   - The only verifiers are this process's middleware and socket gateway,
//     which already hold the secret. If another service ever had to verify
//     tokens without being able to issue them, this would move to RS256 so
//     only the issuer holds the private key.
//
// Subject duplicates UserID so generic JWT tooling can show who the token
// belongs to without knowing our custom claims.
func GenerateToken(userID uuid.UUID, email, secret string, ttl time.Duration) (string, error) {
	now := time.Now()

	claims := Claims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	return signed, nil
}

// ParseToken validates a JWT string and extracts the claims.
//
// It verifies:
//  1. The signature matches our secret.
//  2. The token hasn't expired.
//  3. The signing method is HMAC. The key callback runs before signature
//     verification, so a token claiming "none" or RSA is refused before
//     our secret is ever used as a key for it (the algorithm-confusion
//     attack).
//  4. The issuer is ours and the user ID is set.
//
// An empty string short-circuits to ErrMissingToken so callers can tell
// "no credential" from "bad credential" in their logs.
func ParseToken(tokenString, secret string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrMissingToken
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(secret), nil
		},
		jwt.WithIssuer(issuer),
	)
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == uuid.Nil {
		return nil, fmt.Errorf("invalid token claims")
	}

	return claims, nil
}

// Verifier checks bearer credentials against one signing secret. The HTTP
// middleware and the socket gateway share a single instance, so a token
// that works for REST always works for the socket upgrade and vice versa.
type Verifier struct {
	secret string
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: secret}
}

func (v *Verifier) Verify(token string) (*Claims, error) {
	return ParseToken(token, v.secret)
}
