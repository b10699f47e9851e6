package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

func TestGenerateAndParseToken(t *testing.T) {
	secret := "test-secret-key"
	userID := uuid.New()

	token, err := GenerateToken(userID, "a@example.com", secret, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}

	tests := []struct {
		name    string
		token   string
		secret  string
		wantErr bool
	}{
		{"valid token", token, secret, false},
		{"wrong secret", token, "wrong-secret", true},
		{"garbage token", "invalid.token.here", secret, true},
		{"empty token", "", secret, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := ParseToken(tt.token, tt.secret)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseToken() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && claims.UserID != userID {
				t.Errorf("UserID = %v, want %v", claims.UserID, userID)
			}
		})
	}
}

func TestParseToken_Empty(t *testing.T) {
	_, err := ParseToken("", "secret")
	if !errors.Is(err, ErrMissingToken) {
		t.Errorf("ParseToken(\"\") error = %v, want ErrMissingToken", err)
	}
}

func TestParseToken_Expired(t *testing.T) {
	token, err := GenerateToken(uuid.New(), "a@example.com", "secret", -time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}
	claims, err := ParseToken(token, "secret")
	if err == nil {
		t.Fatal("ParseToken() should reject an expired token")
	}
	if claims != nil {
		t.Error("ParseToken() should return nil claims for an expired token")
	}
}

func TestParseToken_RejectsNoneAlgorithm(t *testing.T) {
	claims := Claims{
		UserID: uuid.New(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none token: %v", err)
	}
	if _, err := ParseToken(unsigned, "secret"); err == nil {
		t.Error("ParseToken() accepted an unsigned token")
	}
}

func TestVerifier(t *testing.T) {
	v := NewVerifier("shared")
	id := uuid.New()
	token, _ := GenerateToken(id, "b@example.com", "shared", time.Minute)

	claims, err := v.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if claims.Email != "b@example.com" {
		t.Errorf("Email = %q, want b@example.com", claims.Email)
	}
}
