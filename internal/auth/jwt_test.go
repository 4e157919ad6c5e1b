package auth

import (
	"errors"
	"testing"
	"time"
)

func testConfig() JWTConfig {
	return JWTConfig{
		SigningKey:  "test-signing-key",
		TokenExpiry: time.Hour,
		Issuer:      "mailcast",
		Audience:    "mailcast-api",
	}
}

func TestGenerateAndValidateToken(t *testing.T) {
	s := NewJWTService(testConfig())

	token, err := s.GenerateToken("operator-1", "ops@example.com")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	claims, err := s.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.Subject != "operator-1" {
		t.Errorf("Subject = %q, want operator-1", claims.Subject)
	}
	if claims.Email != "ops@example.com" {
		t.Errorf("Email = %q, want ops@example.com", claims.Email)
	}
	if claims.Issuer != "mailcast" {
		t.Errorf("Issuer = %q, want mailcast", claims.Issuer)
	}
}

func TestValidateTokenExpired(t *testing.T) {
	cfg := testConfig()
	cfg.TokenExpiry = -time.Minute
	s := NewJWTService(cfg)

	token, err := s.GenerateToken("operator-1", "")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	if _, err := s.ValidateToken(token); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("ValidateToken = %v, want ErrTokenExpired", err)
	}
}

func TestValidateTokenWrongKey(t *testing.T) {
	s := NewJWTService(testConfig())
	token, err := s.GenerateToken("operator-1", "")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	other := NewJWTService(JWTConfig{SigningKey: "different-key", TokenExpiry: time.Hour})
	if _, err := other.ValidateToken(token); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("ValidateToken = %v, want ErrTokenInvalid", err)
	}
}

func TestValidateTokenMalformed(t *testing.T) {
	s := NewJWTService(testConfig())

	if _, err := s.ValidateToken("not-a-jwt"); !errors.Is(err, ErrTokenMalformed) {
		t.Errorf("ValidateToken = %v, want ErrTokenMalformed", err)
	}
}
