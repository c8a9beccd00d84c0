package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestVerifierRoundTrip(t *testing.T) {
	v := NewVerifier("secret", "https://id.example.com")
	token, err := v.Mint("user_1", "alice@example.com", time.Hour)
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}

	ac, err := v.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if ac.UserID != "user_1" || ac.Email != "alice@example.com" {
		t.Errorf("AuthContext = %+v", ac)
	}
}

func TestVerifierRejectsWrongSecret(t *testing.T) {
	token, _ := NewVerifier("other", "").Mint("user_1", "", time.Hour)
	if _, err := NewVerifier("secret", "").Verify(token); !errors.Is(err, jwt.ErrSignatureInvalid) {
		t.Errorf("Verify() error = %v, want ErrSignatureInvalid", err)
	}
}

func TestVerifierRejectsExpired(t *testing.T) {
	v := NewVerifier("secret", "")
	token, _ := v.Mint("user_1", "", -time.Hour)
	if _, err := v.Verify(token); !errors.Is(err, jwt.ErrTokenExpired) {
		t.Errorf("Verify() error = %v, want ErrTokenExpired", err)
	}
}

func TestVerifierRejectsWrongIssuer(t *testing.T) {
	token, _ := NewVerifier("secret", "https://evil.example.com").Mint("user_1", "", time.Hour)
	if _, err := NewVerifier("secret", "https://id.example.com").Verify(token); !errors.Is(err, jwt.ErrTokenInvalidIssuer) {
		t.Errorf("Verify() error = %v, want ErrTokenInvalidIssuer", err)
	}
}

func TestVerifierRequiresSubject(t *testing.T) {
	v := NewVerifier("secret", "")
	token, _ := v.Mint("", "", time.Hour)
	if _, err := v.Verify(token); !errors.Is(err, ErrMissingSubject) {
		t.Errorf("Verify() error = %v, want ErrMissingSubject", err)
	}
}
