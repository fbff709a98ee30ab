package identity

import (
	"errors"
	"testing"
)

func TestTokenRoundTrip(t *testing.T) {
	token, err := Token("Ana", "test-secret")
	if err != nil {
		t.Fatalf("Token failed: %v", err)
	}

	id, err := FromToken(token, "test-secret")
	if err != nil {
		t.Fatalf("FromToken failed: %v", err)
	}
	if id.DisplayName != "Ana" {
		t.Errorf("DisplayName = %q, want Ana", id.DisplayName)
	}
}

func TestFromTokenRejectsWrongSecret(t *testing.T) {
	token, err := Token("Ana", "right-secret")
	if err != nil {
		t.Fatalf("Token failed: %v", err)
	}

	if _, err := FromToken(token, "wrong-secret"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestFromTokenRejectsGarbage(t *testing.T) {
	if _, err := FromToken("not-a-token", "secret"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}
