package auth

import (
	"testing"
	"time"
)

func TestSignAndVerifyHS256(t *testing.T) {
	claims := Claims{
		Sub:    "staff-1",
		UnitID: "unit-1",
		Role:   "owner",
		Iat:    time.Now().Unix(),
		Exp:    time.Now().Add(time.Hour).Unix(),
	}

	token, err := SignHS256(claims, "secret")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	parsed, err := ParseAndVerifyHS256(token, "secret")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if parsed.UnitID != "unit-1" || parsed.Role != "owner" {
		t.Fatalf("unexpected claims: %+v", parsed)
	}

	if _, err := ParseAndVerifyHS256(token, "wrong-secret"); err == nil {
		t.Fatal("expected verification failure with wrong secret")
	}
}

func TestVerifyHS256_Expired(t *testing.T) {
	claims := Claims{
		Sub:    "staff-1",
		UnitID: "unit-1",
		Role:   "owner",
		Iat:    time.Now().Add(-2 * time.Hour).Unix(),
		Exp:    time.Now().Add(-time.Hour).Unix(),
	}
	token, err := SignHS256(claims, "secret")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := ParseAndVerifyHS256(token, "secret"); err == nil {
		t.Fatal("expected expired token to fail verification")
	}
}
