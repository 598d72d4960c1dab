package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestVerifyRoundTrip(t *testing.T) {
	v := NewVerifier([]byte("secret"), "curtaincall-test")

	token, err := v.Sign(Session{UserID: "u1", Role: RoleStaff}, time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	s, err := v.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if s.UserID != "u1" || s.Role != RoleStaff {
		t.Errorf("session = %+v, want u1/staff", s)
	}
}

func TestVerifyRejects(t *testing.T) {
	v := NewVerifier([]byte("secret"), "")
	now := time.Date(2025, 4, 2, 12, 0, 0, 0, time.UTC)
	v.now = func() time.Time { return now }

	sign := func(method jwt.SigningMethod, key any, claims Claims) string {
		t.Helper()
		s, err := jwt.NewWithClaims(method, claims).SignedString(key)
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return s
	}
	valid := func(sub, role string, exp time.Time) Claims {
		return Claims{Role: role, RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(exp),
		}}
	}

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-token"},
		{"wrong secret", sign(jwt.SigningMethodHS256, []byte("other"), valid("u1", RoleStaff, now.Add(time.Hour)))},
		{"expired", sign(jwt.SigningMethodHS256, []byte("secret"), valid("u1", RoleStaff, now.Add(-time.Minute)))},
		{"no expiry", sign(jwt.SigningMethodHS256, []byte("secret"), Claims{Role: RoleStaff, RegisteredClaims: jwt.RegisteredClaims{Subject: "u1"}})},
		{"wrong method", sign(jwt.SigningMethodHS512, []byte("secret"), valid("u1", RoleStaff, now.Add(time.Hour)))},
		{"no subject", sign(jwt.SigningMethodHS256, []byte("secret"), valid("", RoleStaff, now.Add(time.Hour)))},
		{"unknown role", sign(jwt.SigningMethodHS256, []byte("secret"), valid("u1", "director", now.Add(time.Hour)))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(tt.token)
			if !errors.Is(err, ErrInvalidToken) {
				t.Errorf("err = %v, want ErrInvalidToken", err)
			}
		})
	}
}

func TestVerifyIssuer(t *testing.T) {
	issuer := NewVerifier([]byte("secret"), "id.example")
	other := NewVerifier([]byte("secret"), "elsewhere")

	token, err := other.Sign(Session{UserID: "u1", Role: RoleMember}, time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := issuer.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("err = %v, want ErrInvalidToken", err)
	}
}
