package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestParse_ValidHS256(t *testing.T) {
	secret := []byte("test-secret")
	token, err := Issue(secret, "admin", "admin", time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	claims, err := Parse(secret, token)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.Subject != "admin" || claims.Role != "admin" {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestParse_Rejects(t *testing.T) {
	secret := []byte("test-secret")
	now := time.Now()
	sign := func(method jwt.SigningMethod, c Claims, key []byte) string {
		s, err := jwt.NewWithClaims(method, c).SignedString(key)
		if err != nil {
			t.Fatalf("SignedString: %v", err)
		}
		return s
	}
	valid := jwt.RegisteredClaims{
		Issuer:    Issuer,
		Subject:   "admin",
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}
	expired := valid
	expired.ExpiresAt = jwt.NewNumericDate(now.Add(-time.Minute))
	foreign := valid
	foreign.Issuer = "someone-else"

	cases := []struct {
		name  string
		token string
	}{
		{"hs384", sign(jwt.SigningMethodHS384, Claims{RegisteredClaims: valid}, secret)},
		{"wrong key", sign(jwt.SigningMethodHS256, Claims{RegisteredClaims: valid}, []byte("other"))},
		{"expired", sign(jwt.SigningMethodHS256, Claims{RegisteredClaims: expired}, secret)},
		{"issuer", sign(jwt.SigningMethodHS256, Claims{RegisteredClaims: foreign}, secret)},
		{"garbage", "not-a-token"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Parse(secret, tc.token); err == nil {
				t.Fatal("expected parse error")
			}
		})
	}
}

func TestCheckPassword(t *testing.T) {
	hash, err := HashPassword("hunter2")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if err := CheckPassword(hash, "hunter2"); err != nil {
		t.Fatalf("correct password rejected: %v", err)
	}
	if err := CheckPassword(hash, "hunter3"); err != ErrInvalidCredentials {
		t.Fatalf("wrong password = %v", err)
	}
	if err := CheckPassword("", "hunter2"); err != ErrInvalidCredentials {
		t.Fatalf("empty hash = %v", err)
	}
}
