package services

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestTokenVerifier(t *testing.T) {
	verifier := NewTokenVerifier("test_secret_key", "shifttrack")

	valid, err := verifier.Issue("user1", "admin", time.Hour)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	expired, _ := verifier.Issue("user1", "admin", -time.Minute)
	otherIssuer, _ := NewTokenVerifier("test_secret_key", "someone-else").Issue("user1", "admin", time.Hour)
	wrongSecret, _ := NewTokenVerifier("other_secret", "shifttrack").Issue("user1", "admin", time.Hour)
	noUser, _ := verifier.Issue("", "admin", time.Hour)

	refresh, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID: "user1",
		Type:   "refresh",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "shifttrack",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte("test_secret_key"))

	noExpiry, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID:           "user1",
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "shifttrack"},
	}).SignedString([]byte("test_secret_key"))

	tests := []struct {
		name     string
		token    string
		wantUser string
		wantRole string
		wantErr  bool
	}{
		{"Valid", valid, "user1", "admin", false},
		{"Expired", expired, "", "", true},
		{"Wrong issuer", otherIssuer, "", "", true},
		{"Wrong secret", wrongSecret, "", "", true},
		{"Missing user", noUser, "", "", true},
		{"Refresh token", refresh, "", "", true},
		{"No expiry", noExpiry, "", "", true},
		{"Garbage", "not.a.token", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := verifier.Verify(tt.token)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidToken) {
					t.Errorf("Expected ErrInvalidToken, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Verify failed: %v", err)
			}
			if id.UserID != tt.wantUser || id.Role != tt.wantRole {
				t.Errorf("Expected %s/%s, got %s/%s", tt.wantUser, tt.wantRole, id.UserID, id.Role)
			}
		})
	}
}
