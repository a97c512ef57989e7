package auth

import (
	"testing"
	"time"
)

func TestIssueParse_RoundTrip(t *testing.T) {
	s, err := Issue("admin", RoleAdmin, "rollcall", "k", time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if !s.ExpiresAt.After(time.Now()) {
		t.Errorf("expected future expiry, got %v", s.ExpiresAt)
	}

	claims, err := Parse(s.Token, "k", "rollcall")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.Role != RoleAdmin || claims.Subject != "admin" {
		t.Errorf("unexpected claims: %+v", claims)
	}
}

func TestParse_Rejects(t *testing.T) {
	good, err := Issue("admin", RoleAdmin, "rollcall", "k", time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	expired, err := Issue("admin", RoleAdmin, "rollcall", "k", -time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	tests := []struct {
		name   string
		token  string
		key    string
		issuer string
	}{
		{"wrong key", good.Token, "other", "rollcall"},
		{"wrong issuer", good.Token, "k", "someone-else"},
		{"expired", expired.Token, "k", "rollcall"},
		{"garbage", "not-a-jwt", "k", "rollcall"},
		{"empty key", good.Token, "", "rollcall"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(tt.token, tt.key, tt.issuer); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestIssue_RequiresKey(t *testing.T) {
	if _, err := Issue("admin", RoleAdmin, "rollcall", "", time.Hour); err == nil {
		t.Fatal("expected error without signing key")
	}
}
