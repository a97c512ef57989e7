package auth

import (
	"encoding/hex"
	"strings"
	"testing"
)

func TestGenerateToken_DefaultLengthLowerHex(t *testing.T) {
	tok, err := GenerateToken(0)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if len(tok) != 2*DefaultTokenBytes {
		t.Fatalf("expected %d hex chars, got %d", 2*DefaultTokenBytes, len(tok))
	}
	if tok != strings.ToLower(tok) {
		t.Errorf("expected lowercase hex, got %q", tok)
	}
	if _, err := hex.DecodeString(tok); err != nil {
		t.Errorf("token is not hex: %v", err)
	}
}

func TestGenerateToken_CustomLength(t *testing.T) {
	tok, err := GenerateToken(16)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if len(tok) != 32 {
		t.Errorf("expected 32 hex chars, got %d", len(tok))
	}
}

func TestTokenGenerator_Distinct(t *testing.T) {
	gen := TokenGenerator(DefaultTokenBytes)
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		tok, err := gen()
		if err != nil {
			t.Fatalf("gen: %v", err)
		}
		if seen[tok] {
			t.Fatalf("duplicate token after %d draws", i)
		}
		seen[tok] = true
	}
}
