package credential

import (
	"strings"
	"testing"
)

func TestValidPrincipalID(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"inb_valid1234567890", true},
		{"inb_" + strings.Repeat("a", 12), true},
		{"inb_" + strings.Repeat("a", 32), true},
		{"inb_" + strings.Repeat("a", 11), false},
		{"inb_" + strings.Repeat("a", 33), false},
		{"inb_abc-def-ghi-jkl", false},
		{"INB_valid1234567890", false},
		{"sales@example.com", true},
		{"sales@mail.example.co.uk", true},
		{"sales@localhost", false},
		{"sales@@example.com", false},
		{"with space@example.com", false},
		{"", false},
		{"@example.com", false},
	}
	for _, tt := range tests {
		if got := ValidPrincipalID(tt.in); got != tt.want {
			t.Fatalf("ValidPrincipalID(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestValidSecret(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"am_" + strings.Repeat("x", 36), true},
		{"am_" + strings.Repeat("x", 32), true},
		{"am_" + strings.Repeat("x", 128), true},
		{"am_" + strings.Repeat("x", 31), false},
		{"am_" + strings.Repeat("x", 129), false},
		{"am_" + strings.Repeat("x", 35) + "!", false},
		{"ak_" + strings.Repeat("x", 36), false},
		{strings.Repeat("x", 40), false},
		{"", false},
	}
	for _, tt := range tests {
		if got := ValidSecret(tt.in); got != tt.want {
			t.Fatalf("ValidSecret(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestIsAddress(t *testing.T) {
	if IsAddress("inb_valid1234567890") {
		t.Fatal("token identifier reported as address")
	}
	if !IsAddress("ops@example.com") {
		t.Fatal("address not recognized")
	}
}

func TestGeneratedValuesPassFormatChecks(t *testing.T) {
	secret, err := NewSecret(DefaultSecretLength)
	if err != nil {
		t.Fatalf("NewSecret: %v", err)
	}
	if !ValidSecret(secret) || len(secret) != len(SecretPrefix)+DefaultSecretLength {
		t.Fatalf("generated secret %q failed format check", secret)
	}
	id, err := NewPrincipalID()
	if err != nil {
		t.Fatalf("NewPrincipalID: %v", err)
	}
	if !ValidPrincipalID(id) {
		t.Fatalf("generated principal id %q failed format check", id)
	}
}
