package session

import (
	"errors"
	"testing"
)

func TestNormalizeAddress(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"user@example.com", "user@example.com"},
		{"<User@Example.COM>", "User@example.com"},
		{"  a.b+tag@sub.example.org ", "a.b+tag@sub.example.org"},
		{"info@bücher.example", "info@xn--bcher-kva.example"},
	}
	for _, tc := range cases {
		got, err := NormalizeAddress(tc.in)
		if err != nil {
			t.Fatalf("NormalizeAddress(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("NormalizeAddress(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeAddressRejects(t *testing.T) {
	for _, in := range []string{"", "<>", "noat", "@example.com", "user@", "us er@example.com"} {
		if _, err := NormalizeAddress(in); !errors.Is(err, ErrInvalidAddress) {
			t.Fatalf("NormalizeAddress(%q) err = %v, want ErrInvalidAddress", in, err)
		}
	}
}
