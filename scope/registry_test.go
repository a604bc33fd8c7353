package scope

import (
	"errors"
	"fmt"
	"testing"
)

func TestRegistrySetOfSkipsUnknownNames(t *testing.T) {
	r, err := NewRegistry("smtp", "submit mail", "admin")
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	r.Freeze()

	s := r.SetOf([]string{"SMTP", "unknown", " admin "})
	if s.Len() != 2 {
		t.Fatalf("expected 2 bits, got %d", s.Len())
	}
	smtpBit, _ := r.Bit("smtp")
	if !s.Has(smtpBit) {
		t.Fatal("expected smtp bit")
	}
	names := r.Names(s)
	if len(names) != 2 || names[0] != "smtp" || names[1] != "admin" {
		t.Fatalf("unexpected names %v", names)
	}
}

func TestRegistryFrozenAndDuplicate(t *testing.T) {
	r, err := NewRegistry("smtp")
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	if _, err := r.Register("Smtp"); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	r.Freeze()
	if _, err := r.Register("other"); !errors.Is(err, ErrFrozen) {
		t.Fatalf("expected ErrFrozen, got %v", err)
	}
	if _, err := r.Register(""); err == nil {
		t.Fatal("expected error for empty name")
	}
}

func TestRegistryLimit(t *testing.T) {
	r, _ := NewRegistry()
	for i := 0; i < maxScopes; i++ {
		if _, err := r.Register(fmt.Sprintf("s%d", i)); err != nil {
			t.Fatalf("register %d: %v", i, err)
		}
	}
	if _, err := r.Register("overflow"); !errors.Is(err, ErrLimit) {
		t.Fatalf("expected ErrLimit, got %v", err)
	}
}

func TestSetOperations(t *testing.T) {
	var s Set
	s = s.With(3).With(63).With(64)
	if !s.Has(3) || !s.Has(63) || s.Has(64) || s.Len() != 2 {
		t.Fatalf("unexpected set %b", s)
	}
	if !s.HasAny(Set(0).With(3)) || s.HasAny(Set(0).With(4)) {
		t.Fatal("HasAny mismatch")
	}
	if s.Without(3).Has(3) {
		t.Fatal("Without did not clear bit")
	}
}
