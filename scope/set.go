package scope

import "math/bits"

// Set is a 64-bit capability mask.
type Set uint64

// Has reports whether bit is present.
func (s Set) Has(bit int) bool {
	if bit < 0 || bit >= 64 {
		return false
	}
	return s&(1<<bit) != 0
}

// HasAny reports whether s shares at least one bit with other.
func (s Set) HasAny(other Set) bool {
	return s&other != 0
}

// With returns s with bit added. Out-of-range bits are ignored.
func (s Set) With(bit int) Set {
	if bit < 0 || bit >= 64 {
		return s
	}
	return s | 1<<bit
}

// Without returns s with bit removed.
func (s Set) Without(bit int) Set {
	if bit < 0 || bit >= 64 {
		return s
	}
	return s &^ (1 << bit)
}

// Len returns the number of bits set.
func (s Set) Len() int {
	return bits.OnesCount64(uint64(s))
}
