package session

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/net/idna"
)

// ErrInvalidAddress is returned for envelope addresses that cannot be
// normalised.
var ErrInvalidAddress = errors.New("invalid envelope address")

const maxAddressLen = 254

// NormalizeAddress strips angle brackets, keeps the local part verbatim and
// converts the domain to lower-case ASCII (punycode for IDNs).
func NormalizeAddress(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	addr = strings.TrimSuffix(strings.TrimPrefix(addr, "<"), ">")
	if addr == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidAddress)
	}
	at := strings.LastIndexByte(addr, '@')
	if at <= 0 || at == len(addr)-1 {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, addr)
	}
	local, domain := addr[:at], addr[at+1:]
	if strings.ContainsAny(local, " \t\r\n<>") {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, addr)
	}
	ascii, err := idna.Lookup.ToASCII(domain)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	out := local + "@" + strings.ToLower(ascii)
	if len(out) > maxAddressLen {
		return "", fmt.Errorf("%w: too long", ErrInvalidAddress)
	}
	return out, nil
}
