package credential

import "regexp"

const (
	// PrincipalPrefix starts every token-style principal identifier.
	PrincipalPrefix = "inb_"
	// SecretPrefix starts every credential secret.
	SecretPrefix = "am_"
)

var (
	principalTokenPattern = regexp.MustCompile(`^inb_[A-Za-z0-9]{12,32}$`)
	principalAddrPattern  = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	secretPattern         = regexp.MustCompile(`^am_[A-Za-z0-9]{32,128}$`)
)

// ValidPrincipalID reports whether id is a token-style identifier or an address whose
// domain contains at least one dot.
func ValidPrincipalID(id string) bool {
	if id == "" {
		return false
	}
	return principalTokenPattern.MatchString(id) || principalAddrPattern.MatchString(id)
}

// ValidSecret reports whether secret has the credential prefix followed by 32 to 128
// alphanumerics.
func ValidSecret(secret string) bool {
	if secret == "" {
		return false
	}
	return secretPattern.MatchString(secret)
}

// IsAddress reports whether a valid principal identifier is in address form.
func IsAddress(id string) bool {
	return !principalTokenPattern.MatchString(id) && principalAddrPattern.MatchString(id)
}
