package credential

import (
	"crypto/rand"
	"math/big"
)

const alphanumerics = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// DefaultSecretLength is the number of random characters after SecretPrefix.
const DefaultSecretLength = 40

// NewSecret returns a fresh secret with n random alphanumerics after the prefix.
func NewSecret(n int) (string, error) {
	if n < 32 || n > 128 {
		n = DefaultSecretLength
	}
	body, err := randomAlphanumeric(n)
	if err != nil {
		return "", err
	}
	return SecretPrefix + body, nil
}

// NewPrincipalID returns a fresh token-style principal identifier.
func NewPrincipalID() (string, error) {
	body, err := randomAlphanumeric(24)
	if err != nil {
		return "", err
	}
	return PrincipalPrefix + body, nil
}

func randomAlphanumeric(n int) (string, error) {
	out := make([]byte, n)
	limit := big.NewInt(int64(len(alphanumerics)))
	for i := range out {
		idx, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		out[i] = alphanumerics[idx.Int64()]
	}
	return string(out), nil
}
