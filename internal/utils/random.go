package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// GenerateNumericCode returns a random code of the given length made of
// digits. Leading zeros are allowed.
func GenerateNumericCode(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("invalid code length %d", length)
	}

	const digits = "0123456789"
	code := make([]byte, length)
	for i := range code {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(digits))))
		if err != nil {
			return "", fmt.Errorf("failed to generate random digit: %w", err)
		}
		code[i] = digits[n.Int64()]
	}
	return string(code), nil
}

// GenerateAssociationCode returns a fresh 6-digit pairing code.
func GenerateAssociationCode() (string, error) {
	return GenerateNumericCode(AssociationCodeLength)
}
