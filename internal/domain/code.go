package domain

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
)

var codeMax = big.NewInt(1_000_000) // 10^6 for 6-digit codes

// GenerateVerificationCode generates a cryptographically random 6-digit
// verification code. Uses crypto/rand with rejection sampling (via big.Int)
// to avoid modulo bias. The code is zero-padded (e.g., "000123").
func GenerateVerificationCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeMax)
	if err != nil {
		return "", fmt.Errorf("generate verification code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// ValidCodeFormat reports whether candidate looks like a verification code:
// exactly six ASCII decimal digits.
func ValidCodeFormat(candidate string) bool {
	if len(candidate) != VerificationCodeLength {
		return false
	}
	for i := 0; i < len(candidate); i++ {
		if candidate[i] < '0' || candidate[i] > '9' {
			return false
		}
	}
	return true
}

// CodeEquals compares a candidate against the active code in constant time
// with respect to the code length, preventing timing side-channels.
func CodeEquals(active, candidate string) bool {
	if len(active) != len(candidate) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(active), []byte(candidate)) == 1
}
