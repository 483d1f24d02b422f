package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// e164Pattern matches E.164 phone numbers: + followed by 7-15 digits.
var e164Pattern = regexp.MustCompile(`^\+[1-9]\d{6,14}$`)

// PhoneNumber is a value object representing a phone number in E.164 format.
// Always valid in memory — use NewPhoneNumber to construct.
type PhoneNumber struct {
	value string
}

// NewPhoneNumber creates a PhoneNumber from a raw string, validating E.164 format.
// E.164 requires: '+' prefix, 7-15 digits, no leading zero after country code.
// Directory attributes commonly carry spaces or hyphens; those are stripped
// before validation.
func NewPhoneNumber(raw string) (PhoneNumber, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')', '.':
			return -1
		}
		return r
	}, raw)

	if cleaned == "" {
		return PhoneNumber{}, fmt.Errorf("phone number cannot be empty: %w", ErrInvalidPhoneNumber)
	}
	if !e164Pattern.MatchString(cleaned) {
		return PhoneNumber{}, fmt.Errorf("phone number %q is not valid E.164: %w", raw, ErrInvalidPhoneNumber)
	}
	return PhoneNumber{value: cleaned}, nil
}

// PhoneNumberFromUint64 reconstructs a PhoneNumber from its wire projection.
func PhoneNumberFromUint64(e164 uint64) (PhoneNumber, error) {
	if e164 == 0 {
		return PhoneNumber{}, fmt.Errorf("phone number cannot be zero: %w", ErrInvalidPhoneNumber)
	}
	return NewPhoneNumber("+" + strconv.FormatUint(e164, 10))
}

// MustPhoneNumber creates a PhoneNumber, panicking on invalid input. Use only in tests.
func MustPhoneNumber(raw string) PhoneNumber {
	p, err := NewPhoneNumber(raw)
	if err != nil {
		panic(err)
	}
	return p
}

// Uint64 returns the numeric wire projection of the number: the digits
// without the leading '+'. Fifteen digits fit comfortably in a uint64.
func (p PhoneNumber) Uint64() uint64 {
	if p.value == "" {
		return 0
	}
	n, err := strconv.ParseUint(p.value[1:], 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// LastDigits returns the last n digits of the subscriber number.
// Used by the test-mode code transport.
func (p PhoneNumber) LastDigits(n int) string {
	digits := p.value[1:]
	if len(digits) <= n {
		return digits
	}
	return digits[len(digits)-n:]
}

func (p PhoneNumber) String() string { return p.value }
func (p PhoneNumber) IsZero() bool   { return p.value == "" }
