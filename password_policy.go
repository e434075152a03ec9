package accounts

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"unicode"
	"unicode/utf8"
)

// DefaultPasswordLength is the minimum password length when none is configured
const DefaultPasswordLength = 10

// PasswordViolation names one unmet password rule
type PasswordViolation string

const (
	ViolationUpper  PasswordViolation = "upper"
	ViolationLower  PasswordViolation = "lower"
	ViolationDigit  PasswordViolation = "digit"
	ViolationLength PasswordViolation = "length"
)

// Message returns the user facing text for the violation.
func (v PasswordViolation) Message(minLength int) string {
	switch v {
	case ViolationUpper:
		return "must contain at least one uppercase letter"
	case ViolationLower:
		return "must contain at least one lowercase letter"
	case ViolationDigit:
		return "must contain at least one digit"
	case ViolationLength:
		return fmt.Sprintf("must be at least %d characters long", minLength)
	default:
		return string(v)
	}
}

const (
	lowerChars = "abcdefghijklmnopqrstuvwxyz"
	upperChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digitChars = "0123456789"
	fillChars  = lowerChars + upperChars + digitChars
)

// CredentialPolicy validates passwords and phone numbers
type CredentialPolicy struct {
	MinPasswordLength int
	// DefaultPhoneRegion lets numbers without a leading + be parsed, e.g. "US".
	DefaultPhoneRegion string
}

// NewCredentialPolicy returns a policy, lengths below one fall back to the default.
func NewCredentialPolicy(minLength int) CredentialPolicy {
	p := CredentialPolicy{MinPasswordLength: minLength}
	return p.normalized()
}

func (p CredentialPolicy) normalized() CredentialPolicy {
	if p.MinPasswordLength <= 0 {
		p.MinPasswordLength = DefaultPasswordLength
	}
	return p
}

// ValidatePassword returns every unmet rule, an empty result means valid.
func (p CredentialPolicy) ValidatePassword(password string) []PasswordViolation {
	p = p.normalized()

	var hasUpper, hasLower, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}

	violations := []PasswordViolation{}
	if !hasUpper {
		violations = append(violations, ViolationUpper)
	}
	if !hasLower {
		violations = append(violations, ViolationLower)
	}
	if !hasDigit {
		violations = append(violations, ViolationDigit)
	}
	if utf8.RuneCountInString(password) < p.MinPasswordLength {
		violations = append(violations, ViolationLength)
	}
	return violations
}

// PasswordMessage joins the messages of all violations.
func (p CredentialPolicy) PasswordMessage(violations []PasswordViolation) string {
	p = p.normalized()
	msg := ""
	for i, v := range violations {
		if i > 0 {
			msg += "; "
		}
		msg += v.Message(p.MinPasswordLength)
	}
	return msg
}

// GenerateTemporaryPassword returns a password that satisfies the policy:
// one lowercase, one uppercase and one digit plus random fill, shuffled.
func (p CredentialPolicy) GenerateTemporaryPassword() (string, error) {
	p = p.normalized()

	size := p.MinPasswordLength
	if size < 3 {
		size = 3
	}

	out := make([]byte, 0, size)
	for _, set := range []string{lowerChars, upperChars, digitChars} {
		c, err := pick(set)
		if err != nil {
			return "", err
		}
		out = append(out, c)
	}

	for len(out) < size {
		c, err := pick(fillChars)
		if err != nil {
			return "", err
		}
		out = append(out, c)
	}

	for i := len(out) - 1; i > 0; i-- {
		j, err := randomInt(i + 1)
		if err != nil {
			return "", err
		}
		out[i], out[j] = out[j], out[i]
	}

	return string(out), nil
}

func pick(set string) (byte, error) {
	i, err := randomInt(len(set))
	if err != nil {
		return 0, err
	}
	return set[i], nil
}

func randomInt(n int) (int, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, fmt.Errorf("random source: %w", err)
	}
	return int(v.Int64()), nil
}
