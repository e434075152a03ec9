package accounts

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// ValidatePhone parses raw and returns it in E.164 form. Numbers that do not
// parse or have an impossible length for their region fail with
// INVALID_PHONE_FORMAT. Number allocation is not checked.
func (p CredentialPolicy) ValidatePhone(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", newError(ErrInvalidPhoneFormat, nil, map[string]any{"phone": raw})
	}

	num, err := phonenumbers.Parse(trimmed, strings.ToUpper(p.DefaultPhoneRegion))
	if err != nil {
		return "", newError(ErrInvalidPhoneFormat, err, map[string]any{"phone": raw})
	}

	if !phonenumbers.IsPossibleNumber(num) {
		return "", newError(ErrInvalidPhoneFormat, nil, map[string]any{"phone": raw})
	}

	return phonenumbers.Format(num, phonenumbers.E164), nil
}

// ValidatePhone validates with the default policy.
func ValidatePhone(raw string) (string, error) {
	return CredentialPolicy{}.ValidatePhone(raw)
}
