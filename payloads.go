package accounts

import (
	"errors"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

// SignupPayload is the self service signup request
type SignupPayload struct {
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// Validate will run validation rules
func (p SignupPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Email, is.Email),
		validation.Field(&p.Password, validation.Required),
		validation.Field(&p.FirstName, validation.Length(0, 100)),
		validation.Field(&p.LastName, validation.Length(0, 100)),
	)
}

// InvitationPayload is the administrator invitation request
type InvitationPayload struct {
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// Validate will run validation rules
func (p InvitationPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Email, is.Email),
		validation.Field(&p.FirstName, validation.Length(0, 100)),
		validation.Field(&p.LastName, validation.Length(0, 100)),
	)
}

// ContactPayload replaces the contact of an invited account
type ContactPayload struct {
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// Validate will run validation rules
func (p ContactPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Email, is.Email),
	)
}

// ProfilePayload is a partial profile update, nil fields are kept.
type ProfilePayload struct {
	FirstName    *string    `json:"first_name"`
	LastName     *string    `json:"last_name"`
	Gender       *Gender    `json:"gender"`
	DateOfBirth  *time.Time `json:"date_of_birth"`
	AvatarPath   *string    `json:"avatar_path"`
	HasConsented *bool      `json:"has_consented"`
}

// Validate will run validation rules
func (p ProfilePayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.FirstName, validation.NilOrNotEmpty, validation.Length(1, 100)),
		validation.Field(&p.LastName, validation.NilOrNotEmpty, validation.Length(1, 100)),
		validation.Field(&p.Gender, validation.By(func(value any) error {
			g, _ := value.(*Gender)
			if g == nil || g.IsValid() {
				return nil
			}
			return errors.New("must be MALE, FEMALE or UNKNOWN")
		})),
		validation.Field(&p.DateOfBirth, validation.By(func(value any) error {
			dob, _ := value.(*time.Time)
			if dob == nil || dob.Before(time.Now()) {
				return nil
			}
			return errors.New("must be in the past")
		})),
	)
}

// contact is the normalized contact pair of a request
type contact struct {
	Email string
	Phone string
}

func (c contact) empty() bool {
	return c.Email == "" && c.Phone == ""
}

func (c contact) channel() (ContactChannel, string) {
	return channelFor(c.Email, c.Phone)
}

func (c contact) resendChannel() (ContactChannel, string) {
	return resendChannelFor(c.Email, c.Phone)
}

// checkContact trims and validates a contact pair. requirePhone is set when
// MFA makes the phone mandatory.
func (p CredentialPolicy) checkContact(email, phone string, requirePhone bool) (contact, error) {
	c := contact{
		Email: strings.TrimSpace(email),
		Phone: strings.TrimSpace(phone),
	}

	if requirePhone && c.Phone == "" {
		return c, newError(ErrMissingContact, nil, map[string]any{
			"fields": map[string]string{"phone": "a phone number is required when MFA is enabled"},
		})
	}

	if c.empty() {
		return c, newError(ErrMissingContact, nil, map[string]any{
			"fields": map[string]string{
				"email": "an email or a phone number must be provided",
				"phone": "an email or a phone number must be provided",
			},
		})
	}

	if c.Phone != "" {
		normalized, err := p.ValidatePhone(c.Phone)
		if err != nil {
			return c, err
		}
		c.Phone = normalized
	}

	return c, nil
}

// checkPassword reports every violated rule in a single validation error.
func (p CredentialPolicy) checkPassword(password string) error {
	violations := p.ValidatePassword(password)
	if len(violations) == 0 {
		return nil
	}

	rules := make([]string, 0, len(violations))
	for _, v := range violations {
		rules = append(rules, string(v))
	}

	return newError(ErrValidation, nil, map[string]any{
		"fields":     map[string]string{"password": p.PasswordMessage(violations)},
		"violations": rules,
	})
}
