package accounts

import (
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeValidation              = "VALIDATION_FAILED"
	TextCodeInvalidPhone            = "INVALID_PHONE_FORMAT"
	TextCodeMissingContact          = "MISSING_CONTACT"
	TextCodeContactInUse            = "CONTACT_ALREADY_IN_USE"
	TextCodeDuplicateUsername       = "DUPLICATE_USERNAME"
	TextCodeAccountNotFound         = "ACCOUNT_NOT_FOUND"
	TextCodeRoleNotFound            = "ROLE_NOT_FOUND"
	TextCodeCandidateNotFound       = "CANDIDATE_NOT_FOUND"
	TextCodeExternalDirectory       = "EXTERNAL_DIRECTORY_ERROR"
	TextCodeExternalAccountNotFound = "EXTERNAL_ACCOUNT_NOT_FOUND"
	TextCodePartialFailure          = "PARTIAL_FAILURE"
	TextCodeReminderThrottled       = "REMINDER_THROTTLED"
	TextCodeInvalidStatus           = "INVALID_ACCOUNT_STATUS"
	TextCodeMissingToken            = "MISSING_TOKEN"
	TextCodeUnsupportedScheme       = "UNSUPPORTED_SCHEME"
	TextCodeUnknownSigningKey       = "UNKNOWN_SIGNING_KEY"
	TextCodeInvalidSignature        = "INVALID_SIGNATURE"
	TextCodeTokenExpired            = "TOKEN_EXPIRED"
	TextCodeMissingIdentityClaim    = "MISSING_IDENTITY_CLAIM"
	TextCodeUnknownAccount          = "UNKNOWN_ACCOUNT"
	TextCodeForbidden               = "FORBIDDEN"
)

// NotAuthorizedMessage is the only message auth failures expose to callers.
const NotAuthorizedMessage = "not authorized"

// ErrValidation carries field level reasons in its "fields" metadata.
var ErrValidation = goerrors.New("invalid input", goerrors.CategoryValidation).
	WithTextCode(TextCodeValidation).
	WithCode(goerrors.CodeBadRequest)

var ErrInvalidPhoneFormat = goerrors.New("invalid phone number format", goerrors.CategoryValidation).
	WithTextCode(TextCodeInvalidPhone).
	WithCode(goerrors.CodeBadRequest)

var ErrMissingContact = goerrors.New("an email or a phone number must be provided", goerrors.CategoryValidation).
	WithTextCode(TextCodeMissingContact).
	WithCode(goerrors.CodeBadRequest)

var ErrContactAlreadyInUse = goerrors.New("there already exists an account with that contact", goerrors.CategoryConflict).
	WithTextCode(TextCodeContactInUse).
	WithCode(goerrors.CodeConflict)

var ErrDuplicateUsername = goerrors.New("username already taken", goerrors.CategoryConflict).
	WithTextCode(TextCodeDuplicateUsername).
	WithCode(goerrors.CodeConflict)

var ErrAccountNotFound = goerrors.New("account not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeAccountNotFound).
	WithCode(goerrors.CodeNotFound)

var ErrRoleNotFound = goerrors.New("the role does not exist", goerrors.CategoryNotFound).
	WithTextCode(TextCodeRoleNotFound).
	WithCode(goerrors.CodeNotFound)

var ErrCandidateNotFound = goerrors.New("candidate not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeCandidateNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrExternalDirectory wraps any failure reported by the identity directory,
// timeouts included.
var ErrExternalDirectory = goerrors.New("identity directory call failed", goerrors.CategoryOperation).
	WithTextCode(TextCodeExternalDirectory).
	WithCode(http.StatusBadGateway)

var ErrExternalAccountNotFound = goerrors.New("identity directory account not found", goerrors.CategoryOperation).
	WithTextCode(TextCodeExternalAccountNotFound).
	WithCode(http.StatusBadGateway)

// ErrPartialFailure is returned when the local store was updated but a later
// directory step failed, leaving both systems diverged.
var ErrPartialFailure = goerrors.New("operation partially applied", goerrors.CategoryOperation).
	WithTextCode(TextCodePartialFailure).
	WithCode(goerrors.CodeInternal)

var ErrReminderThrottled = goerrors.New("an invitation reminder was sent recently", goerrors.CategoryRateLimit).
	WithTextCode(TextCodeReminderThrottled).
	WithCode(http.StatusTooManyRequests)

var ErrInvalidStatus = goerrors.New("account status does not allow this operation", goerrors.CategoryConflict).
	WithTextCode(TextCodeInvalidStatus).
	WithCode(goerrors.CodeConflict)

var ErrMissingToken = goerrors.New("missing bearer token", goerrors.CategoryAuth).
	WithTextCode(TextCodeMissingToken).
	WithCode(goerrors.CodeForbidden)

var ErrUnsupportedScheme = goerrors.New("wrong authentication method", goerrors.CategoryAuth).
	WithTextCode(TextCodeUnsupportedScheme).
	WithCode(goerrors.CodeForbidden)

var ErrUnknownSigningKey = goerrors.New("JWK public key not found", goerrors.CategoryAuth).
	WithTextCode(TextCodeUnknownSigningKey).
	WithCode(goerrors.CodeForbidden)

var ErrInvalidSignature = goerrors.New("JWK invalid", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidSignature).
	WithCode(goerrors.CodeForbidden)

var ErrTokenExpired = goerrors.New("token is expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(goerrors.CodeForbidden)

var ErrMissingIdentityClaim = goerrors.New("ID missing", goerrors.CategoryAuth).
	WithTextCode(TextCodeMissingIdentityClaim).
	WithCode(goerrors.CodeForbidden)

var ErrUnknownAccount = goerrors.New("token account does not exist", goerrors.CategoryAuth).
	WithTextCode(TextCodeUnknownAccount).
	WithCode(goerrors.CodeForbidden)

var ErrForbidden = goerrors.New("account lacks the required role", goerrors.CategoryAuthz).
	WithTextCode(TextCodeForbidden).
	WithCode(goerrors.CodeForbidden)

// newError clones base so the package level sentinels are never mutated.
func newError(base *goerrors.Error, source error, metadata map[string]any) *goerrors.Error {
	clone := base.Clone()
	if clone == nil {
		clone = base
	}
	if source != nil {
		clone.Source = source
	}
	if len(metadata) > 0 {
		clone.WithMetadata(metadata)
	}
	return clone
}

// WrapError clones base with source as its cause. Adapters outside the
// package use it to report errors from the taxonomy.
func WrapError(base *goerrors.Error, source error, metadata map[string]any) *goerrors.Error {
	return newError(base, source, metadata)
}

// NewValidationError builds a validation error with one reason per field.
func NewValidationError(fields map[string]string) *goerrors.Error {
	return newError(ErrValidation, nil, map[string]any{"fields": fields})
}

func validationFromOzzo(err error) error {
	if err == nil {
		return nil
	}

	errs, ok := err.(validation.Errors)
	if !ok {
		return newError(ErrValidation, err, map[string]any{
			"fields": map[string]string{"payload": err.Error()},
		})
	}

	fields := make(map[string]string, len(errs))
	for name, fieldErr := range errs {
		if fieldErr != nil {
			fields[name] = fieldErr.Error()
		}
	}
	return NewValidationError(fields)
}

// TextCode returns the text code of a rich error, or an empty string.
func TextCode(err error) string {
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		return rich.TextCode
	}
	return ""
}

// HasTextCode reports whether err carries the given text code.
func HasTextCode(err error, code string) bool {
	return err != nil && TextCode(err) == code
}

// ValidationFields returns the field reasons attached to a validation error.
func ValidationFields(err error) map[string]string {
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || rich.Metadata == nil {
		return nil
	}
	fields, _ := rich.Metadata["fields"].(map[string]string)
	return fields
}

// IsAuthError reports whether err is one of the access guard failures.
func IsAuthError(err error) bool {
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		return false
	}
	return rich.Category == goerrors.CategoryAuth || rich.Category == goerrors.CategoryAuthz
}

// HTTPStatus maps an error to the status code callers should see.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		return http.StatusInternalServerError
	}

	switch rich.Category {
	case goerrors.CategoryValidation, goerrors.CategoryBadInput:
		return http.StatusBadRequest
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	}

	if rich.Code != 0 {
		return rich.Code
	}
	return http.StatusInternalServerError
}
