package auth

import (
	"errors"
	"fmt"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
)

// ErrInvalidCredentials is returned on login with an unknown username or a wrong password
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrDuplicateIdentity is returned when signup uses a taken username or email
var ErrDuplicateIdentity = errors.New("identity already in use")

// ErrInvalidToken covers malformed, forged, expired and wrong purpose tokens
var ErrInvalidToken = errors.New("invalid token")

// ErrInvalidRefreshToken unknown or already rotated refresh token
var ErrInvalidRefreshToken = errors.New("invalid refresh token")

// ErrPrincipalNotFound the referenced principal does not exist
var ErrPrincipalNotFound = errors.New("principal not found")

// ErrForbidden authorization denied
var ErrForbidden = errors.New("forbidden")

// ErrResourceNotFound the referenced resource does not exist
var ErrResourceNotFound = errors.New("resource not found")

// ErrAccountDisabled the principal has not verified its email
var ErrAccountDisabled = errors.New("account disabled")

// ErrMailDelivery the mail dispatcher failed
var ErrMailDelivery = errors.New("mail delivery failed")

// ErrValidation payload failed validation
var ErrValidation = errors.New("validation failed")

// Token failure reasons. They are always wrapped together with ErrInvalidToken.
var (
	ErrTokenExpired    = errors.New("token is expired")
	ErrTokenMalformed  = errors.New("token is malformed")
	ErrTokenSignature  = errors.New("token signature is invalid")
	ErrPurposeMismatch = errors.New("token purpose mismatch")
	ErrTokenConsumed   = errors.New("token already used")
)

func invalidToken(reason error) error {
	return fmt.Errorf("%w: %w", ErrInvalidToken, reason)
}

func validationError(err error) error {
	return fmt.Errorf("%w: %w", ErrValidation, err)
}

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	return errors.Is(err, ErrTokenExpired)
}

// IsMalformedError will check for malformed tokens
func IsMalformedError(err error) bool {
	return errors.Is(err, ErrTokenMalformed)
}

func notFoundAs(err, target error) error {
	if err == nil {
		return nil
	}
	if repository.IsRecordNotFound(err) {
		return target
	}
	return err
}

// HTTPStatusFor maps an error to the status code returned to clients
func HTTPStatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrInvalidToken),
		errors.Is(err, ErrInvalidRefreshToken):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden), errors.Is(err, ErrAccountDisabled):
		return http.StatusForbidden
	case errors.Is(err, ErrPrincipalNotFound), errors.Is(err, ErrResourceNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDuplicateIdentity):
		return http.StatusConflict
	case errors.Is(err, ErrMailDelivery):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// ErrorCode returns a stable text code for the error
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "VALIDATION"
	case errors.Is(err, ErrInvalidCredentials):
		return "INVALID_CREDENTIALS"
	case errors.Is(err, ErrInvalidToken):
		return "INVALID_TOKEN"
	case errors.Is(err, ErrInvalidRefreshToken):
		return "INVALID_REFRESH_TOKEN"
	case errors.Is(err, ErrAccountDisabled):
		return "ACCOUNT_DISABLED"
	case errors.Is(err, ErrForbidden):
		return "FORBIDDEN"
	case errors.Is(err, ErrPrincipalNotFound):
		return "PRINCIPAL_NOT_FOUND"
	case errors.Is(err, ErrResourceNotFound):
		return "RESOURCE_NOT_FOUND"
	case errors.Is(err, ErrDuplicateIdentity):
		return "DUPLICATE_IDENTITY"
	case errors.Is(err, ErrMailDelivery):
		return "MAIL_DELIVERY"
	default:
		return "INTERNAL"
	}
}

// RichError converts err into the envelope rendered to clients. Internal
// failures keep their source out of the payload.
func RichError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var rich *goerrors.Error
	if errors.As(err, &rich) {
		return rich
	}

	status := HTTPStatusFor(err)
	code := ErrorCode(err)

	if status == http.StatusInternalServerError {
		return goerrors.New("internal server error", goerrors.CategoryInternal).
			WithCode(status).
			WithTextCode(code)
	}

	rich = goerrors.Wrap(err, categoryFor(err), err.Error()).
		WithCode(status).
		WithTextCode(code)

	var fields validation.Errors
	if errors.As(err, &fields) {
		for name, fieldErr := range fields {
			rich.ValidationErrors = append(rich.ValidationErrors, goerrors.FieldError{
				Field:   name,
				Message: fieldErr.Error(),
			})
		}
	}

	return rich
}

func categoryFor(err error) goerrors.Category {
	switch {
	case errors.Is(err, ErrValidation):
		return goerrors.CategoryValidation
	case errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrInvalidToken),
		errors.Is(err, ErrInvalidRefreshToken):
		return goerrors.CategoryAuth
	case errors.Is(err, ErrForbidden), errors.Is(err, ErrAccountDisabled):
		return goerrors.CategoryAuthz
	case errors.Is(err, ErrPrincipalNotFound), errors.Is(err, ErrResourceNotFound):
		return goerrors.CategoryNotFound
	case errors.Is(err, ErrDuplicateIdentity):
		return goerrors.CategoryConflict
	case errors.Is(err, ErrMailDelivery):
		return goerrors.CategoryExternal
	default:
		return goerrors.CategoryInternal
	}
}
