package divide

import errors "github.com/goliatone/go-errors"

const (
	TextCodeEmailTaken       = "auth_email_taken"
	TextCodeInvalidCreds     = "auth_invalid_credentials"
	TextCodeTokenExpired     = "auth_token_expired"
	TextCodeTokenMalformed   = "auth_token_malformed"
	TextCodeUnknownToken     = "auth_unknown_token"
	TextCodeAccountNotFound  = "auth_account_not_found"
	TextCodeStorageFailure   = "auth_storage_failure"
	TextCodeCryptoFailure    = "auth_crypto_failure"
	TextCodeEmptyCredential  = "auth_empty_credential"
	TextCodePayloadMalformed = "auth_payload_malformed"
)

// ErrDuplicateEmail is returned when a sign-up reuses an existing email.
var ErrDuplicateEmail = errors.New("email already registered", errors.CategoryConflict).
	WithTextCode(TextCodeEmailTaken).
	WithCode(errors.CodeConflict)

// ErrPasswordMismatch is returned when a login password fails comparison
// against the stored hash.
var ErrPasswordMismatch = errors.New("password mismatch", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidCreds).
	WithCode(errors.CodeUnauthorized)

// ErrAccountNotFound is returned when no credentials match the identifier.
// Login paths surface it as Unauthorized rather than NotFound so callers
// cannot enumerate accounts.
var ErrAccountNotFound = errors.New("account not found", errors.CategoryAuth).
	WithTextCode(TextCodeAccountNotFound).
	WithCode(errors.CodeUnauthorized)

// ErrMarkerNotFound is returned when a validation marker matches no account.
var ErrMarkerNotFound = errors.New("no account for validation marker", errors.CategoryNotFound).
	WithTextCode(TextCodeAccountNotFound).
	WithCode(errors.CodeNotFound)

// ErrTokenExpired is returned for well-formed tokens past their expiry.
// Tokens that fail to parse map here too: an undecodable token is treated
// as expired, never as authenticated.
var ErrTokenExpired = errors.New("token expired", errors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(errors.CodeUnauthorized)

// ErrTokenMalformed is returned when a token cannot be decoded under the
// symmetric key.
var ErrTokenMalformed = errors.New("token malformed", errors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(errors.CodeUnauthorized)

// ErrUnknownToken is returned for a well-formed, unexpired token that
// resolves to no persisted record.
var ErrUnknownToken = errors.New("token does not resolve", errors.CategoryBadInput).
	WithTextCode(TextCodeUnknownToken).
	WithCode(errors.CodeBadRequest)

// ErrStorageFailure wraps backend storage errors. Recoverable by retry.
var ErrStorageFailure = errors.New("storage backend failure", errors.CategoryInternal).
	WithTextCode(TextCodeStorageFailure).
	WithCode(errors.CodeInternal)

// ErrCrypto is the only crypto failure callers ever see. Decrypt
// diagnostics are logged server-side and never surfaced; a distinguishable
// crypto error would hand attackers a padding oracle.
var ErrCrypto = errors.New("request could not be processed", errors.CategoryInternal).
	WithTextCode(TextCodeCryptoFailure).
	WithCode(errors.CodeInternal)

// ErrNoEmptyString is returned when hashing an empty password.
var ErrNoEmptyString = errors.New("value must not be empty", errors.CategoryValidation).
	WithTextCode(TextCodeEmptyCredential).
	WithCode(errors.CodeBadRequest)

// ErrMalformedPayload is returned for credential payloads that fail
// validation before any protocol work happens.
var ErrMalformedPayload = errors.New("malformed credential payload", errors.CategoryValidation).
	WithTextCode(TextCodePayloadMalformed).
	WithCode(errors.CodeBadRequest)

// IsAuthError reports whether err belongs to the auth category.
func IsAuthError(err error) bool {
	var rich *errors.Error
	if !errors.As(err, &rich) {
		return false
	}
	return rich.Category == errors.CategoryAuth
}
