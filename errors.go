package authflow

import (
	goerrors "github.com/goliatone/go-errors"
)

const (
	textCodeRecordMissing     = "USER_RECORD_MISSING"
	textCodeChallengeExpired  = "CHALLENGE_EXPIRED"
	textCodeChallengeMismatch = "CHALLENGE_MISMATCH"
	textCodeMalformedInput    = "MALFORMED_INPUT"
	textCodeAlreadyVerified   = "ALREADY_VERIFIED"
	textCodeDispatchFailed    = "MAIL_DISPATCH_FAILED"
	textCodeTokenExpired      = "TOKEN_EXPIRED"
	textCodeTokenMalformed    = "TOKEN_MALFORMED"
)

// ErrRecordMissing is returned when an authenticated session has no backing
// user record.
var ErrRecordMissing = goerrors.New("user record not found", goerrors.CategoryNotFound).
	WithTextCode(textCodeRecordMissing)

// ErrChallengeExpired is returned when the stored OTP is older than the
// challenge window.
var ErrChallengeExpired = goerrors.New("verification code has expired", goerrors.CategoryValidation).
	WithTextCode(textCodeChallengeExpired).
	WithCode(goerrors.CodeBadRequest)

// ErrChallengeMismatch is returned when a well-formed candidate does not
// match the stored OTP.
var ErrChallengeMismatch = goerrors.New("invalid verification code", goerrors.CategoryValidation).
	WithTextCode(textCodeChallengeMismatch).
	WithCode(goerrors.CodeBadRequest)

// ErrMalformedCandidate is returned before the store is touched when the
// candidate is not exactly six ASCII digits.
var ErrMalformedCandidate = goerrors.New("verification code must be 6 digits", goerrors.CategoryValidation).
	WithTextCode(textCodeMalformedInput).
	WithCode(goerrors.CodeBadRequest)

// ErrAlreadyVerified reports an already-verified account. It is
// informational: callers surface it as a notice, not a failure.
var ErrAlreadyVerified = goerrors.New("account is already verified", goerrors.CategoryConflict).
	WithTextCode(textCodeAlreadyVerified).
	WithCode(goerrors.CodeConflict)

// ErrDispatchFailed wraps a mail dispatch failure. Fatal for verification
// mail, best-effort for welcome mail.
var ErrDispatchFailed = goerrors.New("unable to dispatch mail", goerrors.CategoryOperation).
	WithTextCode(textCodeDispatchFailed)

// ErrTokenExpired is returned when a session token or reset code is past
// its expiry.
var ErrTokenExpired = goerrors.New("token has expired", goerrors.CategoryAuth).
	WithTextCode(textCodeTokenExpired).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenMalformed is returned when a token cannot be parsed or its
// signature does not check out.
var ErrTokenMalformed = goerrors.New("token is malformed", goerrors.CategoryAuth).
	WithTextCode(textCodeTokenMalformed).
	WithCode(goerrors.CodeUnauthorized)

// ErrMismatchedHashAndPassword is the generic bad-credentials error.
var ErrMismatchedHashAndPassword = goerrors.New("invalid credentials", goerrors.CategoryAuth).
	WithCode(goerrors.CodeUnauthorized)

// ErrTooManyLoginAttempts is returned when an account has exceeded the
// allowed failed attempts inside the cool down period.
var ErrTooManyLoginAttempts = goerrors.New("too many failed attempts, account is cooling down", goerrors.CategoryAuth).
	WithTextCode("TOO_MANY_LOGIN_ATTEMPTS").
	WithCode(goerrors.CodeUnauthorized)

// ErrNoEmptyString rejects empty required inputs before hashing.
var ErrNoEmptyString = goerrors.New("value must not be empty", goerrors.CategoryValidation).
	WithCode(goerrors.CodeBadRequest)

// ProviderCode is the closed set of identity provider failure codes the
// flows translate to user-facing messages.
type ProviderCode string

const (
	ProviderUserNotFound    ProviderCode = "auth/user-not-found"
	ProviderEmailInUse      ProviderCode = "auth/email-already-in-use"
	ProviderTooManyRequests ProviderCode = "auth/too-many-requests"
	ProviderNetworkFailure  ProviderCode = "auth/network-request-failed"
	ProviderBadCredential   ProviderCode = "auth/invalid-credential"
	ProviderWeakPassword    ProviderCode = "auth/weak-password"
	ProviderUnknown         ProviderCode = "auth/unknown"
)

// providerMessages is the fixed message per provider code; unmapped codes
// fall back to the generic entry.
var providerMessages = map[ProviderCode]string{
	ProviderUserNotFound:    "No account found with this email.",
	ProviderEmailInUse:      "This email is already registered.",
	ProviderTooManyRequests: "Too many failed attempts. Please try again later.",
	ProviderNetworkFailure:  "Network error. Please check your connection.",
	ProviderBadCredential:   "Invalid email or password. Please try again.",
	ProviderWeakPassword:    "Password is too weak.",
	ProviderUnknown:         "Unknown error occurred. Please try again later.",
}

// ProviderError is a categorized identity provider failure carrying its
// wire code.
func ProviderError(code ProviderCode, cause error) *goerrors.Error {
	msg, ok := providerMessages[code]
	if !ok {
		code = ProviderUnknown
		msg = providerMessages[ProviderUnknown]
	}

	category := goerrors.CategoryAuth
	switch code {
	case ProviderUserNotFound:
		category = goerrors.CategoryNotFound
	case ProviderEmailInUse:
		category = goerrors.CategoryConflict
	case ProviderNetworkFailure, ProviderTooManyRequests:
		category = goerrors.CategoryOperation
	}

	err := goerrors.New(msg, category).
		WithTextCode(string(code)).
		WithMetadata(map[string]any{"provider_code": string(code)})

	if cause != nil {
		return goerrors.Wrap(cause, category, msg).
			WithTextCode(string(code)).
			WithMetadata(map[string]any{"provider_code": string(code)})
	}

	return err
}

// ProviderCodeOf extracts the provider code from an error, defaulting to
// ProviderUnknown.
func ProviderCodeOf(err error) ProviderCode {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return ProviderUnknown
	}
	if richErr.Metadata != nil {
		if code, ok := richErr.Metadata["provider_code"].(string); ok {
			return ProviderCode(code)
		}
	}
	if richErr.TextCode != "" {
		if _, ok := providerMessages[ProviderCode(richErr.TextCode)]; ok {
			return ProviderCode(richErr.TextCode)
		}
	}
	return ProviderUnknown
}

// UserMessage maps any flow error to the message the presentation layer
// shows. Validation errors keep their own text; provider errors use the
// closed table; everything else collapses to the generic entry.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return providerMessages[ProviderUnknown]
	}

	switch richErr.Category {
	case goerrors.CategoryValidation, goerrors.CategoryConflict, goerrors.CategoryNotFound:
		return richErr.Message
	}

	if code := ProviderCodeOf(richErr); code != ProviderUnknown {
		return providerMessages[code]
	}

	return providerMessages[ProviderUnknown]
}
