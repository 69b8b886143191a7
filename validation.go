package authflow

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	validation "github.com/go-ozzo/ozzo-validation"
)

// ValidateStringEquals will check that both values match
func ValidateStringEquals(str string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != str {
			return errors.New("values must match")
		}
		return nil
	}
}

// PasswordStrength enforces the configured policy: minimum length plus
// required character classes.
func PasswordStrength(policy PasswordPolicy) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)

		if policy.MinLength > 0 && len(s) < policy.MinLength {
			return fmt.Errorf("must be at least %d characters", policy.MinLength)
		}

		var hasUpper, hasLower, hasDigit, hasSymbol bool
		for _, r := range s {
			switch {
			case unicode.IsUpper(r):
				hasUpper = true
			case unicode.IsLower(r):
				hasLower = true
			case unicode.IsDigit(r):
				hasDigit = true
			default:
				hasSymbol = true
			}
		}

		switch {
		case policy.RequireUpper && !hasUpper:
			return errors.New("must contain an uppercase letter")
		case policy.RequireLower && !hasLower:
			return errors.New("must contain a lowercase letter")
		case policy.RequireDigit && !hasDigit:
			return errors.New("must contain a digit")
		case policy.RequireSymbol && !hasSymbol:
			return errors.New("must contain a symbol")
		}

		return nil
	}
}

// OTPShape rejects anything that is not exactly six ASCII digits.
func OTPShape(value any) error {
	s, _ := value.(string)
	if !isWellFormedCandidate(s) {
		return errors.New("must be a 6 digit code")
	}
	return nil
}

// TermsAccepted requires the terms checkbox to be ticked.
func TermsAccepted(value any) error {
	accepted, _ := value.(bool)
	if !accepted {
		return errors.New("you must accept the terms of service")
	}
	return nil
}

// FormatValidationErrorToMap flattens an ozzo validation error into a
// field-to-message map for inline display.
func FormatValidationErrorToMap(err error) map[string]string {
	out := map[string]string{}
	if err == nil {
		return out
	}

	var verrs validation.Errors
	if errors.As(err, &verrs) {
		for field, ferr := range verrs {
			if ferr != nil {
				out[field] = ferr.Error()
			}
		}
		return out
	}

	out["form"] = err.Error()
	return out
}

// SanitizeInput trims whitespace, strips backslashes, and escapes HTML
// special characters. Applied to free text fields before validation.
func SanitizeInput(data string) string {
	sanitized := strings.TrimSpace(data)
	sanitized = strings.ReplaceAll(sanitized, `\`, "")

	replacer := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
		"'", "&#039;",
	)

	return replacer.Replace(sanitized)
}
