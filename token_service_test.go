package authflow_test

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
	authflow "github.com/goliatone/go-authflow"
	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTokenService(expirationHours int) authflow.TokenService {
	return authflow.NewTokenService(
		[]byte("test-signing-key"),
		expirationHours,
		"authflow",
		jwt.ClaimStrings{"authflow"},
		testLogger{},
	)
}

func TestTokenServiceSessionRoundTrip(t *testing.T) {
	tokens := newTestTokenService(72)

	raw, err := tokens.Generate("user-123", "alice@example.com")
	require.NoError(t, err)
	require.NotEmpty(t, raw)

	claims, err := tokens.Validate(raw)
	require.NoError(t, err)
	assert.Equal(t, "user-123", claims.UID)
	assert.Equal(t, "alice@example.com", claims.Email)
	assert.Equal(t, "authflow", claims.Issuer)
}

func TestTokenServiceRejectsExpiredToken(t *testing.T) {
	tokens := newTestTokenService(-1)

	raw, err := tokens.Generate("user-123", "alice@example.com")
	require.NoError(t, err)

	_, err = tokens.Validate(raw)
	assert.True(t, goerrors.Is(err, authflow.ErrTokenExpired))
}

func TestTokenServiceRejectsGarbage(t *testing.T) {
	tokens := newTestTokenService(72)

	for _, raw := range []string{"", "not-a-token", "a.b.c"} {
		_, err := tokens.Validate(raw)
		require.Error(t, err, "raw %q", raw)

		var richErr *goerrors.Error
		require.True(t, goerrors.As(err, &richErr))
		assert.Equal(t, goerrors.CategoryAuth, richErr.Category)
	}
}

func TestTokenServiceRejectsForeignSignature(t *testing.T) {
	minter := authflow.NewTokenService([]byte("other-key"), 72, "authflow", jwt.ClaimStrings{"authflow"}, testLogger{})
	tokens := newTestTokenService(72)

	raw, err := minter.Generate("user-123", "alice@example.com")
	require.NoError(t, err)

	_, err = tokens.Validate(raw)
	assert.Error(t, err)
}

func TestTokenServiceResetCodeRoundTrip(t *testing.T) {
	tokens := newTestTokenService(72)

	code, err := tokens.GenerateResetCode("alice@example.com")
	require.NoError(t, err)

	email, err := tokens.ValidateResetCode(code)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", email)
}

func TestTokenServicePurposesAreNotInterchangeable(t *testing.T) {
	tokens := newTestTokenService(72)

	session, err := tokens.Generate("user-123", "alice@example.com")
	require.NoError(t, err)
	code, err := tokens.GenerateResetCode("alice@example.com")
	require.NoError(t, err)

	// a session token is not a reset code
	_, err = tokens.ValidateResetCode(session)
	assert.Error(t, err)

	// and a reset code does not open a session
	_, err = tokens.Validate(code)
	assert.Error(t, err)
}
