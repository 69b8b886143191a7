package authflow_test

import (
	"context"
	"testing"

	authflow "github.com/goliatone/go-authflow"
	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProvider(opts ...authflow.LocalProviderOption) *authflow.LocalIdentityProvider {
	opts = append([]authflow.LocalProviderOption{
		authflow.WithProviderLogger(testLogger{}),
	}, opts...)
	return authflow.NewLocalIdentityProvider(newTestTokenService(72), opts...)
}

func TestLocalProviderSignUpSignInSignOut(t *testing.T) {
	provider := newTestProvider()
	ctx := context.Background()

	session, err := provider.SignUp(ctx, "Alice@Example.com", "SuperSecret1!")
	require.NoError(t, err)
	assert.True(t, session.Authenticated)
	assert.Equal(t, "alice@example.com", session.Email)
	assert.NotEmpty(t, session.UserID)
	assert.NotEmpty(t, provider.SessionToken())

	require.NoError(t, provider.SignOut(ctx))
	assert.Equal(t, authflow.Anonymous, provider.CurrentSession(ctx))
	assert.Empty(t, provider.SessionToken())

	again, err := provider.SignIn(ctx, "alice@example.com", "SuperSecret1!")
	require.NoError(t, err)
	assert.Equal(t, session.UserID, again.UserID, "a returning user keeps their id")
}

func TestLocalProviderRejectsDuplicateEmail(t *testing.T) {
	provider := newTestProvider()
	ctx := context.Background()

	_, err := provider.SignUp(ctx, "alice@example.com", "SuperSecret1!")
	require.NoError(t, err)

	_, err = provider.SignUp(ctx, "ALICE@example.com", "OtherSecret1!")
	require.Error(t, err)
	assert.Equal(t, authflow.ProviderEmailInUse, authflow.ProviderCodeOf(err))
}

func TestLocalProviderRejectsBadCredentials(t *testing.T) {
	provider := newTestProvider()
	ctx := context.Background()

	_, err := provider.SignUp(ctx, "alice@example.com", "SuperSecret1!")
	require.NoError(t, err)
	require.NoError(t, provider.SignOut(ctx))

	_, err = provider.SignIn(ctx, "alice@example.com", "wrong-password")
	assert.Equal(t, authflow.ProviderBadCredential, authflow.ProviderCodeOf(err))

	// unknown accounts fail exactly like a wrong password
	_, err = provider.SignIn(ctx, "nobody@example.com", "whatever")
	assert.Equal(t, authflow.ProviderBadCredential, authflow.ProviderCodeOf(err))
}

func TestLocalProviderRejectsEmptyInput(t *testing.T) {
	provider := newTestProvider()
	ctx := context.Background()

	_, err := provider.SignUp(ctx, "", "secret")
	assert.True(t, goerrors.Is(err, authflow.ErrNoEmptyString))

	_, err = provider.SignIn(ctx, "alice@example.com", "")
	assert.True(t, goerrors.Is(err, authflow.ErrNoEmptyString))
}

func TestLocalProviderLoginAttemptCoolDown(t *testing.T) {
	provider := newTestProvider()
	ctx := context.Background()

	_, err := provider.SignUp(ctx, "alice@example.com", "SuperSecret1!")
	require.NoError(t, err)
	require.NoError(t, provider.SignOut(ctx))

	for i := 0; i <= authflow.MaxLoginAttempts; i++ {
		_, err = provider.SignIn(ctx, "alice@example.com", "wrong-password")
		assert.Equal(t, authflow.ProviderBadCredential, authflow.ProviderCodeOf(err))
	}

	// the account is now cooling down even with the right password
	_, err = provider.SignIn(ctx, "alice@example.com", "SuperSecret1!")
	assert.Equal(t, authflow.ProviderTooManyRequests, authflow.ProviderCodeOf(err))
	assert.True(t, goerrors.Is(err, authflow.ErrTooManyLoginAttempts))
}

func TestLocalProviderSuccessfulLoginResetsAttempts(t *testing.T) {
	provider := newTestProvider()
	ctx := context.Background()

	_, err := provider.SignUp(ctx, "alice@example.com", "SuperSecret1!")
	require.NoError(t, err)
	require.NoError(t, provider.SignOut(ctx))

	for i := 0; i < authflow.MaxLoginAttempts; i++ {
		_, err = provider.SignIn(ctx, "alice@example.com", "wrong-password")
		require.Error(t, err)
	}

	_, err = provider.SignIn(ctx, "alice@example.com", "SuperSecret1!")
	require.NoError(t, err)
	require.NoError(t, provider.SignOut(ctx))

	// the counter restarted, so a fresh mistake does not lock the account
	_, err = provider.SignIn(ctx, "alice@example.com", "wrong-password")
	assert.Equal(t, authflow.ProviderBadCredential, authflow.ProviderCodeOf(err))
	_, err = provider.SignIn(ctx, "alice@example.com", "SuperSecret1!")
	assert.NoError(t, err)
}

func TestLocalProviderObserverLifecycle(t *testing.T) {
	provider := newTestProvider()
	ctx := context.Background()

	var seen []authflow.Session
	unsub := provider.OnAuthStateChanged(func(s authflow.Session) {
		seen = append(seen, s)
	})

	// subscription fires immediately with the current snapshot
	require.Len(t, seen, 1)
	assert.Equal(t, authflow.Anonymous, seen[0])

	_, err := provider.SignUp(ctx, "alice@example.com", "SuperSecret1!")
	require.NoError(t, err)
	require.Len(t, seen, 2)
	assert.True(t, seen[1].Authenticated)

	require.NoError(t, provider.SignOut(ctx))
	require.Len(t, seen, 3)
	assert.Equal(t, authflow.Anonymous, seen[2])

	unsub()
	_, err = provider.SignIn(ctx, "alice@example.com", "SuperSecret1!")
	require.NoError(t, err)
	assert.Len(t, seen, 3, "an unsubscribed observer receives nothing")
}

func TestLocalProviderPasswordResetFlow(t *testing.T) {
	mailer := authflow.NewRecordingDispatcher()
	provider := newTestProvider(authflow.WithProviderMailer(mailer))
	ctx := context.Background()

	_, err := provider.SignUp(ctx, "alice@example.com", "OldSecret1!")
	require.NoError(t, err)
	require.NoError(t, provider.SignOut(ctx))

	err = provider.SendPasswordResetEmail(ctx, "alice@example.com", authflow.ResetOptions{
		ContinueURL: "/authenticate?action=login",
	})
	require.NoError(t, err)

	sent := mailer.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, authflow.TemplateReset, sent[0].Template)
	code, ok := sent[0].Params["code"].(string)
	require.True(t, ok)
	require.NotEmpty(t, code)

	email, err := provider.VerifyResetCode(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", email)

	require.NoError(t, provider.ConfirmPasswordReset(ctx, code, "NewSecret1!"))

	_, err = provider.SignIn(ctx, "alice@example.com", "OldSecret1!")
	assert.Equal(t, authflow.ProviderBadCredential, authflow.ProviderCodeOf(err))

	session, err := provider.SignIn(ctx, "alice@example.com", "NewSecret1!")
	require.NoError(t, err)
	assert.True(t, session.Authenticated)
}

func TestLocalProviderResetForUnknownUser(t *testing.T) {
	provider := newTestProvider()
	ctx := context.Background()

	err := provider.SendPasswordResetEmail(ctx, "nobody@example.com", authflow.ResetOptions{})
	assert.Equal(t, authflow.ProviderUserNotFound, authflow.ProviderCodeOf(err))
}

func TestLocalProviderRejectsTamperedResetCode(t *testing.T) {
	provider := newTestProvider()
	ctx := context.Background()

	_, err := provider.SignUp(ctx, "alice@example.com", "SuperSecret1!")
	require.NoError(t, err)

	_, err = provider.VerifyResetCode(ctx, "not-a-real-code")
	require.Error(t, err)

	err = provider.ConfirmPasswordReset(ctx, "not-a-real-code", "NewSecret1!")
	require.Error(t, err)

	// the original password still works
	require.NoError(t, provider.SignOut(ctx))
	_, err = provider.SignIn(ctx, "alice@example.com", "SuperSecret1!")
	assert.NoError(t, err)
}
