package authflow_test

import (
	"context"
	"testing"

	authflow "github.com/goliatone/go-authflow"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recoverFixture struct {
	store   *memStore
	mailer  *authflow.RecordingDispatcher
	gate    *authflow.OperationGate
	handler *authflow.RecoverVerificationHandler
}

func newRecoverFixture(records ...*authflow.UserRecord) *recoverFixture {
	store := newMemStore(records...)
	mailer := authflow.NewRecordingDispatcher()
	gate := authflow.NewOperationGate()
	verifier := authflow.NewVerifier(store, mailer, authflow.WithVerifierLogger(testLogger{}))

	return &recoverFixture{
		store:   store,
		mailer:  mailer,
		gate:    gate,
		handler: authflow.NewRecoverVerificationHandler(store, verifier, gate).WithLogger(testLogger{}),
	}
}

func TestRecoverVerificationReissuesChallenge(t *testing.T) {
	record := &authflow.UserRecord{
		ID:       uuid.New(),
		Email:    "alice@example.com",
		Username: "alice",
	}
	fx := newRecoverFixture(record)

	var res *authflow.RecoverVerificationResponse
	err := fx.handler.Execute(context.Background(), authflow.RecoverVerificationMessage{
		Email:      "  Alice@Example.com ",
		OnResponse: func(r *authflow.RecoverVerificationResponse) { res = r },
	})
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.True(t, res.Found)
	assert.False(t, res.AlreadyVerified)
	assert.Equal(t, record.ID.String(), res.UserID)
	assert.Contains(t, res.Redirect, "action=verify")
	assert.Equal(t, authflow.NoticeSuccess, res.Notice.Category)

	// a fresh challenge went out with the recovery template
	assert.NotNil(t, fx.store.get(record.ID).OTP)
	sent := fx.mailer.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, authflow.TemplateRecoverOTP, sent[0].Template)

	assert.False(t, fx.gate.InFlight(authflow.ScopeForEmail("alice@example.com"), authflow.OpRecover))
}

func TestRecoverVerificationUnknownEmail(t *testing.T) {
	fx := newRecoverFixture()

	var res *authflow.RecoverVerificationResponse
	err := fx.handler.Execute(context.Background(), authflow.RecoverVerificationMessage{
		Email:      "nobody@example.com",
		OnResponse: func(r *authflow.RecoverVerificationResponse) { res = r },
	})
	require.NoError(t, err, "not finding an account is part of the expected flow")
	require.NotNil(t, res)

	assert.False(t, res.Found)
	assert.Empty(t, res.Redirect)
	assert.Equal(t, authflow.NoticeError, res.Notice.Category)
	assert.Empty(t, fx.mailer.Sent(), "no code goes out for unknown emails")
}

func TestRecoverVerificationAlreadyVerified(t *testing.T) {
	record := &authflow.UserRecord{
		ID:       uuid.New(),
		Email:    "alice@example.com",
		Username: "alice",
		Verified: true,
	}
	fx := newRecoverFixture(record)

	var res *authflow.RecoverVerificationResponse
	err := fx.handler.Execute(context.Background(), authflow.RecoverVerificationMessage{
		Email:      "alice@example.com",
		OnResponse: func(r *authflow.RecoverVerificationResponse) { res = r },
	})
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.True(t, res.Found)
	assert.True(t, res.AlreadyVerified)
	assert.Equal(t, authflow.DefaultRouteTargets().Login, res.Redirect)
	assert.Equal(t, authflow.NoticeInfo, res.Notice.Category)
	assert.Empty(t, fx.mailer.Sent(), "verified accounts never get a new code")
}

func TestRecoverVerificationRejectsInvalidEmail(t *testing.T) {
	fx := newRecoverFixture()

	for _, email := range []string{"", "not-an-email", "   "} {
		err := fx.handler.Execute(context.Background(), authflow.RecoverVerificationMessage{Email: email})
		assert.Error(t, err, "email %q", email)
	}
}

func TestRecoverVerificationFailsWhenMailUndeliverable(t *testing.T) {
	record := &authflow.UserRecord{
		ID:       uuid.New(),
		Email:    "alice@example.com",
		Username: "alice",
	}
	fx := newRecoverFixture(record)
	fx.mailer.FailWith(assert.AnError)

	err := fx.handler.Execute(context.Background(), authflow.RecoverVerificationMessage{
		Email: "alice@example.com",
	})
	require.Error(t, err)
	assert.False(t, fx.gate.InFlight(authflow.ScopeForEmail("alice@example.com"), authflow.OpRecover))
}
