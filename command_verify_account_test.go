package authflow_test

import (
	"context"
	"testing"
	"time"

	authflow "github.com/goliatone/go-authflow"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type verifyFixture struct {
	store    *memStore
	mailer   *authflow.RecordingDispatcher
	gate     *authflow.OperationGate
	verifier *authflow.Verifier
	handler  *authflow.VerifyAccountHandler
	record   *authflow.UserRecord
	clock    *time.Time
}

func newVerifyFixture(t *testing.T) *verifyFixture {
	t.Helper()

	record := &authflow.UserRecord{
		ID:       uuid.New(),
		Email:    "alice@example.com",
		Username: "alice",
	}
	store := newMemStore(record)
	mailer := authflow.NewRecordingDispatcher()
	gate := authflow.NewOperationGate()

	current := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	verifier := authflow.NewVerifier(store, mailer,
		authflow.WithVerifierLogger(testLogger{}),
		authflow.WithVerifierClock(func() time.Time { return current }),
	)

	return &verifyFixture{
		store:    store,
		mailer:   mailer,
		gate:     gate,
		verifier: verifier,
		handler:  authflow.NewVerifyAccountHandler(verifier, gate).WithLogger(testLogger{}),
		record:   record,
		clock:    &current,
	}
}

func (fx *verifyFixture) issue(t *testing.T) string {
	t.Helper()
	code, err := fx.verifier.IssueChallenge(context.Background(), fx.record.ID)
	require.NoError(t, err)
	return code
}

func (fx *verifyFixture) execute(t *testing.T, userID, code string) *authflow.VerifyAccountResponse {
	t.Helper()

	var res *authflow.VerifyAccountResponse
	err := fx.handler.Execute(context.Background(), authflow.VerifyAccountMessage{
		UserID:     userID,
		Code:       code,
		OnResponse: func(r *authflow.VerifyAccountResponse) { res = r },
	})
	require.NoError(t, err)
	require.NotNil(t, res)
	return res
}

func TestVerifyAccountCorrectCode(t *testing.T) {
	fx := newVerifyFixture(t)
	code := fx.issue(t)

	res := fx.execute(t, fx.record.ID.String(), " "+code+" ")

	assert.True(t, res.Verified)
	assert.Equal(t, authflow.DefaultRouteTargets().Login, res.Redirect)
	assert.Equal(t, authflow.NoticeSuccess, res.Notice.Category)
	assert.True(t, fx.store.get(fx.record.ID).Verified)
	assert.False(t, fx.gate.InFlight(fx.record.ID.String(), authflow.OpVerify))
}

func TestVerifyAccountReplayedCode(t *testing.T) {
	fx := newVerifyFixture(t)
	code := fx.issue(t)

	first := fx.execute(t, fx.record.ID.String(), code)
	require.True(t, first.Verified)

	second := fx.execute(t, fx.record.ID.String(), code)
	assert.False(t, second.Verified)
	assert.True(t, second.AlreadyVerified)
	assert.Equal(t, authflow.DefaultRouteTargets().Login, second.Redirect)
	assert.Equal(t, authflow.NoticeInfo, second.Notice.Category)
}

func TestVerifyAccountExpiredCode(t *testing.T) {
	fx := newVerifyFixture(t)
	code := fx.issue(t)

	*fx.clock = fx.clock.Add(16 * time.Minute)

	res := fx.execute(t, fx.record.ID.String(), code)
	assert.True(t, res.Expired)
	assert.False(t, res.Verified)
	assert.Equal(t, authflow.DefaultRouteTargets().Request, res.Redirect)
	assert.Equal(t, authflow.NoticeWarning, res.Notice.Category)
}

func TestVerifyAccountWrongCode(t *testing.T) {
	fx := newVerifyFixture(t)
	code := fx.issue(t)

	wrong := "000000"
	if wrong == code {
		wrong = "111111"
	}

	res := fx.execute(t, fx.record.ID.String(), wrong)
	assert.True(t, res.Mismatch)
	assert.Empty(t, res.Redirect, "a mismatch keeps the user on the form")
	assert.Equal(t, authflow.NoticeError, res.Notice.Category)

	// the challenge survives so the right code still works
	retry := fx.execute(t, fx.record.ID.String(), code)
	assert.True(t, retry.Verified)
}

func TestVerifyAccountMalformedCode(t *testing.T) {
	fx := newVerifyFixture(t)
	code := fx.issue(t)

	// shape violations are caught by payload validation and reported
	// inline, before the verifier or the store is ever consulted
	for _, candidate := range []string{"12345", "12a456", "1234567"} {
		err := fx.handler.Execute(context.Background(), authflow.VerifyAccountMessage{
			UserID: fx.record.ID.String(),
			Code:   candidate,
		})
		require.Error(t, err, "candidate %q", candidate)

		var richErr *goerrors.Error
		require.True(t, goerrors.As(err, &richErr))
		assert.Equal(t, goerrors.CategoryValidation, richErr.Category)
	}

	// the challenge is untouched, the real code still verifies
	res := fx.execute(t, fx.record.ID.String(), code)
	assert.True(t, res.Verified)
}

func TestVerifyAccountRejectsBadUserID(t *testing.T) {
	fx := newVerifyFixture(t)

	for _, userID := range []string{"", "not-a-uuid"} {
		err := fx.handler.Execute(context.Background(), authflow.VerifyAccountMessage{
			UserID: userID,
			Code:   "123456",
		})
		require.Error(t, err, "user id %q", userID)

		var richErr *goerrors.Error
		require.True(t, goerrors.As(err, &richErr))
		assert.Equal(t, goerrors.CategoryValidation, richErr.Category)
	}
}

func TestVerifyAccountUnknownUserIsAnError(t *testing.T) {
	fx := newVerifyFixture(t)

	err := fx.handler.Execute(context.Background(), authflow.VerifyAccountMessage{
		UserID: uuid.New().String(),
		Code:   "123456",
	})
	assert.True(t, goerrors.Is(err, authflow.ErrRecordMissing))
}
