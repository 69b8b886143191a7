package authflow

import (
	"context"
	"crypto/rand"
	"io"
	"math/big"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// ChallengeWindow is how long an issued OTP stays valid. Registration and
// recovery reissues share the same fixed window.
const ChallengeWindow = 15 * time.Minute

const challengeDigits = 6

// IsChallengeExpired reports whether a challenge issued at createdAt has
// expired by now. Expiry is a pure function of elapsed time.
func IsChallengeExpired(createdAt, now time.Time) bool {
	return now.Sub(createdAt) > ChallengeWindow
}

// GenerateOTP draws a 6-digit code with each digit independently uniform
// over 0-9.
func GenerateOTP(source io.Reader) (string, error) {
	if source == nil {
		source = rand.Reader
	}

	ten := big.NewInt(10)
	code := make([]byte, challengeDigits)
	for i := range code {
		n, err := rand.Int(source, ten)
		if err != nil {
			return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate verification code")
		}
		code[i] = byte('0' + n.Int64())
	}

	return string(code), nil
}

// isWellFormedCandidate accepts exactly six ASCII digits.
func isWellFormedCandidate(candidate string) bool {
	if len(candidate) != challengeDigits {
		return false
	}
	for i := 0; i < len(candidate); i++ {
		if candidate[i] < '0' || candidate[i] > '9' {
			return false
		}
	}
	return true
}

// Verifier owns the OTP challenge lifecycle: issue, validate, expire.
// At most one challenge is live per user; issuing overwrites any prior
// outstanding code.
type Verifier struct {
	records RecordStore
	mailer  MailDispatcher
	targets RouteTargets
	logger  Logger
	now     func() time.Time
	source  io.Reader
	window  time.Duration
}

// VerifierOption customizes verifier construction.
type VerifierOption func(*Verifier)

// WithVerifierClock injects a custom clock (useful for tests).
func WithVerifierClock(clock func() time.Time) VerifierOption {
	return func(v *Verifier) {
		if clock != nil {
			v.now = clock
		}
	}
}

// WithVerifierWindow overrides how long issued codes stay valid. Wire it
// from Config.GetChallengeWindow when the window comes from the
// environment.
func WithVerifierWindow(window time.Duration) VerifierOption {
	return func(v *Verifier) {
		if window > 0 {
			v.window = window
		}
	}
}

// WithVerifierRandom overrides the random source used for codes.
func WithVerifierRandom(source io.Reader) VerifierOption {
	return func(v *Verifier) {
		if source != nil {
			v.source = source
		}
	}
}

func WithVerifierLogger(logger Logger) VerifierOption {
	return func(v *Verifier) {
		if logger != nil {
			v.logger = logger
		}
	}
}

func WithVerifierTargets(targets RouteTargets) VerifierOption {
	return func(v *Verifier) {
		v.targets = targets
	}
}

func NewVerifier(records RecordStore, mailer MailDispatcher, opts ...VerifierOption) *Verifier {
	v := &Verifier{
		records: records,
		mailer:  mailer,
		targets: DefaultRouteTargets(),
		logger:  defLogger{},
		now:     time.Now,
		source:  rand.Reader,
		window:  ChallengeWindow,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}

	return v
}

// IssueChallenge generates a fresh OTP for the user, stores it with its
// creation timestamp, and dispatches it by mail. Any prior outstanding
// code is overwritten. Dispatch failure is fatal: an unreachable user
// cannot verify.
func (v *Verifier) IssueChallenge(ctx context.Context, userID uuid.UUID) (string, error) {
	return v.issue(ctx, userID, TemplateVerifyOTP)
}

// ReissueChallenge is IssueChallenge with the recovery mail template; the
// stored challenge and its window are identical.
func (v *Verifier) ReissueChallenge(ctx context.Context, userID uuid.UUID) (string, error) {
	return v.issue(ctx, userID, TemplateRecoverOTP)
}

func (v *Verifier) issue(ctx context.Context, userID uuid.UUID, template TemplateKey) (string, error) {
	record, err := v.records.Read(ctx, userID)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return "", ErrRecordMissing
		}
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load user record for challenge")
	}

	if record.Verified {
		return "", ErrAlreadyVerified
	}

	otp, err := GenerateOTP(v.source)
	if err != nil {
		return "", err
	}

	issuedAt := v.now()
	if _, err := v.records.Write(ctx, userID, RecordPatch{
		OTP:          &otp,
		OTPCreatedAt: &issuedAt,
	}); err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to store verification challenge")
	}

	if err := v.mailer.Send(ctx, template, record.Email, MailParams{
		"username":    record.Username,
		"otp":         otp,
		"uid":         userID.String(),
		"resend_link": v.targets.VerifyFor(userID.String()),
	}); err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryOperation, "unable to dispatch verification mail").
			WithTextCode(textCodeDispatchFailed)
	}

	return otp, nil
}

// Verify checks a candidate code against the outstanding challenge. The
// candidate is normalized before the store is touched. On an exact match
// the verified flag, timestamp, and challenge fields change as one write,
// then a welcome mail goes out best effort.
func (v *Verifier) Verify(ctx context.Context, userID uuid.UUID, candidate string) error {
	if !isWellFormedCandidate(candidate) {
		return ErrMalformedCandidate
	}

	record, err := v.records.Read(ctx, userID)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return ErrRecordMissing
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load user record for verification")
	}

	if record.Verified {
		return ErrAlreadyVerified
	}

	if !record.HasChallenge() || v.now().Sub(*record.OTPCreatedAt) > v.window {
		if record.HasChallenge() {
			// expired codes are cleared so they can never match later
			if _, err := v.records.Write(ctx, userID, RecordPatch{ClearChallenge: true}); err != nil {
				v.logger.Warn("verifier: failed to clear expired challenge: %v", err)
			}
		}
		return ErrChallengeExpired
	}

	if *record.OTP != candidate {
		return ErrChallengeMismatch
	}

	verified := true
	verifiedAt := v.now()
	if _, err := v.records.Write(ctx, userID, RecordPatch{
		Verified:       &verified,
		VerifiedAt:     &verifiedAt,
		ClearChallenge: true,
	}); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to mark account verified")
	}

	if err := v.mailer.Send(ctx, TemplateWelcome, record.Email, MailParams{
		"username": record.Username,
	}); err != nil {
		// welcome mail must not revert a completed verification
		v.logger.Warn("verifier: failed to send welcome mail: %v", err)
	}

	return nil
}
