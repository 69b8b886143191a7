package authflow

import (
	"context"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

type VerifyAccountMessage struct {
	UserID     string `json:"user_id" form:"uid" doc:"Record id the challenge was issued for"`
	Code       string `json:"code" form:"code" doc:"Six digit challenge candidate"`
	OnResponse func(*VerifyAccountResponse)
}

func (e VerifyAccountMessage) Type() string { return "user.verify" }

func (e VerifyAccountMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.UserID, validation.Required, is.UUID),
		validation.Field(&e.Code, validation.Required, validation.By(OTPShape)),
	)
}

type VerifyAccountResponse struct {
	Verified        bool   `json:"verified"`
	AlreadyVerified bool   `json:"already_verified"`
	Expired         bool   `json:"expired"`
	Mismatch        bool   `json:"mismatch"`
	Malformed       bool   `json:"malformed"`
	Redirect        string `json:"redirect,omitempty"`
	Notice          Notice `json:"notice"`
}

// VerifyAccountHandler runs the challenge comparison and folds every
// verification outcome into a response the page can render. Only record
// lookup failures and store errors surface as handler errors.
type VerifyAccountHandler struct {
	verifier *Verifier
	gate     *OperationGate
	targets  RouteTargets
	logger   Logger
}

func NewVerifyAccountHandler(verifier *Verifier, gate *OperationGate) *VerifyAccountHandler {
	return &VerifyAccountHandler{
		verifier: verifier,
		gate:     gate,
		targets:  DefaultRouteTargets(),
		logger:   defLogger{},
	}
}

func (h *VerifyAccountHandler) WithTargets(targets RouteTargets) *VerifyAccountHandler {
	h.targets = targets
	return h
}

func (h *VerifyAccountHandler) WithLogger(logger Logger) *VerifyAccountHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *VerifyAccountHandler) Execute(ctx context.Context, event VerifyAccountMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during account verification")
	default:
		return h.execute(ctx, event)
	}
}

func (h *VerifyAccountHandler) execute(ctx context.Context, event VerifyAccountMessage) error {
	event.Code = strings.TrimSpace(event.Code)

	if err := event.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid verification payload")
	}

	userID, err := uuid.Parse(event.UserID)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid user id")
	}

	token, ok := h.gate.Acquire(userID.String(), OpVerify)
	if !ok {
		return goerrors.New("a verification is already in progress", goerrors.CategoryConflict).
			WithCode(goerrors.CodeConflict)
	}
	defer token.Release()

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	resp := &VerifyAccountResponse{}

	switch err := h.verifier.Verify(ctx, userID, event.Code); {
	case err == nil:
		resp.Verified = true
		resp.Redirect = h.targets.Login
		resp.Notice = SuccessNotice("Your account has been verified. You can now login.")

	case goerrors.Is(err, ErrAlreadyVerified):
		resp.AlreadyVerified = true
		resp.Redirect = h.targets.Login
		resp.Notice = InfoNotice("Your account is already verified. You can login with your credentials.")

	case goerrors.Is(err, ErrChallengeExpired):
		resp.Expired = true
		resp.Redirect = h.targets.Request
		resp.Notice = WarningNotice("Your verification code has expired. Please request a new one.")

	case goerrors.Is(err, ErrChallengeMismatch):
		resp.Mismatch = true
		resp.Notice = ErrorNotice("Invalid verification code. Please try again.")

	case goerrors.Is(err, ErrMalformedCandidate):
		resp.Malformed = true
		resp.Notice = ErrorNotice("Verification code must be 6 digits.")

	default:
		return err
	}

	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
