package authflow

import (
	"context"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
)

type RecoverVerificationMessage struct {
	Email      string `json:"email" form:"email"`
	OnResponse func(*RecoverVerificationResponse)
}

func (e RecoverVerificationMessage) Type() string { return "user.recover_verification" }

func (e RecoverVerificationMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Email, validation.Required, is.Email),
	)
}

type RecoverVerificationResponse struct {
	Found           bool   `json:"found" doc:"Has an account with this email been found?"`
	AlreadyVerified bool   `json:"already_verified"`
	UserID          string `json:"user_id,omitempty"`
	Redirect        string `json:"redirect,omitempty"`
	Notice          Notice `json:"notice"`
}

// RecoverVerificationHandler reissues the verification challenge for an
// account located by email. Not-found and already-verified both short
// circuit without issuing a code.
type RecoverVerificationHandler struct {
	records  RecordStore
	verifier *Verifier
	gate     *OperationGate
	targets  RouteTargets
	logger   Logger
}

func NewRecoverVerificationHandler(records RecordStore, verifier *Verifier, gate *OperationGate) *RecoverVerificationHandler {
	return &RecoverVerificationHandler{
		records:  records,
		verifier: verifier,
		gate:     gate,
		targets:  DefaultRouteTargets(),
		logger:   defLogger{},
	}
}

func (h *RecoverVerificationHandler) WithTargets(targets RouteTargets) *RecoverVerificationHandler {
	h.targets = targets
	return h
}

func (h *RecoverVerificationHandler) WithLogger(logger Logger) *RecoverVerificationHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *RecoverVerificationHandler) Execute(ctx context.Context, event RecoverVerificationMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during verification recovery")
	default:
		return h.execute(ctx, event)
	}
}

func (h *RecoverVerificationHandler) execute(ctx context.Context, event RecoverVerificationMessage) error {
	event.Email = strings.TrimSpace(event.Email)

	if err := event.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid recovery payload")
	}

	token, ok := h.gate.Acquire(ScopeForEmail(event.Email), OpRecover)
	if !ok {
		return goerrors.New("a recovery request is already in progress", goerrors.CategoryConflict).
			WithCode(goerrors.CodeConflict)
	}
	defer token.Release()

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	resp := &RecoverVerificationResponse{}

	record, err := h.records.ScanByEmail(ctx, event.Email)
	if err != nil {
		if goerrors.IsNotFound(err) {
			// not an application error, part of the expected flow
			resp.Found = false
			resp.Notice = ErrorNotice("No account found with this email address.")
			if event.OnResponse != nil {
				event.OnResponse(resp)
			}
			return nil
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up account by email")
	}

	resp.Found = true
	resp.UserID = record.ID.String()

	if record.Verified {
		resp.AlreadyVerified = true
		resp.Redirect = h.targets.Login
		resp.Notice = InfoNotice("Your account is already verified. You can login with your credentials.")
		if event.OnResponse != nil {
			event.OnResponse(resp)
		}
		return nil
	}

	if _, err := h.verifier.ReissueChallenge(ctx, record.ID); err != nil {
		return err
	}

	resp.Redirect = h.targets.VerifyFor(record.ID.String())
	resp.Notice = SuccessNotice("A new verification code has been sent to your email.")

	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
