package authflow

import (
	"context"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
)

// InitializePasswordResetMessage starts the reset flow by asking the
// identity provider to email a reset link for the account.
type InitializePasswordResetMessage struct {
	Email      string `json:"email" form:"email"`
	OnResponse func(*InitializePasswordResetResponse)
}

func (e InitializePasswordResetMessage) Type() string { return "password.reset.initialize" }

func (e InitializePasswordResetMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Email, validation.Required, is.Email),
	)
}

type InitializePasswordResetResponse struct {
	Redirect string `json:"redirect,omitempty"`
	Notice   Notice `json:"notice"`
}

type InitializePasswordResetHandler struct {
	provider IdentityProvider
	gate     *OperationGate
	targets  RouteTargets
	reset    ResetOptions
	logger   Logger
}

func NewInitializePasswordResetHandler(provider IdentityProvider, gate *OperationGate) *InitializePasswordResetHandler {
	return &InitializePasswordResetHandler{
		provider: provider,
		gate:     gate,
		targets:  DefaultRouteTargets(),
		reset: ResetOptions{
			ContinueURL:     DefaultRouteTargets().Login,
			HandleCodeInApp: false,
		},
		logger: defLogger{},
	}
}

func (h *InitializePasswordResetHandler) WithTargets(targets RouteTargets) *InitializePasswordResetHandler {
	h.targets = targets
	return h
}

func (h *InitializePasswordResetHandler) WithResetOptions(opts ResetOptions) *InitializePasswordResetHandler {
	h.reset = opts
	return h
}

func (h *InitializePasswordResetHandler) WithLogger(logger Logger) *InitializePasswordResetHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *InitializePasswordResetHandler) Execute(ctx context.Context, event InitializePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during password reset initialization")
	default:
		return h.execute(ctx, event)
	}
}

func (h *InitializePasswordResetHandler) execute(ctx context.Context, event InitializePasswordResetMessage) error {
	event.Email = strings.TrimSpace(event.Email)

	if err := event.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid password reset payload")
	}

	token, ok := h.gate.Acquire(ScopeForEmail(event.Email), OpReset)
	if !ok {
		return goerrors.New("a password reset is already in progress", goerrors.CategoryConflict).
			WithCode(goerrors.CodeConflict)
	}
	defer token.Release()

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if err := h.provider.SendPasswordResetEmail(ctx, event.Email, h.reset); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to send password reset email").
			WithTextCode("RESET_DISPATCH_FAILED")
	}

	if event.OnResponse != nil {
		event.OnResponse(&InitializePasswordResetResponse{
			Redirect: h.targets.Login,
			Notice:   SuccessNotice("A password reset link has been sent to your email."),
		})
	}

	return nil
}

// FinalizePasswordResetMessage completes the reset flow with the code
// from the emailed link and the replacement password.
type FinalizePasswordResetMessage struct {
	Code            string `json:"code" form:"code"`
	Password        string `json:"password" form:"password"`
	PasswordConfirm string `json:"password_confirm" form:"password_confirm"`
	OnResponse      func(*FinalizePasswordResetResponse)
}

func (e FinalizePasswordResetMessage) Type() string { return "password.reset.finalize" }

func (e FinalizePasswordResetMessage) Validate(policy PasswordPolicy) error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Code, validation.Required),
		validation.Field(&e.Password, validation.Required, validation.By(PasswordStrength(policy))),
		validation.Field(&e.PasswordConfirm, validation.Required, validation.By(ValidateStringEquals(e.Password))),
	)
}

type FinalizePasswordResetResponse struct {
	Email    string `json:"email"`
	Redirect string `json:"redirect,omitempty"`
	Notice   Notice `json:"notice"`
}

type FinalizePasswordResetHandler struct {
	provider IdentityProvider
	gate     *OperationGate
	targets  RouteTargets
	policy   PasswordPolicy
	logger   Logger
}

func NewFinalizePasswordResetHandler(provider IdentityProvider, gate *OperationGate) *FinalizePasswordResetHandler {
	return &FinalizePasswordResetHandler{
		provider: provider,
		gate:     gate,
		targets:  DefaultRouteTargets(),
		policy:   DefaultPasswordPolicy,
		logger:   defLogger{},
	}
}

func (h *FinalizePasswordResetHandler) WithTargets(targets RouteTargets) *FinalizePasswordResetHandler {
	h.targets = targets
	return h
}

func (h *FinalizePasswordResetHandler) WithPasswordPolicy(policy PasswordPolicy) *FinalizePasswordResetHandler {
	h.policy = policy
	return h
}

func (h *FinalizePasswordResetHandler) WithLogger(logger Logger) *FinalizePasswordResetHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *FinalizePasswordResetHandler) Execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during password reset finalization")
	default:
		return h.execute(ctx, event)
	}
}

func (h *FinalizePasswordResetHandler) execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	if err := event.Validate(h.policy); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid password reset payload")
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	// the code is verified first: it names the account, which scopes the
	// gate token, and nothing is mutated before it checks out
	email, err := h.provider.VerifyResetCode(ctx, event.Code)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryAuth, "invalid or expired password reset code").
			WithCode(goerrors.CodeUnauthorized)
	}

	token, ok := h.gate.Acquire(ScopeForEmail(email), OpReset)
	if !ok {
		return goerrors.New("a password reset is already in progress", goerrors.CategoryConflict).
			WithCode(goerrors.CodeConflict)
	}
	defer token.Release()

	if err := h.provider.ConfirmPasswordReset(ctx, event.Code, event.Password); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryAuth, "failed to update password").
			WithCode(goerrors.CodeUnauthorized)
	}

	if event.OnResponse != nil {
		event.OnResponse(&FinalizePasswordResetResponse{
			Email:    email,
			Redirect: h.targets.Login,
			Notice:   SuccessNotice("Your password has been updated. You can login with your new credentials."),
		})
	}

	return nil
}
