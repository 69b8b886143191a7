package authflow

import (
	"context"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
)

type RegisterUserMessage struct {
	Username    string `json:"username" form:"username"`
	Email       string `json:"email" form:"email"`
	Password    string `json:"password" form:"password"`
	AcceptTerms bool   `json:"accept_terms" form:"accept_terms"`
	OnResponse  func(*RegisterUserResponse)
}

func (e RegisterUserMessage) Type() string { return "user.register" }

// Validate runs the full rule set before any network call is made.
func (e RegisterUserMessage) Validate(policy PasswordPolicy) error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Username, validation.Required, validation.Length(1, 100)),
		validation.Field(&e.Email, validation.Required, is.Email),
		validation.Field(&e.Password, validation.Required, validation.By(PasswordStrength(policy))),
		validation.Field(&e.AcceptTerms, validation.By(TermsAccepted)),
	)
}

type RegisterUserResponse struct {
	UserID   string `json:"user_id" doc:"Identifier of the newly created record."`
	Redirect string `json:"redirect" doc:"Verification challenge target carrying the user id."`
	Notice   Notice `json:"notice" doc:"Flash notice for the next page load."`
}

type RegisterUserHandler struct {
	provider IdentityProvider
	records  RecordStore
	verifier *Verifier
	gate     *OperationGate
	targets  RouteTargets
	policy   PasswordPolicy
	logger   Logger
}

func NewRegisterUserHandler(provider IdentityProvider, records RecordStore, verifier *Verifier, gate *OperationGate) *RegisterUserHandler {
	return &RegisterUserHandler{
		provider: provider,
		records:  records,
		verifier: verifier,
		gate:     gate,
		targets:  DefaultRouteTargets(),
		policy:   DefaultPasswordPolicy,
		logger:   defLogger{},
	}
}

func (h *RegisterUserHandler) WithTargets(targets RouteTargets) *RegisterUserHandler {
	h.targets = targets
	return h
}

func (h *RegisterUserHandler) WithPasswordPolicy(policy PasswordPolicy) *RegisterUserHandler {
	h.policy = policy
	return h
}

func (h *RegisterUserHandler) WithLogger(logger Logger) *RegisterUserHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *RegisterUserHandler) Execute(ctx context.Context, event RegisterUserMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during user registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterUserHandler) execute(ctx context.Context, event RegisterUserMessage) error {
	event.Username = SanitizeInput(event.Username)
	event.Email = strings.TrimSpace(event.Email)

	if err := event.Validate(h.policy); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid registration payload")
	}

	// holding the register token keeps the guard from fighting the
	// short-lived session the provider creates below; the scope ties it
	// to the registrant so other clients stay fully guarded
	token, ok := h.gate.Acquire(ScopeForEmail(event.Email), OpRegister)
	if !ok {
		return goerrors.New("a registration is already in progress", goerrors.CategoryConflict).
			WithCode(goerrors.CodeConflict)
	}
	defer token.Release()

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	session, err := h.provider.SignUp(ctx, event.Email, event.Password)
	if err != nil {
		return err
	}

	// registration must never leave the caller authenticated against an
	// unverified account
	defer func() {
		if err := h.provider.SignOut(ctx); err != nil {
			h.logger.Warn("register: failed to sign out new session: %v", err)
		}
	}()

	userID, err := session.UserUUID()
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "provider returned a malformed user id")
	}

	secretKey, err := GenerateSecretKey()
	if err != nil {
		return err
	}

	now := time.Now()
	record := &UserRecord{
		ID:        userID,
		Username:  event.Username,
		Email:     event.Email,
		SecretKey: secretKey,
		Verified:  false,
		CreatedAt: &now,
	}

	if _, err := h.records.Create(ctx, record); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create user record")
	}

	if _, err := h.verifier.IssueChallenge(ctx, userID); err != nil {
		// without the verification mail the user can never activate the
		// account, so the flow fails
		return err
	}

	if event.OnResponse != nil {
		event.OnResponse(&RegisterUserResponse{
			UserID:   userID.String(),
			Redirect: h.targets.VerifyFor(userID.String()),
			Notice:   SuccessNotice("Account created. Check your inbox for the verification code."),
		})
	}

	return nil
}
