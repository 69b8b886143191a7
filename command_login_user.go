package authflow

import (
	"context"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
)

type LoginUserMessage struct {
	Email      string `json:"email" form:"email"`
	Password   string `json:"password" form:"password"`
	OnResponse func(*LoginUserResponse)
}

func (e LoginUserMessage) Type() string { return "user.login" }

func (e LoginUserMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Email, validation.Required, is.Email),
		validation.Field(&e.Password, validation.Required),
	)
}

type LoginUserResponse struct {
	UserID   string `json:"user_id"`
	Verified bool   `json:"verified" doc:"False when the account still needs its challenge."`
	Redirect string `json:"redirect"`
	Notice   Notice `json:"notice"`
}

type LoginUserHandler struct {
	provider IdentityProvider
	records  RecordStore
	cache    ProfileCache
	gate     *OperationGate
	targets  RouteTargets
	logger   Logger
}

func NewLoginUserHandler(provider IdentityProvider, records RecordStore, cache ProfileCache, gate *OperationGate) *LoginUserHandler {
	return &LoginUserHandler{
		provider: provider,
		records:  records,
		cache:    cache,
		gate:     gate,
		targets:  DefaultRouteTargets(),
		logger:   defLogger{},
	}
}

func (h *LoginUserHandler) WithTargets(targets RouteTargets) *LoginUserHandler {
	h.targets = targets
	return h
}

func (h *LoginUserHandler) WithLogger(logger Logger) *LoginUserHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *LoginUserHandler) Execute(ctx context.Context, event LoginUserMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during login")
	default:
		return h.execute(ctx, event)
	}
}

func (h *LoginUserHandler) execute(ctx context.Context, event LoginUserMessage) error {
	event.Email = strings.TrimSpace(event.Email)

	if err := event.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid login payload")
	}

	// scoped per account: the same user double-submitting is blocked,
	// two different users logging in concurrently are not
	token, ok := h.gate.Acquire(ScopeForEmail(event.Email), OpLogin)
	if !ok {
		return goerrors.New("a login is already in progress", goerrors.CategoryConflict).
			WithCode(goerrors.CodeConflict)
	}
	defer token.Release()

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	session, err := h.provider.SignIn(ctx, event.Email, event.Password)
	if err != nil {
		return err
	}

	userID, err := session.UserUUID()
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "provider returned a malformed user id")
	}

	record, err := h.records.Read(ctx, userID)
	if err != nil {
		if signOutErr := h.provider.SignOut(ctx); signOutErr != nil {
			h.logger.Warn("login: failed to sign out session without record: %v", signOutErr)
		}
		if goerrors.IsNotFound(err) {
			return ErrRecordMissing
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load user record")
	}

	if !record.Verified {
		// do not leave an unverified session live
		if err := h.provider.SignOut(ctx); err != nil {
			h.logger.Warn("login: failed to sign out unverified session: %v", err)
		}

		if event.OnResponse != nil {
			event.OnResponse(&LoginUserResponse{
				UserID:   userID.String(),
				Verified: false,
				Redirect: h.targets.VerifyFor(userID.String()),
				Notice:   InfoNotice("Your account is not verified yet. Enter the code we sent you."),
			})
		}
		return nil
	}

	if h.cache != nil {
		if err := h.cache.Put(ctx, userID.String(), ProfileFromRecord(record)); err != nil {
			h.logger.Warn("login: failed to populate profile cache: %v", err)
		}
	}

	if event.OnResponse != nil {
		event.OnResponse(&LoginUserResponse{
			UserID:   userID.String(),
			Verified: true,
			Redirect: h.targets.Dashboard,
			Notice:   SuccessNotice("Welcome back, " + record.Username + "."),
		})
	}

	return nil
}
