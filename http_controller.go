package authflow

import (
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/goliatone/go-router/flash"
)

// RegisterPageRoutes mounts the three shared pages plus logout on the
// given router. Each page dispatches on the `action` query parameter.
func RegisterPageRoutes[T any](app router.Router[T], opts ...PageControllerOption) {

	controller := NewPageController(opts...)

	app.Get(controller.Routes.Authenticate, controller.AuthenticateShow).
		SetName("authenticate.get")
	app.Post(controller.Routes.Authenticate, controller.AuthenticatePost).
		SetName("authenticate.post")

	app.Get(controller.Routes.Recover, controller.RecoverShow).
		SetName("recover.get")
	app.Post(controller.Routes.Recover, controller.RecoverPost).
		SetName("recover.post")

	app.Get(controller.Routes.Secure, controller.SecureShow).
		SetName("secure.get")
	app.Post(controller.Routes.Secure, controller.SecurePost).
		SetName("secure.post")

	app.Get(controller.Routes.Logout, controller.LogOut).
		SetName("sign-out.get")
}

type PageControllerRoutes struct {
	Authenticate string
	Recover      string
	Secure       string
	Logout       string
}

type PageControllerViews struct {
	Authenticate string
	Recover      string
	Secure       string
}

type PageController struct {
	Debug        bool
	Logger       Logger
	Provider     IdentityProvider
	Records      RecordStore
	Verifier     *Verifier
	Cache        ProfileCache
	Gate         *OperationGate
	Targets      RouteTargets
	Policy       PasswordPolicy
	Routes       *PageControllerRoutes
	Views        *PageControllerViews
	ErrorHandler router.ErrorHandler
}

type PageControllerOption func(*PageController) *PageController

func WithControllerProvider(provider IdentityProvider) PageControllerOption {
	return func(c *PageController) *PageController {
		c.Provider = provider
		return c
	}
}

func WithControllerRecords(records RecordStore) PageControllerOption {
	return func(c *PageController) *PageController {
		c.Records = records
		return c
	}
}

func WithControllerVerifier(verifier *Verifier) PageControllerOption {
	return func(c *PageController) *PageController {
		c.Verifier = verifier
		return c
	}
}

func WithControllerCache(cache ProfileCache) PageControllerOption {
	return func(c *PageController) *PageController {
		c.Cache = cache
		return c
	}
}

func WithControllerGate(gate *OperationGate) PageControllerOption {
	return func(c *PageController) *PageController {
		c.Gate = gate
		return c
	}
}

func WithControllerPolicy(policy PasswordPolicy) PageControllerOption {
	return func(c *PageController) *PageController {
		c.Policy = policy
		return c
	}
}

func WithControllerLogger(logger Logger) PageControllerOption {
	return func(c *PageController) *PageController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

func WithControllerDebug(debug bool) PageControllerOption {
	return func(c *PageController) *PageController {
		c.Debug = debug
		return c
	}
}

func NewPageController(opts ...PageControllerOption) *PageController {
	c := &PageController{
		Logger:       defLogger{},
		Targets:      DefaultRouteTargets(),
		Policy:       DefaultPasswordPolicy,
		ErrorHandler: defaultErrHandler,
		Routes: &PageControllerRoutes{
			Authenticate: "/authenticate",
			Recover:      "/recover",
			Secure:       "/secure",
			Logout:       "/logout",
		},
		Views: &PageControllerViews{
			Authenticate: "authenticate",
			Recover:      "recover",
			Secure:       "secure",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Provider == nil {
		panic("Missing IdentityProvider in page controller...")
	}

	if c.Records == nil {
		panic("Missing RecordStore in page controller...")
	}

	if c.Verifier == nil {
		panic("Missing Verifier in page controller...")
	}

	if c.Gate == nil {
		c.Gate = NewOperationGate()
	}

	return c
}

func (a *PageController) AuthenticateShow(ctx router.Context) error {
	action := ctx.Query("action", ActionLogin)
	if action != ActionLogin && action != ActionRegister {
		action = ActionLogin
	}

	return ctx.Render(a.Views.Authenticate, router.ViewContext{
		"action": action,
		"errors": nil,
		"record": nil,
	})
}

// LoginRequest payload
type LoginRequest struct {
	Email    string `form:"email" json:"email"`
	Password string `form:"password" json:"password"`
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

// RegisterRequest is the registration form payload
type RegisterRequest struct {
	Username        string `form:"username" json:"username"`
	Email           string `form:"email" json:"email"`
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
	AcceptTerms     bool   `form:"accept_terms" json:"accept_terms"`
}

// Validate will validate the payload
func (r RegisterRequest) Validate(policy PasswordPolicy) error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Username, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&r.Password, validation.Required, validation.By(PasswordStrength(policy))),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.By(ValidateStringEquals(r.Password)),
		),
		validation.Field(&r.AcceptTerms, validation.By(TermsAccepted)),
	)
}

func (a *PageController) AuthenticatePost(ctx router.Context) error {
	action := ctx.Query("action", ActionLogin)

	if action == ActionRegister {
		return a.registrationCreate(ctx)
	}

	return a.loginPost(ctx)
}

func (a *PageController) loginPost(ctx router.Context) error {
	payload := new(LoginRequest)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("login parse payload: %v", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error parsing body",
		}).Status(fiber.StatusBadRequest).Render(a.Views.Authenticate, router.ViewContext{
			"action": ActionLogin,
			"errors": map[string]string{"form": "Failed to parse form"},
			"record": payload,
		})
	}

	if err := payload.Validate(); err != nil {
		return ctx.Render(a.Views.Authenticate, router.ViewContext{
			"action":     ActionLogin,
			"record":     payload,
			"validation": FormatValidationErrorToMap(err),
		})
	}

	if a.Debug {
		fmt.Println("======= AUTH LOGIN ======")
		fmt.Println(print.MaybePrettyJSON(payload))
		fmt.Println("=========================")
	}

	var res *LoginUserResponse

	login := NewLoginUserHandler(a.Provider, a.Records, a.Cache, a.Gate).
		WithTargets(a.Targets).
		WithLogger(a.Logger)

	msg := LoginUserMessage{
		Email:    payload.Email,
		Password: payload.Password,
		OnResponse: func(resp *LoginUserResponse) {
			res = resp
		},
	}

	if err := login.Execute(ctx.Context(), msg); err != nil {
		a.Logger.Error("login error: %v", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  UserMessage(err),
			"system_message": "Authentication error",
		}).Render(a.Views.Authenticate, router.ViewContext{
			"action": ActionLogin,
			"record": payload,
			"errors": map[string]string{"authentication": UserMessage(err)},
		})
	}

	return a.flashNotice(ctx, res.Notice).
		Redirect(res.Redirect, fiber.StatusSeeOther)
}

func (a *PageController) registrationCreate(ctx router.Context) error {
	payload := new(RegisterRequest)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("register parse payload: %v", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error parsing body",
		}).Status(fiber.StatusBadRequest).Render(a.Views.Authenticate, router.ViewContext{
			"action": ActionRegister,
			"errors": map[string]string{"form": "Failed to parse form"},
			"record": payload,
		})
	}

	if err := payload.Validate(a.Policy); err != nil {
		a.Logger.Error("register validate payload: %v", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error validating payload",
		}).Render(a.Views.Authenticate, router.ViewContext{
			"action":     ActionRegister,
			"record":     payload,
			"validation": FormatValidationErrorToMap(err),
		})
	}

	var res *RegisterUserResponse

	register := NewRegisterUserHandler(a.Provider, a.Records, a.Verifier, a.Gate).
		WithTargets(a.Targets).
		WithPasswordPolicy(a.Policy).
		WithLogger(a.Logger)

	msg := RegisterUserMessage{
		Username:    payload.Username,
		Email:       payload.Email,
		Password:    payload.Password,
		AcceptTerms: payload.AcceptTerms,
		OnResponse: func(resp *RegisterUserResponse) {
			res = resp
		},
	}

	if err := register.Execute(ctx.Context(), msg); err != nil {
		a.Logger.Error("register error: %v", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  UserMessage(err),
			"system_message": "Registration error",
		}).Render(a.Views.Authenticate, router.ViewContext{
			"action": ActionRegister,
			"record": payload,
			"errors": map[string]string{"registration": UserMessage(err)},
		})
	}

	return a.flashNotice(ctx, res.Notice).
		Redirect(res.Redirect, fiber.StatusSeeOther)
}

func (a *PageController) RecoverShow(ctx router.Context) error {
	action := ctx.Query("action", ActionForgot)
	if action != ActionForgot && action != ActionRequest {
		action = ActionForgot
	}

	return ctx.Render(a.Views.Recover, router.ViewContext{
		"action": action,
		"errors": nil,
		"record": nil,
	})
}

// RecoverRequest payload, shared by the forgot and request sub-forms.
type RecoverRequest struct {
	Email string `form:"email" json:"email"`
}

// Validate will run validation rules
func (r RecoverRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

func (a *PageController) RecoverPost(ctx router.Context) error {
	action := ctx.Query("action", ActionForgot)
	payload := new(RecoverRequest)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("recover parse payload: %v", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error parsing body",
		}).Status(fiber.StatusBadRequest).Render(a.Views.Recover, router.ViewContext{
			"action": action,
			"errors": map[string]string{"form": "Failed to parse form"},
			"record": payload,
		})
	}

	if err := payload.Validate(); err != nil {
		return ctx.Render(a.Views.Recover, router.ViewContext{
			"action":     action,
			"record":     payload,
			"validation": FormatValidationErrorToMap(err),
		})
	}

	if action == ActionRequest {
		return a.recoverVerification(ctx, payload)
	}

	return a.passwordForgot(ctx, payload)
}

func (a *PageController) passwordForgot(ctx router.Context, payload *RecoverRequest) error {
	var res *InitializePasswordResetResponse

	initReset := NewInitializePasswordResetHandler(a.Provider, a.Gate).
		WithTargets(a.Targets).
		WithLogger(a.Logger)

	msg := InitializePasswordResetMessage{
		Email: payload.Email,
		OnResponse: func(resp *InitializePasswordResetResponse) {
			res = resp
		},
	}

	if err := initReset.Execute(ctx.Context(), msg); err != nil {
		a.Logger.Error("password reset init error: %v", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  UserMessage(err),
			"system_message": "Password reset error",
		}).Render(a.Views.Recover, router.ViewContext{
			"action": ActionForgot,
			"record": payload,
			"errors": map[string]string{"reset": UserMessage(err)},
		})
	}

	return a.flashNotice(ctx, res.Notice).
		Redirect(res.Redirect, fiber.StatusSeeOther)
}

func (a *PageController) recoverVerification(ctx router.Context, payload *RecoverRequest) error {
	var res *RecoverVerificationResponse

	recovery := NewRecoverVerificationHandler(a.Records, a.Verifier, a.Gate).
		WithTargets(a.Targets).
		WithLogger(a.Logger)

	msg := RecoverVerificationMessage{
		Email: payload.Email,
		OnResponse: func(resp *RecoverVerificationResponse) {
			res = resp
		},
	}

	if err := recovery.Execute(ctx.Context(), msg); err != nil {
		a.Logger.Error("recover verification error: %v", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  UserMessage(err),
			"system_message": "Recovery error",
		}).Render(a.Views.Recover, router.ViewContext{
			"action": ActionRequest,
			"record": payload,
			"errors": map[string]string{"recovery": UserMessage(err)},
		})
	}

	if a.Debug {
		fmt.Println("======= RECOVER ======")
		fmt.Println(print.MaybePrettyJSON(res))
		fmt.Println("======================")
	}

	if res.Redirect == "" {
		// account not found, stay on the page with the notice
		return a.flashNotice(ctx, res.Notice).
			Render(a.Views.Recover, router.ViewContext{
				"action": ActionRequest,
				"record": payload,
			})
	}

	return a.flashNotice(ctx, res.Notice).
		Redirect(res.Redirect, fiber.StatusSeeOther)
}

func (a *PageController) SecureShow(ctx router.Context) error {
	action := ctx.Query("action", ActionVerify)
	if action != ActionVerify && action != ActionReset {
		action = ActionVerify
	}

	return ctx.Render(a.Views.Secure, router.ViewContext{
		"action": action,
		"uid":    ctx.Query("uid", ""),
		"code":   ctx.Query("code", ""),
		"errors": nil,
	})
}

// VerifyRequest is the challenge form payload.
type VerifyRequest struct {
	UserID string `form:"uid" json:"uid"`
	Code   string `form:"code" json:"code"`
}

// ResetRequest is the new-password form payload.
type ResetRequest struct {
	Code            string `form:"code" json:"code"`
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
}

func (a *PageController) SecurePost(ctx router.Context) error {
	action := ctx.Query("action", ActionVerify)

	if action == ActionReset {
		return a.passwordReset(ctx)
	}

	return a.verifyAccount(ctx)
}

func (a *PageController) verifyAccount(ctx router.Context) error {
	payload := new(VerifyRequest)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("verify parse payload: %v", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error parsing body",
		}).Status(fiber.StatusBadRequest).Render(a.Views.Secure, router.ViewContext{
			"action": ActionVerify,
			"errors": map[string]string{"form": "Failed to parse form"},
		})
	}

	if payload.UserID == "" {
		payload.UserID = ctx.Query("uid", "")
	}

	var res *VerifyAccountResponse

	verify := NewVerifyAccountHandler(a.Verifier, a.Gate).
		WithTargets(a.Targets).
		WithLogger(a.Logger)

	msg := VerifyAccountMessage{
		UserID: payload.UserID,
		Code:   payload.Code,
		OnResponse: func(resp *VerifyAccountResponse) {
			res = resp
		},
	}

	if err := verify.Execute(ctx.Context(), msg); err != nil {
		a.Logger.Error("verification error: %v", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  UserMessage(err),
			"system_message": "Verification error",
		}).Render(a.Views.Secure, router.ViewContext{
			"action": ActionVerify,
			"uid":    payload.UserID,
			"errors": map[string]string{"verification": UserMessage(err)},
		})
	}

	if res.Redirect == "" {
		// mismatch and malformed stay on the page for another attempt
		return a.flashNotice(ctx, res.Notice).
			Render(a.Views.Secure, router.ViewContext{
				"action": ActionVerify,
				"uid":    payload.UserID,
			})
	}

	return a.flashNotice(ctx, res.Notice).
		Redirect(res.Redirect, fiber.StatusSeeOther)
}

func (a *PageController) passwordReset(ctx router.Context) error {
	payload := new(ResetRequest)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("reset parse payload: %v", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error parsing body",
		}).Status(fiber.StatusBadRequest).Render(a.Views.Secure, router.ViewContext{
			"action": ActionReset,
			"errors": map[string]string{"form": "Failed to parse form"},
		})
	}

	if payload.Code == "" {
		payload.Code = ctx.Query("code", "")
	}

	var res *FinalizePasswordResetResponse

	finalize := NewFinalizePasswordResetHandler(a.Provider, a.Gate).
		WithTargets(a.Targets).
		WithPasswordPolicy(a.Policy).
		WithLogger(a.Logger)

	msg := FinalizePasswordResetMessage{
		Code:            payload.Code,
		Password:        payload.Password,
		PasswordConfirm: payload.ConfirmPassword,
		OnResponse: func(resp *FinalizePasswordResetResponse) {
			res = resp
		},
	}

	if err := finalize.Execute(ctx.Context(), msg); err != nil {
		a.Logger.Error("password reset error: %v", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  UserMessage(err),
			"system_message": "Password reset error",
		}).Render(a.Views.Secure, router.ViewContext{
			"action": ActionReset,
			"code":   payload.Code,
			"errors": map[string]string{"reset": UserMessage(err)},
		})
	}

	return a.flashNotice(ctx, res.Notice).
		Redirect(res.Redirect, fiber.StatusSeeOther)
}

// LogOut signs the session out. The logout token is single shot: the
// guard consumes it on the next navigation it observes.
func (a *PageController) LogOut(ctx router.Context) error {
	session := a.Provider.CurrentSession(ctx.Context())

	scope := ScopeForSession(session)
	if scope == "" {
		// nothing to log out of
		return ctx.Redirect(a.Targets.Login, fiber.StatusSeeOther)
	}

	if _, ok := a.Gate.Acquire(scope, OpLogout); !ok {
		return ctx.Redirect(a.Targets.Login, fiber.StatusSeeOther)
	}

	if err := a.Provider.SignOut(ctx.Context()); err != nil {
		a.Logger.Error("sign out error: %v", err)
	}

	if a.Cache != nil && session.UserID != "" {
		if err := a.Cache.Clear(ctx.Context(), session.UserID); err != nil {
			a.Logger.Warn("failed to clear cached profile: %v", err)
		}
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "You have been logged out.",
	}).Redirect(a.Targets.Login, fiber.StatusSeeOther)
}

func (a *PageController) flashNotice(ctx router.Context, notice Notice) router.Context {
	data := router.ViewContext{
		"system_message": notice.Message,
		"category":       string(notice.Category),
	}

	switch notice.Category {
	case NoticeError, NoticeWarning:
		return flash.WithError(ctx, data)
	default:
		return flash.WithSuccess(ctx, data)
	}
}

func defaultErrHandler(c router.Context, err error) error {
	return c.Render("errors/500", router.ViewContext{
		"message": err.Error(),
	})
}
