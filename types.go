package authflow

import (
	"context"
	"fmt"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Session is the identity provider's view of the caller: either anonymous
// or authenticated as a concrete user. It is observed, never persisted.
type Session struct {
	UserID        string
	Email         string
	Authenticated bool
}

// Anonymous is the zero session.
var Anonymous = Session{}

func (s Session) UserUUID() (uuid.UUID, error) {
	return uuid.Parse(s.UserID)
}

// AuthStateFunc receives every session transition, including the initial
// snapshot delivered on subscription.
type AuthStateFunc func(Session)

// Unsubscribe cancels an auth state subscription.
type Unsubscribe func()

// ResetOptions carries provider-native password reset delivery options.
type ResetOptions struct {
	ContinueURL     string
	HandleCodeInApp bool
}

// IdentityProvider is the opaque identity service the flows orchestrate.
// Implementations must deliver the current session to a new subscriber
// immediately, and again on every future sign-in or sign-out.
type IdentityProvider interface {
	SignIn(ctx context.Context, email, password string) (Session, error)
	SignUp(ctx context.Context, email, password string) (Session, error)
	SignOut(ctx context.Context) error
	CurrentSession(ctx context.Context) Session
	OnAuthStateChanged(fn AuthStateFunc) Unsubscribe

	SendPasswordResetEmail(ctx context.Context, email string, opts ResetOptions) error
	VerifyResetCode(ctx context.Context, code string) (string, error)
	ConfirmPasswordReset(ctx context.Context, code, newPassword string) error
}

// RecordPatch is a partial update against a user record. Nil fields are
// left untouched; ClearChallenge removes the OTP pair as a unit.
type RecordPatch struct {
	Username       *string
	SecretKey      *string
	Verified       *bool
	VerifiedAt     *time.Time
	OTP            *string
	OTPCreatedAt   *time.Time
	ClearChallenge bool
}

// RecordStore is the durable user record store the guard and the flows
// read and mutate. Records are never deleted by this package.
type RecordStore interface {
	Read(ctx context.Context, id uuid.UUID) (*UserRecord, error)
	Write(ctx context.Context, id uuid.UUID, patch RecordPatch) (*UserRecord, error)
	Create(ctx context.Context, record *UserRecord, criteria ...repository.InsertCriteria) (*UserRecord, error)
	ScanByEmail(ctx context.Context, email string) (*UserRecord, error)
}

// MailParams are the template substitution values for a dispatch.
type MailParams map[string]any

// TemplateKey selects a mail template.
type TemplateKey string

const (
	TemplateVerifyOTP  TemplateKey = "verify-otp"
	TemplateRecoverOTP TemplateKey = "recover-otp"
	TemplateWelcome    TemplateKey = "welcome"
	TemplateContact    TemplateKey = "contact"
	TemplateReset      TemplateKey = "password-reset"
)

// MailDispatcher sends templated email.
type MailDispatcher interface {
	Send(ctx context.Context, template TemplateKey, to string, params MailParams) error
}

// ProfileCache mirrors a small subset of the user record after the first
// authenticated load. It is a cache, never a source of truth.
type ProfileCache interface {
	Get(ctx context.Context, userID string) (*CachedProfile, error)
	Put(ctx context.Context, userID string, profile *CachedProfile) error
	Clear(ctx context.Context, userID string) error
}

// Notices is the transient flash slot: one notice per category, consumed
// exactly once on the next page load.
type Notices interface {
	Put(ctx context.Context, notice Notice) error
	Consume(ctx context.Context) ([]Notice, error)
}

// PasswordPolicy is the configurable strength rule set applied to new
// passwords.
type PasswordPolicy struct {
	MinLength     int
	RequireUpper  bool
	RequireLower  bool
	RequireDigit  bool
	RequireSymbol bool
}

// DefaultPasswordPolicy mirrors the generated password shape: every
// character class required.
var DefaultPasswordPolicy = PasswordPolicy{
	MinLength:     8,
	RequireUpper:  true,
	RequireLower:  true,
	RequireDigit:  true,
	RequireSymbol: true,
}

// Config holds flow options
type Config interface {
	GetSigningKey() string
	GetSigningMethod() string
	GetTokenExpiration() int
	GetIssuer() string
	GetAudience() []string
	GetContextKey() string
	GetRejectedRouteKey() string
	GetRejectedRouteDefault() string
	GetChallengeWindow() time.Duration
	GetPasswordPolicy() PasswordPolicy
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] AUTHFLOW "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] AUTHFLOW "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] AUTHFLOW "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] AUTHFLOW "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
