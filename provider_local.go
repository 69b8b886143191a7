package authflow

import (
	"context"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
)

// MaxLoginAttempts is the maximun number of attempts a user gets
// in a period
var MaxLoginAttempts = 5

// CoolDownPeriod is the period in which we enforce a cool down
var CoolDownPeriod = "24h"

type credential struct {
	id             uuid.UUID
	email          string
	passwordHash   string
	loginAttempts  int
	loginAttemptAt *time.Time
}

// LocalIdentityProvider is a self contained identity provider backed by
// an in memory credential store. It mints JWT session tokens and signed
// single purpose reset codes, and fans session changes out to
// subscribed observers.
type LocalIdentityProvider struct {
	mu        sync.RWMutex
	creds     map[string]*credential
	tokens    TokenService
	mailer    MailDispatcher
	session   Session
	token     string
	observers map[int]AuthStateFunc
	nextObs   int
	decoyHash string
	logger    Logger
	now       func() time.Time
}

var _ IdentityProvider = (*LocalIdentityProvider)(nil)

type LocalProviderOption func(*LocalIdentityProvider)

func WithProviderLogger(logger Logger) LocalProviderOption {
	return func(p *LocalIdentityProvider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func WithProviderClock(now func() time.Time) LocalProviderOption {
	return func(p *LocalIdentityProvider) {
		if now != nil {
			p.now = now
		}
	}
}

// WithProviderMailer makes the reset flow deliver codes by mail. Without
// it the code is only logged, which is enough for development.
func WithProviderMailer(mailer MailDispatcher) LocalProviderOption {
	return func(p *LocalIdentityProvider) {
		p.mailer = mailer
	}
}

func NewLocalIdentityProvider(tokens TokenService, opts ...LocalProviderOption) *LocalIdentityProvider {
	provider := &LocalIdentityProvider{
		creds:     map[string]*credential{},
		tokens:    tokens,
		session:   Anonymous,
		observers: map[int]AuthStateFunc{},
		decoyHash: RandomPasswordHash(),
		logger:    defLogger{},
		now:       time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(provider)
		}
	}

	return provider
}

func (p *LocalIdentityProvider) SignUp(ctx context.Context, email, password string) (Session, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return Anonymous, ErrNoEmptyString
	}

	hash, err := HashPassword(password)
	if err != nil {
		return Anonymous, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}

	p.mu.Lock()
	if _, exists := p.creds[email]; exists {
		p.mu.Unlock()
		return Anonymous, ProviderError(ProviderEmailInUse, nil)
	}

	id, err := hashid.NewUUID(email)
	if err != nil {
		id = uuid.New()
	}

	p.creds[email] = &credential{
		id:           id,
		email:        email,
		passwordHash: hash,
	}
	p.mu.Unlock()

	return p.establishSession(id, email)
}

func (p *LocalIdentityProvider) SignIn(ctx context.Context, email, password string) (Session, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return Anonymous, ErrNoEmptyString
	}

	p.mu.Lock()
	cred, ok := p.creds[email]
	if !ok {
		p.mu.Unlock()
		// burn a comparison against the decoy so a missing account costs
		// the same as a wrong password
		_ = ComparePasswordAndHash(password, p.decoyHash)
		return Anonymous, ProviderError(ProviderBadCredential, ErrMismatchedHashAndPassword)
	}

	if cred.loginAttemptAt != nil {
		expired, err := CoolDownExpired(*cred.loginAttemptAt, CoolDownPeriod, p.now())
		if err != nil {
			p.mu.Unlock()
			return Anonymous, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to calculate login attempt cooldown")
		}

		if expired {
			cred.loginAttempts = 0
			cred.loginAttemptAt = nil
		}
	}

	if cred.loginAttempts > MaxLoginAttempts {
		p.mu.Unlock()
		return Anonymous, ProviderError(ProviderTooManyRequests, ErrTooManyLoginAttempts)
	}

	if err := ComparePasswordAndHash(password, cred.passwordHash); err != nil {
		cred.loginAttempts++
		now := p.now()
		cred.loginAttemptAt = &now
		p.mu.Unlock()
		return Anonymous, ProviderError(ProviderBadCredential, ErrMismatchedHashAndPassword)
	}

	cred.loginAttempts = 0
	cred.loginAttemptAt = nil
	id := cred.id
	p.mu.Unlock()

	return p.establishSession(id, email)
}

func (p *LocalIdentityProvider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	p.session = Anonymous
	p.token = ""
	observers := p.observerSnapshot()
	p.mu.Unlock()

	for _, fn := range observers {
		fn(Anonymous)
	}

	return nil
}

func (p *LocalIdentityProvider) CurrentSession(ctx context.Context) Session {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.session
}

// SessionToken returns the signed JWT for the live session, empty when
// signed out.
func (p *LocalIdentityProvider) SessionToken() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.token
}

// OnAuthStateChanged registers an observer and immediately delivers the
// current session snapshot to it.
func (p *LocalIdentityProvider) OnAuthStateChanged(fn AuthStateFunc) Unsubscribe {
	if fn == nil {
		return func() {}
	}

	p.mu.Lock()
	key := p.nextObs
	p.nextObs++
	p.observers[key] = fn
	current := p.session
	p.mu.Unlock()

	fn(current)

	return func() {
		p.mu.Lock()
		delete(p.observers, key)
		p.mu.Unlock()
	}
}

func (p *LocalIdentityProvider) SendPasswordResetEmail(ctx context.Context, email string, opts ResetOptions) error {
	email = normalizeEmail(email)

	p.mu.RLock()
	_, ok := p.creds[email]
	p.mu.RUnlock()

	if !ok {
		return ProviderError(ProviderUserNotFound, nil)
	}

	code, err := p.tokens.GenerateResetCode(email)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to mint password reset code")
	}

	if p.mailer == nil {
		p.logger.Info("password reset code for %s: %s", email, code)
		return nil
	}

	params := MailParams{
		"code":         code,
		"continue_url": opts.ContinueURL,
		"in_app":       opts.HandleCodeInApp,
	}

	if err := p.mailer.Send(ctx, TemplateReset, email, params); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to dispatch password reset mail").
			WithTextCode(textCodeDispatchFailed)
	}

	return nil
}

func (p *LocalIdentityProvider) VerifyResetCode(ctx context.Context, code string) (string, error) {
	email, err := p.tokens.ValidateResetCode(code)
	if err != nil {
		return "", err
	}

	p.mu.RLock()
	_, ok := p.creds[email]
	p.mu.RUnlock()

	if !ok {
		return "", ProviderError(ProviderUserNotFound, nil)
	}

	return email, nil
}

func (p *LocalIdentityProvider) ConfirmPasswordReset(ctx context.Context, code, newPassword string) error {
	email, err := p.VerifyResetCode(ctx, code)
	if err != nil {
		return err
	}

	if newPassword == "" {
		return ErrNoEmptyString
	}

	hash, err := HashPassword(newPassword)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	cred, ok := p.creds[email]
	if !ok {
		return ProviderError(ProviderUserNotFound, nil)
	}

	cred.passwordHash = hash
	cred.loginAttempts = 0
	cred.loginAttemptAt = nil

	return nil
}

func (p *LocalIdentityProvider) establishSession(id uuid.UUID, email string) (Session, error) {
	token, err := p.tokens.Generate(id.String(), email)
	if err != nil {
		return Anonymous, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to mint session token")
	}

	session := Session{
		UserID:        id.String(),
		Email:         email,
		Authenticated: true,
	}

	p.mu.Lock()
	p.session = session
	p.token = token
	observers := p.observerSnapshot()
	p.mu.Unlock()

	for _, fn := range observers {
		fn(session)
	}

	return session, nil
}

// observerSnapshot must be called with the lock held.
func (p *LocalIdentityProvider) observerSnapshot() []AuthStateFunc {
	observers := make([]AuthStateFunc, 0, len(p.observers))
	for _, fn := range p.observers {
		observers = append(observers, fn)
	}
	return observers
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
