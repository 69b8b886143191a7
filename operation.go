package authflow

import (
	"sync"

	"github.com/goliatone/hashid/pkg/hashid"
)

// OperationKind identifies a credential flow that can hold the gate.
type OperationKind string

const (
	OpRegister OperationKind = "register"
	OpLogin    OperationKind = "login"
	OpLogout   OperationKind = "logout"
	OpRecover  OperationKind = "recover"
	OpReset    OperationKind = "reset"
	OpVerify   OperationKind = "verify"
)

// gateKey scopes a token to one client: two clients running the same
// flow hold distinct tokens and never suppress each other.
type gateKey struct {
	scope string
	kind  OperationKind
}

// OperationGate tracks in-flight credential operations with scoped
// tokens. It replaces free-floating isRegistering/isLoggingOut globals:
// the guard asks the gate whether to suppress its rules for a given
// client scope, and each flow owns exactly one token that it must
// release on every exit path. Acquire doubles as the double-submit
// guard: a second acquire of the same scope and kind fails while the
// first is live.
type OperationGate struct {
	mu     sync.Mutex
	active map[gateKey]*OperationToken
}

func NewOperationGate() *OperationGate {
	return &OperationGate{
		active: map[gateKey]*OperationToken{},
	}
}

// OperationToken is held for the duration of one flow execution.
type OperationToken struct {
	key  gateKey
	gate *OperationGate
	once sync.Once
}

func (t *OperationToken) Kind() OperationKind { return t.key.kind }

func (t *OperationToken) Scope() string { return t.key.scope }

// Release returns the token to the gate. Safe to call more than once, so
// callers can defer it and still release early.
func (t *OperationToken) Release() {
	t.once.Do(func() {
		t.gate.mu.Lock()
		defer t.gate.mu.Unlock()
		if t.gate.active[t.key] == t {
			delete(t.gate.active, t.key)
		}
	})
}

// Acquire claims the gate for the given client scope and kind. The
// second return is false when the same client already has an operation
// of that kind in flight.
func (g *OperationGate) Acquire(scope string, kind OperationKind) (*OperationToken, bool) {
	key := gateKey{scope: scope, kind: kind}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, busy := g.active[key]; busy {
		return nil, false
	}

	token := &OperationToken{key: key, gate: g}
	g.active[key] = token
	return token, true
}

// InFlight reports whether the scope currently holds a token of kind.
func (g *OperationGate) InFlight(scope string, kind OperationKind) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, busy := g.active[gateKey{scope: scope, kind: kind}]
	return busy
}

// Suppresses reports whether the guard should skip its rules for an
// identity event belonging to scope: true while that client's
// registration is in flight or its logout token is pending consumption.
// The empty scope belongs to no client and is never suppressed, so an
// anonymous request cannot ride on another client's operation.
func (g *OperationGate) Suppresses(scope string) bool {
	if scope == "" {
		return false
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	_, registering := g.active[gateKey{scope: scope, kind: OpRegister}]
	_, loggingOut := g.active[gateKey{scope: scope, kind: OpLogout}]
	return registering || loggingOut
}

// ConsumeLogout clears the scope's pending logout token, returning true
// if one was present. The guard calls this on the first event it
// suppresses so the normal rules resume on the next state change.
func (g *OperationGate) ConsumeLogout(scope string) bool {
	key := gateKey{scope: scope, kind: OpLogout}

	g.mu.Lock()
	defer g.mu.Unlock()

	token, ok := g.active[key]
	if !ok {
		return false
	}
	delete(g.active, key)
	// mark released so a deferred Release is a no-op
	token.once.Do(func() {})
	return true
}

// ScopeForSession derives the gate scope of the client behind a session.
// Anonymous sessions carry no scope.
func ScopeForSession(s Session) string {
	if !s.Authenticated {
		return ""
	}
	return s.UserID
}

// ScopeForEmail derives the gate scope for flows addressed by account
// email before any session exists. It matches the scope of the session
// the local provider establishes for that account, so the flow's token
// suppresses the guard for exactly that client.
func ScopeForEmail(email string) string {
	email = normalizeEmail(email)
	if id, err := hashid.NewUUID(email); err == nil {
		return id.String()
	}
	return email
}
