package authflow

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// GuardState is the per-page-load guard lifecycle.
type GuardState string

const (
	// StateChecking is entered on every page load, before the identity
	// observer delivers its first event. Content stays hidden.
	StateChecking GuardState = "checking"
	// StateAllowed means content has been revealed for this load.
	StateAllowed GuardState = "allowed"
	// StateRedirecting is terminal: content is never revealed on this load.
	StateRedirecting GuardState = "redirecting"
)

// GuardActionKind discriminates the reducer's output.
type GuardActionKind string

const (
	ActionNone     GuardActionKind = "none"
	ActionReveal   GuardActionKind = "reveal"
	ActionRedirect GuardActionKind = "redirect"
)

// GuardAction is what the presentation layer must do after a reduction.
// A redirect is the terminal action of its branch: nothing follows it.
type GuardAction struct {
	Kind   GuardActionKind
	Target string
	Notice *Notice
}

var guardNone = GuardAction{Kind: ActionNone}

// GuardEvent is one identity observer delivery plus the state the runner
// read at delivery time. Flags and session are re-read for every event so
// decisions never act on stale captured state.
type GuardEvent struct {
	Session       Session
	Record        *UserRecord
	RecordMissing bool
	FetchFailed   bool
	Suppressed    bool
}

const (
	noticeMustLogIn    = "You must be logged in to access the desired page."
	noticePleaseVerify = "Please verify your account to continue."
)

// Guard decides, for one page load, whether to reveal content or redirect.
// The decision logic is a pure reducer over guard events so it can be
// exercised without a transport or a provider.
type Guard struct {
	table   *RouteTable
	targets RouteTargets
	gate    *OperationGate
	logger  Logger
	now     func() time.Time
}

// GuardOption customizes guard construction.
type GuardOption func(*Guard)

func WithGuardRouteTable(table *RouteTable) GuardOption {
	return func(g *Guard) {
		if table != nil {
			g.table = table
		}
	}
}

func WithGuardTargets(targets RouteTargets) GuardOption {
	return func(g *Guard) {
		g.targets = targets
	}
}

func WithGuardGate(gate *OperationGate) GuardOption {
	return func(g *Guard) {
		if gate != nil {
			g.gate = gate
		}
	}
}

func WithGuardLogger(logger Logger) GuardOption {
	return func(g *Guard) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithGuardClock injects a custom clock (useful for tests).
func WithGuardClock(clock func() time.Time) GuardOption {
	return func(g *Guard) {
		if clock != nil {
			g.now = clock
		}
	}
}

func NewGuard(opts ...GuardOption) *Guard {
	g := &Guard{
		table:   DefaultRouteTable(),
		targets: DefaultRouteTargets(),
		gate:    NewOperationGate(),
		logger:  defLogger{},
		now:     time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}

	return g
}

// Gate exposes the operation gate shared with the credential flows.
func (g *Guard) Gate() *OperationGate { return g.gate }

// Targets exposes the redirect destinations shared with the flows.
func (g *Guard) Targets() RouteTargets { return g.targets }

// Table exposes the route table for transports that classify directly.
func (g *Guard) Table() *RouteTable { return g.table }

// Reduce applies one guard event to the current state. It is pure: the
// same state and event always produce the same transition, re-entering a
// settled decision yields no action, and a reveal is emitted at most once
// per load.
func (g *Guard) Reduce(state GuardState, class Classification, ev GuardEvent) (GuardState, GuardAction) {
	if state == StateRedirecting {
		return state, guardNone
	}

	if ev.Suppressed {
		// an in-flight register/logout owns the session right now; do not
		// fight it, just make sure the page is usable
		if state == StateChecking {
			return StateAllowed, GuardAction{Kind: ActionReveal}
		}
		return state, guardNone
	}

	decision := g.decide(class, ev)

	switch decision.Kind {
	case ActionRedirect:
		return StateRedirecting, decision
	case ActionReveal:
		if state == StateAllowed {
			// already revealed on this load
			return StateAllowed, guardNone
		}
		return StateAllowed, decision
	default:
		return state, guardNone
	}
}

func (g *Guard) decide(class Classification, ev GuardEvent) GuardAction {
	switch class.Class {
	case RouteAuthOnly:
		return g.decideAuthOnly(ev)
	case RouteGuestOnly:
		return g.decideGuestOnly(ev)
	default:
		return GuardAction{Kind: ActionReveal}
	}
}

func (g *Guard) decideAuthOnly(ev GuardEvent) GuardAction {
	if !ev.Session.Authenticated {
		notice := InfoNotice(noticeMustLogIn)
		return GuardAction{
			Kind:   ActionRedirect,
			Target: g.targets.Login,
			Notice: &notice,
		}
	}

	if ev.FetchFailed {
		// the record store is unreachable; the session itself is valid, so
		// unlock rather than trap the user in a redirect loop
		return GuardAction{Kind: ActionReveal}
	}

	if ev.RecordMissing || ev.Record == nil || !ev.Record.Verified {
		notice := InfoNotice(noticePleaseVerify)
		return GuardAction{
			Kind:   ActionRedirect,
			Target: g.targets.VerifyFor(ev.Session.UserID),
			Notice: &notice,
		}
	}

	return GuardAction{Kind: ActionReveal}
}

func (g *Guard) decideGuestOnly(ev GuardEvent) GuardAction {
	if ev.Session.Authenticated && ev.Record != nil && ev.Record.Verified {
		return GuardAction{Kind: ActionRedirect, Target: g.targets.Dashboard}
	}
	// anonymous visitors and unverified sessions may stay on guest pages
	return GuardAction{Kind: ActionReveal}
}

// GuardRunner binds a guard to live collaborators for one page load: it
// subscribes to the identity observer, builds events from the latest gate
// and store state, applies the reducer, and hands actions to the
// presentation layer.
type GuardRunner struct {
	guard    *Guard
	provider IdentityProvider
	records  RecordStore
	cache    ProfileCache
	notices  Notices
	logger   Logger

	state GuardState
	class Classification

	// scope of the last authenticated session observed on this load; a
	// sign-out delivers an anonymous snapshot, but the logout token
	// still belongs to the client that held the session
	lastScope string
}

// NewGuardRunner wires a runner. cache and notices may be nil; the runner
// then skips rehydration and notice recording respectively.
func NewGuardRunner(guard *Guard, provider IdentityProvider, records RecordStore, cache ProfileCache, notices Notices) *GuardRunner {
	if guard == nil {
		guard = NewGuard()
	}
	return &GuardRunner{
		guard:    guard,
		provider: provider,
		records:  records,
		cache:    cache,
		notices:  notices,
		logger:   guard.logger,
		state:    StateChecking,
	}
}

// State reports the runner's current guard state.
func (r *GuardRunner) State() GuardState { return r.state }

// Watch starts guarding the given navigation. apply receives every
// non-empty action; a redirect action is final for this load. The
// returned Unsubscribe stops the observer.
func (r *GuardRunner) Watch(ctx context.Context, path string, query map[string]string, apply func(GuardAction)) Unsubscribe {
	r.state = StateChecking
	r.class = r.guard.table.Classify(path, query)

	return r.provider.OnAuthStateChanged(func(session Session) {
		scope := ScopeForSession(session)
		if scope == "" {
			scope = r.lastScope
		} else {
			r.lastScope = scope
		}

		// the gate is read per event, not captured at subscription time
		ev := GuardEvent{
			Session:    session,
			Suppressed: r.guard.gate.Suppresses(scope),
		}
		if ev.Suppressed {
			r.guard.gate.ConsumeLogout(scope)
		} else {
			r.populateRecord(ctx, &ev)
		}

		next, action := r.guard.Reduce(r.state, r.class, ev)
		r.state = next

		if action.Kind == ActionNone {
			return
		}

		if action.Kind == ActionReveal && r.class.Class == RouteAuthOnly && ev.Record != nil {
			r.rehydrate(ctx, session.UserID, ev.Record)
		}

		if action.Notice != nil && r.notices != nil {
			if err := r.notices.Put(ctx, *action.Notice); err != nil {
				r.logger.Warn("guard: unable to record notice: %v", err)
			}
		}

		apply(action)
	})
}

func (r *GuardRunner) populateRecord(ctx context.Context, ev *GuardEvent) {
	if !ev.Session.Authenticated || r.records == nil {
		return
	}
	if r.class.Class != RouteAuthOnly && r.class.Class != RouteGuestOnly {
		return
	}

	id, err := ev.Session.UserUUID()
	if err != nil {
		r.logger.Warn("guard: session user id is not a uuid: %v", err)
		ev.RecordMissing = true
		return
	}

	record, err := r.records.Read(ctx, id)
	if err != nil {
		if goerrors.IsNotFound(err) {
			ev.RecordMissing = true
			return
		}
		r.logger.Error("guard: failed to fetch user record: %v", err)
		ev.FetchFailed = true
		return
	}

	ev.Record = record
}

func (r *GuardRunner) rehydrate(ctx context.Context, userID string, record *UserRecord) {
	if r.cache == nil {
		return
	}

	if cached, err := r.cache.Get(ctx, userID); err == nil && cached != nil {
		return
	}

	if err := r.cache.Put(ctx, userID, ProfileFromRecord(record)); err != nil {
		// cache rehydration is best effort; the page still unlocks
		r.logger.Warn("guard: failed to rehydrate profile cache: %v", err)
	}
}
