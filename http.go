package authflow

import (
	"net/http"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

// RouteGuard applies the guard reducer to server side navigation. Each
// request is classified, reduced from a fresh checking state, and either
// passed through or redirected with the rejected route remembered in a
// cookie.
type RouteGuard struct {
	guard        *Guard
	provider     IdentityProvider
	records      RecordStore
	cfg          Config
	Logger       Logger
	ErrorHandler func(c router.Context, err error) error
}

func NewRouteGuard(guard *Guard, provider IdentityProvider, records RecordStore, cfg Config) *RouteGuard {
	g := &RouteGuard{
		guard:    guard,
		provider: provider,
		records:  records,
		cfg:      cfg,
		Logger:   defLogger{},
	}

	g.ErrorHandler = g.defaultErrHandler

	return g
}

// Middleware classifies the request path and enforces the guard decision
// before the route handler runs.
func (g *RouteGuard) Middleware() router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			class := g.guard.Table().Classify(ctx.Path(), ctx.Queries())

			session := g.provider.CurrentSession(ctx.Context())

			// suppression is scoped to the session's own client; requests
			// from other clients, anonymous ones included, are never
			// exempted by someone else's in-flight operation
			scope := ScopeForSession(session)
			ev := GuardEvent{
				Session:    session,
				Suppressed: g.guard.Gate().Suppresses(scope),
			}

			if ev.Suppressed {
				g.guard.Gate().ConsumeLogout(scope)
			} else if ev.Session.Authenticated && (class.Class == RouteAuthOnly || class.Class == RouteGuestOnly) {
				g.populateRecord(ctx, &ev)
			}

			_, action := g.guard.Reduce(StateChecking, class, ev)

			switch action.Kind {
			case ActionRedirect:
				if class.Class == RouteAuthOnly {
					g.SetRedirect(ctx)
				}

				statusCode := http.StatusSeeOther
				if ctx.Method() == string(router.GET) {
					statusCode = http.StatusFound
				}

				return ctx.Redirect(action.Target, statusCode)
			default:
				return next(ctx)
			}
		}
	}
}

func (g *RouteGuard) populateRecord(ctx router.Context, ev *GuardEvent) {
	id, err := ev.Session.UserUUID()
	if err != nil {
		ev.FetchFailed = true
		return
	}

	record, err := g.records.Read(ctx.Context(), id)
	if err != nil {
		if goerrors.IsNotFound(err) {
			ev.RecordMissing = true
			return
		}

		// page still unlocks, the failure is observability not policy
		g.Logger.Warn("guard middleware record fetch failed: %v", err)
		ev.FetchFailed = true
		return
	}

	ev.Record = record
}

// GetRedirect returns and clears the remembered rejected route, falling
// back to the given default.
func (g *RouteGuard) GetRedirect(ctx router.Context, def ...string) string {
	rejectedRoute := g.cfg.GetRejectedRouteKey()
	r := ctx.Cookies(rejectedRoute)
	if r == "" {
		if len(def) > 0 {
			return def[0]
		}
		return g.cfg.GetRejectedRouteDefault()
	}
	g.cookieDel(ctx, rejectedRoute)
	return r
}

func (g *RouteGuard) GetRedirectOrDefault(ctx router.Context) string {
	rejectedRoute := g.cfg.GetRejectedRouteKey()
	refererHeader := string(ctx.Referer())

	r := ctx.Cookies(rejectedRoute, refererHeader)
	if r == "" {
		r = g.cfg.GetRejectedRouteDefault()
	}
	g.cookieDel(ctx, rejectedRoute)
	return r
}

func (g *RouteGuard) SetRedirect(ctx router.Context) {
	rejectedRoute := g.cfg.GetRejectedRouteKey()

	g.Logger.Info("Setting redirect cookie key=%s path=%s", rejectedRoute, ctx.OriginalURL())

	ctx.Cookie(&router.Cookie{
		Name:     rejectedRoute,
		Value:    ctx.OriginalURL(),
		Expires:  time.Now().Add(time.Minute * 5),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

func (g *RouteGuard) cookieDel(c router.Context, name string) {
	c.Cookie(&router.Cookie{
		Name:     name,
		Value:    "",
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

func (g *RouteGuard) defaultErrHandler(c router.Context, err error) error {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		richErr = goerrors.Wrap(err, goerrors.CategoryInternal, "An unexpected server error occurred").
			WithCode(goerrors.CodeInternal)
	}

	g.Logger.Info(
		"Middleware error handler error=%s category=%s details=%s",
		richErr.Message,
		richErr.Category,
		print.MaybePrettyJSON(richErr.Metadata),
	)

	switch richErr.Category {
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		statusCode := http.StatusSeeOther
		if c.Method() == string(router.GET) {
			statusCode = http.StatusFound
		}
		g.SetRedirect(c)
		return c.Redirect(g.guard.Targets().Login, statusCode)
	default:
		return c.Status(richErr.Code).Render("errors/500", router.ViewContext{
			"error": richErr,
		})
	}
}
