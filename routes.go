package authflow

import (
	"fmt"
	"net/url"
	"strings"
)

// RouteClass is the guard category assigned to a navigable page.
type RouteClass = string

const (
	// RoutePublic pages render for everyone.
	RoutePublic RouteClass = "public"
	// RouteAuthOnly pages require a verified authenticated session.
	RouteAuthOnly RouteClass = "auth-only"
	// RouteGuestOnly pages are entry points hidden from verified sessions.
	RouteGuestOnly RouteClass = "guest-only"
)

// Classification is the resolved (page, action) pair plus its class. The
// addressable unit is path+action, not the bare path: one shared page can
// serve several sub-forms selected by the `action` query parameter.
type Classification struct {
	Class  RouteClass
	Page   string
	Action string
}

// PageRule declares one recognized page: the path fragment that selects
// it, its class, and the actions its shared form can switch between.
// Unknown actions fall back to BaseAction instead of erroring.
type PageRule struct {
	Page       string
	Match      []string
	Class      RouteClass
	BaseAction string
	Actions    []string
}

func (r PageRule) knownAction(action string) bool {
	for _, a := range r.Actions {
		if a == action {
			return true
		}
	}
	return false
}

// RouteTable drives classification for every page variant from one
// declarative value.
type RouteTable struct {
	rules []PageRule
}

// NewRouteTable builds a table from explicit rules, first match wins.
func NewRouteTable(rules ...PageRule) *RouteTable {
	return &RouteTable{rules: rules}
}

// DefaultRouteTable mirrors the canonical page set: a protected dashboard,
// three shared guest entry pages with action-switched sub-forms, and the
// home page.
func DefaultRouteTable() *RouteTable {
	return NewRouteTable(
		PageRule{
			Page:  "dashboard",
			Match: []string{"dashboard"},
			Class: RouteAuthOnly,
		},
		PageRule{
			Page:       "authenticate",
			Match:      []string{"authenticate", "auth/login", "auth/register"},
			Class:      RouteGuestOnly,
			BaseAction: ActionLogin,
			Actions:    []string{ActionLogin, ActionRegister},
		},
		PageRule{
			Page:       "recover",
			Match:      []string{"recover", "auth/forgot"},
			Class:      RouteGuestOnly,
			BaseAction: ActionForgot,
			Actions:    []string{ActionForgot, ActionRequest},
		},
		PageRule{
			Page:       "secure",
			Match:      []string{"secure", "auth/verify", "auth/reset"},
			Class:      RouteGuestOnly,
			BaseAction: ActionVerify,
			Actions:    []string{ActionVerify, ActionReset},
		},
		PageRule{
			Page:  "home",
			Match: []string{"/", "index"},
			Class: RouteGuestOnly,
		},
	)
}

// Form actions recognized on the shared pages.
const (
	ActionLogin    = "login"
	ActionRegister = "register"
	ActionForgot   = "forgot"
	ActionRequest  = "request"
	ActionVerify   = "verify"
	ActionReset    = "reset"
)

// Classify maps a navigation path plus query onto its classification. It
// is case-insensitive on the path, total over malformed input, and never
// errors: unrecognized paths are public, unknown actions on a recognized
// page resolve to the page's base action.
func (t *RouteTable) Classify(path string, query map[string]string) Classification {
	normalized := strings.ToLower(strings.TrimSpace(path))
	if normalized == "" {
		normalized = "/"
	}

	action := ""
	if query != nil {
		action = strings.ToLower(strings.TrimSpace(query["action"]))
	}

	for _, rule := range t.rules {
		if !rule.matches(normalized) {
			continue
		}

		resolved := rule.BaseAction
		if action != "" && rule.knownAction(action) {
			resolved = action
		}

		return Classification{
			Class:  rule.Class,
			Page:   rule.Page,
			Action: resolved,
		}
	}

	return Classification{Class: RoutePublic}
}

func (r PageRule) matches(path string) bool {
	for _, m := range r.Match {
		if m == "/" {
			if path == "/" {
				return true
			}
			continue
		}
		if strings.Contains(path, m) {
			return true
		}
	}
	return false
}

// RouteTargets are the canonical redirect destinations the guard and the
// flows share.
type RouteTargets struct {
	Home      string
	Login     string
	Register  string
	Dashboard string
	Verify    string
	Recover   string
	Request   string
	Reset     string
}

// DefaultRouteTargets matches DefaultRouteTable.
func DefaultRouteTargets() RouteTargets {
	return RouteTargets{
		Home:      "/",
		Login:     "/authenticate?action=login",
		Register:  "/authenticate?action=register",
		Dashboard: "/dashboard",
		Verify:    "/secure?action=verify",
		Recover:   "/recover?action=forgot",
		Request:   "/recover?action=request",
		Reset:     "/secure?action=reset",
	}
}

// VerifyFor returns the verification challenge target carrying the user
// id. The separator depends on whether the target already has a query.
func (t RouteTargets) VerifyFor(userID string) string {
	if userID == "" {
		return t.Verify
	}
	sep := "?"
	if strings.Contains(t.Verify, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%suid=%s", t.Verify, sep, url.QueryEscape(userID))
}
