// Package guard decides per request whether the current session may see a path.
package guard

import (
	"net/http"
	"strings"
)

// Category groups paths by how they react to session presence.
type Category int

const (
	// CategoryOther paths are reachable whether or not a user is signed in.
	CategoryOther Category = iota
	// CategoryAuth paths are the login and registration screens.
	CategoryAuth
	// CategoryProtected paths need a signed-in user.
	CategoryProtected
)

func (c Category) String() string {
	switch c {
	case CategoryAuth:
		return "auth"
	case CategoryProtected:
		return "protected"
	}
	return "other"
}

// Rules configures path categories and redirect targets.
type Rules struct {
	AuthPrefixes      []string
	ProtectedPrefixes []string
	AuthPath          string
	DashboardPath     string
}

// DefaultRules returns the portal routing rules.
func DefaultRules() Rules {
	return Rules{
		AuthPrefixes:      []string{"/auth"},
		ProtectedPrefixes: []string{"/dashboard"},
		AuthPath:          "/auth",
		DashboardPath:     "/dashboard/settings",
	}
}

// Categorize classifies path. Prefixes match whole segments, so /authors is
// not an auth path.
func (r Rules) Categorize(path string) Category {
	for _, p := range r.ProtectedPrefixes {
		if hasSegmentPrefix(path, p) {
			return CategoryProtected
		}
	}
	for _, p := range r.AuthPrefixes {
		if hasSegmentPrefix(path, p) {
			return CategoryAuth
		}
	}
	return CategoryOther
}

// Decision is the outcome of evaluating the rules for one request.
type Decision struct {
	Redirect bool
	Location string
}

// Decide applies the transition table to the session presence and path.
func (r Rules) Decide(authenticated bool, path string) Decision {
	switch r.Categorize(path) {
	case CategoryAuth:
		if authenticated {
			return Decision{Redirect: true, Location: r.DashboardPath}
		}
	case CategoryProtected:
		if !authenticated {
			return Decision{Redirect: true, Location: r.AuthPath}
		}
	}
	return Decision{}
}

// Presence reports whether a user is signed in.
type Presence interface {
	Authenticated() bool
}

// Middleware evaluates rules on every request against the live presence.
func Middleware(rules Rules, presence Presence) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := rules.Decide(presence.Authenticated(), r.URL.Path)
			if d.Redirect {
				http.Redirect(w, r, d.Location, http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func hasSegmentPrefix(path, prefix string) bool {
	prefix = strings.TrimRight(prefix, "/")
	if prefix == "" {
		return true
	}
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	rest := path[len(prefix):]
	return rest == "" || rest[0] == '/'
}
