// Package guard gates the protected kiosk screens on the session state.
package guard

import (
	"net/http"

	"github.com/wolfman30/clinic-kiosk/internal/nav"
	"github.com/wolfman30/clinic-kiosk/internal/session"
)

// Decision is what a protected screen should do for a given session state.
type Decision int

const (
	// Pending renders nothing while the session is still loading.
	Pending Decision = iota
	Redirect
	Render
)

func (d Decision) String() string {
	switch d {
	case Redirect:
		return "redirect"
	case Render:
		return "render"
	default:
		return "pending"
	}
}

// Decide maps a session state to a decision. Loading is never treated as
// signed out.
func Decide(state session.State) Decision {
	switch state {
	case session.StateAuthenticated:
		return Render
	case session.StateUnauthenticated:
		return Redirect
	default:
		return Pending
	}
}

// Resolver returns the session state and tab id behind a request.
type Resolver func(r *http.Request) (session.State, string)

// PendingRetry is the Refresh header value sent with a pending response.
const PendingRetry = "1"

// Require wraps protected screens. Every request is decided afresh, so a
// sign-out in another tab takes effect on the next request even without the
// live channel.
func Require(resolve Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			state, tabID := resolve(r)
			switch Decide(state) {
			case Render:
				next.ServeHTTP(w, r)
			case Redirect:
				http.Redirect(w, r, nav.To(nav.Entry).URL(tabID), http.StatusSeeOther)
			default:
				w.Header().Set("Refresh", PendingRetry)
				w.Header().Set("Cache-Control", "no-store")
				w.WriteHeader(http.StatusAccepted)
			}
		})
	}
}
