package guard

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wolfman30/clinic-kiosk/internal/session"
)

func TestDecide(t *testing.T) {
	assert.Equal(t, Pending, Decide(session.StateLoading))
	assert.Equal(t, Redirect, Decide(session.StateUnauthenticated))
	assert.Equal(t, Render, Decide(session.StateAuthenticated))
}

func TestRequire(t *testing.T) {
	tests := []struct {
		name         string
		state        session.State
		wantStatus   int
		wantLocation string
		wantBody     string
	}{
		{name: "loading renders nothing", state: session.StateLoading, wantStatus: http.StatusAccepted},
		{name: "signed out redirects", state: session.StateUnauthenticated, wantStatus: http.StatusSeeOther, wantLocation: "/?tab=tab-1"},
		{name: "signed in renders", state: session.StateAuthenticated, wantStatus: http.StatusOK, wantBody: "modes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolver := func(*http.Request) (session.State, string) { return tt.state, "tab-1" }
			handler := Require(resolver)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte("modes"))
			}))

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/modes?tab=tab-1", nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantLocation, rec.Header().Get("Location"))
			assert.Equal(t, tt.wantBody, rec.Body.String())
			if tt.state == session.StateLoading {
				assert.Equal(t, PendingRetry, rec.Header().Get("Refresh"))
			}
		})
	}
}

func TestRequireReevaluatesEveryRequest(t *testing.T) {
	state := session.StateAuthenticated
	handler := Require(func(*http.Request) (session.State, string) { return state, "t" })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/slots", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	state = session.StateUnauthenticated
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/slots", nil))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
}
