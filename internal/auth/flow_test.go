package auth

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-kiosk/internal/draft"
	"github.com/wolfman30/clinic-kiosk/internal/gateway"
	"github.com/wolfman30/clinic-kiosk/internal/kvstore"
	"github.com/wolfman30/clinic-kiosk/internal/nav"
	"github.com/wolfman30/clinic-kiosk/internal/patient"
	"github.com/wolfman30/clinic-kiosk/internal/session"
	"github.com/wolfman30/clinic-kiosk/pkg/logging"
)

type stubAuthenticator struct {
	mu      sync.Mutex
	calls   int
	grant   *patient.Grant
	err     error
	started chan struct{}
	release chan struct{}
}

func (s *stubAuthenticator) Authenticate(ctx context.Context, nationalID, phone string) (*patient.Grant, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.started != nil {
		close(s.started)
		<-s.release
	}
	return s.grant, s.err
}

func (s *stubAuthenticator) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

var jane = patient.Identity{ID: 1, NationalID: "123456789", Name: "Jane Doe", Phone: "5551234"}

type fixture struct {
	flow    *Flow
	api     *stubAuthenticator
	session *session.Store
	draft   *draft.Cache
}

func newFixture(t *testing.T, api *stubAuthenticator) fixture {
	t.Helper()
	kv := kvstore.NewMemoryStore()
	logger := logging.New("error")
	sess := session.NewStore(kv, "profile-1", session.WithLogger(logger))
	sess.Load(context.Background())
	cache := draft.NewCache(kv, "profile-1", "tab-1", logger)
	return fixture{
		flow:    NewFlow(api, sess, cache, WithLogger(logger)),
		api:     api,
		session: sess,
		draft:   cache,
	}
}

func TestSubmitSuccessEstablishesSessionAndClearsDraft(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &stubAuthenticator{grant: &patient.Grant{Token: "tok-abc", User: jane}})

	view := f.flow.Enter(ctx)
	require.Nil(t, view.Navigate)
	creds := patient.Credentials{NationalID: "123456789", Phone: "5551234"}
	require.NoError(t, f.flow.Edit(ctx, creds))

	res := f.flow.Submit(ctx, creds)
	require.NoError(t, res.Err)
	assert.Equal(t, StatusAuthenticated, res.Status)
	require.NotNil(t, res.Navigate)
	assert.Equal(t, nav.Modes, res.Navigate.To)

	snap := f.session.Snapshot()
	assert.True(t, snap.Authenticated())
	assert.Equal(t, "tok-abc", snap.Token)
	assert.Equal(t, jane, *snap.Identity)
	assert.True(t, f.draft.Restore(ctx).IsEmpty())
}

func TestSubmitRejectedKeepsDraftAndMessage(t *testing.T) {
	ctx := context.Background()
	api := &stubAuthenticator{err: &gateway.APIError{Call: "authenticate", StatusCode: 400, Message: "No matching patient"}}
	f := newFixture(t, api)

	f.flow.Enter(ctx)
	creds := patient.Credentials{NationalID: "123456789", Phone: "5550000"}
	require.NoError(t, f.flow.Edit(ctx, creds))

	res := f.flow.Submit(ctx, creds)
	assert.Equal(t, StatusRejected, res.Status)
	assert.Equal(t, "No matching patient", res.Message)
	assert.Nil(t, res.Navigate)
	assert.Equal(t, session.StateUnauthenticated, f.session.State())
	assert.Equal(t, creds, f.draft.Restore(ctx))

	status, msg := f.flow.Status()
	assert.Equal(t, StatusRejected, status)
	assert.Equal(t, "No matching patient", msg)
}

func TestRejectionMessageFallbacks(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"api error without body", &gateway.APIError{Call: "authenticate", StatusCode: 500}, FallbackMessage},
		{"transport failure", &gateway.TransportError{Op: "authenticate", Err: errors.New("connection refused")}, "connection refused"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, &stubAuthenticator{err: tt.err})
			res := f.flow.Submit(context.Background(), patient.Credentials{NationalID: "1", Phone: "2"})
			assert.Equal(t, StatusRejected, res.Status)
			assert.Equal(t, tt.want, res.Message)
		})
	}
}

func TestSubmitValidationMakesNoCall(t *testing.T) {
	api := &stubAuthenticator{}
	f := newFixture(t, api)

	for _, creds := range []patient.Credentials{
		{},
		{NationalID: "123456789"},
		{Phone: "5551234"},
	} {
		res := f.flow.Submit(context.Background(), creds)
		assert.ErrorIs(t, res.Err, ErrValidation)
		assert.Equal(t, StatusRejected, res.Status)
	}
	assert.Zero(t, api.callCount())
}

func TestEditDismissesRejection(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &stubAuthenticator{err: &gateway.APIError{StatusCode: 401, Message: "nope"}})
	f.flow.Enter(ctx)

	f.flow.Submit(ctx, patient.Credentials{NationalID: "1", Phone: "2"})
	status, _ := f.flow.Status()
	require.Equal(t, StatusRejected, status)

	require.NoError(t, f.flow.Edit(ctx, patient.Credentials{NationalID: "1", Phone: "23"}))
	status, msg := f.flow.Status()
	assert.Equal(t, StatusIdle, status)
	assert.Empty(t, msg)
}

func TestEstablishFailureRejectsWithFallback(t *testing.T) {
	f := newFixture(t, &stubAuthenticator{grant: &patient.Grant{Token: "", User: jane}})

	res := f.flow.Submit(context.Background(), patient.Credentials{NationalID: "1", Phone: "2"})
	assert.Equal(t, StatusRejected, res.Status)
	assert.Equal(t, FallbackMessage, res.Message)
	assert.ErrorIs(t, res.Err, session.ErrInvalidCredentialPayload)
}

func TestEnterRedirectsWhenAlreadyAuthenticated(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &stubAuthenticator{})
	require.NoError(t, f.session.Establish(ctx, "tok", jane))

	view := f.flow.Enter(ctx)
	require.NotNil(t, view.Navigate)
	assert.Equal(t, nav.Modes, view.Navigate.To)
	assert.True(t, view.Draft.IsEmpty())
}

func TestEnterRestoresDraft(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &stubAuthenticator{})
	f.flow.Enter(ctx)
	creds := patient.Credentials{NationalID: "123"}
	require.NoError(t, f.flow.Edit(ctx, creds))

	view := f.flow.Enter(ctx)
	assert.Nil(t, view.Navigate)
	assert.Equal(t, creds, view.Draft)
}

func TestConcurrentSubmitIsRefused(t *testing.T) {
	api := &stubAuthenticator{
		grant:   &patient.Grant{Token: "tok", User: jane},
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	f := newFixture(t, api)
	creds := patient.Credentials{NationalID: "1", Phone: "2"}

	done := make(chan Result, 1)
	go func() { done <- f.flow.Submit(context.Background(), creds) }()
	<-api.started

	second := f.flow.Submit(context.Background(), creds)
	assert.ErrorIs(t, second.Err, ErrSubmitInProgress)
	assert.Equal(t, StatusSubmitting, second.Status)

	close(api.release)
	first := <-done
	assert.Equal(t, StatusAuthenticated, first.Status)
	assert.Equal(t, 1, api.callCount())
}
