// Package auth drives the patient sign-in form: draft restore, submission,
// and the hand-off to the session store.
package auth

import (
	"context"
	"fmt"
	"sync"

	"github.com/wolfman30/clinic-kiosk/internal/gateway"
	"github.com/wolfman30/clinic-kiosk/internal/nav"
	"github.com/wolfman30/clinic-kiosk/internal/observability/metrics"
	"github.com/wolfman30/clinic-kiosk/internal/patient"
	"github.com/wolfman30/clinic-kiosk/internal/session"
	"github.com/wolfman30/clinic-kiosk/pkg/logging"
)

// FallbackMessage is shown when a rejection carries no text of its own.
const FallbackMessage = "Authentication failed"

// Status is the form's state.
type Status int

const (
	StatusIdle Status = iota
	StatusSubmitting
	StatusAuthenticated
	StatusRejected
)

func (s Status) String() string {
	switch s {
	case StatusSubmitting:
		return "submitting"
	case StatusAuthenticated:
		return "authenticated"
	case StatusRejected:
		return "rejected"
	default:
		return "idle"
	}
}

// Authenticator verifies a patient against the clinic API.
type Authenticator interface {
	Authenticate(ctx context.Context, nationalID, phone string) (*patient.Grant, error)
}

// SessionStore is the part of session.Store the flow needs.
type SessionStore interface {
	State() session.State
	Establish(ctx context.Context, token string, identity patient.Identity) error
}

// DraftCache is the part of draft.Cache the flow needs.
type DraftCache interface {
	Restore(ctx context.Context) patient.Credentials
	Save(ctx context.Context, creds patient.Credentials) error
	Clear(ctx context.Context) error
}

// EntryView is what the entry screen renders. When Navigate is set the form
// is not shown at all.
type EntryView struct {
	Navigate *nav.Command
	Draft    patient.Credentials
	Status   Status
	Message  string
}

// Result is the outcome of a Submit.
type Result struct {
	Status   Status
	Message  string
	Navigate *nav.Command
	Err      error
}

// Flow is one tab's auth form.
type Flow struct {
	api     Authenticator
	session SessionStore
	draft   DraftCache
	logger  *logging.Logger
	metrics *metrics.KioskMetrics

	mu      sync.Mutex
	status  Status
	message string
}

// Option configures a Flow.
type Option func(*Flow)

// WithLogger sets a custom logger.
func WithLogger(logger *logging.Logger) Option {
	return func(f *Flow) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithMetrics counts submissions by outcome.
func WithMetrics(m *metrics.KioskMetrics) Option {
	return func(f *Flow) {
		f.metrics = m
	}
}

// NewFlow wires the form to its collaborators.
func NewFlow(api Authenticator, sess SessionStore, cache DraftCache, opts ...Option) *Flow {
	f := &Flow{
		api:     api,
		session: sess,
		draft:   cache,
		logger:  logging.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Status returns the current state and any retained rejection message.
func (f *Flow) Status() (Status, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status, f.message
}

// Enter prepares the entry screen. An existing session skips the form.
func (f *Flow) Enter(ctx context.Context) EntryView {
	if f.session.State() == session.StateAuthenticated {
		return EntryView{Navigate: nav.To(nav.Modes), Status: StatusAuthenticated}
	}
	draft := f.draft.Restore(ctx)
	status, message := f.Status()
	return EntryView{Draft: draft, Status: status, Message: message}
}

// Edit records a change to the form. A retained rejection is dismissed.
func (f *Flow) Edit(ctx context.Context, creds patient.Credentials) error {
	f.mu.Lock()
	if f.status == StatusRejected {
		f.status = StatusIdle
		f.message = ""
	}
	f.mu.Unlock()

	if err := f.draft.Save(ctx, creds); err != nil {
		f.logger.Debug("auth: draft save failed", "error", err)
		return err
	}
	return nil
}

// Submit verifies creds and, on success, establishes the session and clears
// the draft. A rejection leaves the draft in place.
func (f *Flow) Submit(ctx context.Context, creds patient.Credentials) Result {
	f.mu.Lock()
	if f.status == StatusSubmitting {
		f.mu.Unlock()
		return Result{Status: StatusSubmitting, Err: ErrSubmitInProgress}
	}
	if err := creds.Validate(); err != nil {
		f.status = StatusRejected
		f.message = "Please enter your national ID and phone number"
		msg := f.message
		f.mu.Unlock()
		f.metrics.ObserveAuth("invalid")
		return Result{Status: StatusRejected, Message: msg, Err: fmt.Errorf("%w: %v", ErrValidation, err)}
	}
	f.status = StatusSubmitting
	f.message = ""
	f.mu.Unlock()

	grant, err := f.api.Authenticate(ctx, creds.NationalID, creds.Phone)
	if err != nil {
		f.logger.Warn("auth: authentication rejected", "error", err)
		f.metrics.ObserveAuth("rejected")
		return f.reject(gateway.Message(err, FallbackMessage), err)
	}

	if err := f.session.Establish(ctx, grant.Token, grant.User); err != nil {
		f.logger.Error("auth: establish session failed", "error", err)
		f.metrics.ObserveAuth("error")
		return f.reject(FallbackMessage, err)
	}

	if err := f.draft.Clear(ctx); err != nil {
		f.logger.Warn("auth: clear draft failed", "error", err)
	}

	f.mu.Lock()
	f.status = StatusAuthenticated
	f.message = ""
	f.mu.Unlock()
	f.metrics.ObserveAuth("success")
	f.logger.Info("patient authenticated", "patient_id", grant.User.ID)
	return Result{Status: StatusAuthenticated, Navigate: nav.To(nav.Modes)}
}

// Reset returns the form to Idle, for use after the session ends.
func (f *Flow) Reset() {
	f.mu.Lock()
	f.status = StatusIdle
	f.message = ""
	f.mu.Unlock()
}

func (f *Flow) reject(message string, err error) Result {
	f.mu.Lock()
	f.status = StatusRejected
	f.message = message
	f.mu.Unlock()
	return Result{Status: StatusRejected, Message: message, Err: err}
}
